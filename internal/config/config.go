// Package config loads the handful of runtime tunables SentinelFS exposes:
// CLI flags, with an optional config file whose set fields override them.
package config

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

const (
	DefaultEntropyThreshold = 7.5
	DefaultBackupSizeLimit  = 50 * 1024 * 1024 // 50 MiB
)

// File is the optional on-disk configuration format for SentinelFS,
// supplied via --config. A field set in the file overrides the matching CLI
// flag value (or positional argument), even when that flag was given
// explicitly; a field left unset keeps the flag value, which in turn falls
// back to the compile-time default.
type File struct {
	EntropyThreshold *float64 `yaml:"entropy_threshold"`
	BackupSizeLimit  *string  `yaml:"backup_size_limit"`
	StorageRoot      *string  `yaml:"storage_root"`
	BackupRoot       *string  `yaml:"backup_root"`
}

// Load reads and parses a YAML config file. A missing or unreadable file is
// an error; callers should only invoke Load when --config was actually set.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &f, nil
}

// Resolved is the final, validated set of tunables after applying the
// config file's set fields over the CLI flags.
type Resolved struct {
	StorageRoot      string
	MountPoint       string
	BackupRoot       string
	EntropyThreshold float64
	BackupSizeLimit  int64
	Debug            bool
}

// Validate enforces the constraints the rest of the system assumes hold for
// these tunables.
func (r Resolved) Validate() error {
	if r.EntropyThreshold <= 0 || r.EntropyThreshold >= 8 {
		return fmt.Errorf("entropy_threshold must be in (0, 8), got %v", r.EntropyThreshold)
	}
	if r.BackupSizeLimit < 0 {
		return fmt.Errorf("backup_size_limit must be >= 0, got %d", r.BackupSizeLimit)
	}
	if r.StorageRoot == "" {
		return fmt.Errorf("storage_root is required")
	}
	if r.MountPoint == "" {
		return fmt.Errorf("mount_point is required")
	}
	return nil
}

// ParseBackupSizeLimit parses a human byte-size string ("50MiB", "52428800")
// via go-humanize.
func ParseBackupSizeLimit(s string) (int64, error) {
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("parse backup_size_limit %q: %w", s, err)
	}
	return int64(n), nil
}
