package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_ParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entropy_threshold: 7.0\nbackup_size_limit: \"10MB\"\n"), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, f.EntropyThreshold)
	require.InDelta(t, 7.0, *f.EntropyThreshold, 1e-9)
	require.Equal(t, "10MB", *f.BackupSizeLimit)
}

func TestLoad_MissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Error(t, err)
}

func TestParseBackupSizeLimit(t *testing.T) {
	n, err := ParseBackupSizeLimit("50MB")
	require.NoError(t, err)
	require.Equal(t, int64(50_000_000), n)

	n, err = ParseBackupSizeLimit("52428800")
	require.NoError(t, err)
	require.Equal(t, int64(52428800), n)

	_, err = ParseBackupSizeLimit("not-a-size")
	require.Error(t, err)
}

func TestResolved_Validate(t *testing.T) {
	base := Resolved{
		StorageRoot:      "/tmp/store",
		MountPoint:       "/tmp/mnt",
		BackupRoot:       "/tmp/store/.sentinelfs_backups",
		EntropyThreshold: DefaultEntropyThreshold,
		BackupSizeLimit:  DefaultBackupSizeLimit,
	}
	require.NoError(t, base.Validate())

	bad := base
	bad.EntropyThreshold = 0
	require.Error(t, bad.Validate())

	bad = base
	bad.EntropyThreshold = 8
	require.Error(t, bad.Validate())

	bad = base
	bad.BackupSizeLimit = -1
	require.Error(t, bad.Validate())

	bad = base
	bad.StorageRoot = ""
	require.Error(t, bad.Validate())

	bad = base
	bad.MountPoint = ""
	require.Error(t, bad.Validate())
}
