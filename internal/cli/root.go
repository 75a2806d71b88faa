// Package cli builds the sentinelfs command line: a single mount command
// that promotes the detector's compile-time tunables to runtime flags.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/sentinelfs/sentinelfs/internal/backup"
	"github.com/sentinelfs/sentinelfs/internal/classify"
	"github.com/sentinelfs/sentinelfs/internal/config"
	"github.com/sentinelfs/sentinelfs/internal/detect"
	"github.com/sentinelfs/sentinelfs/internal/sentinelfs"
	"github.com/sentinelfs/sentinelfs/internal/stats"
)

// ExitError lets Run report a specific process exit code without coupling
// main's exit-code dispatch to every possible internal error type.
type ExitError struct {
	code    int
	message string
}

func (e *ExitError) Error() string   { return e.message }
func (e *ExitError) Code() int       { return e.code }
func (e *ExitError) Message() string { return e.message }

func exitErrorf(code int, format string, args ...any) error {
	return &ExitError{code: code, message: fmt.Sprintf(format, args...)}
}

// NewRoot builds the sentinelfs root command:
// sentinelfs <storage_path> <mount_point> [--entropy-threshold F] [--backup-size-limit S] [--config PATH] [--debug]
func NewRoot(version string) *cobra.Command {
	var (
		entropyThreshold float64
		backupSizeLimit  string
		configPath       string
		debug            bool
	)

	cmd := &cobra.Command{
		Use:           "sentinelfs <storage_path> <mount_point>",
		Short:         "sentinelfs: real-time ransomware-resistant stacking filesystem",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			resolved, err := resolveConfig(args[0], args[1], entropyThreshold, backupSizeLimit, configPath, debug)
			if err != nil {
				return exitErrorf(2, "%s", err)
			}
			return run(cmd.Context(), resolved)
		},
	}
	cmd.Version = version
	cmd.SetVersionTemplate("sentinelfs {{.Version}}\n")

	cmd.Flags().Float64Var(&entropyThreshold, "entropy-threshold", config.DefaultEntropyThreshold, "Shannon entropy (bits/byte) above which a non-whitelisted write is blocked")
	cmd.Flags().StringVar(&backupSizeLimit, "backup-size-limit", strconv.FormatInt(config.DefaultBackupSizeLimit, 10), "pre-images larger than this are never backed up (byte-size syntax, e.g. 50MiB)")
	cmd.Flags().StringVar(&configPath, "config", "", "optional YAML config file overriding the defaults above")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every FUSE operation at debug level")

	return cmd
}

func resolveConfig(storageRoot, mountPoint string, entropyThreshold float64, backupSizeLimitFlag, configPath string, debug bool) (config.Resolved, error) {
	sizeLimit, err := config.ParseBackupSizeLimit(backupSizeLimitFlag)
	if err != nil {
		return config.Resolved{}, err
	}

	r := config.Resolved{
		StorageRoot:      storageRoot,
		MountPoint:       mountPoint,
		EntropyThreshold: entropyThreshold,
		BackupSizeLimit:  sizeLimit,
		Debug:            debug,
	}

	if configPath != "" {
		f, err := config.Load(configPath)
		if err != nil {
			return config.Resolved{}, err
		}
		if f.EntropyThreshold != nil {
			r.EntropyThreshold = *f.EntropyThreshold
		}
		if f.BackupSizeLimit != nil {
			n, err := config.ParseBackupSizeLimit(*f.BackupSizeLimit)
			if err != nil {
				return config.Resolved{}, err
			}
			r.BackupSizeLimit = n
		}
		if f.StorageRoot != nil {
			r.StorageRoot = *f.StorageRoot
		}
		if f.BackupRoot != nil {
			r.BackupRoot = *f.BackupRoot
		}
	}

	if r.BackupRoot == "" {
		r.BackupRoot = r.StorageRoot + "/.sentinelfs_backups"
	}

	if err := r.Validate(); err != nil {
		return config.Resolved{}, err
	}
	return r, nil
}

func run(ctx context.Context, r config.Resolved) error {
	level := slog.LevelInfo
	if r.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	runID := uuid.New()
	logger.Info("sentinelfs starting",
		"run", runID.String(),
		"storage_root", r.StorageRoot,
		"mount_point", r.MountPoint,
		"backup_root", r.BackupRoot,
		"entropy_threshold", r.EntropyThreshold,
		"backup_size_limit", r.BackupSizeLimit,
	)

	if err := backup.EnsureBackupRoot(r.BackupRoot); err != nil {
		return exitErrorf(1, "create backup_root: %s", err)
	}

	classifier, err := classify.Open()
	if err != nil {
		return exitErrorf(1, "initialize classifier: %s", err)
	}
	defer classifier.Close()

	counters := &stats.Counters{}
	detector := detect.New(classifier, r.EntropyThreshold, counters)
	backupMgr := backup.New(r.BackupRoot, r.BackupSizeLimit, counters, logger, runID)

	hooks := &sentinelfs.Hooks{
		Detector: detector,
		Backup:   backupMgr,
		Logger:   logger,
	}

	mountCtx, cancelMount := context.WithTimeout(ctx, sentinelfs.MountTimeout)
	mount, err := sentinelfs.Mount(mountCtx, r.StorageRoot, r.MountPoint, hooks, sentinelfs.Options{Debug: r.Debug})
	cancelMount()
	if err != nil {
		return exitErrorf(1, "mount: %s", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-runCtx.Done()
		logger.Info("shutdown signal received, unmounting", "mount_point", r.MountPoint)
		_ = mount.Unmount()
	}()

	mount.Wait()

	snap := counters.Snapshot()
	logger.Info("sentinelfs stopped",
		"run", runID.String(),
		"total_writes", snap.TotalWrites,
		"blocked_writes", snap.BlockedWrites,
		"backups_created", snap.BackupsCreated,
		"block_rate", snap.BlockRate(),
	)
	return nil
}
