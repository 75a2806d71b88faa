// Package backup implements the JIT backup manager: on the first accepted
// write to a path, it copies the pre-image into backup_root before the write
// is allowed to proceed.
package backup

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/sentinelfs/sentinelfs/internal/stats"
)

const copyBufferSize = 8 * 1024

// seenEntry records the pre-image size/mtime observed at the moment of the
// last backup for a path, so an immediate duplicate offset-0 write against
// an unmodified file does not create a second, byte-identical backup. A
// truncate-to-zero followed by a fresh rewrite changes both size and mtime,
// so it is still backed up again as a distinct pre-image.
type seenEntry struct {
	size    int64
	modTime time.Time
}

// Manager performs just-in-time backups of file pre-images before a write
// is allowed to modify them.
type Manager struct {
	backupRoot string
	sizeLimit  int64
	counters   *stats.Counters
	logger     *slog.Logger
	runID      string

	mu   sync.Mutex
	seen map[string]seenEntry
}

// New constructs a Manager. backupRoot must already exist (callers create it
// with 0700 permissions at mount init). runID correlates this manager's log
// lines with the mount's startup log record.
func New(backupRoot string, sizeLimit int64, counters *stats.Counters, logger *slog.Logger, runID uuid.UUID) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		backupRoot: backupRoot,
		sizeLimit:  sizeLimit,
		counters:   counters,
		logger:     logger,
		runID:      runID.String(),
		seen:       make(map[string]seenEntry),
	}
}

// Backup performs the JIT backup of backingPath if this looks like a first
// write to an existing, non-empty file, subject to the size cap. It never
// returns an error: every failure mode here is logged and swallowed, and the
// write always proceeds to the detector afterward — a backup failure is an
// operator-visibility concern, not a reason to refuse an otherwise-safe
// write.
//
// Callers must invoke this only when offset == 0; whether the file already
// existed with non-zero size is evaluated here via Stat.
func (m *Manager) Backup(backingPath string) {
	info, err := os.Stat(backingPath)
	if err != nil {
		// Nothing exists yet at this path; nothing to back up.
		return
	}
	if info.Size() == 0 {
		return
	}
	if info.Size() > m.sizeLimit {
		m.logger.Warn("jit backup skipped: pre-image exceeds backup_size_limit",
			"path", backingPath,
			"size", humanize.Bytes(uint64(info.Size())),
			"limit", humanize.Bytes(uint64(m.sizeLimit)),
		)
		return
	}

	m.mu.Lock()
	if prev, ok := m.seen[backingPath]; ok && prev.size == info.Size() && prev.modTime.Equal(info.ModTime()) {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	dest, digest, err := m.copy(backingPath, info.Size())
	if err != nil {
		m.logger.Warn("jit backup failed", "path", backingPath, "error", err)
		return
	}

	m.mu.Lock()
	m.seen[backingPath] = seenEntry{size: info.Size(), modTime: info.ModTime()}
	m.mu.Unlock()

	m.counters.BackupsCreated.Add(1)
	m.logger.Info("jit backup created",
		"path", backingPath,
		"backup", dest,
		"size", humanize.Bytes(uint64(info.Size())),
		"blake3", digest,
		"run", m.runID,
	)
}

// copy performs the bytewise pre-image copy and returns the destination
// path and a BLAKE3 digest of the bytes copied, so an operator scanning logs
// can confirm backup integrity without opening the backup file. The digest
// is logged only — it is never written as a sidecar file, so backup_root's
// layout holds nothing but the backup files themselves.
func (m *Manager) copy(src string, size int64) (string, string, error) {
	dest := filepath.Join(m.backupRoot, fmt.Sprintf("%s.%d.backup", filepath.Base(src), time.Now().Unix()))

	in, err := os.Open(src)
	if err != nil {
		return "", "", fmt.Errorf("open pre-image: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return "", "", fmt.Errorf("create backup file: %w", err)
	}

	hasher := blake3.New()
	w := io.MultiWriter(out, hasher)
	buf := make([]byte, copyBufferSize)
	if _, err := io.CopyBuffer(w, in, buf); err != nil {
		out.Close()
		return "", "", fmt.Errorf("copy pre-image: %w", err)
	}

	// The backup must be durable on disk before the caller is allowed to
	// proceed to the underlying write; an unsynced backup defeats the point
	// of taking one.
	if err := out.Sync(); err != nil {
		out.Close()
		return "", "", fmt.Errorf("fsync backup file: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", "", fmt.Errorf("close backup file: %w", err)
	}

	return dest, fmt.Sprintf("%x", hasher.Sum(nil)), nil
}

// EnsureBackupRoot creates backup_root with owner-only permissions if
// absent.
func EnsureBackupRoot(path string) error {
	return os.MkdirAll(path, 0o700)
}
