// Package sentinelfs implements the write interceptor: a FUSE loopback
// filesystem that backs up and classifies every write before allowing it
// through to the underlying storage.
package sentinelfs

import (
	"context"
	"log/slog"
	"path/filepath"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/sentinelfs/sentinelfs/internal/backup"
	"github.com/sentinelfs/sentinelfs/internal/detect"
)

// Hooks bundles the collaborators a node needs to reach for every
// intercepted write: the classifier/entropy pipeline, the backup manager,
// and a logger.
type Hooks struct {
	Detector *detect.Detector
	Backup   *backup.Manager
	Logger   *slog.Logger
}

func (h *Hooks) logger() *slog.Logger {
	if h == nil || h.Logger == nil {
		return slog.Default()
	}
	return h.Logger
}

// node is a LoopbackNode that intercepts Open and Create to wrap the
// returned file handle. Every other operation (Getattr, Readdir, Mkdir,
// Unlink, Rmdir, Rename, Setattr) is inherited unmodified: writes are the
// only path that needs a pre-image backup and a content check before it is
// allowed through to the backing store.
type node struct {
	fs.LoopbackNode
	hooks *Hooks
}

// NewRoot constructs the root node of the intercepting filesystem rooted at
// backingDir.
func NewRoot(backingDir string, hooks *Hooks) (fs.InodeEmbedder, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(backingDir, &st); err != nil {
		return nil, err
	}

	lbRoot := &fs.LoopbackRoot{
		Path: backingDir,
		Dev:  uint64(st.Dev),
	}
	lbRoot.NewNode = func(rootData *fs.LoopbackRoot, parent *fs.Inode, name string, st *syscall.Stat_t) fs.InodeEmbedder {
		return &node{LoopbackNode: fs.LoopbackNode{RootData: rootData}, hooks: hooks}
	}

	rootNode := lbRoot.NewNode(lbRoot, nil, "", &st)
	lbRoot.RootNode = rootNode
	return rootNode, nil
}

func (n *node) backingPath() string {
	if n.RootData == nil || n.RootData.RootNode == nil {
		return ""
	}
	rel := n.Path(n.RootData.RootNode.EmbeddedInode())
	return filepath.Join(n.RootData.Path, rel)
}

func (n *node) Open(ctx context.Context, flags uint32) (fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	fh, fuseFlags, errno = n.LoopbackNode.Open(ctx, flags)
	if errno != 0 {
		return fh, fuseFlags, errno
	}
	return &fileHandle{inner: fh, n: n, path: n.backingPath()}, fuseFlags, errno
}

func (n *node) Create(ctx context.Context, name string, flags uint32, mode uint32, out *fuse.EntryOut) (inode *fs.Inode, fh fs.FileHandle, fuseFlags uint32, errno syscall.Errno) {
	inode, fh, fuseFlags, errno = n.LoopbackNode.Create(ctx, name, flags, mode, out)
	if errno != 0 {
		return inode, fh, fuseFlags, errno
	}
	path := filepath.Join(n.backingPath(), name)
	return inode, &fileHandle{inner: fh, n: n, path: path}, fuseFlags, errno
}

// fileHandle wraps the loopback file handle to interpose on Write: back up
// the pre-image on a first write at offset 0, classify and entropy-check the
// buffer, and refuse the write outright on a block verdict.
type fileHandle struct {
	inner fs.FileHandle
	n     *node
	path  string
}

func (f *fileHandle) Write(ctx context.Context, data []byte, off int64) (uint32, syscall.Errno) {
	if off == 0 {
		f.n.hooks.Backup.Backup(f.path)
	}

	dec := f.n.hooks.Detector.Decide(data)
	log := f.n.hooks.logger()
	if dec.Verdict == detect.Block {
		log.Warn("write blocked",
			"path", f.path, "offset", off, "bytes", len(data),
			"label", string(dec.Label), "entropy", dec.Entropy, "verdict", dec.Verdict.String())
		return 0, syscall.EIO
	}
	log.Debug("write allowed",
		"path", f.path, "offset", off, "bytes", len(data),
		"label", string(dec.Label), "entropy", dec.Entropy, "verdict", dec.Verdict.String())

	if w, ok := f.inner.(fs.FileWriter); ok {
		return w.Write(ctx, data, off)
	}
	return 0, syscall.ENOSYS
}

func (f *fileHandle) Read(ctx context.Context, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	if r, ok := f.inner.(fs.FileReader); ok {
		return r.Read(ctx, dest, off)
	}
	return nil, syscall.ENOSYS
}

func (f *fileHandle) Flush(ctx context.Context) syscall.Errno {
	if fl, ok := f.inner.(fs.FileFlusher); ok {
		return fl.Flush(ctx)
	}
	return 0
}

func (f *fileHandle) Release(ctx context.Context) syscall.Errno {
	if r, ok := f.inner.(fs.FileReleaser); ok {
		return r.Release(ctx)
	}
	return 0
}

func (f *fileHandle) Fsync(ctx context.Context, flags uint32) syscall.Errno {
	if s, ok := f.inner.(fs.FileFsyncer); ok {
		return s.Fsync(ctx, flags)
	}
	return 0
}

func (f *fileHandle) Getattr(ctx context.Context, out *fuse.AttrOut) syscall.Errno {
	if g, ok := f.inner.(fs.FileGetattrer); ok {
		return g.Getattr(ctx, out)
	}
	return syscall.ENOSYS
}
