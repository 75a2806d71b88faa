package sentinelfs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// MountHandle represents a live FUSE mount of an intercepting filesystem.
type MountHandle struct {
	MountPoint string
	server     *fuse.Server
}

// Options configures the underlying go-fuse server.
type Options struct {
	Debug        bool
	EntryTimeout time.Duration
	AttrTimeout  time.Duration
}

// MountTimeout bounds how long Mount waits for the kernel to acknowledge the
// FUSE mount before giving up, so a mount blocked by a restrictive container
// runtime fails fast instead of hanging the process.
const MountTimeout = 10 * time.Second

// Mount creates backingDir and mountPoint if absent and mounts the
// intercepting filesystem. It blocks until the mount is ready or ctx expires.
func Mount(ctx context.Context, backingDir, mountPoint string, hooks *Hooks, opts Options) (*MountHandle, error) {
	if backingDir == "" {
		return nil, fmt.Errorf("storage_root is empty")
	}
	if mountPoint == "" {
		return nil, fmt.Errorf("mount_point is empty")
	}
	if err := os.MkdirAll(backingDir, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir storage_root: %w", err)
	}
	if err := os.MkdirAll(mountPoint, 0o755); err != nil {
		return nil, fmt.Errorf("mkdir mount_point: %w", err)
	}

	root, err := NewRoot(backingDir, hooks)
	if err != nil {
		return nil, fmt.Errorf("build loopback root: %w", err)
	}

	fsOpts := &fs.Options{
		EntryTimeout: &opts.EntryTimeout,
		AttrTimeout:  &opts.AttrTimeout,
		MountOptions: fuse.MountOptions{
			FsName: filepath.Base(backingDir),
			Name:   "sentinelfs",
			Debug:  opts.Debug,
		},
	}

	type mountResult struct {
		server *fuse.Server
		err    error
	}
	ch := make(chan mountResult, 1)
	go func() {
		server, err := fs.Mount(mountPoint, root, fsOpts)
		if err != nil {
			ch <- mountResult{nil, err}
			return
		}
		if err := server.WaitMount(); err != nil {
			ch <- mountResult{nil, err}
			return
		}
		ch <- mountResult{server, nil}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("mount %s: %w", mountPoint, res.err)
		}
		return &MountHandle{MountPoint: mountPoint, server: res.server}, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("mount %s timed out: %w", mountPoint, ctx.Err())
	}
}

// Unmount tears down the FUSE mount. Safe to call on a nil MountHandle.
func (m *MountHandle) Unmount() error {
	if m == nil || m.server == nil {
		return nil
	}
	return m.server.Unmount()
}

// Wait blocks until the FUSE server has been unmounted (by Unmount, by the
// kernel, or by the user running `fusermount -u`).
func (m *MountHandle) Wait() {
	if m == nil || m.server == nil {
		return
	}
	m.server.Wait()
}
