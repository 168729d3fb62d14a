package servicing

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wimtool/wimtool/pkg/dism"
	"github.com/wimtool/wimtool/pkg/errors"
)

// SessionState tracks the lifecycle of a mounted image index.
type SessionState int

const (
	Unmounted SessionState = iota
	Mounted
	Committing
	Discarding
)

// Session owns one mounted image index. It is exclusively owned by the
// orchestrator for the duration of that index's processing; the mount
// directory is created fresh on Open and removed on every exit path.
type Session struct {
	exec  dism.Executor
	Image ImageRef
	Index int
	Dir   string
	state SessionState
}

// NewSession prepares a session for the deterministic mount slot
// <workDir>/mounts/<kind>_<index>. Nothing touches the filesystem until Open.
func NewSession(exec dism.Executor, workDir string, image ImageRef, index int) *Session {
	return &Session{
		exec:  exec,
		Image: image,
		Index: index,
		Dir:   filepath.Join(workDir, "mounts", fmt.Sprintf("%s_%d", image.Kind, index)),
	}
}

// State returns the current session state.
func (s *Session) State() SessionState { return s.state }

// Open deletes any stale directory in this slot, recreates it, and mounts
// the image index there. On mount failure the session is never opened; the
// empty directory persists and is overwritten on the slot's next use.
func (s *Session) Open(ctx context.Context) error {
	slog.Info("mount_session_open", "image", s.Image.Path, "index", s.Index, "mount_dir", s.Dir)

	if err := os.RemoveAll(s.Dir); err != nil {
		return &MountError{ImagePath: s.Image.Path, Index: s.Index,
			Err: errors.Wrap(err, "failed to remove stale mount directory")}
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return &MountError{ImagePath: s.Image.Path, Index: s.Index,
			Err: errors.Wrap(err, "failed to create mount directory")}
	}

	if err := s.exec.Mount(ctx, s.Image.Path, s.Index, s.Dir); err != nil {
		slog.Error("mount_failed", "image", s.Image.Path, "index", s.Index, "error", err)
		return &MountError{ImagePath: s.Image.Path, Index: s.Index, Err: err}
	}

	s.state = Mounted
	slog.Info("mount_session_opened", "image", s.Image.Path, "index", s.Index)
	return nil
}

// Commit writes the mounted changes back into the image and removes the
// mount directory. Callers must not commit a session whose pipeline failed.
func (s *Session) Commit(ctx context.Context) error {
	slog.Info("mount_session_commit", "image", s.Image.Path, "index", s.Index)
	s.state = Committing

	if err := s.exec.Unmount(ctx, s.Dir, true); err != nil {
		slog.Error("commit_unmount_failed", "image", s.Image.Path, "index", s.Index, "error", err)
		return &MountError{ImagePath: s.Image.Path, Index: s.Index,
			Err: errors.Wrap(err, "commit unmount failed")}
	}

	s.removeDir()
	s.state = Unmounted
	slog.Info("mount_session_committed", "image", s.Image.Path, "index", s.Index)
	return nil
}

// Discard reverts the mounted changes, best-effort, and removes the mount
// directory. Used whenever a later pipeline step fails.
func (s *Session) Discard(ctx context.Context) {
	slog.Info("mount_session_discard", "image", s.Image.Path, "index", s.Index)
	s.state = Discarding

	if err := s.exec.Unmount(ctx, s.Dir, false); err != nil {
		slog.Error("discard_unmount_failed", "image", s.Image.Path, "index", s.Index, "error", err)
	}

	s.removeDir()
	s.state = Unmounted
}

func (s *Session) removeDir() {
	if err := os.RemoveAll(s.Dir); err != nil {
		slog.Error("mount_dir_removal_failed", "mount_dir", s.Dir, "error", err)
	}
}
