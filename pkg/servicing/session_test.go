package servicing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

func TestSession_OpenCreatesFreshMountDir(t *testing.T) {
	workDir := t.TempDir()
	exec := &fakeExecutor{}
	session := NewSession(exec, workDir, ImageRef{Path: "install.wim", Kind: KindInstall}, 3)

	// Pre-seed stale content in the slot from a previous killed run.
	stale := filepath.Join(session.Dir, "leftover.txt")
	if err := os.MkdirAll(session.Dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("stale"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := session.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale content must be deleted before mounting")
	}
	if session.State() != Mounted {
		t.Errorf("state = %v, want Mounted", session.State())
	}

	want := filepath.Join(workDir, "mounts", "install_3")
	if session.Dir != want {
		t.Errorf("mount dir = %s, want %s", session.Dir, want)
	}
}

func TestSession_OpenMountFailure(t *testing.T) {
	exec := &fakeExecutor{mountErr: fmt.Errorf("tool exited with code 2")}
	session := NewSession(exec, t.TempDir(), ImageRef{Path: "install.wim", Kind: KindInstall}, 1)

	err := session.Open(context.Background())

	var mountErr *MountError
	if !errors.As(err, &mountErr) {
		t.Fatalf("expected MountError, got %v", err)
	}
	if mountErr.Index != 1 {
		t.Errorf("MountError index = %d, want 1", mountErr.Index)
	}
	if session.State() != Unmounted {
		t.Error("a failed mount must leave the session unopened")
	}

	// The empty directory persists; the slot is wiped on its next use.
	if _, statErr := os.Stat(session.Dir); statErr != nil {
		t.Errorf("mount directory should persist after a failed mount: %v", statErr)
	}
}

func TestSession_CommitRemovesMountDir(t *testing.T) {
	exec := &fakeExecutor{}
	session := NewSession(exec, t.TempDir(), ImageRef{Path: "install.wim", Kind: KindInstall}, 1)

	if err := session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := session.Commit(context.Background()); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	if _, err := os.Stat(session.Dir); !os.IsNotExist(err) {
		t.Error("mount directory must not exist after commit")
	}
	if got := exec.calls[len(exec.calls)-1]; got != "unmount commit" {
		t.Errorf("last tool call = %s, want unmount commit", got)
	}
}

func TestSession_CommitFailure(t *testing.T) {
	exec := &fakeExecutor{unmountCommitErr: fmt.Errorf("tool exited with code 5")}
	session := NewSession(exec, t.TempDir(), ImageRef{Path: "install.wim", Kind: KindInstall}, 1)

	if err := session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	err := session.Commit(context.Background())

	var mountErr *MountError
	if !errors.As(err, &mountErr) {
		t.Fatalf("expected MountError from failed commit, got %v", err)
	}
}

func TestSession_DiscardRemovesMountDirEvenWhenUnmountFails(t *testing.T) {
	exec := &fakeExecutor{unmountDiscardErr: fmt.Errorf("tool exited with code 3")}
	session := NewSession(exec, t.TempDir(), ImageRef{Path: "boot.wim", Kind: KindBoot}, 2)

	if err := session.Open(context.Background()); err != nil {
		t.Fatal(err)
	}

	session.Discard(context.Background())

	if _, err := os.Stat(session.Dir); !os.IsNotExist(err) {
		t.Error("mount directory must not exist after discard")
	}
	if session.State() != Unmounted {
		t.Errorf("state = %v, want Unmounted", session.State())
	}
	if got := exec.calls[len(exec.calls)-1]; got != "unmount discard" {
		t.Errorf("last tool call = %s, want unmount discard", got)
	}
}
