package servicing

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wimtool/wimtool/pkg/dism"
)

// fakeExecutor records tool invocations and fails on cue. The pipeline is
// strictly sequential, so no locking is needed.
type fakeExecutor struct {
	calls []string

	mountErr          error
	driverErrs        []error // consumed one per AddDriver call
	failPackage       string  // base name of the package that fails to apply
	unmountCommitErr  error
	unmountDiscardErr error
	listing           string
}

// imageBase extracts the base name of an image path. Image paths in the
// fixtures use Windows separators, which filepath.Base does not split when
// the tests run on a non-Windows host.
func imageBase(p string) string {
	return filepath.Base(strings.ReplaceAll(p, `\`, "/"))
}

func (f *fakeExecutor) Mount(_ context.Context, imagePath string, index int, mountDir string) error {
	f.calls = append(f.calls, fmt.Sprintf("mount %s %d", imageBase(imagePath), index))
	return f.mountErr
}

func (f *fakeExecutor) AddDriver(_ context.Context, _, driverDir string, opts dism.DriverAddOptions) error {
	f.calls = append(f.calls, fmt.Sprintf("add-driver %s unsigned=%v", filepath.Base(driverDir), opts.ForceUnsigned))

	if len(f.driverErrs) > 0 {
		err := f.driverErrs[0]
		f.driverErrs = f.driverErrs[1:]
		return err
	}
	return nil
}

func (f *fakeExecutor) AddPackage(_ context.Context, _, packagePath string) error {
	name := filepath.Base(packagePath)
	f.calls = append(f.calls, "add-package "+name)

	if f.failPackage != "" && name == f.failPackage {
		return fmt.Errorf("tool exited with code 1")
	}
	return nil
}

func (f *fakeExecutor) ListPackages(_ context.Context, mountDir string) (string, error) {
	f.calls = append(f.calls, "list-packages")
	return f.listing, nil
}

func (f *fakeExecutor) Unmount(_ context.Context, mountDir string, commit bool) error {
	if commit {
		f.calls = append(f.calls, "unmount commit")
		return f.unmountCommitErr
	}
	f.calls = append(f.calls, "unmount discard")
	return f.unmountDiscardErr
}
