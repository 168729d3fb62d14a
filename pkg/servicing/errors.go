package servicing

import "fmt"

// MountError reports a failed mount, commit-unmount, or the external tool
// refusing an image index.
type MountError struct {
	ImagePath string
	Index     int
	Err       error
}

func (e *MountError) Error() string {
	return fmt.Sprintf("mount operation on %s index %d failed: %v", e.ImagePath, e.Index, e.Err)
}

func (e *MountError) Unwrap() error { return e.Err }

// DriverInjectionError reports driver injection failing on both the
// signed-only attempt and the unsigned retry.
type DriverInjectionError struct {
	DriverDir string
	Err       error
}

func (e *DriverInjectionError) Error() string {
	return fmt.Sprintf("driver injection from %s failed after unsigned retry: %v", e.DriverDir, e.Err)
}

func (e *DriverInjectionError) Unwrap() error { return e.Err }

// UpdateApplicationError reports the first update package that failed to
// apply. Packages after it were not attempted.
type UpdateApplicationError struct {
	Package string
	Err     error
}

func (e *UpdateApplicationError) Error() string {
	return fmt.Sprintf("update package %s failed to apply: %v", e.Package, e.Err)
}

func (e *UpdateApplicationError) Unwrap() error { return e.Err }
