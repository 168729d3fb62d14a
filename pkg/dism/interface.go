package dism

import "context"

// DriverAddOptions controls a single driver-add attempt.
type DriverAddOptions struct {
	// ForceUnsigned accepts drivers that fail signature verification.
	ForceUnsigned bool
}

// Executor runs discrete operations of the external image-servicing tool.
// Any non-zero exit of the tool is reported as an error; the tool gives no
// structured detail beyond its exit code and console output.
type Executor interface {
	// Mount exposes one image index at mountDir for modification
	Mount(ctx context.Context, imagePath string, index int, mountDir string) error

	// AddDriver injects a driver directory (recursive) into the mounted image
	AddDriver(ctx context.Context, mountDir, driverDir string, opts DriverAddOptions) error

	// AddPackage applies one update package to the mounted image
	AddPackage(ctx context.Context, mountDir, packagePath string) error

	// ListPackages returns the tool's package inventory for the mounted image
	ListPackages(ctx context.Context, mountDir string) (string, error)

	// Unmount releases the mount, committing changes when commit is true
	// and reverting them otherwise
	Unmount(ctx context.Context, mountDir string, commit bool) error
}

// DriverInstallPolicy is the ordered list of attempts for driver injection:
// signed-only first, then one retry accepting unsigned drivers. The common
// failure mode is an unsigned-driver rejection, not a transient fault.
func DriverInstallPolicy() []DriverAddOptions {
	return []DriverAddOptions{
		{ForceUnsigned: false},
		{ForceUnsigned: true},
	}
}
