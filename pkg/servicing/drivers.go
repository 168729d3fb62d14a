package servicing

import (
	"context"
	"log/slog"

	"github.com/wimtool/wimtool/pkg/dism"
)

// InjectDrivers applies the driver directory (recursive) to the mounted
// image, walking the driver install policy: one signed-only attempt, then
// exactly one retry accepting unsigned drivers.
func InjectDrivers(ctx context.Context, exec dism.Executor, mountDir, driverDir string) error {
	var lastErr error

	for _, opts := range dism.DriverInstallPolicy() {
		if opts.ForceUnsigned {
			slog.Warn("driver_injection_retry_unsigned", "driver_dir", driverDir, "error", lastErr)
		}

		if err := exec.AddDriver(ctx, mountDir, driverDir, opts); err != nil {
			lastErr = err
			continue
		}

		slog.Info("driver_injection_complete", "driver_dir", driverDir, "force_unsigned", opts.ForceUnsigned)
		return nil
	}

	slog.Error("driver_injection_failed", "driver_dir", driverDir, "error", lastErr)
	return &DriverInjectionError{DriverDir: driverDir, Err: lastErr}
}
