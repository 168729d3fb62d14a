package servicing

import (
	"context"
	"log/slog"

	"github.com/wimtool/wimtool/pkg/dism"
)

// ApplyPackages applies update packages strictly in order. Order matters:
// cumulative packages assume their prerequisites are already applied. It
// stops at the first failing package and returns how many were applied
// before it; the remaining packages are not attempted.
func ApplyPackages(ctx context.Context, exec dism.Executor, mountDir string, packages []string) (int, error) {
	for i, pkg := range packages {
		slog.Info("update_package_apply", "package", pkg, "position", i+1, "total", len(packages))

		if err := exec.AddPackage(ctx, mountDir, pkg); err != nil {
			slog.Error("update_package_failed", "package", pkg, "applied", i, "error", err)
			return i, &UpdateApplicationError{Package: pkg, Err: err}
		}
	}

	slog.Info("update_packages_complete", "applied", len(packages))
	return len(packages), nil
}
