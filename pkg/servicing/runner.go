package servicing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/wimtool/wimtool/pkg/errors"
)

// bootImageIndexes is the number of indexes a pre-boot recovery image
// ships with. Recovery images carry exactly two variants.
const bootImageIndexes = 2

// Runner enumerates the indexes to service and drives them strictly
// sequentially: all install indexes first, then the two boot indexes. The
// run halts on the first index that fails to commit.
type Runner struct {
	servicer IndexServicer
	progress *Reporter

	installImage ImageRef
	bootImage    ImageRef

	editionIndex      int
	allIndexes        bool
	maxInstallIndexes int
}

// NewRunner creates a run controller. When allIndexes is set the install
// image is serviced from index 1 through maxInstallIndexes; otherwise only
// editionIndex is serviced.
func NewRunner(
	servicer IndexServicer,
	progress *Reporter,
	installImage, bootImage ImageRef,
	editionIndex int,
	allIndexes bool,
	maxInstallIndexes int,
) *Runner {
	return &Runner{
		servicer:          servicer,
		progress:          progress,
		installImage:      installImage,
		bootImage:         bootImage,
		editionIndex:      editionIndex,
		allIndexes:        allIndexes,
		maxInstallIndexes: maxInstallIndexes,
	}
}

// InstallIndexes returns the install-image index enumeration. The upper
// bound is a conservative constant the operator must match to the real
// image layout; the external tool does not report how many indexes exist.
func (r *Runner) InstallIndexes() []int {
	if !r.allIndexes {
		return []int{r.editionIndex}
	}

	indexes := make([]int, 0, r.maxInstallIndexes)
	for i := 1; i <= r.maxInstallIndexes; i++ {
		indexes = append(indexes, i)
	}
	return indexes
}

// BootIndexes returns the fixed boot-image index enumeration.
func (r *Runner) BootIndexes() []int {
	indexes := make([]int, 0, bootImageIndexes)
	for i := 1; i <= bootImageIndexes; i++ {
		indexes = append(indexes, i)
	}
	return indexes
}

// Run services the install phase then the boot phase. Concurrent mounts are
// unsafe with a shared external tool, so indexes run one at a time.
func (r *Runner) Run(ctx context.Context) error {
	if err := r.runPhase(ctx, "Servicing install image", r.installImage, r.InstallIndexes()); err != nil {
		return err
	}

	return r.runPhase(ctx, "Servicing boot image", r.bootImage, r.BootIndexes())
}

func (r *Runner) runPhase(ctx context.Context, activity string, image ImageRef, indexes []int) error {
	for i, index := range indexes {
		r.progress.Step(activity, fmt.Sprintf("index %d (%d of %d)", index, i+1, len(indexes)), i*100/len(indexes))

		resp, err := r.servicer.ServiceIndex(ctx, image, index)
		if err != nil {
			slog.Error("servicing_index_failed",
				"image", image.Path, "kind", image.Kind, "index", index, "error", err)
			return errors.Wrapf(err, "%s index %d of %s did not commit", image.Kind, index, image.Path)
		}

		slog.Info("servicing_index_complete",
			"image", image.Path, "kind", image.Kind, "index", index,
			"status", resp.Status, "packages_applied", resp.PackagesApplied)
	}

	r.progress.Done(activity)
	return nil
}
