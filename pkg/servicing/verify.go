package servicing

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/wimtool/wimtool/pkg/dism"
)

// Gate is the optional interactive checkpoint before commit. It shows the
// operator the mounted image's package inventory and blocks until an
// acknowledgment line arrives. It cannot fail, only delay; cancellation is
// out of band (the operator kills the process).
type Gate struct {
	In  io.Reader
	Out io.Writer
}

// NewGate creates a gate on the operator console.
func NewGate() *Gate {
	return &Gate{In: os.Stdin, Out: os.Stdout}
}

// Confirm lists the integrated packages and waits for acknowledgment.
func (g *Gate) Confirm(ctx context.Context, exec dism.Executor, mountDir string) {
	listing, err := exec.ListPackages(ctx, mountDir)
	if err != nil {
		slog.Warn("verification_package_listing_failed", "mount_dir", mountDir, "error", err)
	} else {
		fmt.Fprintln(g.Out, listing)
	}

	fmt.Fprintf(g.Out, "Inspect the mounted image at %s, then press Enter to commit: ", mountDir)

	// EOF counts as acknowledgment so piped input does not wedge the run.
	_, _ = bufio.NewReader(g.In).ReadString('\n')

	slog.Info("verification_acknowledged", "mount_dir", mountDir)
}
