package servicing

import (
	"fmt"
	"io"
)

// Reporter writes operator-facing progress lines: a percentage before each
// index and a completion line after each phase.
type Reporter struct {
	out io.Writer
}

// NewReporter creates a reporter writing to out.
func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Step reports progress of one activity at the given percentage.
func (r *Reporter) Step(activity, status string, percent int) {
	fmt.Fprintf(r.out, "[%3d%%] %s: %s\n", percent, activity, status)
}

// Done reports completion of an activity.
func (r *Reporter) Done(activity string) {
	fmt.Fprintf(r.out, "[100%%] %s: complete\n", activity)
}
