package servicing

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
)

type fakeServicer struct {
	serviced []string
	failAt   string
}

func (f *fakeServicer) ServiceIndex(_ context.Context, image ImageRef, index int) (*ServiceResponse, error) {
	key := fmt.Sprintf("%s %d", image.Kind, index)
	f.serviced = append(f.serviced, key)

	if key == f.failAt {
		return &ServiceResponse{Status: "discarded"}, fmt.Errorf("driver injection from ./drivers failed after unsigned retry")
	}
	return &ServiceResponse{Status: "committed"}, nil
}

func newTestRunner(servicer IndexServicer, out *bytes.Buffer, editionIndex int, allIndexes bool) *Runner {
	return NewRunner(
		servicer,
		NewReporter(out),
		ImageRef{Path: `C:\img\install.wim`, Kind: KindInstall},
		ImageRef{Path: `./Downloads/boot.wim`, Kind: KindBoot},
		editionIndex,
		allIndexes,
		11,
	)
}

func TestRunner_SingleIndexThenBoot(t *testing.T) {
	servicer := &fakeServicer{}
	out := &bytes.Buffer{}

	if err := newTestRunner(servicer, out, 6, false).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	want := []string{"install 6", "boot 1", "boot 2"}
	if strings.Join(servicer.serviced, "; ") != strings.Join(want, "; ") {
		t.Errorf("serviced = %v, want %v", servicer.serviced, want)
	}
}

func TestRunner_AllIndexesEnumeration(t *testing.T) {
	servicer := &fakeServicer{}
	out := &bytes.Buffer{}

	if err := newTestRunner(servicer, out, 6, true).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	// 11 install indexes from 1, then always exactly 2 boot indexes.
	if len(servicer.serviced) != 13 {
		t.Fatalf("serviced %d indexes, want 13: %v", len(servicer.serviced), servicer.serviced)
	}
	if servicer.serviced[0] != "install 1" || servicer.serviced[10] != "install 11" {
		t.Errorf("install enumeration wrong: %v", servicer.serviced)
	}
	if servicer.serviced[11] != "boot 1" || servicer.serviced[12] != "boot 2" {
		t.Errorf("boot enumeration wrong: %v", servicer.serviced)
	}
}

func TestRunner_HaltsOnFirstFailure(t *testing.T) {
	servicer := &fakeServicer{failAt: "install 3"}
	out := &bytes.Buffer{}

	err := newTestRunner(servicer, out, 6, true).Run(context.Background())
	if err == nil {
		t.Fatal("run must fail when an index does not commit")
	}
	if !strings.Contains(err.Error(), "index 3") {
		t.Errorf("failure must name the index: %v", err)
	}

	// Indexes 1-2 committed, 3 failed, 4+ never attempted, boot never starts.
	want := []string{"install 1", "install 2", "install 3"}
	if strings.Join(servicer.serviced, "; ") != strings.Join(want, "; ") {
		t.Errorf("serviced = %v, want %v", servicer.serviced, want)
	}
}

func TestRunner_BootPhaseAlwaysTwoIndexes(t *testing.T) {
	for _, allIndexes := range []bool{false, true} {
		servicer := &fakeServicer{}
		out := &bytes.Buffer{}

		if err := newTestRunner(servicer, out, 2, allIndexes).Run(context.Background()); err != nil {
			t.Fatalf("run failed: %v", err)
		}

		boot := 0
		for _, key := range servicer.serviced {
			if strings.HasPrefix(key, "boot ") {
				boot++
			}
		}
		if boot != 2 {
			t.Errorf("allIndexes=%v: boot indexes serviced = %d, want 2", allIndexes, boot)
		}
	}
}

func TestRunner_ProgressOutput(t *testing.T) {
	servicer := &fakeServicer{}
	out := &bytes.Buffer{}

	if err := newTestRunner(servicer, out, 6, false).Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 progress lines, got %d:\n%s", len(lines), out.String())
	}

	if !strings.Contains(lines[0], "[  0%] Servicing install image: index 6") {
		t.Errorf("install step line wrong: %s", lines[0])
	}
	if !strings.Contains(lines[1], "[100%] Servicing install image: complete") {
		t.Errorf("install completion line wrong: %s", lines[1])
	}
	if !strings.Contains(lines[2], "[  0%] Servicing boot image: index 1") ||
		!strings.Contains(lines[3], "[ 50%] Servicing boot image: index 2") {
		t.Errorf("boot step lines wrong: %q, %q", lines[2], lines[3])
	}
	if !strings.Contains(lines[4], "[100%] Servicing boot image: complete") {
		t.Errorf("boot completion line wrong: %s", lines[4])
	}
}
