// Package servicing implements the image-servicing pipeline: for each image
// index it mounts the image, injects drivers, applies update packages
// (install images only), optionally waits for operator verification, and
// commits — discarding the mount on any failure. The per-index flow is a
// superfly/fsm state machine.
package servicing

import (
	"context"
	"fmt"
	"time"

	"github.com/superfly/fsm"
	"github.com/wimtool/wimtool/pkg/db"
	"github.com/wimtool/wimtool/pkg/dism"
	"github.com/wimtool/wimtool/pkg/errors"
)

// Machine holds dependencies for the per-index FSM transitions. Indexes are
// processed strictly sequentially, so the machine owns at most one open
// mount session at a time.
type Machine struct {
	exec      dism.Executor
	repo      *db.Repository
	workDir   string
	driverDir string
	packages  []string
	verify    bool
	gate      *Gate

	session *Session
}

// NewMachine creates a servicing machine. packages is the ordered update
// set shared read-only across all install indexes; it is ignored for boot
// indexes.
func NewMachine(
	exec dism.Executor,
	repo *db.Repository,
	workDir string,
	driverDir string,
	packages []string,
	verify bool,
	gate *Gate,
) *Machine {
	if gate == nil {
		gate = NewGate()
	}
	return &Machine{
		exec:      exec,
		repo:      repo,
		workDir:   workDir,
		driverDir: driverDir,
		packages:  packages,
		verify:    verify,
		gate:      gate,
	}
}

// Register registers the index servicing FSM with the manager.
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[ServiceRequest, ServiceResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[ServiceRequest, ServiceResponse](manager, "index-service").
		Start(StateMount, m.handleMount).
		To(StateInjectDrivers, m.handleInjectDrivers).
		To(StateApplyUpdates, m.handleApplyUpdates).
		To(StateVerify, m.handleVerify).
		To(StateCommit, m.handleCommit).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// IndexServicer drives one image index through the full pipeline.
type IndexServicer interface {
	ServiceIndex(ctx context.Context, image ImageRef, index int) (*ServiceResponse, error)
}

// FSMServicer services indexes by starting one FSM run per index and
// waiting for it to finish.
type FSMServicer struct {
	manager *fsm.Manager
	start   fsm.Start[ServiceRequest, ServiceResponse]
}

// NewFSMServicer registers the machine and returns a servicer bound to it.
func NewFSMServicer(ctx context.Context, manager *fsm.Manager, machine *Machine) (*FSMServicer, error) {
	start, _, err := machine.Register(ctx, manager)
	if err != nil {
		return nil, err
	}
	return &FSMServicer{manager: manager, start: start}, nil
}

func (s *FSMServicer) ServiceIndex(ctx context.Context, image ImageRef, index int) (*ServiceResponse, error) {
	req := &ServiceRequest{ImagePath: image.Path, Kind: image.Kind, Index: index}
	resp := &ServiceResponse{}

	// Each attempt gets a fresh run id; there is no cross-run resumption
	// of a partially-serviced image.
	runID := fmt.Sprintf("%s-%d-%d", image.Kind, index, time.Now().UnixNano())

	version, err := s.start(ctx, runID, fsm.NewRequest(req, resp))
	if err != nil {
		return resp, errors.Wrap(err, "FSM start failed")
	}

	if err := s.manager.Wait(ctx, version); err != nil {
		return resp, errors.Wrapf(err, "servicing %s index %d failed", image.Kind, index)
	}

	return resp, nil
}
