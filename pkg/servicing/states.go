package servicing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/superfly/fsm"
	"github.com/wimtool/wimtool/pkg/db"
)

// handleMount opens the mount session for the requested index and records
// the servicing attempt.
func (m *Machine) handleMount(ctx context.Context, req *fsm.Request[ServiceRequest, ServiceResponse]) (*fsm.Response[ServiceResponse], error) {
	slog.Info("servicing_state_mount", "image", req.Msg.ImagePath, "kind", req.Msg.Kind, "index", req.Msg.Index)

	resp := req.W.Msg
	if resp == nil {
		resp = &ServiceResponse{}
	}

	rec := &db.Record{
		ImagePath:  req.Msg.ImagePath,
		ImageKind:  string(req.Msg.Kind),
		ImageIndex: req.Msg.Index,
		Status:     db.StatusPending,
	}
	if err := m.repo.Create(rec); err != nil {
		slog.Error("servicing_record_create_failed", "image", req.Msg.ImagePath, "error", err)
		return nil, fsm.Abort(err)
	}
	resp.RecordID = rec.ID

	session := NewSession(m.exec, m.workDir, ImageRef{Path: req.Msg.ImagePath, Kind: req.Msg.Kind}, req.Msg.Index)
	if err := session.Open(ctx); err != nil {
		// The session never opened; there is nothing to discard.
		return nil, m.fail(resp, db.StatusFailed, err)
	}

	m.session = session
	resp.MountDir = session.Dir
	resp.Status = db.StatusMounted
	m.repo.UpdateStatus(rec.ID, db.StatusMounted, "")

	return fsm.NewResponse(resp), nil
}

// handleInjectDrivers applies the driver directory, retrying once with the
// signing policy relaxed. Failure discards the session.
func (m *Machine) handleInjectDrivers(ctx context.Context, req *fsm.Request[ServiceRequest, ServiceResponse]) (*fsm.Response[ServiceResponse], error) {
	slog.Info("servicing_state_inject_drivers", "image", req.Msg.ImagePath, "index", req.Msg.Index)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if m.session == nil {
		return nil, fsm.Abort(fmt.Errorf("no open mount session for index %d", req.Msg.Index))
	}

	if err := InjectDrivers(ctx, m.exec, m.session.Dir, m.driverDir); err != nil {
		return nil, m.discardAndFail(ctx, resp, err)
	}

	return fsm.NewResponse(resp), nil
}

// handleApplyUpdates applies the ordered package set. Boot images skip this
// state: recovery images receive drivers only.
func (m *Machine) handleApplyUpdates(ctx context.Context, req *fsm.Request[ServiceRequest, ServiceResponse]) (*fsm.Response[ServiceResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if req.Msg.Kind != KindInstall {
		slog.Info("servicing_state_apply_updates_skipped", "image", req.Msg.ImagePath, "kind", req.Msg.Kind)
		return fsm.NewResponse(resp), nil
	}

	slog.Info("servicing_state_apply_updates", "image", req.Msg.ImagePath, "index", req.Msg.Index, "package_count", len(m.packages))

	if m.session == nil {
		return nil, fsm.Abort(fmt.Errorf("no open mount session for index %d", req.Msg.Index))
	}

	applied, err := ApplyPackages(ctx, m.exec, m.session.Dir, m.packages)
	resp.PackagesApplied = applied
	m.recordApplied(resp.RecordID, applied)

	if err != nil {
		return nil, m.discardAndFail(ctx, resp, err)
	}

	return fsm.NewResponse(resp), nil
}

// handleVerify blocks on the operator gate when verification is enabled.
// The gate cannot fail, only delay.
func (m *Machine) handleVerify(ctx context.Context, req *fsm.Request[ServiceRequest, ServiceResponse]) (*fsm.Response[ServiceResponse], error) {
	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}

	if !m.verify {
		return fsm.NewResponse(resp), nil
	}

	slog.Info("servicing_state_verify", "image", req.Msg.ImagePath, "index", req.Msg.Index)

	if m.session == nil {
		return nil, fsm.Abort(fmt.Errorf("no open mount session for index %d", req.Msg.Index))
	}

	m.gate.Confirm(ctx, m.exec, m.session.Dir)

	return fsm.NewResponse(resp), nil
}

// handleCommit writes the serviced index back into the image container.
func (m *Machine) handleCommit(ctx context.Context, req *fsm.Request[ServiceRequest, ServiceResponse]) (*fsm.Response[ServiceResponse], error) {
	slog.Info("servicing_state_commit", "image", req.Msg.ImagePath, "index", req.Msg.Index)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	if m.session == nil {
		return nil, fsm.Abort(fmt.Errorf("no open mount session for index %d", req.Msg.Index))
	}

	if err := m.session.Commit(ctx); err != nil {
		return nil, m.discardAndFail(ctx, resp, err)
	}

	m.session = nil
	resp.Status = db.StatusCommitted
	resp.ErrorMessage = ""
	m.repo.UpdateStatus(resp.RecordID, db.StatusCommitted, "")

	slog.Info("servicing_index_committed", "image", req.Msg.ImagePath, "index", req.Msg.Index, "packages_applied", resp.PackagesApplied)
	return fsm.NewResponse(resp), nil
}

// discardAndFail discards the open session, marks the record discarded, and
// aborts the FSM. Every pipeline failure halts the run; a bad driver or
// package would recur on every remaining index.
func (m *Machine) discardAndFail(ctx context.Context, resp *ServiceResponse, err error) error {
	if m.session != nil {
		m.session.Discard(ctx)
		m.session = nil
	}
	return m.fail(resp, db.StatusDiscarded, err)
}

func (m *Machine) fail(resp *ServiceResponse, status string, err error) error {
	resp.Status = status
	resp.ErrorMessage = err.Error()

	if resp.RecordID != 0 {
		m.repo.UpdateStatus(resp.RecordID, status, err.Error())
	}

	return fsm.Abort(err)
}

// recordApplied persists the applied-package count without disturbing status.
func (m *Machine) recordApplied(recordID int64, applied int) {
	rec, err := m.repo.Get(recordID)
	if err != nil || rec == nil {
		slog.Warn("servicing_record_load_failed", "record_id", recordID, "error", err)
		return
	}

	rec.PackagesApplied = applied
	if err := m.repo.Update(rec); err != nil {
		slog.Warn("servicing_record_update_failed", "record_id", recordID, "error", err)
	}
}
