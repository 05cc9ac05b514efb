// Package fsm implements the per-device flashing workflow. It
// sequences device selection, loader upload, image write, and progress
// tracking over an interactive rockusb session using the superfly/fsm
// library; devices run strictly one at a time.
package fsm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	"github.com/alanblu/radxa-flash-tool/pkg/rockusb"
	"github.com/superfly/fsm"
)

// Machine holds dependencies for FSM transitions
type Machine struct {
	session    *rockusb.Session
	reporter   rockusb.Reporter
	maxRetries int
}

// NewMachine creates a new FSM machine around one live session
func NewMachine(session *rockusb.Session, reporter rockusb.Reporter, maxRetries int) *Machine {
	if reporter == nil {
		reporter = rockusb.NopReporter{}
	}
	return &Machine{
		session:    session,
		reporter:   reporter,
		maxRetries: maxRetries,
	}
}

// Register registers the device flashing FSM
func (m *Machine) Register(ctx context.Context, manager *fsm.Manager) (fsm.Start[FlashRequest, FlashResponse], fsm.Resume, error) {
	start, resume, err := fsm.Register[FlashRequest, FlashResponse](manager, "device-flash").
		Start(StateSelectDevice, m.handleSelectDevice).
		To(StateUploadLoader, m.handleUploadLoader).
		To(StateWriteImage, m.handleWriteImage).
		To(StateTrackProgress, m.handleTrackProgress).
		To(StateComplete, m.handleComplete).
		End(StateFailed).
		Build(ctx)

	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to register FSM")
	}

	return start, resume, nil
}

// retriesExceeded guards against superfly/fsm replaying a state.
// Replaying commands against an interactive tool would desynchronize
// the protocol, so every transition error aborts instead of retrying.
func (m *Machine) retriesExceeded(ctx context.Context, dev rockusb.Device) error {
	if retryCount := fsm.RetryFromContext(ctx); retryCount >= uint64(m.maxRetries) {
		slog.Error("max_retries_exceeded", "location_id", dev.LocationID, "max_retries", m.maxRetries)
		return fsm.Abort(fmt.Errorf("max retries (%d) exceeded", m.maxRetries))
	}
	return nil
}

// fail records a stage failure on the response and aborts the machine.
// The response pointer is shared with the caller, so failure details
// survive the abort.
func (m *Machine) fail(resp *FlashResponse, dev rockusb.Device, stage string, err error) error {
	resp.Stage = stage
	resp.Status = StatusFailed
	resp.ErrorMessage = err.Error()
	resp.Fatal = rockusb.IsFatal(err)

	slog.Error("device_stage_failed",
		"stage", stage,
		"location_id", dev.LocationID,
		"fatal", resp.Fatal,
		"error", err)

	m.reporter.StageResult(dev, stage, err)
	if resp.Fatal {
		m.reporter.SessionFatal(err)
	}
	return fsm.Abort(err)
}

func (m *Machine) handleSelectDevice(ctx context.Context, req *fsm.Request[FlashRequest, FlashResponse]) (*fsm.Response[FlashResponse], error) {
	dev := req.Msg.Device
	slog.Info("fsm_state_select_device", "devno", dev.DevNo, "location_id", dev.LocationID)

	if err := m.retriesExceeded(ctx, dev); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		resp = &FlashResponse{}
	}
	resp.Stage = StateSelectDevice

	if err := m.session.Select(ctx, dev); err != nil {
		return nil, m.fail(resp, dev, StateSelectDevice, err)
	}

	m.reporter.StageResult(dev, StateSelectDevice, nil)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleUploadLoader(ctx context.Context, req *fsm.Request[FlashRequest, FlashResponse]) (*fsm.Response[FlashResponse], error) {
	dev := req.Msg.Device
	slog.Info("fsm_state_upload_loader", "location_id", dev.LocationID)

	if err := m.retriesExceeded(ctx, dev); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	resp.Stage = StateUploadLoader

	if err := m.session.UploadLoader(ctx, dev); err != nil {
		return nil, m.fail(resp, dev, StateUploadLoader, err)
	}

	m.reporter.StageResult(dev, StateUploadLoader, nil)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleWriteImage(ctx context.Context, req *fsm.Request[FlashRequest, FlashResponse]) (*fsm.Response[FlashResponse], error) {
	dev := req.Msg.Device
	slog.Info("fsm_state_write_image", "location_id", dev.LocationID)

	if err := m.retriesExceeded(ctx, dev); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	resp.Stage = StateWriteImage

	if err := m.session.WriteImage(ctx, dev); err != nil {
		return nil, m.fail(resp, dev, StateWriteImage, err)
	}

	m.reporter.StageResult(dev, StateWriteImage, nil)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleTrackProgress(ctx context.Context, req *fsm.Request[FlashRequest, FlashResponse]) (*fsm.Response[FlashResponse], error) {
	dev := req.Msg.Device
	slog.Info("fsm_state_track_progress", "location_id", dev.LocationID)

	if err := m.retriesExceeded(ctx, dev); err != nil {
		return nil, err
	}

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	resp.Stage = StateTrackProgress

	last, err := m.session.TrackProgress(ctx, dev)
	resp.LastPercent = last
	if err != nil {
		return nil, m.fail(resp, dev, StateTrackProgress, err)
	}

	m.reporter.StageResult(dev, StateTrackProgress, nil)
	return fsm.NewResponse(resp), nil
}

func (m *Machine) handleComplete(ctx context.Context, req *fsm.Request[FlashRequest, FlashResponse]) (*fsm.Response[FlashResponse], error) {
	dev := req.Msg.Device
	slog.Info("fsm_state_complete", "location_id", dev.LocationID)

	resp := req.W.Msg
	if resp == nil {
		return nil, fsm.Abort(fmt.Errorf("response not initialized"))
	}
	resp.Stage = StateComplete
	resp.Status = StatusComplete

	// Resynchronize on the top-level prompt before the next device.
	if err := m.session.ReturnToPrompt(ctx); err != nil {
		slog.Warn("resync_after_completion_failed", "location_id", dev.LocationID, "error", err)
	}

	m.reporter.StageResult(dev, StateComplete, nil)
	slog.Info("device_flash_complete", "location_id", dev.LocationID)
	return fsm.NewResponse(resp), nil
}
