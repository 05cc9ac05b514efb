package fsm

import (
	"testing"

	"github.com/alanblu/radxa-flash-tool/pkg/rockusb"
)

// TestFailClassifiesPerDeviceFailures verifies that recoverable
// protocol errors mark only the device as failed.
func TestFailClassifiesPerDeviceFailures(t *testing.T) {
	m := NewMachine(nil, nil, 1)
	dev := rockusb.Device{DevNo: 0, LocationID: 101}

	resp := &FlashResponse{}
	err := m.fail(resp, dev, StateUploadLoader, &rockusb.LoaderError{LocationID: 101})
	if err == nil {
		t.Fatal("fail must abort the machine")
	}

	if resp.Status != StatusFailed {
		t.Errorf("status: got %q, want %q", resp.Status, StatusFailed)
	}
	if resp.Stage != StateUploadLoader {
		t.Errorf("stage: got %q, want %q", resp.Stage, StateUploadLoader)
	}
	if resp.Fatal {
		t.Error("a loader failure must not end the session")
	}
	if resp.ErrorMessage == "" {
		t.Error("failure reason must be recorded")
	}
}

// TestFailClassifiesSessionFatal verifies that a closed stream marks
// the response fatal so the caller stops the device queue.
func TestFailClassifiesSessionFatal(t *testing.T) {
	m := NewMachine(nil, nil, 1)
	dev := rockusb.Device{DevNo: 1, LocationID: 205}

	resp := &FlashResponse{LastPercent: 40}
	err := m.fail(resp, dev, StateTrackProgress, rockusb.ErrStreamClosed)
	if err == nil {
		t.Fatal("fail must abort the machine")
	}

	if !resp.Fatal {
		t.Error("stream closure must be session-fatal")
	}
	if resp.LastPercent != 40 {
		t.Error("last observed percentage must survive the failure")
	}
}

// TestResponseAccumulation verifies fields accumulate across states.
func TestResponseAccumulation(t *testing.T) {
	resp := &FlashResponse{Stage: StateWriteImage}

	// Simulate track_progress then complete.
	resp.Stage = StateTrackProgress
	resp.LastPercent = 100
	resp.Stage = StateComplete
	resp.Status = StatusComplete

	if resp.LastPercent != 100 {
		t.Error("LastPercent should be preserved from track_progress")
	}
	if resp.Status != StatusComplete {
		t.Error("Status should be set on completion")
	}
}

// TestStateNamesMatchReportedStages keeps FSM registration names and
// reporter stage names identical, so logs and events line up.
func TestStateNamesMatchReportedStages(t *testing.T) {
	pairs := map[string]string{
		StateSelectDevice:  rockusb.StageSelectDevice,
		StateUploadLoader:  rockusb.StageUploadLoader,
		StateWriteImage:    rockusb.StageWriteImage,
		StateTrackProgress: rockusb.StageTrackProgress,
		StateComplete:      rockusb.StageComplete,
	}
	for state, stage := range pairs {
		if state != stage {
			t.Errorf("state %q does not match stage %q", state, stage)
		}
	}
}
