package fsm

import "github.com/alanblu/radxa-flash-tool/pkg/rockusb"

// FlashRequest is the FSM input: one discovered device.
type FlashRequest struct {
	Device rockusb.Device
}

// FlashResponse is the FSM output (accumulated across transitions)
type FlashResponse struct {
	// Stage is the furthest stage reached before completion or failure.
	Stage string

	// LastPercent is the last write percentage observed.
	LastPercent int

	// From Complete/Failed
	Status       string
	ErrorMessage string

	// Fatal marks a failure that ends the whole session: remaining
	// devices must not be attempted.
	Fatal bool
}

// State names. These are the per-device stages: selection, loader
// upload, image write, progress tracking, then a terminal state.
const (
	StateSelectDevice  = rockusb.StageSelectDevice
	StateUploadLoader  = rockusb.StageUploadLoader
	StateWriteImage    = rockusb.StageWriteImage
	StateTrackProgress = rockusb.StageTrackProgress
	StateComplete      = rockusb.StageComplete
	StateFailed        = "failed"
)

// Status constants
const (
	StatusComplete = "complete"
	StatusFailed   = "failed"
)
