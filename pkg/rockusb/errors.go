package rockusb

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanblu/radxa-flash-tool/pkg/transcript"
)

// ErrStreamClosed indicates the tool's output closed mid-operation.
// This is session-fatal: no further devices are attempted.
var ErrStreamClosed = errors.New("rockusb: tool output closed unexpectedly")

// LoaderError indicates the loader upload was rejected by the device.
// Recoverable per device; remediation is MaskromHint.
type LoaderError struct {
	LocationID int
}

func (e *LoaderError) Error() string {
	return fmt.Sprintf("upload loader failed for device at location %d", e.LocationID)
}

// WriteRejectedError indicates the image write command was rejected
// outright. Recoverable per device; remediation is MaskromHint.
type WriteRejectedError struct {
	LocationID int
}

func (e *WriteRejectedError) Error() string {
	return fmt.Sprintf("write LBA rejected for device at location %d", e.LocationID)
}

// StageTimeoutError indicates a stage produced no recognizable reply
// within its deadline. Recoverable per device.
type StageTimeoutError struct {
	Stage      string
	LocationID int
	Timeout    time.Duration
}

func (e *StageTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %v for device at location %d", e.Stage, e.Timeout, e.LocationID)
}

// UnexpectedReplyError indicates the tool replied with text carrying
// neither the success nor the failure marker. Recoverable per device.
type UnexpectedReplyError struct {
	Stage      string
	LocationID int
}

func (e *UnexpectedReplyError) Error() string {
	return fmt.Sprintf("unrecognized %s reply for device at location %d", e.Stage, e.LocationID)
}

// IsFatal reports whether err ends the whole session rather than just
// the current device.
func IsFatal(err error) bool {
	return errors.Is(err, ErrStreamClosed) || errors.Is(err, transcript.ErrProcessUnavailable)
}

// NeedsMaskrom reports whether err carries the maskrom remediation
// hint.
func NeedsMaskrom(err error) bool {
	var loaderErr *LoaderError
	var writeErr *WriteRejectedError
	return errors.As(err, &loaderErr) || errors.As(err, &writeErr)
}
