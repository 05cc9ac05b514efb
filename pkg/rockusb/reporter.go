package rockusb

// Stage names reported alongside per-device outcomes. The fsm package
// uses the same names for its state registration.
const (
	StageSelectDevice  = "select_device"
	StageUploadLoader  = "upload_loader"
	StageWriteImage    = "write_image"
	StageTrackProgress = "track_progress"
	StageComplete      = "complete"
)

// Reporter receives the structured events of a flashing session.
// Presentation (log lines, progress bars, exit codes) is the
// implementer's concern; the session and state machine only emit.
type Reporter interface {
	// DeviceFound is emitted once per device during discovery.
	DeviceFound(dev Device)

	// StageResult is emitted when a per-device stage succeeds (err nil)
	// or fails (err classifies the failure).
	StageResult(dev Device, stage string, err error)

	// Progress is emitted for each new write percentage. Consecutive
	// duplicates are filtered before this is called.
	Progress(dev Device, pct int)

	// WriteComplete is emitted when a device's write reaches 100%.
	WriteComplete(dev Device)

	// SessionFatal is emitted once if the session ends abnormally.
	SessionFatal(err error)

	// Summary is emitted after the last device has been processed.
	Summary(flashed, failed int)
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) DeviceFound(Device)                {}
func (NopReporter) StageResult(Device, string, error) {}
func (NopReporter) Progress(Device, int)              {}
func (NopReporter) WriteComplete(Device)              {}
func (NopReporter) SessionFatal(error)                {}
func (NopReporter) Summary(int, int)                  {}
