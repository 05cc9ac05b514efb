// Package rockusb implements the interactive protocol against the
// Rockchip upgrade_tool: device discovery from its free-form terminal
// output, the per-device loader-upload and image-write command
// sequence, response classification, and write-progress tracking.
package rockusb

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/alanblu/radxa-flash-tool/pkg/errors"
	"github.com/alanblu/radxa-flash-tool/pkg/transcript"
)

// Config holds the per-session protocol parameters.
type Config struct {
	// LoaderPath and ImagePath are validated file paths passed verbatim
	// to the ul and wl commands.
	LoaderPath string
	ImagePath  string

	// UploadTimeout bounds the loader upload (large transfer, generous
	// ceiling). Default 500s.
	UploadTimeout time.Duration

	// WriteCheckTimeout bounds the immediate-rejection check after wl.
	// The write itself is unbounded; this only catches the failure
	// banner. Default 20s.
	WriteCheckTimeout time.Duration
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = 500 * time.Second
	}
	if cfg.WriteCheckTimeout <= 0 {
		cfg.WriteCheckTimeout = 20 * time.Second
	}
	return cfg
}

// Session drives one spawned upgrade_tool process through discovery
// and the per-device flashing sequence. Commands and responses are
// strictly request/response; a Session must be used from a single
// goroutine.
type Session struct {
	tr       *transcript.Reader
	cfg      Config
	reporter Reporter

	devices []Device
	fatal   bool
}

// NewSession wraps an already-spawned transcript reader. Closing
// either the Session or the reader releases the process; callers must
// do one of the two on every exit path.
func NewSession(tr *transcript.Reader, cfg Config, reporter Reporter) *Session {
	if reporter == nil {
		reporter = NopReporter{}
	}
	return &Session{
		tr:       tr,
		cfg:      cfg.withDefaults(),
		reporter: reporter,
	}
}

// Devices returns the devices found by Discover, in discovery order.
func (s *Session) Devices() []Device {
	return s.devices
}

// Fatal reports whether the session hit a non-recoverable condition.
func (s *Session) Fatal() bool {
	return s.fatal
}

// Close releases the underlying reader and its process. Idempotent.
func (s *Session) Close() error {
	return s.tr.Close()
}

func (s *Session) streamClosed() error {
	s.fatal = true
	return ErrStreamClosed
}

// Discover waits for the tool's initial selection prompt, classifies
// the banner, rescans, and parses the device list. An absent tool or
// an empty device list is a normal outcome, not an error: the returned
// slice is empty and the error nil.
func (s *Session) Discover(ctx context.Context) ([]Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.Info("discovery_start")
	res := s.tr.Await([]*regexp.Regexp{reInitialPrompt}, 0)
	if res.Kind == transcript.KindEOF {
		slog.Info("discovery_no_devices", "reason", "tool_exited")
		return nil, nil
	}

	switch {
	case strings.Contains(res.Before, markerNoDevices):
		slog.Info("discovery_no_devices", "reason", "tool_reported_none")
		return nil, nil

	case strings.Contains(res.Before, markerSelectable):
		if err := s.tr.SendLine(cmdRescan); err != nil {
			s.fatal = true
			return nil, errors.Wrap(err, "rescan failed")
		}
		found := s.tr.Await([]*regexp.Regexp{reFoundPrompt}, 0)
		if found.Kind == transcript.KindEOF {
			return nil, s.streamClosed()
		}

		reported, err := strconv.Atoi(found.Groups[1])
		if err != nil {
			reported = -1
		}
		devices := ParseDevices(res.Before)
		if reported != len(devices) {
			// Enumeration is best-effort against an unversioned text
			// format: proceed with whatever parsed.
			slog.Warn("device_count_mismatch", "reported", reported, "parsed", len(devices))
		}
		for _, dev := range devices {
			slog.Info("device_found",
				"devno", dev.DevNo,
				"vid", "0x"+dev.VendorID,
				"pid", "0x"+dev.ProductID,
				"location_id", dev.LocationID)
			s.reporter.DeviceFound(dev)
		}
		s.devices = devices
		return devices, nil

	default:
		slog.Info("discovery_no_devices", "reason", "unrecognized_banner")
		return nil, nil
	}
}

// Select sends a device's selection number and waits for its
// Rockusb> prompt.
func (s *Session) Select(ctx context.Context, dev Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.tr.SendLine(strconv.Itoa(dev.DevNo)); err != nil {
		s.fatal = true
		return errors.Wrap(err, "select device failed")
	}
	res := s.tr.Await([]*regexp.Regexp{reReadyPrompt}, 0)
	if res.Kind == transcript.KindEOF {
		return s.streamClosed()
	}
	return nil
}

// UploadLoader sends the ul command and classifies the reply captured
// before the next prompt.
func (s *Session) UploadLoader(ctx context.Context, dev Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("loader_upload_start", "location_id", dev.LocationID, "loader", s.cfg.LoaderPath)
	if err := s.tr.SendLine(uploadLoaderCmd(s.cfg.LoaderPath)); err != nil {
		s.fatal = true
		return errors.Wrap(err, "upload loader failed")
	}

	res := s.tr.Await([]*regexp.Regexp{reReadyPrompt}, s.cfg.UploadTimeout)
	switch res.Kind {
	case transcript.KindTimeout:
		return &StageTimeoutError{Stage: StageUploadLoader, LocationID: dev.LocationID, Timeout: s.cfg.UploadTimeout}
	case transcript.KindEOF:
		return s.streamClosed()
	}

	switch {
	case strings.Contains(res.Before, markerLoaderOK):
		slog.Info("loader_upload_ok", "location_id", dev.LocationID)
		return nil
	case strings.Contains(res.Before, markerLoaderFail):
		return &LoaderError{LocationID: dev.LocationID}
	default:
		return &UnexpectedReplyError{Stage: StageUploadLoader, LocationID: dev.LocationID}
	}
}

// WriteImage sends the wl command and checks for immediate rejection.
// A multi-minute write produces no prompt within the check window, so
// both a clean prompt and a timeout proceed to progress tracking; only
// the explicit failure banner is a rejection.
func (s *Session) WriteImage(ctx context.Context, dev Device) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	slog.Info("write_image_start", "location_id", dev.LocationID, "image", s.cfg.ImagePath)
	if err := s.tr.SendLine(writeImageCmd(s.cfg.ImagePath)); err != nil {
		s.fatal = true
		return errors.Wrap(err, "write image failed")
	}

	res := s.tr.Await([]*regexp.Regexp{reReadyPrompt}, s.cfg.WriteCheckTimeout)
	switch res.Kind {
	case transcript.KindEOF:
		return s.streamClosed()
	case transcript.KindMatch:
		if strings.Contains(res.Before, markerWriteFail) {
			return &WriteRejectedError{LocationID: dev.LocationID}
		}
	}
	return nil
}

// TrackProgress consumes write-progress lines until 100%, reporting
// each new percentage exactly once. Total write time is externally
// determined, so there is no deadline; an end of stream before 100%
// is session-fatal. Returns the last percentage observed.
func (s *Session) TrackProgress(ctx context.Context, dev Device) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	last := -1
	for {
		res := s.tr.Await([]*regexp.Regexp{reProgress}, 0)
		if res.Kind == transcript.KindEOF {
			if last < 0 {
				last = 0
			}
			return last, s.streamClosed()
		}

		pct, ok := ParseProgress(res.Text)
		if !ok {
			continue
		}
		if pct != last {
			last = pct
			s.reporter.Progress(dev, pct)
		}
		if pct == 100 {
			slog.Info("write_complete", "location_id", dev.LocationID)
			s.reporter.WriteComplete(dev)
			return last, nil
		}
	}
}

// ReturnToPrompt sends cd and resynchronizes on the top-level prompt
// before the next device. An end of stream here is tolerated; a later
// send will surface ErrProcessUnavailable if anything more is asked of
// the tool.
func (s *Session) ReturnToPrompt(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.tr.SendLine(cmdReturnToRoot); err != nil {
		s.fatal = true
		return errors.Wrap(err, "return to prompt failed")
	}
	s.tr.Await([]*regexp.Regexp{reInitialPrompt}, 0)
	return nil
}
