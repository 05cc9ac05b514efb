package rockusb

import (
	"bufio"
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanblu/radxa-flash-tool/pkg/transcript"
)

const (
	initialPrompt = "Rescan press <R>,Quit press <Q>:"
	foundPrompt   = "Found 2 rockusb,Select input DevNo,Rescan press <R>,Quit press <Q>:"
	readyPrompt   = "Rockusb>"

	twoDeviceBanner = "List of rockusb connected\n" +
		"DevNo=0\tVid=0x2207,Pid=0x350a,LocationID=101\n" +
		"DevNo=1\tVid=0x2207,Pid=0x350a,LocationID=205\n" +
		foundPrompt
)

// fakeTool plays upgrade_tool on the far end of an in-memory pipe. It
// emits the initial banner, then answers each received command line via
// handle. Returning close true ends the stream after the reply.
func startFakeTool(t *testing.T, conn net.Conn, initial string, handle func(line string) (reply string, close bool)) {
	t.Helper()
	go func() {
		if initial != "" {
			conn.Write([]byte(initial))
		}
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			if handle == nil {
				continue
			}
			reply, closeAfter := handle(sc.Text())
			if reply != "" {
				conn.Write([]byte(reply))
			}
			if closeAfter {
				// Give the short rejection check time to elapse so the
				// session is already tracking progress when the stream
				// dies.
				time.Sleep(150 * time.Millisecond)
				conn.Close()
				return
			}
		}
	}()
}

func newTestSession(t *testing.T, initial string, handle func(string) (string, bool)) (*Session, *recordingReporter) {
	t.Helper()
	tool, app := net.Pipe()
	tr := transcript.New(app)
	t.Cleanup(func() {
		tr.Close()
		tool.Close()
	})
	startFakeTool(t, tool, initial, handle)

	rep := &recordingReporter{}
	s := NewSession(tr, Config{
		LoaderPath:        "loader.bin",
		ImagePath:         "image.img",
		UploadTimeout:     2 * time.Second,
		WriteCheckTimeout: 50 * time.Millisecond,
	}, rep)
	return s, rep
}

type recordingReporter struct {
	mu        sync.Mutex
	found     []Device
	progress  []int
	completed []int // location IDs
	fatals    []error
}

func (r *recordingReporter) DeviceFound(dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.found = append(r.found, dev)
}

func (r *recordingReporter) StageResult(Device, string, error) {}

func (r *recordingReporter) Progress(_ Device, pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, pct)
}

func (r *recordingReporter) WriteComplete(dev Device) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, dev.LocationID)
}

func (r *recordingReporter) SessionFatal(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fatals = append(r.fatals, err)
}

func (r *recordingReporter) Summary(int, int) {}

func TestDiscoverToolExitsImmediately(t *testing.T) {
	tool, app := net.Pipe()
	tr := transcript.New(app)
	t.Cleanup(func() { tr.Close() })
	tool.Close()

	s := NewSession(tr, Config{}, nil)
	devices, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("absence of hardware must not be an error, got %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected no devices, got %v", devices)
	}
	if s.Fatal() {
		t.Error("tool exiting before discovery is not session-fatal")
	}
}

func TestDiscoverNoDevicesBanner(t *testing.T) {
	s, _ := newTestSession(t, "No found rockusb,"+initialPrompt, nil)

	devices, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(devices) != 0 {
		t.Errorf("expected no devices, got %v", devices)
	}
}

func TestDiscoverTwoDevices(t *testing.T) {
	s, rep := newTestSession(t, twoDeviceBanner, func(line string) (string, bool) {
		if line == "r" {
			return foundPrompt, false
		}
		return "", false
	})

	devices, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("discover failed: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
	if devices[0].DevNo != 0 || devices[0].LocationID != 101 {
		t.Errorf("unexpected first device: %+v", devices[0])
	}
	if devices[1].DevNo != 1 || devices[1].LocationID != 205 {
		t.Errorf("unexpected second device: %+v", devices[1])
	}
	if len(rep.found) != 2 {
		t.Errorf("expected 2 device-found events, got %d", len(rep.found))
	}
}

func TestDiscoverCountMismatchTolerated(t *testing.T) {
	// Banner lists one descriptor but the rescan reports two: proceed
	// with the parsed device.
	banner := "DevNo=0\tVid=0x2207,Pid=0x350a,LocationID=101\n" + foundPrompt
	s, _ := newTestSession(t, banner, func(line string) (string, bool) {
		if line == "r" {
			return foundPrompt, false
		}
		return "", false
	})

	devices, err := s.Discover(context.Background())
	if err != nil {
		t.Fatalf("mismatch must not be fatal: %v", err)
	}
	if len(devices) != 1 {
		t.Errorf("expected the parsed device to survive, got %d", len(devices))
	}
}

// newFlashScript scripts a two-device tool where device 0 rejects the
// loader and device 1 flashes cleanly.
func newFlashScript() func(string) (string, bool) {
	selected := -1
	return func(line string) (string, bool) {
		switch {
		case line == "r":
			return foundPrompt, false
		case line == "0", line == "1":
			if line == "0" {
				selected = 0
			} else {
				selected = 1
			}
			return readyPrompt, false
		case strings.HasPrefix(line, "ul "):
			if selected == 0 {
				return "Download Boot Fail\n" + readyPrompt, false
			}
			return "Upgrade loader ok\n" + readyPrompt, false
		case strings.HasPrefix(line, "wl "):
			// Progress streams without a prompt; the rejection check
			// times out and tracking consumes these markers.
			return "Write LBA from file (10%)\r" +
				"Write LBA from file (40%)\r" +
				"Write LBA from file (40%)\r" +
				"Write LBA from file (100%)\r\n", false
		case line == "cd":
			return initialPrompt, false
		}
		return "", false
	}
}

func TestLoaderFailureDoesNotBlockNextDevice(t *testing.T) {
	s, rep := newTestSession(t, twoDeviceBanner, newFlashScript())
	ctx := context.Background()

	devices, err := s.Discover(ctx)
	if err != nil || len(devices) != 2 {
		t.Fatalf("discover: devices=%d err=%v", len(devices), err)
	}

	// Device A: loader rejected.
	if err := s.Select(ctx, devices[0]); err != nil {
		t.Fatalf("select A: %v", err)
	}
	err = s.UploadLoader(ctx, devices[0])
	var loaderErr *LoaderError
	if !errors.As(err, &loaderErr) {
		t.Fatalf("expected LoaderError for device A, got %v", err)
	}
	if loaderErr.LocationID != 101 {
		t.Errorf("loader error location: got %d, want 101", loaderErr.LocationID)
	}
	if s.Fatal() {
		t.Fatal("loader failure is per-device, not session-fatal")
	}
	if err := s.ReturnToPrompt(ctx); err != nil {
		t.Fatalf("resync after failure: %v", err)
	}

	// Device B: full success sequence.
	if err := s.Select(ctx, devices[1]); err != nil {
		t.Fatalf("select B: %v", err)
	}
	if err := s.UploadLoader(ctx, devices[1]); err != nil {
		t.Fatalf("upload B: %v", err)
	}
	if err := s.WriteImage(ctx, devices[1]); err != nil {
		t.Fatalf("write B: %v", err)
	}
	last, err := s.TrackProgress(ctx, devices[1])
	if err != nil {
		t.Fatalf("progress B: %v", err)
	}
	if last != 100 {
		t.Errorf("expected final percentage 100, got %d", last)
	}
	if err := s.ReturnToPrompt(ctx); err != nil {
		t.Fatalf("resync after completion: %v", err)
	}

	if len(rep.completed) != 1 || rep.completed[0] != 205 {
		t.Errorf("expected completion for location 205, got %v", rep.completed)
	}
}

func TestTrackProgressDeduplicates(t *testing.T) {
	s, rep := newTestSession(t, twoDeviceBanner, newFlashScript())
	ctx := context.Background()

	devices, _ := s.Discover(ctx)
	dev := devices[1]
	if err := s.Select(ctx, dev); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.UploadLoader(ctx, dev); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := s.WriteImage(ctx, dev); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := s.TrackProgress(ctx, dev); err != nil {
		t.Fatalf("progress: %v", err)
	}

	want := []int{10, 40, 100}
	if len(rep.progress) != len(want) {
		t.Fatalf("expected progress %v, got %v", want, rep.progress)
	}
	for i, pct := range want {
		if rep.progress[i] != pct {
			t.Errorf("progress[%d]: got %d, want %d", i, rep.progress[i], pct)
		}
	}
}

func TestStreamEndsMidWriteIsFatal(t *testing.T) {
	script := func(line string) (string, bool) {
		switch {
		case line == "r":
			return foundPrompt, false
		case line == "0", line == "1":
			return readyPrompt, false
		case strings.HasPrefix(line, "ul "):
			return "Upgrade loader ok\n" + readyPrompt, false
		case strings.HasPrefix(line, "wl "):
			// Process dies after 40%.
			return "Write LBA from file (40%)\r", true
		}
		return "", false
	}
	s, rep := newTestSession(t, twoDeviceBanner, script)
	ctx := context.Background()

	devices, _ := s.Discover(ctx)
	dev := devices[0]
	if err := s.Select(ctx, dev); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.UploadLoader(ctx, dev); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if err := s.WriteImage(ctx, dev); err != nil {
		t.Fatalf("write: %v", err)
	}

	last, err := s.TrackProgress(ctx, dev)
	if !errors.Is(err, ErrStreamClosed) {
		t.Fatalf("expected ErrStreamClosed, got %v", err)
	}
	if !s.Fatal() {
		t.Error("mid-write stream end must be session-fatal")
	}
	if !IsFatal(err) {
		t.Error("IsFatal must classify ErrStreamClosed as fatal")
	}
	if last != 40 {
		t.Errorf("expected last observed percentage 40, got %d", last)
	}
	if len(rep.progress) != 1 || rep.progress[0] != 40 {
		t.Errorf("expected single 40%% progress event, got %v", rep.progress)
	}
}

func TestUploadLoaderTimeout(t *testing.T) {
	script := func(line string) (string, bool) {
		switch {
		case line == "r":
			return foundPrompt, false
		case line == "0":
			return readyPrompt, false
		}
		// ul: no reply at all.
		return "", false
	}

	tool, app := net.Pipe()
	tr := transcript.New(app)
	t.Cleanup(func() {
		tr.Close()
		tool.Close()
	})
	startFakeTool(t, tool, twoDeviceBanner, script)

	s := NewSession(tr, Config{
		LoaderPath:    "loader.bin",
		ImagePath:     "image.img",
		UploadTimeout: 50 * time.Millisecond,
	}, nil)
	ctx := context.Background()

	devices, _ := s.Discover(ctx)
	if err := s.Select(ctx, devices[0]); err != nil {
		t.Fatalf("select: %v", err)
	}

	err := s.UploadLoader(ctx, devices[0])
	var timeoutErr *StageTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected StageTimeoutError, got %v", err)
	}
	if timeoutErr.Stage != StageUploadLoader {
		t.Errorf("unexpected stage: %s", timeoutErr.Stage)
	}
	if IsFatal(err) {
		t.Error("a per-call timeout is not session-fatal")
	}
}

func TestWriteImageRejected(t *testing.T) {
	script := func(line string) (string, bool) {
		switch {
		case line == "r":
			return foundPrompt, false
		case line == "0":
			return readyPrompt, false
		case strings.HasPrefix(line, "ul "):
			return "Upgrade loader ok\n" + readyPrompt, false
		case strings.HasPrefix(line, "wl "):
			return "Write LBA failed!\n" + readyPrompt, false
		}
		return "", false
	}
	s, _ := newTestSession(t, twoDeviceBanner, script)
	ctx := context.Background()

	devices, _ := s.Discover(ctx)
	if err := s.Select(ctx, devices[0]); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := s.UploadLoader(ctx, devices[0]); err != nil {
		t.Fatalf("upload: %v", err)
	}

	err := s.WriteImage(ctx, devices[0])
	var rejected *WriteRejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected WriteRejectedError, got %v", err)
	}
	if !NeedsMaskrom(err) {
		t.Error("write rejection should carry the maskrom hint")
	}
}

func TestUnexpectedLoaderReply(t *testing.T) {
	script := func(line string) (string, bool) {
		switch {
		case line == "r":
			return foundPrompt, false
		case line == "0":
			return readyPrompt, false
		case strings.HasPrefix(line, "ul "):
			return "something entirely different\n" + readyPrompt, false
		}
		return "", false
	}
	s, _ := newTestSession(t, twoDeviceBanner, script)
	ctx := context.Background()

	devices, _ := s.Discover(ctx)
	if err := s.Select(ctx, devices[0]); err != nil {
		t.Fatalf("select: %v", err)
	}

	err := s.UploadLoader(ctx, devices[0])
	var unexpected *UnexpectedReplyError
	if !errors.As(err, &unexpected) {
		t.Fatalf("expected UnexpectedReplyError, got %v", err)
	}
}
