package transcript

import (
	"net"
	"regexp"
	"testing"
	"time"
)

var promptRe = regexp.MustCompile(`Rockusb>`)

// newPipeReader returns a Reader over one end of an in-memory pipe and
// the other end for the test to play the external tool.
func newPipeReader(t *testing.T) (*Reader, net.Conn) {
	t.Helper()
	tool, app := net.Pipe()
	r := New(app)
	t.Cleanup(func() {
		r.Close()
		tool.Close()
	})
	return r, tool
}

func TestAwaitMatchCapturesBeforeText(t *testing.T) {
	r, tool := newPipeReader(t)

	go func() {
		tool.Write([]byte("banner line\nanother line\n"))
		time.Sleep(10 * time.Millisecond)
		tool.Write([]byte("Rockusb>"))
	}()

	res := r.Await([]*regexp.Regexp{promptRe}, 2*time.Second)
	if res.Kind != KindMatch {
		t.Fatalf("expected match, got kind %v", res.Kind)
	}
	if res.Pattern != 0 {
		t.Errorf("expected pattern 0, got %d", res.Pattern)
	}
	if res.Before != "banner line\nanother line\n" {
		t.Errorf("unexpected before-text: %q", res.Before)
	}
	if res.Text != "Rockusb>" {
		t.Errorf("unexpected matched text: %q", res.Text)
	}
}

func TestAwaitMatchSpanningChunks(t *testing.T) {
	r, tool := newPipeReader(t)

	// The prompt arrives split across two writes.
	go func() {
		tool.Write([]byte("Rock"))
		time.Sleep(10 * time.Millisecond)
		tool.Write([]byte("usb>"))
	}()

	res := r.Await([]*regexp.Regexp{promptRe}, 2*time.Second)
	if res.Kind != KindMatch {
		t.Fatalf("expected match across chunks, got kind %v", res.Kind)
	}
}

func TestAwaitAdvancesCursor(t *testing.T) {
	r, tool := newPipeReader(t)

	go tool.Write([]byte("first\nRockusb>second\nRockusb>"))

	res := r.Await([]*regexp.Regexp{promptRe}, 2*time.Second)
	if res.Kind != KindMatch || res.Before != "first\n" {
		t.Fatalf("first await: kind=%v before=%q", res.Kind, res.Before)
	}

	res = r.Await([]*regexp.Regexp{promptRe}, 2*time.Second)
	if res.Kind != KindMatch || res.Before != "second\n" {
		t.Fatalf("second await: kind=%v before=%q", res.Kind, res.Before)
	}
}

func TestAwaitPatternOrderWins(t *testing.T) {
	r, tool := newPipeReader(t)

	go tool.Write([]byte("Write LBA failed!\nRockusb>"))

	failRe := regexp.MustCompile(`Write LBA failed!`)
	res := r.Await([]*regexp.Regexp{failRe, promptRe}, 2*time.Second)
	if res.Kind != KindMatch || res.Pattern != 0 {
		t.Fatalf("expected first-listed pattern to win, got kind=%v pattern=%d", res.Kind, res.Pattern)
	}
}

func TestAwaitTimeoutKeepsBuffer(t *testing.T) {
	r, tool := newPipeReader(t)

	go tool.Write([]byte("partial output without prompt"))
	time.Sleep(20 * time.Millisecond)

	res := r.Await([]*regexp.Regexp{promptRe}, 50*time.Millisecond)
	if res.Kind != KindTimeout {
		t.Fatalf("expected timeout, got kind %v", res.Kind)
	}

	// Nothing was consumed: once the prompt arrives, the earlier text is
	// still the before-text.
	go tool.Write([]byte("\nRockusb>"))
	res = r.Await([]*regexp.Regexp{promptRe}, 2*time.Second)
	if res.Kind != KindMatch {
		t.Fatalf("expected match after timeout, got kind %v", res.Kind)
	}
	if res.Before != "partial output without prompt\n" {
		t.Errorf("buffer lost across timeout: %q", res.Before)
	}
}

func TestAwaitEndOfStream(t *testing.T) {
	r, tool := newPipeReader(t)

	tool.Write([]byte("No found rockusb\n"))
	tool.Close()

	res := r.Await([]*regexp.Regexp{promptRe}, 2*time.Second)
	if res.Kind != KindEOF {
		t.Fatalf("expected EOF, got kind %v", res.Kind)
	}
	if res.Before != "No found rockusb\n" {
		t.Errorf("expected remaining text as before-text, got %q", res.Before)
	}
}

func TestAwaitCaptureGroups(t *testing.T) {
	r, tool := newPipeReader(t)

	go tool.Write([]byte("Write LBA from file (37%)"))

	progRe := regexp.MustCompile(`Write LBA from file \((\d+)%\)`)
	res := r.Await([]*regexp.Regexp{progRe}, 2*time.Second)
	if res.Kind != KindMatch {
		t.Fatalf("expected match, got kind %v", res.Kind)
	}
	if len(res.Groups) != 2 || res.Groups[1] != "37" {
		t.Errorf("unexpected groups: %v", res.Groups)
	}
}

func TestSendLineAfterStreamClosed(t *testing.T) {
	r, tool := newPipeReader(t)

	tool.Close()
	// Drain until the reader observes the closed stream.
	res := r.Await([]*regexp.Regexp{promptRe}, 2*time.Second)
	if res.Kind != KindEOF {
		t.Fatalf("expected EOF, got kind %v", res.Kind)
	}

	if err := r.SendLine("r"); err != ErrProcessUnavailable {
		t.Errorf("expected ErrProcessUnavailable, got %v", err)
	}
}

func TestSendLineAppendsNewline(t *testing.T) {
	r, tool := newPipeReader(t)

	got := make(chan string, 1)
	go func() {
		var line []byte
		buf := make([]byte, 64)
		for {
			n, err := tool.Read(buf)
			line = append(line, buf[:n]...)
			if err != nil || (n > 0 && buf[n-1] == '\n') {
				break
			}
		}
		got <- string(line)
	}()

	if err := r.SendLine("ul loader.bin -noreset"); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	select {
	case line := <-got:
		if line != "ul loader.bin -noreset\n" {
			t.Errorf("unexpected wire text: %q", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("tool never received the line")
	}
}
