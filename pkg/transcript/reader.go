// Package transcript wraps a spawned interactive process and exposes
// expect-style "wait for the next matching output" semantics over its
// combined pseudoterminal stream.
package transcript

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// ErrProcessUnavailable is returned by SendLine once the process output
// stream has closed.
var ErrProcessUnavailable = fmt.Errorf("transcript: process unavailable")

// Kind classifies the outcome of an Await call.
type Kind int

const (
	// KindMatch means one of the patterns matched the output.
	KindMatch Kind = iota
	// KindTimeout means the timeout elapsed before any pattern matched.
	KindTimeout
	// KindEOF means the output stream closed before any pattern matched.
	KindEOF
)

// Result is the outcome of a single Await call.
type Result struct {
	Kind    Kind
	Pattern int      // index into the patterns slice (valid for KindMatch)
	Before  string   // text consumed before the match (or all remaining text on KindEOF)
	Text    string   // the matched text itself
	Groups  []string // capture groups of the matched pattern, Groups[0] == Text
}

// Reader owns the output stream of a spawned process and an internal
// read cursor. A single goroutine drains the stream into a growing
// buffer so that Await can apply per-call deadlines without losing
// output produced while nobody was waiting.
//
// Reader is a single-consumer object: at most one Await and one
// SendLine may be outstanding at any time. This keeps line ordering
// deterministic against the interactive tool on the far side.
type Reader struct {
	stream io.ReadWriteCloser
	cmd    *exec.Cmd

	mu     sync.Mutex
	buf    strings.Builder
	closed bool
	notify chan struct{}

	closeOnce sync.Once
}

// New wraps an already-open stream. Used directly by tests; production
// callers go through Spawn.
func New(rw io.ReadWriteCloser) *Reader {
	r := &Reader{
		stream: rw,
		notify: make(chan struct{}, 1),
	}
	go r.readLoop()
	return r
}

// Spawn starts command under a pseudoterminal (character echo enabled,
// exactly as if an operator were attached) and returns a Reader over
// its combined output. The command string is split on whitespace; the
// first field is the binary, the rest are arguments.
func Spawn(command string) (*Reader, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("transcript: empty command")
	}

	cmd := exec.Command(parts[0], parts[1:]...)
	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("transcript: start %q: %w", command, err)
	}

	slog.Info("process_spawned", "command", command, "pid", cmd.Process.Pid)

	r := New(f)
	r.cmd = cmd
	return r, nil
}

// readLoop drains the stream into the buffer until it closes.
func (r *Reader) readLoop() {
	chunk := make([]byte, 4096)
	for {
		n, err := r.stream.Read(chunk)
		r.mu.Lock()
		if n > 0 {
			r.buf.Write(chunk[:n])
		}
		if err != nil {
			r.closed = true
		}
		r.mu.Unlock()
		r.wake()
		if err != nil {
			return
		}
	}
}

func (r *Reader) wake() {
	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// SendLine writes text followed by a newline to the process input.
func (r *Reader) SendLine(text string) error {
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrProcessUnavailable
	}

	if _, err := io.WriteString(r.stream, text+"\n"); err != nil {
		return fmt.Errorf("transcript: send %q: %w", text, err)
	}
	return nil
}

// Await blocks until one of patterns matches the unread output, the
// stream closes, or timeout elapses. A timeout <= 0 waits indefinitely.
// Patterns are tried in the order given; the first that matches wins.
// On a match the read cursor advances past the matched text, so a later
// Await only sees newer output. On timeout nothing is consumed. On end
// of stream all remaining text is returned as Before.
func (r *Reader) Await(patterns []*regexp.Regexp, timeout time.Duration) Result {
	var timer *time.Timer
	var deadline <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	for {
		r.mu.Lock()
		text := r.buf.String()
		for i, p := range patterns {
			loc := p.FindStringSubmatchIndex(text)
			if loc == nil {
				continue
			}
			before := text[:loc[0]]
			matched := text[loc[0]:loc[1]]
			groups := make([]string, 0, len(loc)/2)
			for g := 0; g < len(loc); g += 2 {
				if loc[g] < 0 {
					groups = append(groups, "")
					continue
				}
				groups = append(groups, text[loc[g]:loc[g+1]])
			}
			r.buf.Reset()
			r.buf.WriteString(text[loc[1]:])
			r.mu.Unlock()
			return Result{Kind: KindMatch, Pattern: i, Before: before, Text: matched, Groups: groups}
		}
		if r.closed {
			r.buf.Reset()
			r.mu.Unlock()
			return Result{Kind: KindEOF, Pattern: -1, Before: text}
		}
		r.mu.Unlock()

		select {
		case <-r.notify:
		case <-deadline:
			return Result{Kind: KindTimeout, Pattern: -1}
		}
	}
}

// Close releases the stream and, when the Reader owns a spawned
// process, kills and reaps it. Safe to call from any exit path and
// more than once.
func (r *Reader) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.stream.Close()
		if r.cmd != nil && r.cmd.Process != nil {
			_ = r.cmd.Process.Kill()
			_ = r.cmd.Wait()
			slog.Info("process_released", "pid", r.cmd.Process.Pid)
		}
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()
		r.wake()
	})
	return err
}

// interface check: pty.Start returns *os.File, which must satisfy the
// stream contract New expects.
var _ io.ReadWriteCloser = (*os.File)(nil)
