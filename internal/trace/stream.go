package trace

import (
	"errors"
	"io"
	"sync"
)

// envelope is the text written around and between events of one format.
type envelope struct {
	head, sep, tail string
}

var envelopes = map[Format]envelope{
	FormatChrome: {head: "{\"traceEvents\":[\n", sep: ",\n", tail: "\n]}\n"},
}

// StreamTracer formats each event as it arrives and writes it to w. Write
// errors do not reach the emitting code; the first one is returned by Close.
type StreamTracer struct {
	level  Level
	format Format
	env    envelope

	mu      sync.Mutex
	w       io.Writer
	written int
	werr    error
	closed  bool
}

// NewStreamTracer returns a tracer writing to w. FormatAuto means text.
func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	if format == FormatAuto {
		format = FormatText
	}
	st := &StreamTracer{w: w, level: level, format: format, env: envelopes[format]}
	st.write(st.env.head)
	return st
}

// write must be called with mu held, or before the tracer is shared.
func (t *StreamTracer) write(s string) {
	if s == "" || t.werr != nil {
		return
	}
	_, t.werr = io.WriteString(t.w, s)
}

// Emit writes ev unless the level filters it out. Heartbeats always pass.
func (t *StreamTracer) Emit(ev *Event) {
	if ev.Kind != KindHeartbeat && !t.level.ShouldEmit(ev.Scope) {
		return
	}
	ev.Seq = NextSeq()
	line := string(FormatEvent(ev, t.format))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	if t.written > 0 {
		t.write(t.env.sep)
	}
	t.write(line)
	t.written++
}

// Flush flushes w when it buffers.
func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked()
}

func (t *StreamTracer) flushLocked() error {
	if f, ok := t.w.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}

// Close ends the document, flushes w and closes it when it is an io.Closer.
// Later events are dropped; later calls return nil.
func (t *StreamTracer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	t.write(t.env.tail)

	errs := []error{t.werr, t.flushLocked()}
	if c, ok := t.w.(io.Closer); ok {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// Level returns the level the tracer filters with.
func (t *StreamTracer) Level() Level { return t.level }

// Enabled reports whether the tracer records anything.
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
