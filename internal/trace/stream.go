package trace

import (
	"bufio"
	"io"
	"os"
	"sync"
)

// StreamTracer writes events to an io.Writer as they happen. Output is
// buffered; Flush or Close pushes it out.
type StreamTracer struct {
	mu     sync.Mutex
	dst    io.Writer
	bw     *bufio.Writer
	level  Level
	format Format
}

func NewStreamTracer(w io.Writer, level Level, format Format) *StreamTracer {
	return &StreamTracer{dst: w, bw: bufio.NewWriter(w), level: level, format: format}
}

func (t *StreamTracer) Emit(ev *Event) {
	if !t.level.ShouldEmit(ev.Scope) {
		return
	}
	ev.Seq = NextSeq()
	data := FormatEvent(ev, t.format)

	t.mu.Lock()
	defer t.mu.Unlock()
	// a broken trace file must not fail the translation
	_, _ = t.bw.Write(data) //nolint:errcheck
}

func (t *StreamTracer) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bw.Flush()
}

// Close flushes and closes the destination unless it is a standard stream.
func (t *StreamTracer) Close() error {
	if err := t.Flush(); err != nil {
		return err
	}
	if t.dst == os.Stderr || t.dst == os.Stdout {
		return nil
	}
	if c, ok := t.dst.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (t *StreamTracer) Level() Level  { return t.level }
func (t *StreamTracer) Enabled() bool { return t.level > LevelOff }
