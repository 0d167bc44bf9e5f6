package trace

import (
	"sync/atomic"
	"time"
)

var (
	globalSeq   atomic.Uint64
	globalSpans atomic.Uint64
)

// NextSeq returns a monotonically increasing sequence number.
func NextSeq() uint64 {
	return globalSeq.Add(1)
}

// NextSpanID returns a unique span ID.
func NextSpanID() uint64 {
	return globalSpans.Add(1)
}

// Span tracks one logical operation between Begin and End. A span whose
// scope is filtered out still hands its tracer to children, so a unit span
// under a disabled pass span is emitted when the level allows it.
type Span struct {
	tracer   Tracer
	id       uint64
	parentID uint64
	scope    Scope
	name     string
	started  time.Time
	attrs    []Attr
	live     bool
}

func emits(t Tracer, scope Scope) bool {
	return t != nil && t.Enabled() && t.Level().ShouldEmit(scope)
}

// Begin starts a span; parent is 0 for roots.
func Begin(t Tracer, scope Scope, name string, parent uint64) *Span {
	if t == nil {
		t = Nop
	}
	s := &Span{tracer: t, parentID: parent, scope: scope, name: name}
	if !emits(t, scope) {
		return s
	}
	s.id = NextSpanID()
	s.started = time.Now()
	s.live = true
	t.Emit(&Event{
		Time:     s.started,
		Kind:     KindSpanBegin,
		Scope:    scope,
		SpanID:   s.id,
		ParentID: parent,
		Name:     name,
	})
	return s
}

// Child starts a span nested under s.
func (s *Span) Child(scope Scope, name string) *Span {
	if s == nil {
		return Begin(Nop, scope, name, 0)
	}
	return Begin(s.tracer, scope, name, s.parentOrSelf())
}

// Point records an instant event under s.
func (s *Span) Point(scope Scope, name, detail string) {
	if s == nil {
		return
	}
	Point(s.tracer, scope, name, detail, s.parentOrSelf())
}

// parentOrSelf is the ID children attach to: s itself when it was emitted,
// otherwise its own parent.
func (s *Span) parentOrSelf() uint64 {
	if s.live {
		return s.id
	}
	return s.parentID
}

// End emits the end event and returns the span duration.
func (s *Span) End(detail string) time.Duration {
	if s == nil || !s.live {
		return 0
	}
	s.live = false
	dur := time.Since(s.started)
	s.tracer.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindSpanEnd,
		Scope:    s.scope,
		SpanID:   s.id,
		ParentID: s.parentID,
		Name:     s.name,
		Detail:   detail,
		Dur:      dur,
		Attrs:    s.attrs,
	})
	return dur
}

// WithAttr attaches a key/value pair reported on End.
func (s *Span) WithAttr(key, value string) *Span {
	if s == nil || !s.live {
		return s
	}
	s.attrs = append(s.attrs, Attr{Key: key, Value: value})
	return s
}

// ID returns the span ID (0 for disabled spans).
func (s *Span) ID() uint64 {
	if s == nil {
		return 0
	}
	return s.id
}

// Point records an instant event under parent.
func Point(t Tracer, scope Scope, name, detail string, parent uint64) {
	if !emits(t, scope) {
		return
	}
	t.Emit(&Event{
		Time:     time.Now(),
		Kind:     KindPoint,
		Scope:    scope,
		SpanID:   NextSpanID(),
		ParentID: parent,
		Name:     name,
		Detail:   detail,
	})
}
