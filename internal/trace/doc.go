// Package trace records what the translator is doing while it does it.
//
// Tracing is off by default. The CLI enables it with --trace and
// --trace-level; the driver then opens spans for each phase (number,
// analyze, emit) and, at detail level, for each probe or function it
// translates. Unexpected-but-survivable conditions (for example a lock
// obligation that had nowhere to go) are recorded as point events.
//
//	ctx = trace.WithTracer(ctx, tracer)
//	span := trace.Begin(trace.FromContext(ctx), trace.ScopePass, "emit", 0)
//	defer span.End("")
package trace
