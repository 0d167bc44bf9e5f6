package driver

import (
	"runtime"

	"tapgen/internal/tcache"
)

type settings struct {
	cache    *tcache.Cache
	progress ProgressSink
	jobs     int
	maxDiags int
}

// Option adjusts a translation.
type Option func(*settings)

// WithCache reuses and stores translations in c.
func WithCache(c *tcache.Cache) Option {
	return func(s *settings) { s.cache = c }
}

// WithProgress reports per-unit progress to sink.
func WithProgress(sink ProgressSink) Option {
	return func(s *settings) {
		if sink != nil {
			s.progress = sink
		}
	}
}

// WithJobs bounds the number of units analyzed concurrently; n <= 0 means
// GOMAXPROCS.
func WithJobs(n int) Option {
	return func(s *settings) { s.jobs = n }
}

// WithMaxDiagnostics bounds the diagnostic bag.
func WithMaxDiagnostics(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDiags = n
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{progress: nopSink{}, maxDiags: 100}
	for _, o := range opts {
		o(&s)
	}
	if s.jobs <= 0 {
		s.jobs = runtime.GOMAXPROCS(0)
	}
	return s
}
