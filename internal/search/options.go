package search

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/universeid"
)

type Option func(s *Search) error

// WithWorkers runs up to n universes of the queue concurrently. The
// function passed to the search must then be safe for concurrent use.
// Results are yielded in the same order as with a single worker.
func WithWorkers(n int) Option {
	return func(s *Search) error {
		if n < 1 {
			return fmt.Errorf("invalid worker count %d: must be at least 1", n)
		}
		s.workers = n
		return nil
	}
}

func WithTracer(t amb.Tracer) Option {
	return func(s *Search) error {
		s.tracer = t
		return nil
	}
}

func WithLogger(l logr.Logger) Option {
	return func(s *Search) error {
		s.logger = l
		return nil
	}
}

// WithMaxUniverses stops the search with amb.ErrUniverseLimit once n
// universes ran and paths are still pending. Zero means unbounded.
func WithMaxUniverses(n int) Option {
	return func(s *Search) error {
		if n < 0 {
			return fmt.Errorf("invalid universe limit %d", n)
		}
		s.maxUniverses = n
		return nil
	}
}

// WithMaxSolutions ends the search after n solutions. Zero means
// unbounded.
func WithMaxSolutions(n int) Option {
	return func(s *Search) error {
		if n < 0 {
			return fmt.Errorf("invalid solution limit %d", n)
		}
		s.maxSolutions = n
		return nil
	}
}

func WithIDProvider(p amb.IDProvider) Option {
	return func(s *Search) error {
		s.ids = p
		return nil
	}
}

var defaults = []Option{
	func(s *Search) error {
		if s.tracer == nil {
			s.tracer = DefaultTracer{}
		}
		return nil
	},
	func(s *Search) error {
		if s.ids == nil {
			s.ids = universeid.NewCounter()
		}
		return nil
	},
	func(s *Search) error {
		if s.workers == 0 {
			s.workers = 1
		}
		return nil
	},
}
