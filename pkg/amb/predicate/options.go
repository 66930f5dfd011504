package predicate

import (
	"errors"

	"github.com/go-logr/logr"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/universeid"
	"github.com/operator-framework/amb/pkg/amb/varstore"
)

const instrumentationName = "github.com/operator-framework/amb/pkg/amb/predicate"

type Option func(g *Graph) error

func WithLogger(l logr.Logger) Option {
	return func(g *Graph) error {
		g.logger = l
		return nil
	}
}

// WithVars makes s the variable store of the baseline environment.
func WithVars(s *varstore.Store) Option {
	return func(g *Graph) error {
		if s == nil {
			return errors.New("variable store must not be nil")
		}
		g.vars = s
		return nil
	}
}

// WithFixedOrder solves the worklist in key order instead of exploring
// every evaluation order.
func WithFixedOrder() Option {
	return func(g *Graph) error {
		g.fixedOrder = true
		return nil
	}
}

// WithIDProvider sets the source of environment IDs.
func WithIDProvider(p amb.IDProvider) Option {
	return func(g *Graph) error {
		g.ids = p
		return nil
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(g *Graph) error {
		g.tracer = tp.Tracer(instrumentationName)
		return nil
	}
}

var defaults = []Option{
	func(g *Graph) error {
		if g.ids == nil {
			g.ids = universeid.NewUUID()
		}
		return nil
	},
	func(g *Graph) error {
		if g.tracer == nil {
			g.tracer = otel.Tracer(instrumentationName)
		}
		return nil
	},
	func(g *Graph) error {
		if g.vars == nil {
			g.vars = varstore.New()
		}
		return nil
	},
}
