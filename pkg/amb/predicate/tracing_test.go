package predicate_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/operator-framework/amb/pkg/amb/predicate"
)

var _ = Describe("Tracing", func() {
	var (
		ctx      context.Context
		exporter *tracetest.InMemoryExporter
		provider *sdktrace.TracerProvider
	)

	BeforeEach(func() {
		ctx = context.Background()
		exporter = tracetest.NewInMemoryExporter()
		provider = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
		DeferCleanup(func() {
			Expect(provider.Shutdown(context.Background())).To(Succeed())
		})
	})

	names := func(spans tracetest.SpanStubs) []string {
		out := make([]string, 0, len(spans))
		for _, s := range spans {
			out = append(out, s.Name)
		}
		return out
	}

	It("should nest evaluations under the universe", func() {
		g := newGraph(map[string]predicate.Func{
			"leaf": func(*predicate.Env, predicate.Args) (interface{}, error) {
				return 1, nil
			},
			"top": func(env *predicate.Env, _ predicate.Args) (interface{}, error) {
				return env.Require("leaf")
			},
		}, predicate.WithTracerProvider(provider))
		Expect(g.Require("top")).To(Succeed())
		_, err := g.Resolve(ctx)
		Expect(err).NotTo(HaveOccurred())

		spans := exporter.GetSpans()
		Expect(names(spans)).To(Equal([]string{
			"predicate.evaluate",
			"predicate.evaluate",
			"predicate.universe",
			"predicate.apply",
		}))
		leaf, top, universe := spans[0], spans[1], spans[2]
		Expect(leaf.Attributes).To(ContainElement(attribute.String("amb.predicate", "leaf()")))
		Expect(top.Attributes).To(ContainElement(attribute.String("amb.predicate", "top()")))
		Expect(leaf.Parent.SpanID()).To(Equal(top.SpanContext.SpanID()))
		Expect(top.Parent.SpanID()).To(Equal(universe.SpanContext.SpanID()))
		Expect(universe.Attributes).To(ContainElement(attribute.Bool("amb.converged", true)))
	})

	It("should mark failed evaluations", func() {
		g := newGraph(map[string]predicate.Func{
			"broken": func(*predicate.Env, predicate.Args) (interface{}, error) {
				return nil, errors.New("broken")
			},
		}, predicate.WithTracerProvider(provider))
		Expect(g.Require("broken")).To(Succeed())
		_, err := g.Resolve(ctx)
		Expect(err).To(MatchError("broken"))

		spans := exporter.GetSpans()
		Expect(names(spans)).To(Equal([]string{"predicate.evaluate", "predicate.universe"}))
		for _, s := range spans {
			Expect(s.Status.Code).To(Equal(codes.Error))
		}
	})
})
