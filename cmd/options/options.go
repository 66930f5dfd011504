// Package options holds the flags shared by every amb subcommand and
// turns them into solver and predicate graph options.
package options

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-logr/logr"
	"github.com/go-logr/logr/funcr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/operator-framework/amb/internal/search"
	"github.com/operator-framework/amb/pkg/amb"
	"github.com/operator-framework/amb/pkg/amb/metrics"
	"github.com/operator-framework/amb/pkg/amb/predicate"
	"github.com/operator-framework/amb/pkg/amb/solver"
)

type Options struct {
	Workers      int
	MaxSolutions int
	MaxUniverses int
	Verbosity    int
	Trace        bool
	OtelStdout   bool
	MetricsAddr  string

	logger   logr.Logger
	tracers  amb.Tracers
	provider *sdktrace.TracerProvider
	server   *http.Server
	addr     string
}

// AddFlags registers the shared flags as persistent flags of cmd.
func (o *Options) AddFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.IntVar(&o.Workers, "workers", 1, "universes run concurrently")
	flags.IntVar(&o.MaxSolutions, "max-solutions", 0, "stop after this many solutions (0 is unbounded)")
	flags.IntVar(&o.MaxUniverses, "max-universes", 0, "fail after running this many universes (0 is unbounded)")
	flags.IntVarP(&o.Verbosity, "verbosity", "v", 0, "log verbosity")
	flags.BoolVar(&o.Trace, "trace", false, "print every universe to stderr")
	flags.BoolVar(&o.OtelStdout, "otel-stdout", false, "export predicate graph spans to stderr")
	flags.StringVar(&o.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// Start builds the logger, tracers and exporters selected by the flags.
func (o *Options) Start(cmd *cobra.Command) error {
	if o.Workers < 1 {
		return fmt.Errorf("invalid worker count %d", o.Workers)
	}
	stderr := cmd.ErrOrStderr()
	o.logger = funcr.New(func(prefix, args string) {
		if prefix != "" {
			fmt.Fprintf(stderr, "%s: %s\n", prefix, args)
			return
		}
		fmt.Fprintln(stderr, args)
	}, funcr.Options{Verbosity: o.Verbosity})

	o.tracers = nil
	if o.Trace {
		o.tracers = append(o.tracers, search.LoggingTracer{Writer: stderr})
	}
	if o.OtelStdout {
		exporter, err := stdouttrace.New(stdouttrace.WithWriter(stderr), stdouttrace.WithPrettyPrint())
		if err != nil {
			return fmt.Errorf("error creating span exporter: %w", err)
		}
		o.provider = sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	}
	// nothing after the listener may fail
	if o.MetricsAddr != "" {
		if err := o.serveMetrics(); err != nil {
			return err
		}
	}
	return nil
}

func (o *Options) serveMetrics() error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	o.tracers = append(o.tracers, metrics.NewTracer(reg))

	listener, err := net.Listen("tcp", o.MetricsAddr)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", o.MetricsAddr, err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	o.server = &http.Server{Handler: mux}
	go func() {
		if err := o.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.Error(err, "metrics server stopped")
		}
	}()
	o.addr = listener.Addr().String()
	o.logger.Info("serving metrics", "addr", o.addr)
	return nil
}

// MetricsListenAddr returns the address the metrics server listens on,
// or "" when it is not running.
func (o *Options) MetricsListenAddr() string {
	return o.addr
}

// Stop flushes exporters and shuts the metrics server down. It is safe to
// call when Start failed or never ran.
func (o *Options) Stop(ctx context.Context) error {
	var errs []error
	if o.provider != nil {
		errs = append(errs, o.provider.Shutdown(ctx))
		o.provider = nil
	}
	if o.server != nil {
		errs = append(errs, o.server.Shutdown(ctx))
		o.server = nil
		o.addr = ""
	}
	return errors.Join(errs...)
}

func (o *Options) Logger() logr.Logger {
	if o.logger.GetSink() == nil {
		return logr.Discard()
	}
	return o.logger
}

// SolverOptions returns the search options selected by the flags.
func (o *Options) SolverOptions() []solver.Option {
	options := []solver.Option{
		solver.WithWorkers(o.Workers),
		solver.WithLogger(o.Logger()),
		solver.WithMaxSolutions(o.MaxSolutions),
		solver.WithMaxUniverses(o.MaxUniverses),
	}
	if len(o.tracers) > 0 {
		options = append(options, solver.WithTracer(o.tracers))
	}
	return options
}

// GraphOptions returns the predicate graph options selected by the flags.
func (o *Options) GraphOptions() []predicate.Option {
	options := []predicate.Option{predicate.WithLogger(o.Logger())}
	if o.provider != nil {
		options = append(options, predicate.WithTracerProvider(o.provider))
	}
	return options
}
