// Command reqpiped is a caching read-through proxy in front of an upstream
// JSON API. Reads are cached, deduplicated and optionally batched; writes
// invalidate the cached reads of the resource families they touch.
//
// Usage:
//
//	reqpiped -config reqpiped.yaml
//
// Routes:
//
//	/proxy/...   requests forwarded through the pipeline
//	/admin/...   cache and batching administration (API key guarded)
//	/healthz     liveness
//	/readyz      readiness
//	/health      detailed health report
//	/metrics     Prometheus metrics (metrics exporter "prometheus")
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/reqpipe/auth"
	"github.com/jonwraymond/reqpipe/config"
	"github.com/jonwraymond/reqpipe/health"
	"github.com/jonwraymond/reqpipe/observe"
	"github.com/jonwraymond/reqpipe/pipeline"
	"github.com/jonwraymond/reqpipe/resilience"
	"github.com/jonwraymond/reqpipe/transport"
)

// Version is set at build time via ldflags
var Version = "dev"

var (
	configPath  = flag.String("config", "", "path to config file")
	versionFlag = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *versionFlag {
		fmt.Printf("reqpiped version %s\n", Version)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configPath); err != nil {
		fmt.Fprintf(os.Stderr, "reqpiped: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string) error {
	cfg, err := config.Load(ctx, path)
	if err != nil {
		return err
	}
	cfg.Observe.Version = Version

	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = obs.Shutdown(sctx)
	}()

	logger := obs.Logger()
	metrics, err := observe.MetricsFromObserver(obs)
	if err != nil {
		return fmt.Errorf("observe: %w", err)
	}

	srv, p, err := build(cfg, obs, logger, metrics)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "reqpiped listening",
			observe.F("listen", cfg.Server.Listen),
			observe.F("upstream", cfg.Transport.BaseURL))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(context.Background(), "shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(sctx)
	if err := p.Close(sctx); err != nil {
		logger.Warn(sctx, "pipeline close incomplete", observe.F("error", err))
	}
	return shutdownErr
}

// build wires the transport stack, the pipeline and the HTTP routes.
func build(cfg config.Config, obs observe.Observer, logger observe.Logger, metrics observe.Metrics) (*http.Server, *pipeline.Pipeline, error) {
	httpCfg, err := cfg.HTTPConfig()
	if err != nil {
		return nil, nil, err
	}
	base, err := transport.NewHTTP(httpCfg)
	if err != nil {
		return nil, nil, err
	}

	exec, err := resilience.FromConfig(cfg.Transport.Resilience,
		func(attempt int, err error, delay time.Duration) {
			logger.Warn(context.Background(), "retrying upstream request",
				observe.F("attempt", attempt),
				observe.F("delay", delay.String()),
				observe.F("error", err))
		},
		func(from, to resilience.State) {
			logger.Warn(context.Background(), "upstream circuit changed",
				observe.F("from", from.String()),
				observe.F("to", to.String()))
		})
	if err != nil {
		return nil, nil, err
	}

	var tr transport.Transport = base
	if cfg.Transport.Resilience.Enabled() {
		tr = transport.WithResilience(tr, exec)
	}
	mw := observe.NewMiddleware(observe.NewTracer(obs.Tracer()), metrics, logger)
	tr = transport.WithObservability(tr, mw)

	pcfg := cfg.PipelineConfig()
	pcfg.Logger = logger
	pcfg.Metrics = metrics
	p, err := pipeline.New(tr, pcfg)
	if err != nil {
		return nil, nil, err
	}

	agg := health.NewAggregator(health.AggregatorConfig{})
	p.RegisterHealth(agg, exec)

	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)
	mux.Handle(cfg.Server.ProxyPrefix, p.ProxyHandler(cfg.Server.ProxyPrefix))
	mux.Handle("/admin/", auth.RequireAPIKey(cfg.AdminGuard(), p.AdminHandler()))
	if cfg.Observe.Metrics.Enabled && cfg.Observe.Metrics.Exporter == "prometheus" {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	logger.Info(context.Background(), "pipeline configured",
		observe.F("max_entries", cfg.Cache.MaxEntries),
		observe.F("baseline_ttl", cfg.Cache.BaselineTTL.String()),
		observe.F("families", cfg.Families),
		observe.F("resilience", cfg.Transport.Resilience.Enabled()),
		observe.F("credentials", httpCfg.Credentials.Type()))

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv, p, nil
}
