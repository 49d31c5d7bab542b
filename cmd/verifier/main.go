// Command verifier serves the quote verification HTTP API.
//
// It loads the reference corpus in the background, answers readiness probes
// with 503 until the corpus is loaded, and exits if the corpus cannot be
// loaded at all.
//
// Usage:
//
//	go run ./cmd/verifier [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/service/cache"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/service/handler"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/verifier"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/resilience"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	os.Exit(run(cfg))
}

// run serves until shutdown and returns the exit code after the deferred
// closes have flushed analytics and released connections.
func run(cfg *config.Config) int {
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting verifier service",
		"port", cfg.Server.Port,
		"corpus_source", cfg.Corpus.Source,
		"threshold", cfg.Verifier.Threshold,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
		defer shutdownMetrics(context.Background())
	}

	corp, err := bootstrap.NewCorpus(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up corpus", "error", err)
		return 1
	}
	defer corp.Close()
	v := corp.Verifier

	loadFailed := make(chan error, 1)
	go func() {
		if err := bootstrap.Load(ctx, v, cfg.Corpus.LoadTimeout, m); err != nil {
			loadFailed <- err
		}
	}()

	var (
		verdictCache *cache.VerdictCache
		redisClient  *pkgredis.Client
	)
	if cfg.Redis.Enabled {
		redisClient, err = pkgredis.NewClient(ctx, cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, verdict caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			breaker := resilience.NewCircuitBreaker("redis", resilience.CircuitBreakerConfig{
				OnStateChange: func(name string, _, to resilience.State) {
					m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				},
			})
			verdictCache = cache.New(redisClient, cfg.Redis.CacheTTL, v.Options().Threshold,
				cache.WithMetrics(m),
				cache.WithBreaker(breaker),
			)
			slog.Info("verdict cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	aggregator := analytics.NewAggregator()
	var publisher kafka.Publisher
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		publisher = producer
	}
	collector := analytics.NewCollector(publisher, aggregator, 10000)
	collector.Start(ctx)
	defer collector.Close()

	checker := health.NewChecker()
	checker.Register("corpus", func(ctx context.Context) health.ComponentHealth {
		st := v.Stats()
		if v.State() != verifier.StateLoaded {
			return health.ComponentHealth{Status: health.StatusDown, Message: "corpus " + st.State}
		}
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d records, %d terms", st.Records, st.Terms),
		}
	})
	if cfg.Redis.Enabled {
		checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
			if redisClient == nil {
				return health.ComponentHealth{Status: health.StatusDegraded, Message: "not connected"}
			}
			return health.PingCheck(redisClient.Ping, true)(ctx)
		})
	}
	if corp.DB != nil {
		checker.Register("postgres", health.PingCheck(corp.DB.Ping, true))
	}

	h := handler.New(v, verdictCache, collector, m, handler.Options{
		Prefilter:    cfg.Verifier.Prefilter,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	analyticsH := analytics.NewHandler(aggregator)

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsH.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	mux.Handle("GET /metrics", metrics.Handler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	if cfg.RateLimit.Enabled {
		limiter := ratelimit.New(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window)
		defer limiter.Close()
		chain = middleware.RateLimit(limiter)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	exited := make(chan int, 1)
	go func() {
		code := 0
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received")
		case err := <-loadFailed:
			slog.Error("corpus could not be loaded, shutting down", "error", err)
			code = 1
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		exited <- code
	}()

	slog.Info("verifier service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		return 1
	}

	code := <-exited
	slog.Info("verifier service stopped")
	return code
}
