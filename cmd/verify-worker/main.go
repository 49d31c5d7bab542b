// Command verify-worker consumes verification requests from Kafka and
// publishes a verdict for each one.
//
// The corpus is loaded before any message is consumed. worker.concurrency
// consumers join the same group, so partitions are spread across them.
//
// Usage:
//
//	go run ./cmd/verify-worker [-config configs/development.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/bootstrap"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/internal/worker"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/quote-verifier/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
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

// run returns the process exit code once every deferred close has run. A
// consumer that gives up on a message exits non-zero so the supervisor
// restarts it from the last committed offset.
func run(cfg *config.Config) int {
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting verify worker",
		"topic", cfg.Kafka.Topics.VerificationRequests,
		"group", cfg.Kafka.ConsumerGroup,
		"concurrency", cfg.Worker.Concurrency,
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
	if err := bootstrap.Load(ctx, corp.Verifier, cfg.Corpus.LoadTimeout, m); err != nil {
		slog.Error("corpus could not be loaded", "error", err)
		return 1
	}

	verdicts := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.Verdicts)
	defer verdicts.Close()
	analyticsProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer analyticsProducer.Close()

	collector := analytics.NewCollector(analyticsProducer, nil, 10000)
	collector.Start(ctx)
	defer collector.Close()

	w := worker.New(corp.Verifier, verdicts,
		worker.WithPrefilter(cfg.Verifier.Prefilter),
		worker.WithCollector(collector),
		worker.WithMetrics(m),
	)

	n := max(cfg.Worker.Concurrency, 1)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.VerificationRequests, w.Handle)
		g.Go(func() error {
			defer consumer.Close()
			return consumer.Start(gctx)
		})
	}

	slog.Info("verify worker ready", "consumers", n)
	if err := g.Wait(); err != nil {
		slog.Error("consumer error", "error", err)
		return 1
	}
	slog.Info("verify worker stopped")
	return 0
}
