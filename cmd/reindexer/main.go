// Command reindexer maintains a follower index. By default it consumes the
// mutation and restore feeds from Kafka and folds them into a locally
// configured index backend, exposing health probes and Prometheus metrics
// while it runs. With -job it instead runs a registered scan job over a row
// snapshot, rebuilding the local store and broadcasting the restored
// documents back onto the restore feed.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BennyH26/titan/internal/index"
	"github.com/BennyH26/titan/internal/index/feed"
	"github.com/BennyH26/titan/internal/scan"
	"github.com/BennyH26/titan/internal/storage"
	"github.com/BennyH26/titan/pkg/config"
	"github.com/BennyH26/titan/pkg/health"
	"github.com/BennyH26/titan/pkg/kafka"
	"github.com/BennyH26/titan/pkg/logger"
	"github.com/BennyH26/titan/pkg/metrics"
	"github.com/BennyH26/titan/pkg/resilience"

	_ "github.com/BennyH26/titan/internal/index/badgerx"
	_ "github.com/BennyH26/titan/internal/index/inmem"
	_ "github.com/BennyH26/titan/internal/index/postgresx"
	_ "github.com/BennyH26/titan/internal/index/redisx"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	jobName := flag.String("job", "", "run the named scan job over a row snapshot, then exit")
	snapshotPath := flag.String("snapshot", "", "JSON-lines row snapshot read by -job")
	store := flag.String("store", "", "target index store for the reindex job")
	batchSize := flag.Int("batch", 0, "restore batch size for the reindex job")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting reindexer", "backend", cfg.Index.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	provider, err := index.NewProvider(ctx, cfg.Index.Backend, cfg.BackendOptions())
	if err != nil {
		slog.Error("failed to create index backend", "error", err)
		os.Exit(1)
	}
	defer provider.Close()

	m := metrics.New()

	if *jobName != "" {
		if err := runScanJob(ctx, cfg, provider, m, *jobName, *snapshotPath, *store, *batchSize); err != nil {
			slog.Error("scan job failed", "job", *jobName, "error", err)
			provider.Close()
			os.Exit(1)
		}
		slog.Info("scan job complete", "job", *jobName)
		return
	}

	checker := health.NewChecker()
	if pinger, ok := provider.(interface{ Ping(context.Context) error }); ok {
		checker.Register("index-backend", health.PingCheck(pinger.Ping))
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, func(mux *http.ServeMux) {
			mux.HandleFunc("/healthz", checker.LiveHandler())
			mux.HandleFunc("/readyz", checker.ReadyHandler())
		})
	}

	// Keys are resolved per store by the provider itself; the follower has
	// no schema of its own.
	applier := feed.NewApplier(provider, index.MapRetriever{}, m)

	breaker := resilience.NewCircuitBreaker("feed-apply", resilience.CircuitBreakerConfig{})
	guard := func(handle kafka.MessageHandler) kafka.MessageHandler {
		return func(ctx context.Context, key, value []byte) error {
			return breaker.Execute(func() error {
				return resilience.Retry(ctx, "feed-apply", resilience.RetryConfig{MaxAttempts: 3},
					func(ctx context.Context) error {
						return handle(ctx, key, value)
					})
			})
		}
	}

	mutationConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexMutations, guard(applier.HandleMutation))
	restoreConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IndexRestore, guard(applier.HandleRestore))

	slog.Info("reindexer ready, consuming feeds",
		"mutation_topic", cfg.Kafka.Topics.IndexMutations,
		"restore_topic", cfg.Kafka.Topics.IndexRestore,
		"group", cfg.Kafka.ConsumerGroup,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mutationConsumer.Start(gctx) })
	g.Go(func() error { return restoreConsumer.Start(gctx) })
	if err := g.Wait(); err != nil && gctx.Err() == nil {
		slog.Error("consumer error", "error", err)
	}

	if shutdownMetrics != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownMetrics(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", "error", err)
		}
	}
	slog.Info("reindexer stopped")
}

// runScanJob rebuilds an index store from a row snapshot. When Kafka
// brokers are configured the rebuilt documents are also broadcast on the
// restore topic so follower indexes converge on the same state.
func runScanJob(ctx context.Context, cfg *config.Config, provider index.Provider, m *metrics.Metrics, name, snapshotPath, store string, batchSize int) error {
	if snapshotPath == "" {
		return fmt.Errorf("-job requires -snapshot")
	}

	var publisher *feed.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IndexRestore)
		defer producer.Close()
		publisher = feed.NewPublisher(producer, m)
	}

	// Keys are resolved per store by the provider itself, as in follower
	// mode.
	scan.RegisterJob(scan.ReindexJobName, func() scan.Job {
		job := scan.NewReindexJob(provider, index.MapRetriever{}, decodeSnapshotRow)
		if publisher != nil {
			job.Broadcast(publisher.PublishRestore)
		}
		return job
	})

	job, err := scan.NewJob(name)
	if err != nil {
		return err
	}
	driver, err := scan.NewDriver(job, cfg.Scan.Workers, scan.NewPromMetrics(m))
	if err != nil {
		return err
	}

	f, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	jobConf := map[string]string{scan.ReindexConfStore: store}
	if batchSize > 0 {
		jobConf[scan.ReindexConfBatchSize] = strconv.Itoa(batchSize)
	}
	return driver.Run(ctx, scan.NewSnapshotSource(f), jobConf, cfg)
}

// snapshotDoc is the JSON document carried in a snapshot row's column
// value: the document id plus its complete field set in wire form.
type snapshotDoc struct {
	ID     string           `json:"id"`
	Fields []feed.WireEntry `json:"fields"`
}

// decodeSnapshotRow reads the row's first column value as a snapshotDoc.
// Rows that do not carry one are dropped rather than failing the sweep.
func decodeSnapshotRow(key storage.ByteKey, entries storage.EntryList) (string, []index.IndexEntry, bool, error) {
	if len(entries) == 0 {
		return "", nil, false, nil
	}
	var doc snapshotDoc
	if err := json.Unmarshal(entries[0].Value, &doc); err != nil || doc.ID == "" {
		return "", nil, false, nil
	}
	fields := make([]index.IndexEntry, 0, len(doc.Fields))
	for _, f := range doc.Fields {
		fields = append(fields, index.IndexEntry{
			Field:      f.Field,
			Value:      f.Value.Decode(),
			TTLSeconds: f.TTLSeconds,
		})
	}
	return doc.ID, fields, true, nil
}
