package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/uhyunpark/ledgerdex/params"
	"github.com/uhyunpark/ledgerdex/pkg/api"
	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
	"github.com/uhyunpark/ledgerdex/pkg/dex/registry"
	"github.com/uhyunpark/ledgerdex/pkg/events"
	"github.com/uhyunpark/ledgerdex/pkg/metrics"
	"github.com/uhyunpark/ledgerdex/pkg/storage"
	"github.com/uhyunpark/ledgerdex/pkg/util"
)

const eventBuffer = 4096

func main() {
	// Load config from .env file and environment variables
	cfg, err := params.LoadFromEnv("") // "" means load from .env in current directory
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Setup logging (write to both console and file)
	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile, cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile, "level", cfg.Node.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Metrics ----
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewCollector(reg)

	// ---- Journal ----
	var (
		journals storage.Journals
		store    *storage.PebbleStore
	)
	if cfg.Node.DataDir != "" {
		store, err = storage.NewPebbleStore(cfg.Node.DataDir)
		if err != nil {
			sugar.Fatalw("pebble_open_failed", "dir", cfg.Node.DataDir, "err", err)
		}
		defer store.Close()
		journals = append(journals, store)
	} else {
		sugar.Warn("journal_disabled - state will not survive a restart")
	}
	if cfg.Node.WALFile != "" {
		wal, err := storage.NewFileWAL(cfg.Node.WALFile)
		if err != nil {
			sugar.Fatalw("wal_open_failed", "file", cfg.Node.WALFile, "err", err)
		}
		defer wal.Close()
		journals = append(journals, wal)
	}
	var journal engine.Journal
	if len(journals) > 0 {
		journal = journals
	}

	// ---- Event publishers ----
	var publishers []events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger.Named("kafka"))
		defer kp.Close()
		publishers = append(publishers, kp)
		sugar.Infow("kafka_enabled", "brokers", cfg.Kafka.Brokers, "topic", cfg.Kafka.Topic)
	}

	// The hub needs the server, the server needs the exchange, the exchange needs the
	// dispatcher: the hub is attached through a late-bound publisher.
	var hub *api.Hub
	publishers = append(publishers, events.PublisherFunc(func(ctx context.Context, ev events.Event) error {
		if hub == nil {
			return nil
		}
		return hub.Publish(ctx, ev)
	}))
	dispatcher := events.NewDispatcher(eventBuffer, logger.Named("events"), publishers...)

	// ---- Exchange ----
	ex, err := engine.New(engine.Config{
		Admin:        cfg.Exchange.Admin,
		Quote:        registry.Asset{Ticker: cfg.Exchange.QuoteTicker, Address: cfg.Exchange.QuoteAddress},
		Journal:      journal,
		Events:       dispatcher,
		Metrics:      m,
		Logger:       logger.Named("engine"),
		TradeHistory: cfg.Exchange.TradeHistory,
	})
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}

	if store != nil {
		st, err := store.Load(cfg.Exchange.TradeHistory)
		if err != nil {
			sugar.Fatalw("state_load_failed", "err", err)
		}
		if err := ex.Restore(st); err != nil {
			sugar.Fatalw("state_restore_failed", "err", err)
		}
	}
	sugar.Infow("exchange_ready",
		"admin", ex.Admin().Hex(),
		"quote", ex.Quote().Ticker,
		"assets", len(ex.Assets()),
		"state_hash", ex.StateHash().Hex())

	// ---- API Server ----
	apiServer := api.NewServer(ex, api.Options{
		CORSOrigins: cfg.API.CORSOrigins,
		Logger:      logger,
		Gatherer:    reg,
	})
	hub = apiServer.Hub()

	dispatchDone := make(chan struct{})
	go func() {
		dispatcher.Run(ctx)
		close(dispatchDone)
	}()

	if err := apiServer.Start(ctx, cfg.API.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		sugar.Errorw("api_server_failed", "err", err)
		stop()
	}

	select {
	case <-dispatchDone:
	case <-time.After(5 * time.Second):
		sugar.Warnw("event_flush_timeout", "dropped", dispatcher.Dropped())
	}
	sugar.Infow("node_stopped", "state_hash", ex.StateHash().Hex())
}
