// Command seed populates a fresh data directory with the devnet demo: three tokens, four
// funded traders, a short trade history and resting orders on every book.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/uhyunpark/ledgerdex/params"
	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
	"github.com/uhyunpark/ledgerdex/pkg/dex/registry"
	"github.com/uhyunpark/ledgerdex/pkg/dex/seed"
	"github.com/uhyunpark/ledgerdex/pkg/storage"
	"github.com/uhyunpark/ledgerdex/pkg/util"
)

func main() {
	envFile := flag.String("env", "", "path to .env file (default: ./.env)")
	flag.Parse()

	cfg, err := params.LoadFromEnv(*envFile)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Node.DataDir == "" {
		log.Fatal("DATA_DIR is empty; nothing to seed")
	}

	logger, err := util.NewLogger(cfg.Node.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	store, err := storage.NewPebbleStore(cfg.Node.DataDir)
	if err != nil {
		sugar.Fatalw("pebble_open_failed", "dir", cfg.Node.DataDir, "err", err)
	}
	defer store.Close()

	st, err := store.Load(0)
	if err != nil {
		sugar.Fatalw("state_load_failed", "err", err)
	}
	if len(st.Assets) > 0 || len(st.Balances) > 0 {
		sugar.Fatalw("data_dir_not_empty", "dir", cfg.Node.DataDir, "assets", len(st.Assets))
	}

	// The seeded tokens are deployed by the first devnet account, which is also the admin.
	admin := seed.Traders[0]
	if cfg.Exchange.Admin != admin {
		sugar.Warnw("admin_overridden", "configured", cfg.Exchange.Admin.Hex(), "seed", admin.Hex())
	}
	clock := util.NewManualClock(time.Now().Truncate(time.Second))
	ex, err := engine.New(engine.Config{
		Admin:        admin,
		Quote:        registry.Asset{Ticker: cfg.Exchange.QuoteTicker, Address: cfg.Exchange.QuoteAddress},
		Clock:        clock,
		Journal:      store,
		Logger:       logger.Named("engine"),
		TradeHistory: cfg.Exchange.TradeHistory,
	})
	if err != nil {
		sugar.Fatalw("exchange_init_failed", "err", err)
	}

	rep, err := seed.Run(ex, clock, logger.Named("seed"))
	if err != nil {
		sugar.Fatalw("seed_failed", "err", err)
	}
	fmt.Printf("seeded %s: %d assets, %d trades, %d resting orders, state %s\n",
		cfg.Node.DataDir, rep.Assets, rep.Trades, rep.RestingOrders, rep.StateHash.Hex())
}
