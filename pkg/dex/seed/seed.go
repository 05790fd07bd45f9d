// Package seed replays the devnet bootstrap: it registers the demo tokens, funds four
// traders, produces a short trade history and leaves resting orders on both sides of
// every book so a fresh node has something to show.
package seed

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
)

// Traders are the first four accounts of the default devnet mnemonic.
var Traders = [4]common.Address{
	common.HexToAddress("0x90F8bf6A479f320ead074411a4B0e7944Ea8c9C1"),
	common.HexToAddress("0xFFcf8FDEE72ac11b5c542428B35EEF5769C409f0"),
	common.HexToAddress("0x22d491Bde2303f2f43325b2108D26f1eAbA1e32b"),
	common.HexToAddress("0xE11BA2b4D45Eaed5996Cd0823791E0C93114882d"),
}

// Tickers registered by the seeder, in deployment order after the quote token.
var Tickers = []string{"BAT", "REP", "ZRX"}

// Funding is what every trader deposits of every asset: 1000 tokens with 18 decimals.
var Funding = new(uint256.Int).Mul(uint256.NewInt(1000), new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(18)))

// Advancer moves a clock forward between trades so they carry distinct timestamps.
type Advancer interface {
	Advance(d time.Duration)
}

// tradePair is a resting BUY from trader 0 hit by a SELL market order from trader 1.
type tradePair struct {
	ticker string
	amount uint64
	price  uint64
}

var trades = []tradePair{
	{"BAT", 1000, 10},
	{"BAT", 1200, 11},
	{"BAT", 1200, 15},
	{"BAT", 1500, 14},
	{"BAT", 2000, 12},
	{"REP", 1000, 2},
	{"REP", 500, 4},
	{"REP", 800, 2},
	{"REP", 1200, 6},
}

type restingOrder struct {
	trader int
	ticker string
	amount uint64
	price  uint64
	side   orderbook.Side
}

var resting = []restingOrder{
	{0, "BAT", 1400, 10, orderbook.Buy},
	{1, "BAT", 1200, 11, orderbook.Buy},
	{1, "BAT", 1000, 12, orderbook.Buy},
	{0, "REP", 3000, 4, orderbook.Buy},
	{0, "REP", 2000, 5, orderbook.Buy},
	{1, "REP", 500, 6, orderbook.Buy},
	{0, "ZRX", 4000, 12, orderbook.Buy},
	{0, "ZRX", 3000, 13, orderbook.Buy},
	{1, "ZRX", 500, 14, orderbook.Buy},
	{2, "BAT", 2000, 16, orderbook.Sell},
	{3, "BAT", 3000, 15, orderbook.Sell},
	{3, "BAT", 500, 14, orderbook.Sell},
	{2, "REP", 4000, 10, orderbook.Sell},
	{2, "REP", 2000, 9, orderbook.Sell},
	{3, "REP", 800, 8, orderbook.Sell},
	{2, "ZRX", 1500, 23, orderbook.Sell},
	{2, "ZRX", 1200, 22, orderbook.Sell},
	{3, "ZRX", 900, 21, orderbook.Sell},
}

// TokenAddress returns the contract address the deployer gets for its nonce-th deployment.
// The quote token is deployed first, then Tickers in order.
func TokenAddress(deployer common.Address, nonce uint64) common.Address {
	return crypto.CreateAddress(deployer, nonce)
}

type Report struct {
	Assets        int
	Trades        int
	RestingOrders int
	StateHash     common.Hash
}

// Run seeds ex. The admin deploys the tokens; clock, when non-nil, is advanced one second
// after every trade.
func Run(ex *engine.Exchange, clock Advancer, log *zap.Logger) (*Report, error) {
	if log == nil {
		log = zap.NewNop()
	}
	admin := ex.Admin()
	quote := ex.Quote().Ticker
	rep := &Report{}

	for i, t := range Tickers {
		if err := ex.RegisterAsset(admin, t, TokenAddress(admin, uint64(i+1))); err != nil {
			return nil, fmt.Errorf("register %s: %w", t, err)
		}
		rep.Assets++
	}

	for _, trader := range Traders {
		for _, t := range append([]string{quote}, Tickers...) {
			if err := ex.Deposit(trader, t, Funding); err != nil {
				return nil, fmt.Errorf("fund %s with %s: %w", trader.Hex(), t, err)
			}
		}
	}
	log.Info("seed_funded", zap.Int("traders", len(Traders)), zap.String("amount", Funding.Dec()))

	for _, tp := range trades {
		amount := uint256.NewInt(tp.amount)
		if _, err := ex.CreateLimitOrder(Traders[0], tp.ticker, amount, uint256.NewInt(tp.price), orderbook.Buy); err != nil {
			return nil, fmt.Errorf("seed buy %s: %w", tp.ticker, err)
		}
		res, err := ex.CreateMarketOrder(Traders[1], tp.ticker, amount, orderbook.Sell)
		if err != nil {
			return nil, fmt.Errorf("seed sell %s: %w", tp.ticker, err)
		}
		rep.Trades += len(res.Fills)
		if clock != nil {
			clock.Advance(time.Second)
		}
	}

	for _, o := range resting {
		_, err := ex.CreateLimitOrder(Traders[o.trader], o.ticker, uint256.NewInt(o.amount), uint256.NewInt(o.price), o.side)
		if err != nil {
			return nil, fmt.Errorf("seed %s %s order: %w", o.side, o.ticker, err)
		}
	}

	rep.RestingOrders = ex.Stats().RestingOrders
	rep.StateHash = ex.StateHash()
	log.Info("seed_complete",
		zap.Int("assets", rep.Assets),
		zap.Int("trades", rep.Trades),
		zap.Int("resting_orders", rep.RestingOrders),
		zap.String("state_hash", rep.StateHash.Hex()),
	)
	return rep, nil
}
