// Package engine is the matching engine: it owns the ledger, the asset registry and one
// order book per ticker, and exposes every exchange operation. Operations are
// serialized; each one validates before it mutates and runs to completion.
package engine

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"github.com/uhyunpark/ledgerdex/pkg/dex/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/dex/registry"
	"github.com/uhyunpark/ledgerdex/pkg/events"
	"github.com/uhyunpark/ledgerdex/pkg/metrics"
	"github.com/uhyunpark/ledgerdex/pkg/util"
)

const DefaultTradeHistory = 1000

// EventSink receives notifications after an operation commits. Dispatch must not block.
type EventSink interface {
	Dispatch(ev events.Event)
}

type Config struct {
	Admin   common.Address
	Quote   registry.Asset
	Custody ledger.Custody
	Clock   util.Clock
	Journal Journal
	Events  EventSink
	Metrics *metrics.Collector
	Logger  *zap.Logger

	// TradeHistory caps the trades kept in memory per ticker.
	TradeHistory int
}

type Exchange struct {
	mu sync.Mutex

	ledger   *ledger.Ledger
	registry *registry.AssetRegistry
	books    map[string]*orderbook.OrderBook // ticker -> book
	trades   map[string][]Trade              // ticker -> recent trades, oldest first

	nextOrderID uint64
	nextTradeID uint64

	custody      ledger.Custody
	clock        util.Clock
	journal      Journal
	sink         EventSink
	metrics      *metrics.Collector
	log          *zap.Logger
	tradeHistory int
}

func New(cfg Config) (*Exchange, error) {
	reg, err := registry.NewAssetRegistry(cfg.Admin, cfg.Quote)
	if err != nil {
		return nil, err
	}
	ex := &Exchange{
		ledger:       ledger.New(),
		registry:     reg,
		books:        make(map[string]*orderbook.OrderBook),
		trades:       make(map[string][]Trade),
		nextOrderID:  1,
		nextTradeID:  1,
		custody:      cfg.Custody,
		clock:        cfg.Clock,
		journal:      cfg.Journal,
		sink:         cfg.Events,
		metrics:      cfg.Metrics,
		log:          cfg.Logger,
		tradeHistory: cfg.TradeHistory,
	}
	if ex.custody == nil {
		ex.custody = ledger.NopCustody{}
	}
	if ex.clock == nil {
		ex.clock = util.RealClock{}
	}
	if ex.log == nil {
		ex.log = zap.NewNop()
	}
	if ex.tradeHistory <= 0 {
		ex.tradeHistory = DefaultTradeHistory
	}
	return ex, nil
}

// RegisterAsset makes ticker tradable. Only the admin may call it.
func (ex *Exchange) RegisterAsset(caller common.Address, ticker string, ref common.Address) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.registry.Register(caller, ticker, ref); err != nil {
		return ex.reject("register_asset", err)
	}
	ex.books[ticker] = orderbook.NewOrderBook(ticker)

	ex.log.Info("asset_registered", zap.String("ticker", ticker), zap.String("address", ref.Hex()))
	asset := registry.Asset{Ticker: ticker, Address: ref}
	return ex.commit(&ChangeSet{Assets: []registry.Asset{asset}},
		ex.event(events.TypeAssetRegistered, ticker, events.Asset{Ticker: ticker, Address: ref.Hex()}))
}

// Deposit pulls amount of ticker from account through custody and credits the ledger.
// ticker must be the quote asset or a registered asset.
func (ex *Exchange) Deposit(account common.Address, ticker string, amount *uint256.Int) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ref, err := ex.registry.Resolve(ticker)
	if err != nil {
		return ex.reject("deposit", err)
	}
	if err := ex.ledger.CheckDeposit(account, ticker, amount); err != nil {
		return ex.reject("deposit", err)
	}
	if err := ex.custody.TransferIn(ref, account, amount); err != nil {
		return ex.reject("deposit", fmt.Errorf("%w: %w", ErrCustody, err))
	}
	ex.ledger.Credit(account, ticker, amount)
	ex.metrics.Deposited(ticker)

	bal := ex.ledger.Balance(account, ticker)
	ex.log.Debug("deposit", zap.String("account", account.Hex()), zap.String("ticker", ticker),
		zap.String("amount", amount.Dec()), zap.String("balance", bal.Dec()))
	return ex.commit(&ChangeSet{Balances: []ledger.Entry{{Account: account, Ticker: ticker, Amount: bal}}},
		ex.event(events.TypeDeposit, ticker, events.Transfer{
			Account: account.Hex(), Ticker: ticker, Amount: amount.Dec(), Balance: bal.Dec(),
		}))
}

// Withdraw debits the ledger and pushes amount back to account through custody.
func (ex *Exchange) Withdraw(account common.Address, ticker string, amount *uint256.Int) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	ref, err := ex.registry.Resolve(ticker)
	if err != nil {
		return ex.reject("withdraw", err)
	}
	if err := ex.ledger.CheckWithdraw(account, ticker, amount); err != nil {
		return ex.reject("withdraw", err)
	}
	if err := ex.custody.TransferOut(ref, account, amount); err != nil {
		return ex.reject("withdraw", fmt.Errorf("%w: %w", ErrCustody, err))
	}
	ex.ledger.Debit(account, ticker, amount)
	ex.metrics.Withdrew(ticker)

	bal := ex.ledger.Balance(account, ticker)
	ex.log.Debug("withdraw", zap.String("account", account.Hex()), zap.String("ticker", ticker),
		zap.String("amount", amount.Dec()), zap.String("balance", bal.Dec()))
	return ex.commit(&ChangeSet{Balances: []ledger.Entry{{Account: account, Ticker: ticker, Amount: bal}}},
		ex.event(events.TypeWithdrawal, ticker, events.Transfer{
			Account: account.Hex(), Ticker: ticker, Amount: amount.Dec(), Balance: bal.Dec(),
		}))
}

// Balance returns account's available balance of ticker (zero if never funded).
func (ex *Exchange) Balance(account common.Address, ticker string) *uint256.Int {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.ledger.Balance(account, ticker)
}

// Orders returns the resting orders of one book side in matching order.
func (ex *Exchange) Orders(ticker string, side orderbook.Side) ([]orderbook.Order, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	book, err := ex.book(ticker)
	if err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	return book.Snapshot(side), nil
}

// SideDepth is one book side read under a single lock, so Levels always aggregates
// exactly Orders.
type SideDepth struct {
	Orders []orderbook.Order
	Levels []orderbook.PriceLevel // best first
}

// Depth returns the resting orders of one book side together with their price levels.
func (ex *Exchange) Depth(ticker string, side orderbook.Side) (*SideDepth, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	book, err := ex.book(ticker)
	if err != nil {
		return nil, err
	}
	if !side.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	return &SideDepth{Orders: book.Snapshot(side), Levels: book.Levels(side)}, nil
}

// Trades returns up to limit of the most recent trades of ticker, newest first.
func (ex *Exchange) Trades(ticker string, limit int) ([]Trade, error) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if _, err := ex.book(ticker); err != nil {
		return nil, err
	}
	hist := ex.trades[ticker]
	if limit <= 0 || limit > len(hist) {
		limit = len(hist)
	}
	out := make([]Trade, 0, limit)
	for i := len(hist) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, hist[i])
	}
	return out, nil
}

// Assets lists the tradable assets sorted by ticker.
func (ex *Exchange) Assets() []registry.Asset {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	return ex.registry.List()
}

func (ex *Exchange) Quote() registry.Asset { return ex.registry.Quote() }

func (ex *Exchange) Admin() common.Address { return ex.registry.Admin() }

// Stats summarizes the engine for status endpoints.
type Stats struct {
	Assets        int
	RestingOrders int
	NextOrderID   uint64
	NextTradeID   uint64
}

func (ex *Exchange) Stats() Stats {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	st := Stats{Assets: ex.registry.Count(), NextOrderID: ex.nextOrderID, NextTradeID: ex.nextTradeID}
	for _, b := range ex.books {
		st.RestingOrders += b.Len(orderbook.Buy) + b.Len(orderbook.Sell)
	}
	return st
}

// book resolves a tradable ticker to its order book.
func (ex *Exchange) book(ticker string) (*orderbook.OrderBook, error) {
	if ex.registry.IsQuote(ticker) {
		return nil, fmt.Errorf("%w: %s", ErrCannotTradeQuoteAsset, ticker)
	}
	book, ok := ex.books[ticker]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, ticker)
	}
	return book, nil
}

func (ex *Exchange) reject(op string, err error) error {
	ex.metrics.Rejected(op, reason(err))
	ex.log.Debug("rejected", zap.String("op", op), zap.Error(err))
	return err
}

func (ex *Exchange) event(typ, ticker string, payload any) events.Event {
	return events.Event{Type: typ, Ticker: ticker, Time: ex.clock.Now(), Payload: payload}
}

// commit journals cs and hands evs to the sink. The in-memory state is already updated,
// so a journal failure is reported but not rolled back.
func (ex *Exchange) commit(cs *ChangeSet, evs ...events.Event) error {
	var err error
	if ex.journal != nil {
		cs.NextOrderID = ex.nextOrderID
		cs.NextTradeID = ex.nextTradeID
		if jerr := ex.journal.Commit(cs); jerr != nil {
			ex.log.Error("journal_commit_failed", zap.Error(jerr))
			err = fmt.Errorf("%w: %w", ErrJournal, jerr)
		}
	}
	if ex.sink != nil {
		for _, ev := range evs {
			ex.sink.Dispatch(ev)
		}
	}
	return err
}

func (ex *Exchange) recordTrade(t Trade) {
	hist := append(ex.trades[t.Ticker], t)
	if over := len(hist) - ex.tradeHistory; over > 0 {
		hist = append(hist[:0:0], hist[over:]...)
	}
	ex.trades[t.Ticker] = hist
}
