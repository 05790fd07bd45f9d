package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
	"github.com/uhyunpark/ledgerdex/pkg/events"
)

// FileWAL appends every committed change set as one JSON line. It is an audit trail
// next to the Pebble journal, not a recovery source.
type FileWAL struct {
	mu sync.Mutex
	f  *os.File
}

func NewFileWAL(path string) (*FileWAL, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileWAL{f: f}, nil
}

type walEntry struct {
	Assets        []events.Asset  `json:"assets,omitempty"`
	Balances      []balanceRecord `json:"balances,omitempty"`
	Orders        []events.Order  `json:"orders,omitempty"`
	RemovedOrders []uint64        `json:"removed_orders,omitempty"`
	Trades        []events.Trade  `json:"trades,omitempty"`
	NextOrderID   uint64          `json:"next_order_id"`
	NextTradeID   uint64          `json:"next_trade_id"`
}

func (w *FileWAL) Commit(cs *engine.ChangeSet) error {
	entry := walEntry{NextOrderID: cs.NextOrderID, NextTradeID: cs.NextTradeID}
	for _, a := range cs.Assets {
		entry.Assets = append(entry.Assets, events.Asset{Ticker: a.Ticker, Address: a.Address.Hex()})
	}
	for _, e := range cs.Balances {
		entry.Balances = append(entry.Balances, balanceRecord{Account: e.Account.Hex(), Ticker: e.Ticker, Amount: e.Amount.Dec()})
	}
	for i := range cs.Orders {
		entry.Orders = append(entry.Orders, engine.OrderView(&cs.Orders[i]))
	}
	for _, o := range cs.RemovedOrders {
		entry.RemovedOrders = append(entry.RemovedOrders, o.ID)
	}
	for i := range cs.Trades {
		entry.Trades = append(entry.Trades, engine.TradeView(&cs.Trades[i]))
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode wal entry: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append wal: %w", err)
	}
	return nil
}

func (w *FileWAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.f.Close()
}

// Journals fans a change set out to several journals in order. Every journal is tried;
// the errors are joined.
type Journals []engine.Journal

func (js Journals) Commit(cs *engine.ChangeSet) error {
	var errs []error
	for _, j := range js {
		if err := j.Commit(cs); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ engine.Journal = (*FileWAL)(nil)
	_ engine.Journal = Journals(nil)
)
