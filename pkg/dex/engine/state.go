package engine

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"

	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
)

// StateHash is a keccak-256 digest of every balance, asset, resting order and id counter.
// Two engines that applied the same operations hash equal; a rejected operation leaves it
// unchanged.
func (ex *Exchange) StateHash() common.Hash {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	writeUint := func(v uint64) {
		binary.BigEndian.PutUint64(buf[:], v)
		h.Write(buf[:])
	}
	writeString := func(s string) {
		writeUint(uint64(len(s)))
		h.Write([]byte(s))
	}
	writeAmount := func(v *uint256.Int) {
		b := v.Bytes32()
		h.Write(b[:])
	}

	writeString("assets")
	assets := ex.registry.List()
	writeUint(uint64(len(assets)))
	for _, a := range assets {
		writeString(a.Ticker)
		h.Write(a.Address[:])
	}

	writeString("balances")
	entries := ex.ledger.Entries()
	writeUint(uint64(len(entries)))
	for _, e := range entries {
		h.Write(e.Account[:])
		writeString(e.Ticker)
		writeAmount(e.Amount)
	}

	writeString("books")
	tickers := make([]string, 0, len(ex.books))
	for t := range ex.books {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)
	for _, t := range tickers {
		writeString(t)
		for _, side := range []orderbook.Side{orderbook.Buy, orderbook.Sell} {
			orders := ex.books[t].Snapshot(side)
			writeUint(uint64(len(orders)))
			for i := range orders {
				o := &orders[i]
				writeUint(o.ID)
				h.Write(o.Trader[:])
				writeAmount(&o.Price)
				writeAmount(&o.Amount)
				writeAmount(&o.Filled)
				writeUint(uint64(o.CreatedAt))
			}
		}
	}

	writeString("counters")
	writeUint(ex.nextOrderID)
	writeUint(ex.nextTradeID)

	var out common.Hash
	h.Sum(out[:0])
	return out
}

// Restore loads a journaled image into a freshly constructed exchange.
func (ex *Exchange) Restore(st *State) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.registry.Count() > 0 || ex.nextOrderID != 1 || ex.nextTradeID != 1 {
		return fmt.Errorf("restore: exchange is not empty")
	}

	for _, a := range st.Assets {
		if err := ex.registry.Restore(a); err != nil {
			return fmt.Errorf("restore asset %s: %w", a.Ticker, err)
		}
		ex.books[a.Ticker] = orderbook.NewOrderBook(a.Ticker)
	}
	for _, e := range st.Balances {
		if e.Amount == nil {
			continue
		}
		ex.ledger.Set(e.Account, e.Ticker, e.Amount)
	}

	var maxOrderID, maxTradeID uint64
	for i := range st.Orders {
		o := st.Orders[i]
		book, ok := ex.books[o.Ticker]
		if !ok {
			return fmt.Errorf("restore order %d: %w: %s", o.ID, ErrTokenNotFound, o.Ticker)
		}
		if o.IsFilled() {
			return fmt.Errorf("restore order %d: already filled", o.ID)
		}
		if err := book.Insert(&o); err != nil {
			return fmt.Errorf("restore order %d: %w", o.ID, err)
		}
		maxOrderID = max(maxOrderID, o.ID)
	}

	trades := append([]Trade(nil), st.Trades...)
	sort.Slice(trades, func(i, j int) bool { return trades[i].ID < trades[j].ID })
	for _, t := range trades {
		if _, ok := ex.books[t.Ticker]; !ok {
			return fmt.Errorf("restore trade %d: %w: %s", t.ID, ErrTokenNotFound, t.Ticker)
		}
		ex.recordTrade(t)
		maxTradeID = max(maxTradeID, t.ID)
	}

	ex.nextOrderID = max(st.NextOrderID, maxOrderID+1, 1)
	ex.nextTradeID = max(st.NextTradeID, maxTradeID+1, 1)

	for t, b := range ex.books {
		ex.metrics.SetResting(t, orderbook.Buy.String(), b.Len(orderbook.Buy))
		ex.metrics.SetResting(t, orderbook.Sell.String(), b.Len(orderbook.Sell))
	}
	ex.log.Info("state_restored",
		zap.Int("assets", len(st.Assets)),
		zap.Int("balances", len(st.Balances)),
		zap.Int("orders", len(st.Orders)),
		zap.Int("trades", len(st.Trades)),
		zap.Uint64("next_order_id", ex.nextOrderID),
		zap.Uint64("next_trade_id", ex.nextTradeID),
	)
	return nil
}
