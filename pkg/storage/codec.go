package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/ledgerdex/pkg/dex/engine"
	"github.com/uhyunpark/ledgerdex/pkg/dex/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/dex/registry"
	"github.com/uhyunpark/ledgerdex/pkg/events"
)

// Values are stored as JSON with quantities as decimal strings. Orders and trades reuse
// the wire form published on the event stream.

type balanceRecord struct {
	Account string `json:"account"`
	Ticker  string `json:"ticker"`
	Amount  string `json:"amount"`
}

func encodeBalance(e ledger.Entry) ([]byte, error) {
	return json.Marshal(balanceRecord{Account: e.Account.Hex(), Ticker: e.Ticker, Amount: e.Amount.Dec()})
}

func decodeBalance(b []byte) (ledger.Entry, error) {
	var rec balanceRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return ledger.Entry{}, err
	}
	amt, err := parseAmount(rec.Amount)
	if err != nil {
		return ledger.Entry{}, err
	}
	return ledger.Entry{Account: common.HexToAddress(rec.Account), Ticker: rec.Ticker, Amount: amt}, nil
}

func encodeAsset(a registry.Asset) ([]byte, error) {
	return json.Marshal(events.Asset{Ticker: a.Ticker, Address: a.Address.Hex()})
}

func decodeAsset(b []byte) (registry.Asset, error) {
	var rec events.Asset
	if err := json.Unmarshal(b, &rec); err != nil {
		return registry.Asset{}, err
	}
	return registry.Asset{Ticker: rec.Ticker, Address: common.HexToAddress(rec.Address)}, nil
}

func encodeOrder(o *orderbook.Order) ([]byte, error) {
	return json.Marshal(engine.OrderView(o))
}

func decodeOrder(b []byte) (orderbook.Order, error) {
	var rec events.Order
	if err := json.Unmarshal(b, &rec); err != nil {
		return orderbook.Order{}, err
	}
	side, err := orderbook.ParseSide(rec.Side)
	if err != nil {
		return orderbook.Order{}, err
	}
	o := orderbook.Order{
		ID:        rec.ID,
		Ticker:    rec.Ticker,
		Side:      side,
		Trader:    common.HexToAddress(rec.Trader),
		CreatedAt: rec.CreatedAt,
	}
	for _, f := range []struct {
		dst *uint256.Int
		src string
	}{{&o.Price, rec.Price}, {&o.Amount, rec.Amount}, {&o.Filled, rec.Filled}} {
		v, err := parseAmount(f.src)
		if err != nil {
			return orderbook.Order{}, fmt.Errorf("order %d: %w", rec.ID, err)
		}
		f.dst.Set(v)
	}
	return o, nil
}

func encodeTrade(t *engine.Trade) ([]byte, error) {
	return json.Marshal(engine.TradeView(t))
}

func decodeTrade(b []byte) (engine.Trade, error) {
	var rec events.Trade
	if err := json.Unmarshal(b, &rec); err != nil {
		return engine.Trade{}, err
	}
	side, err := orderbook.ParseSide(rec.Side)
	if err != nil {
		return engine.Trade{}, err
	}
	amount, err := parseAmount(rec.Amount)
	if err != nil {
		return engine.Trade{}, fmt.Errorf("trade %d: %w", rec.ID, err)
	}
	price, err := parseAmount(rec.Price)
	if err != nil {
		return engine.Trade{}, fmt.Errorf("trade %d: %w", rec.ID, err)
	}
	return engine.Trade{
		ID:        rec.ID,
		OrderID:   rec.OrderID,
		Ticker:    rec.Ticker,
		Side:      side,
		Taker:     common.HexToAddress(rec.Taker),
		Maker:     common.HexToAddress(rec.Maker),
		Amount:    *amount,
		Price:     *price,
		Timestamp: rec.Timestamp,
	}, nil
}

func parseAmount(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return v, nil
}

func encodeUint64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

func decodeUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("counter: want 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
