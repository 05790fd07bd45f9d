package engine

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/events"
)

// Trade is one fill between a market-order taker and a resting maker order.
type Trade struct {
	ID        uint64
	OrderID   uint64 // maker order
	Ticker    string
	Side      orderbook.Side // taker side
	Taker     common.Address
	Maker     common.Address
	Amount    uint256.Int
	Price     uint256.Int
	Timestamp int64 // Unix milliseconds
}

// MarketResult reports what a market order actually did. A sweep that ran out of
// liquidity or out of taker funds is still a result, not an error.
type MarketResult struct {
	Ticker    string
	Side      orderbook.Side
	Requested uint256.Int
	Filled    uint256.Int
	Fills     []Trade
	// Halted is set when the sweep stopped because the taker could not pay for the next fill.
	Halted bool
	// Skipped lists resting orders passed over because their owner could not cover the fill.
	Skipped []uint64
}

// Unfilled returns the dropped remainder.
func (r *MarketResult) Unfilled() *uint256.Int {
	return new(uint256.Int).Sub(&r.Requested, &r.Filled)
}

// TradeView converts a trade to its wire form.
func TradeView(t *Trade) events.Trade {
	return events.Trade{
		ID:        t.ID,
		OrderID:   t.OrderID,
		Ticker:    t.Ticker,
		Side:      t.Side.String(),
		Taker:     t.Taker.Hex(),
		Maker:     t.Maker.Hex(),
		Amount:    t.Amount.Dec(),
		Price:     t.Price.Dec(),
		Timestamp: t.Timestamp,
	}
}

// OrderView converts a resting order to its wire form.
func OrderView(o *orderbook.Order) events.Order {
	return events.Order{
		ID:        o.ID,
		Ticker:    o.Ticker,
		Side:      o.Side.String(),
		Trader:    o.Trader.Hex(),
		Price:     o.Price.Dec(),
		Amount:    o.Amount.Dec(),
		Filled:    o.Filled.Dec(),
		Remaining: o.Remaining().Dec(),
		CreatedAt: o.CreatedAt,
	}
}
