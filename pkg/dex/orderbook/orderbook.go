package orderbook

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/tidwall/btree"
)

var ErrDuplicateOrder = errors.New("order id already in book")

// PriceLevel aggregates the open quantity resting at one price.
type PriceLevel struct {
	Price uint256.Int
	Qty   uint256.Int
}

// OrderBook holds both sides of one ticker under price-time priority:
// bids by descending price, asks by ascending price, ties by ascending order id.
type OrderBook struct {
	ticker string
	bids   *btree.BTreeG[*Order]
	asks   *btree.BTreeG[*Order]
	index  map[uint64]*Order // id -> resting order
}

func NewOrderBook(ticker string) *OrderBook {
	opts := btree.Options{NoLocks: true}
	return &OrderBook{
		ticker: ticker,
		bids:   btree.NewBTreeGOptions(bidLess, opts),
		asks:   btree.NewBTreeGOptions(askLess, opts),
		index:  make(map[uint64]*Order),
	}
}

// bidLess: higher price first, then earlier id.
func bidLess(a, b *Order) bool {
	if c := a.Price.Cmp(&b.Price); c != 0 {
		return c > 0
	}
	return a.ID < b.ID
}

// askLess: lower price first, then earlier id.
func askLess(a, b *Order) bool {
	if c := a.Price.Cmp(&b.Price); c != 0 {
		return c < 0
	}
	return a.ID < b.ID
}

// Less reports whether a sorts before b on side s.
func Less(s Side, a, b *Order) bool {
	if s == Buy {
		return bidLess(a, b)
	}
	return askLess(a, b)
}

func (ob *OrderBook) Ticker() string { return ob.ticker }

func (ob *OrderBook) tree(s Side) *btree.BTreeG[*Order] {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}

// Insert places o at its sorted position on its side.
func (ob *OrderBook) Insert(o *Order) error {
	if o.Ticker != ob.ticker {
		return fmt.Errorf("order %d for %s inserted into %s book", o.ID, o.Ticker, ob.ticker)
	}
	if !o.Side.Valid() {
		return fmt.Errorf("order %d: invalid side %d", o.ID, o.Side)
	}
	if _, exists := ob.index[o.ID]; exists {
		return fmt.Errorf("%w: %d", ErrDuplicateOrder, o.ID)
	}
	ob.tree(o.Side).Set(o)
	ob.index[o.ID] = o
	return nil
}

// Best returns the head of side s: the highest bid or the lowest ask.
func (ob *OrderBook) Best(s Side) (*Order, bool) {
	return ob.tree(s).Min()
}

// Get looks up a resting order by id.
func (ob *OrderBook) Get(id uint64) (*Order, bool) {
	o, ok := ob.index[id]
	return o, ok
}

// RemoveIfFilled drops o once Filled == Amount. Returns true if it was removed.
func (ob *OrderBook) RemoveIfFilled(o *Order) bool {
	if !o.IsFilled() {
		return false
	}
	return ob.Remove(o)
}

// Remove drops o regardless of its fill state.
func (ob *OrderBook) Remove(o *Order) bool {
	if _, ok := ob.tree(o.Side).Delete(o); !ok {
		return false
	}
	delete(ob.index, o.ID)
	return true
}

// Len returns the number of resting orders on side s.
func (ob *OrderBook) Len(s Side) int { return ob.tree(s).Len() }

// Snapshot returns copies of the resting orders on side s in matching order.
func (ob *OrderBook) Snapshot(s Side) []Order {
	out := make([]Order, 0, ob.tree(s).Len())
	ob.tree(s).Scan(func(o *Order) bool {
		out = append(out, *o)
		return true
	})
	return out
}

// Levels aggregates side s into price levels, best first.
func (ob *OrderBook) Levels(s Side) []PriceLevel {
	var levels []PriceLevel
	ob.tree(s).Scan(func(o *Order) bool {
		rem := o.Remaining()
		if n := len(levels); n > 0 && levels[n-1].Price.Eq(&o.Price) {
			levels[n-1].Qty.Add(&levels[n-1].Qty, rem)
			return true
		}
		levels = append(levels, PriceLevel{Price: o.Price, Qty: *rem})
		return true
	})
	return levels
}

// Next returns the order that follows after on side s in matching order, or the best
// order when after is nil. after need not still be in the book.
func (ob *OrderBook) Next(s Side, after *Order) (*Order, bool) {
	if after == nil {
		return ob.Best(s)
	}
	var next *Order
	ob.tree(s).Ascend(after, func(o *Order) bool {
		if o.ID == after.ID {
			return true
		}
		next = o
		return false
	})
	return next, next != nil
}

// Orders returns every resting order, bids first, each side in matching order.
func (ob *OrderBook) Orders() []Order {
	return append(ob.Snapshot(Buy), ob.Snapshot(Sell)...)
}
