package orderbook

import (
	"math/rand"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id uint64, side Side, price, amount uint64) *Order {
	return &Order{
		ID:     id,
		Ticker: "REP",
		Side:   side,
		Trader: common.BigToAddress(uint256.NewInt(id).ToBig()),
		Price:  *uint256.NewInt(price),
		Amount: *uint256.NewInt(amount),
	}
}

func ids(orders []Order) []uint64 {
	out := make([]uint64, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func TestPriceTimePriority(t *testing.T) {
	tests := []struct {
		name   string
		side   Side
		prices []uint64 // order i gets id i+1
		want   []uint64
	}{
		{"buy higher price first", Buy, []uint64{10, 11}, []uint64{2, 1}},
		{"buy ties by id", Buy, []uint64{10, 10, 10}, []uint64{1, 2, 3}},
		{"buy mixed", Buy, []uint64{5, 9, 5, 9, 1}, []uint64{2, 4, 1, 3, 5}},
		{"sell lower price first", Sell, []uint64{11, 10}, []uint64{2, 1}},
		{"sell ties by id", Sell, []uint64{7, 7}, []uint64{1, 2}},
		{"sell mixed", Sell, []uint64{5, 9, 5, 9, 1}, []uint64{5, 1, 3, 2, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob := NewOrderBook("REP")
			for i, p := range tt.prices {
				require.NoError(t, ob.Insert(newOrder(uint64(i+1), tt.side, p, 1)))
			}
			assert.Equal(t, tt.want, ids(ob.Snapshot(tt.side)))
			best, ok := ob.Best(tt.side)
			require.True(t, ok)
			assert.Equal(t, tt.want[0], best.ID)
			assert.Zero(t, ob.Len(tt.side.Opposite()))
		})
	}
}

func TestInsertRejects(t *testing.T) {
	ob := NewOrderBook("REP")
	require.NoError(t, ob.Insert(newOrder(1, Buy, 10, 1)))

	err := ob.Insert(newOrder(1, Sell, 10, 1))
	assert.ErrorIs(t, err, ErrDuplicateOrder)

	other := newOrder(2, Buy, 10, 1)
	other.Ticker = "BAT"
	assert.Error(t, ob.Insert(other))

	assert.Error(t, ob.Insert(newOrder(3, Side(9), 10, 1)))
	assert.Equal(t, 1, ob.Len(Buy))
	assert.Zero(t, ob.Len(Sell))
}

func TestRemoveIfFilled(t *testing.T) {
	ob := NewOrderBook("REP")
	o := newOrder(1, Sell, 10, 5)
	require.NoError(t, ob.Insert(o))

	o.Filled.SetUint64(3)
	assert.False(t, ob.RemoveIfFilled(o))
	assert.Equal(t, uint64(2), o.Remaining().Uint64())
	_, ok := ob.Get(1)
	assert.True(t, ok)

	o.Filled.SetUint64(5)
	assert.True(t, ob.RemoveIfFilled(o))
	_, ok = ob.Get(1)
	assert.False(t, ok)
	_, ok = ob.Best(Sell)
	assert.False(t, ok)
	assert.False(t, ob.Remove(o), "second remove is a no-op")
}

func TestSnapshotIsACopy(t *testing.T) {
	ob := NewOrderBook("REP")
	require.NoError(t, ob.Insert(newOrder(1, Buy, 10, 5)))
	snap := ob.Snapshot(Buy)
	snap[0].Filled.SetUint64(5)

	best, _ := ob.Best(Buy)
	assert.True(t, best.Filled.IsZero())
}

func TestNextWalksInMatchingOrder(t *testing.T) {
	ob := NewOrderBook("REP")
	for i, p := range []uint64{12, 10, 12, 11} {
		require.NoError(t, ob.Insert(newOrder(uint64(i+1), Buy, p, 1)))
	}

	var walked []uint64
	var prev *Order
	for {
		o, ok := ob.Next(Buy, prev)
		if !ok {
			break
		}
		walked = append(walked, o.ID)
		prev = o
	}
	assert.Equal(t, []uint64{1, 3, 4, 2}, walked)

	// continues past an order that has since been removed
	first, _ := ob.Best(Buy)
	require.True(t, ob.Remove(first))
	next, ok := ob.Next(Buy, first)
	require.True(t, ok)
	assert.Equal(t, uint64(3), next.ID)
}

func TestLevels(t *testing.T) {
	ob := NewOrderBook("REP")
	require.NoError(t, ob.Insert(newOrder(1, Sell, 10, 5)))
	require.NoError(t, ob.Insert(newOrder(2, Sell, 11, 1)))
	o := newOrder(3, Sell, 10, 4)
	o.Filled.SetUint64(1)
	require.NoError(t, ob.Insert(o))

	levels := ob.Levels(Sell)
	require.Len(t, levels, 2)
	assert.Equal(t, uint64(10), levels[0].Price.Uint64())
	assert.Equal(t, uint64(8), levels[0].Qty.Uint64())
	assert.Equal(t, uint64(11), levels[1].Price.Uint64())
	assert.Equal(t, uint64(1), levels[1].Qty.Uint64())
}

func TestOrdersBidsThenAsks(t *testing.T) {
	ob := NewOrderBook("REP")
	require.NoError(t, ob.Insert(newOrder(1, Sell, 10, 1)))
	require.NoError(t, ob.Insert(newOrder(2, Buy, 9, 1)))
	require.NoError(t, ob.Insert(newOrder(3, Buy, 8, 1)))
	assert.Equal(t, []uint64{2, 3, 1}, ids(ob.Orders()))
}

func TestSortInvariantUnderChurn(t *testing.T) {
	ob := NewOrderBook("REP")
	rng := rand.New(rand.NewSource(7))
	var live []*Order
	for id := uint64(1); id <= 500; id++ {
		side := Side(rng.Intn(2))
		o := newOrder(id, side, uint64(rng.Intn(20)+1), 1)
		require.NoError(t, ob.Insert(o))
		live = append(live, o)
		if rng.Intn(3) == 0 {
			victim := rng.Intn(len(live))
			ob.Remove(live[victim])
			live = append(live[:victim], live[victim+1:]...)
		}
	}
	for _, side := range []Side{Buy, Sell} {
		snap := ob.Snapshot(side)
		for i := 1; i < len(snap); i++ {
			require.True(t, Less(side, &snap[i-1], &snap[i]), "%s out of order at %d", side, i)
		}
	}
	assert.Equal(t, len(live), ob.Len(Buy)+ob.Len(Sell))
}

func TestParseSide(t *testing.T) {
	for in, want := range map[string]Side{"buy": Buy, "SELL": Sell, "0": Buy, " 1 ": Sell} {
		got, err := ParseSide(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseSide("hold")
	assert.Error(t, err)
}

// BenchmarkInsert measures insertion into a book with 100 price levels per side.
func BenchmarkInsert(b *testing.B) {
	ob := NewOrderBook("REP")
	for i := 0; i < 100; i++ {
		_ = ob.Insert(newOrder(uint64(2*i+1), Buy, uint64(1000-i), 100))
		_ = ob.Insert(newOrder(uint64(2*i+2), Sell, uint64(1100+i), 100))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		side := Buy
		if i%2 == 1 {
			side = Sell
		}
		o := newOrder(uint64(1000+i), side, uint64(900+i%300), 1)
		if err := ob.Insert(o); err != nil {
			b.Fatalf("insert: %v", err)
		}
	}
}
