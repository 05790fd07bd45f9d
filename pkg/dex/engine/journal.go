package engine

import (
	"github.com/uhyunpark/ledgerdex/pkg/dex/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
	"github.com/uhyunpark/ledgerdex/pkg/dex/registry"
)

// Journal persists the effects of each successful mutating operation.
// Commit is called with the engine lock held, after the in-memory state was updated.
type Journal interface {
	Commit(cs *ChangeSet) error
}

// ChangeSet lists everything one operation touched. Balances and orders carry their
// values after the operation.
type ChangeSet struct {
	Assets        []registry.Asset
	Balances      []ledger.Entry
	Orders        []orderbook.Order // inserted or partially filled
	RemovedOrders []orderbook.Order // fully filled
	Trades        []Trade
	NextOrderID   uint64
	NextTradeID   uint64
}

// State is a full image of the engine, as loaded from a journal.
type State struct {
	Assets      []registry.Asset
	Balances    []ledger.Entry
	Orders      []orderbook.Order
	Trades      []Trade
	NextOrderID uint64
	NextTradeID uint64
}
