// Package events carries engine notifications (trades, orders, transfers) to slow
// consumers such as Kafka and WebSocket clients, outside the engine's critical section.
package events

import "time"

// Event types
const (
	TypeAssetRegistered = "asset_registered"
	TypeDeposit         = "deposit"
	TypeWithdrawal      = "withdrawal"
	TypeOrderCreated    = "order_created"
	TypeOrderFilled     = "order_filled"
	TypeTrade           = "trade"
)

// Event is one notification. Ticker is used as the partition key.
type Event struct {
	Type    string    `json:"type"`
	Ticker  string    `json:"ticker"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Quantities are decimal strings so 256-bit values survive JSON consumers.

type Asset struct {
	Ticker  string `json:"ticker"`
	Address string `json:"address"`
}

type Transfer struct {
	Account string `json:"account"`
	Ticker  string `json:"ticker"`
	Amount  string `json:"amount"`
	Balance string `json:"balance"`
}

type Order struct {
	ID        uint64 `json:"id"`
	Ticker    string `json:"ticker"`
	Side      string `json:"side"`
	Trader    string `json:"trader"`
	Price     string `json:"price"`
	Amount    string `json:"amount"`
	Filled    string `json:"filled"`
	Remaining string `json:"remaining"`
	CreatedAt int64  `json:"createdAt"`
}

type Trade struct {
	ID        uint64 `json:"id"`
	OrderID   uint64 `json:"orderId"`
	Ticker    string `json:"ticker"`
	Side      string `json:"side"` // taker side
	Taker     string `json:"taker"`
	Maker     string `json:"maker"`
	Amount    string `json:"amount"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}
