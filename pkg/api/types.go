package api

import "github.com/uhyunpark/ledgerdex/pkg/events"

// API request and response types for REST endpoints and WebSocket messages.
// Quantities are decimal strings: balances and prices are 256-bit.

// ==============================
// REST Request Types
// ==============================

// RegisterAssetRequest is the payload for POST /api/v1/assets
type RegisterAssetRequest struct {
	Caller  string `json:"caller"`  // must be the admin address
	Ticker  string `json:"ticker"`  // e.g., "REP"
	Address string `json:"address"` // token contract
}

// TransferRequest is the payload for POST /api/v1/deposits and /api/v1/withdrawals
type TransferRequest struct {
	Account string `json:"account"`
	Ticker  string `json:"ticker"`
	Amount  string `json:"amount"`
}

// LimitOrderRequest is the payload for POST /api/v1/orders/limit
type LimitOrderRequest struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Side   string `json:"side"` // "buy" or "sell"
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

// MarketOrderRequest is the payload for POST /api/v1/orders/market
type MarketOrderRequest struct {
	Trader string `json:"trader"`
	Ticker string `json:"ticker"`
	Side   string `json:"side"`
	Amount string `json:"amount"`
}

// ==============================
// REST Response Types
// ==============================

type AssetsResponse struct {
	Quote  events.Asset   `json:"quote"`
	Assets []events.Asset `json:"assets"` // sorted by ticker, quote excluded
}

type BalanceResponse struct {
	Address string `json:"address"`
	Ticker  string `json:"ticker"`
	Balance string `json:"balance"`
	Warning string `json:"warning,omitempty"`
}

// Warning is set when the operation was applied but could not be persisted.
// Do not resubmit it.
type LimitOrderResponse struct {
	OrderID uint64 `json:"orderId"`
	Warning string `json:"warning,omitempty"`
}

type MarketOrderResponse struct {
	Ticker    string         `json:"ticker"`
	Side      string         `json:"side"`
	Requested string         `json:"requested"`
	Filled    string         `json:"filled"`
	Unfilled  string         `json:"unfilled"` // dropped, never rests
	Fills     []events.Trade `json:"fills"`
	Halted    bool           `json:"halted"`            // taker ran out of funds mid-sweep
	Skipped   []uint64       `json:"skipped,omitempty"` // unfunded resting orders passed over
	Warning   string         `json:"warning,omitempty"`
}

// PriceLevel aggregates open quantity at one price
type PriceLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// BookResponse is one side of a book, best first
type BookResponse struct {
	Ticker string         `json:"ticker"`
	Side   string         `json:"side"`
	Orders []events.Order `json:"orders"`
	Levels []PriceLevel   `json:"levels"`
}

// StateResponse summarizes the engine
type StateResponse struct {
	Hash          string `json:"hash"`
	Assets        int    `json:"assets"`
	RestingOrders int    `json:"restingOrders"`
	NextOrderID   uint64 `json:"nextOrderId"`
	NextTradeID   uint64 `json:"nextTradeId"`
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSMessage wraps every pushed event
type WSMessage struct {
	Channel string       `json:"channel"` // e.g., "trades:REP"
	Event   events.Event `json:"event"`
}

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g., ["trades:REP", "book:REP"]
}
