package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/ledgerdex/pkg/dex/orderbook"
)

// Key schema:
//
//   bal:<address>:<ticker>            → balance
//   asset:<ticker>                    → registered asset
//   ord:<ticker>:<side>:<id>          → resting order
//   trade:<ticker>:<id>               → trade
//   meta:next_order_id                → uint64 (big-endian)
//   meta:next_trade_id                → uint64 (big-endian)
//
// Ids are zero-padded to 20 digits so prefix scans return them in id order. Tickers never
// contain ':' (registry.ValidateTicker), so "trade:REP:" is not a prefix of another
// ticker's trades.

const (
	prefixBalance = "bal:"
	prefixAsset   = "asset:"
	prefixOrder   = "ord:"
	prefixTrade   = "trade:"

	keyNextOrderID = "meta:next_order_id"
	keyNextTradeID = "meta:next_trade_id"
)

// Format: "bal:{address}:{ticker}"
func balanceKey(addr common.Address, ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, addr.Hex(), ticker))
}

// Format: "asset:{ticker}"
func assetKey(ticker string) []byte {
	return []byte(prefixAsset + ticker)
}

// Format: "ord:{ticker}:{side}:{id}"
func orderKey(ticker string, side orderbook.Side, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%s:%020d", prefixOrder, ticker, side, id))
}

// Format: "trade:{ticker}:{id}"
func tradeKey(ticker string, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixTrade, ticker, id))
}

// Format: "trade:{ticker}:"
func tradePrefix(ticker string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, ticker))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
