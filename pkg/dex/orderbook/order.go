package orderbook

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Side is BUY or SELL. Numeric values match the on-chain enum (BUY=0, SELL=1).
type Side uint8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	default:
		return fmt.Sprintf("Side(%d)", uint8(s))
	}
}

func (s Side) Valid() bool { return s == Buy || s == Sell }

// Opposite returns the side a taker on s matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// ParseSide accepts "buy"/"sell" in any case, or the numeric "0"/"1".
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "0":
		return Buy, nil
	case "SELL", "1":
		return Sell, nil
	default:
		return 0, fmt.Errorf("unknown side %q", s)
	}
}

// Order is a resting limit order.
type Order struct {
	ID        uint64
	Ticker    string
	Side      Side
	Trader    common.Address
	Price     uint256.Int // quote units per unit of base asset
	Amount    uint256.Int // original base quantity
	Filled    uint256.Int // cumulative base quantity matched
	CreatedAt int64       // Unix milliseconds
}

// Remaining returns Amount - Filled.
func (o *Order) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(&o.Amount, &o.Filled)
}

// IsFilled returns true once the whole amount has been matched.
func (o *Order) IsFilled() bool {
	return o.Filled.Eq(&o.Amount)
}
