package engine

import (
	"errors"

	"github.com/uhyunpark/ledgerdex/pkg/dex/ledger"
	"github.com/uhyunpark/ledgerdex/pkg/dex/registry"
)

var (
	ErrUnauthorized      = registry.ErrUnauthorized
	ErrAlreadyRegistered = registry.ErrAlreadyRegistered
	ErrReservedTicker    = registry.ErrReservedTicker
	ErrTokenNotFound     = registry.ErrNotFound
	ErrInvalidTicker     = registry.ErrInvalidTicker

	ErrInvalidAmount       = ledger.ErrInvalidAmount
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrBalanceOverflow     = ledger.ErrBalanceOverflow

	ErrCannotTradeQuoteAsset    = errors.New("cannot trade the quote asset")
	ErrInsufficientTokenBalance = errors.New("insufficient balance for this token")
	ErrInsufficientQuoteBalance = errors.New("insufficient balance for quote asset")
	ErrInvalidPrice             = errors.New("price must be positive")
	ErrInvalidSide              = errors.New("invalid side")
	ErrNotionalOverflow         = errors.New("amount x price overflows")
	ErrCustody                  = errors.New("custody transfer failed")

	// ErrJournal is returned after an operation was applied in memory but could not be
	// written to the journal.
	ErrJournal = errors.New("journal write failed")
)

// reason maps an error to a short metrics label.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrAlreadyRegistered):
		return "already_registered"
	case errors.Is(err, ErrReservedTicker):
		return "reserved_ticker"
	case errors.Is(err, ErrTokenNotFound):
		return "token_not_found"
	case errors.Is(err, ErrInvalidTicker):
		return "invalid_ticker"
	case errors.Is(err, ErrCannotTradeQuoteAsset):
		return "quote_asset"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrInsufficientTokenBalance):
		return "insufficient_token"
	case errors.Is(err, ErrInsufficientQuoteBalance):
		return "insufficient_quote"
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidPrice), errors.Is(err, ErrInvalidSide):
		return "invalid_input"
	case errors.Is(err, ErrBalanceOverflow), errors.Is(err, ErrNotionalOverflow):
		return "overflow"
	case errors.Is(err, ErrCustody):
		return "custody"
	default:
		return "other"
	}
}
