package registry

import (
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// MaxTickerLen mirrors the bytes32 ticker of the on-chain exchange.
const MaxTickerLen = 32

var (
	ErrUnauthorized      = errors.New("only admin is allowed")
	ErrAlreadyRegistered = errors.New("token already registered")
	ErrReservedTicker    = errors.New("ticker is reserved for the quote asset")
	ErrNotFound          = errors.New("token does not exist")
	ErrInvalidTicker     = errors.New("invalid ticker")
)

// Asset is a registered ticker and the external reference (token contract) behind it.
type Asset struct {
	Ticker  string
	Address common.Address
}

// AssetRegistry maps tickers to external asset references.
// The quote asset is always resolvable but never stored in the table.
type AssetRegistry struct {
	admin  common.Address
	quote  Asset
	assets map[string]common.Address
}

// NewAssetRegistry creates an empty registry administered by admin.
func NewAssetRegistry(admin common.Address, quote Asset) (*AssetRegistry, error) {
	if err := ValidateTicker(quote.Ticker); err != nil {
		return nil, fmt.Errorf("quote asset: %w", err)
	}
	return &AssetRegistry{
		admin:  admin,
		quote:  quote,
		assets: make(map[string]common.Address),
	}, nil
}

// TickerSeparator delimits the ticker inside storage keys and channel names, so it can
// never appear in a ticker.
const TickerSeparator = ':'

// ValidateTicker accepts 1 to 32 bytes of printable, non-space ASCII other than
// TickerSeparator.
func ValidateTicker(ticker string) error {
	if ticker == "" || len(ticker) > MaxTickerLen {
		return fmt.Errorf("%w: %q", ErrInvalidTicker, ticker)
	}
	for i := 0; i < len(ticker); i++ {
		if c := ticker[i]; c <= ' ' || c > '~' || c == TickerSeparator {
			return fmt.Errorf("%w: %q has byte %#x at %d", ErrInvalidTicker, ticker, c, i)
		}
	}
	return nil
}

// Register adds a new tradable asset.
// Returns error if caller is not the admin, the ticker is the quote asset's,
// or the ticker already exists.
func (r *AssetRegistry) Register(caller common.Address, ticker string, ref common.Address) error {
	if caller != r.admin {
		return fmt.Errorf("%w: caller %s", ErrUnauthorized, caller.Hex())
	}
	if err := ValidateTicker(ticker); err != nil {
		return err
	}
	if ticker == r.quote.Ticker {
		return fmt.Errorf("%w: %s", ErrReservedTicker, ticker)
	}
	if _, exists := r.assets[ticker]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, ticker)
	}

	r.assets[ticker] = ref
	return nil
}

// Resolve returns the external reference behind ticker, including the quote asset.
func (r *AssetRegistry) Resolve(ticker string) (common.Address, error) {
	if ticker == r.quote.Ticker {
		return r.quote.Address, nil
	}
	ref, exists := r.assets[ticker]
	if !exists {
		return common.Address{}, fmt.Errorf("%w: %s", ErrNotFound, ticker)
	}
	return ref, nil
}

// Exists reports whether ticker is a registered tradable asset (the quote asset is not).
func (r *AssetRegistry) Exists(ticker string) bool {
	_, exists := r.assets[ticker]
	return exists
}

func (r *AssetRegistry) IsQuote(ticker string) bool { return ticker == r.quote.Ticker }

func (r *AssetRegistry) Quote() Asset { return r.quote }

func (r *AssetRegistry) Admin() common.Address { return r.admin }

// List returns the tradable assets sorted by ticker.
func (r *AssetRegistry) List() []Asset {
	out := make([]Asset, 0, len(r.assets))
	for t, ref := range r.assets {
		out = append(out, Asset{Ticker: t, Address: ref})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Count returns the number of tradable assets.
func (r *AssetRegistry) Count() int { return len(r.assets) }

// Restore installs a previously registered asset without the admin check.
func (r *AssetRegistry) Restore(a Asset) error {
	if err := ValidateTicker(a.Ticker); err != nil {
		return err
	}
	if a.Ticker == r.quote.Ticker {
		return fmt.Errorf("%w: %s", ErrReservedTicker, a.Ticker)
	}
	r.assets[a.Ticker] = a.Address
	return nil
}
