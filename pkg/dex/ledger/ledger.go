// Package ledger holds per-account, per-asset available balances.
//
// Balances are unsigned; every debit is preceded by a sufficiency check, either by
// Withdraw itself or by the matching engine before it settles a fill.
package ledger

import (
	"bytes"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceOverflow     = errors.New("balance overflow")
)

// Key identifies one balance cell.
type Key struct {
	Account common.Address
	Ticker  string
}

// Entry is a balance cell as exposed for hashing and persistence.
type Entry struct {
	Account common.Address
	Ticker  string
	Amount  *uint256.Int
}

// Ledger is not safe for concurrent use; the engine owning it serializes access.
type Ledger struct {
	balances map[Key]*uint256.Int
}

func New() *Ledger {
	return &Ledger{balances: make(map[Key]*uint256.Int)}
}

// Balance returns a copy of the balance (zero if the cell was never created).
func (l *Ledger) Balance(account common.Address, ticker string) *uint256.Int {
	if bal, ok := l.balances[Key{account, ticker}]; ok {
		return bal.Clone()
	}
	return new(uint256.Int)
}

// Covers reports whether account holds at least amount of ticker.
func (l *Ledger) Covers(account common.Address, ticker string, amount *uint256.Int) bool {
	bal, ok := l.balances[Key{account, ticker}]
	if !ok {
		return amount.IsZero()
	}
	return !bal.Lt(amount)
}

// Deposit credits amount. The caller is responsible for checking the ticker is tradable
// or the quote asset.
func (l *Ledger) Deposit(account common.Address, ticker string, amount *uint256.Int) error {
	if err := l.CheckDeposit(account, ticker, amount); err != nil {
		return err
	}
	l.Credit(account, ticker, amount)
	return nil
}

// CheckDeposit validates a deposit without applying it.
func (l *Ledger) CheckDeposit(account common.Address, ticker string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if bal, ok := l.balances[Key{account, ticker}]; ok {
		if _, overflow := new(uint256.Int).AddOverflow(bal, amount); overflow {
			return fmt.Errorf("%w: %s %s", ErrBalanceOverflow, account.Hex(), ticker)
		}
	}
	return nil
}

// Withdraw debits amount after checking the balance covers it.
func (l *Ledger) Withdraw(account common.Address, ticker string, amount *uint256.Int) error {
	if err := l.CheckWithdraw(account, ticker, amount); err != nil {
		return err
	}
	l.Debit(account, ticker, amount)
	return nil
}

// CheckWithdraw validates a withdrawal without applying it.
func (l *Ledger) CheckWithdraw(account common.Address, ticker string, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return ErrInvalidAmount
	}
	if !l.Covers(account, ticker, amount) {
		return fmt.Errorf("%w: have %s, need %s", ErrInsufficientBalance,
			l.Balance(account, ticker).Dec(), amount.Dec())
	}
	return nil
}

// Credit adds amount unconditionally. Overflow is a caller bug.
func (l *Ledger) Credit(account common.Address, ticker string, amount *uint256.Int) {
	bal := l.cell(account, ticker)
	if _, overflow := bal.AddOverflow(bal, amount); overflow {
		panic(fmt.Sprintf("ledger: credit overflow for %s %s", account.Hex(), ticker))
	}
}

// Debit subtracts amount unconditionally. The caller must have checked Covers first;
// a debit that would go negative panics.
func (l *Ledger) Debit(account common.Address, ticker string, amount *uint256.Int) {
	bal := l.cell(account, ticker)
	if bal.Lt(amount) {
		panic(fmt.Sprintf("ledger: debit of %s exceeds balance %s for %s %s",
			amount.Dec(), bal.Dec(), account.Hex(), ticker))
	}
	bal.Sub(bal, amount)
}

// Set overwrites a cell. Only used when restoring from a journal.
func (l *Ledger) Set(account common.Address, ticker string, amount *uint256.Int) {
	l.balances[Key{account, ticker}] = amount.Clone()
}

// Entries returns every cell sorted by account then ticker.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.balances))
	for k, v := range l.balances {
		out = append(out, Entry{Account: k.Account, Ticker: k.Ticker, Amount: v.Clone()})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].Account[:], out[j].Account[:]); c != 0 {
			return c < 0
		}
		return out[i].Ticker < out[j].Ticker
	})
	return out
}

func (l *Ledger) cell(account common.Address, ticker string) *uint256.Int {
	k := Key{account, ticker}
	bal, ok := l.balances[k]
	if !ok {
		bal = new(uint256.Int)
		l.balances[k] = bal
	}
	return bal
}
