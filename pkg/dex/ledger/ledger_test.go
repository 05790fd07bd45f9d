package ledger

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func u(v uint64) *uint256.Int { return uint256.NewInt(v) }

func TestDepositWithdrawRoundTrip(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(alice, "REP", u(100)))
	require.NoError(t, l.Deposit(alice, "REP", u(25)))
	require.NoError(t, l.Withdraw(alice, "REP", u(25)))
	assert.Equal(t, uint64(100), l.Balance(alice, "REP").Uint64())

	require.NoError(t, l.Withdraw(alice, "REP", u(100)))
	assert.True(t, l.Balance(alice, "REP").IsZero())

	// the zero cell survives
	entries := l.Entries()
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.IsZero())
}

func TestWithdrawInsufficient(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(alice, "REP", u(10)))

	err := l.Withdraw(alice, "REP", u(11))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, uint64(10), l.Balance(alice, "REP").Uint64())

	assert.ErrorIs(t, l.Withdraw(bob, "REP", u(1)), ErrInsufficientBalance)
	assert.Len(t, l.Entries(), 1, "failed withdraw must not create a cell")
}

func TestRejectsZeroAndNil(t *testing.T) {
	l := New()
	assert.ErrorIs(t, l.Deposit(alice, "REP", u(0)), ErrInvalidAmount)
	assert.ErrorIs(t, l.Deposit(alice, "REP", nil), ErrInvalidAmount)
	assert.ErrorIs(t, l.Withdraw(alice, "REP", u(0)), ErrInvalidAmount)
	assert.Empty(t, l.Entries())
}

func TestDepositOverflow(t *testing.T) {
	l := New()
	maxU := new(uint256.Int).SetAllOne()
	require.NoError(t, l.Deposit(alice, "REP", maxU))
	assert.ErrorIs(t, l.Deposit(alice, "REP", u(1)), ErrBalanceOverflow)
	assert.True(t, l.Balance(alice, "REP").Eq(maxU))
}

func TestBalanceIsACopy(t *testing.T) {
	l := New()
	require.NoError(t, l.Deposit(alice, "REP", u(7)))
	b := l.Balance(alice, "REP")
	b.SetUint64(1000)
	assert.Equal(t, uint64(7), l.Balance(alice, "REP").Uint64())
}

func TestCovers(t *testing.T) {
	l := New()
	assert.True(t, l.Covers(alice, "REP", u(0)))
	assert.False(t, l.Covers(alice, "REP", u(1)))
	require.NoError(t, l.Deposit(alice, "REP", u(5)))
	assert.True(t, l.Covers(alice, "REP", u(5)))
	assert.False(t, l.Covers(alice, "REP", u(6)))
}

func TestDebitBelowZeroPanics(t *testing.T) {
	l := New()
	l.Credit(alice, "DAI", u(3))
	assert.Panics(t, func() { l.Debit(alice, "DAI", u(4)) })
	assert.NotPanics(t, func() { l.Debit(alice, "DAI", u(3)) })
}

func TestEntriesSorted(t *testing.T) {
	l := New()
	l.Credit(bob, "ZRX", u(1))
	l.Credit(alice, "REP", u(2))
	l.Credit(bob, "BAT", u(3))
	l.Credit(alice, "BAT", u(4))

	type cell struct {
		account common.Address
		ticker  string
	}
	var got []cell
	for _, e := range l.Entries() {
		got = append(got, cell{e.Account, e.Ticker})
	}
	// 0x..0b0b sorts before 0x..0a11ce
	assert.Equal(t, []cell{{bob, "BAT"}, {bob, "ZRX"}, {alice, "BAT"}, {alice, "REP"}}, got)
}
