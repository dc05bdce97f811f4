package claimtoken

import (
	"errors"
	"math/big"
)

var (
	errNilState = errors.New("claim token ledger: state not configured")

	// ErrInvalidAmount is returned for nil, zero or negative mint/burn amounts.
	ErrInvalidAmount = errors.New("claim token ledger: amount must be positive")
	// ErrInsufficientBalance is returned when a burn exceeds the holder balance.
	ErrInsufficientBalance = errors.New("claim token ledger: insufficient balance")
)

// State is the persistence surface for pool-scoped claim balances. Balances
// are integers scaled by 10^18, keyed by (poolID, holder).
type State interface {
	ClaimBalance(pool [32]byte, holder [20]byte) (*big.Int, error)
	SetClaimBalance(pool [32]byte, holder [20]byte, amount *big.Int) error
	ClaimTotalSupply(pool [32]byte) (*big.Int, error)
	SetClaimTotalSupply(pool [32]byte, amount *big.Int) error
	ClaimHolders(pool [32]byte) ([][20]byte, error)
}

// Ledger is a minimal mint/burn balance ledger representing each investor's
// pro-rata share of a pool's invested capital. Mutation is reserved to the
// pool settlement engine, which owns the only Ledger handle wired with state;
// every other consumer sees read-only accessors via the node.
type Ledger struct {
	state State
}

// NewLedger creates a claim token ledger over the supplied state backend.
func NewLedger(state State) *Ledger {
	return &Ledger{state: state}
}

// Mint credits freshly issued claim tokens to the holder and grows the pool's
// total supply by the same amount.
func (l *Ledger) Mint(pool [32]byte, holder [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.state.ClaimBalance(pool, holder)
	if err != nil {
		return err
	}
	supply, err := l.state.ClaimTotalSupply(pool)
	if err != nil {
		return err
	}
	if err := l.state.SetClaimBalance(pool, holder, new(big.Int).Add(balance, amount)); err != nil {
		return err
	}
	return l.state.SetClaimTotalSupply(pool, new(big.Int).Add(supply, amount))
}

// Burn retires claim tokens from the holder and shrinks the pool's total
// supply. Fails with ErrInsufficientBalance when the holder balance is short.
func (l *Ledger) Burn(pool [32]byte, holder [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	balance, err := l.state.ClaimBalance(pool, holder)
	if err != nil {
		return err
	}
	if balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	supply, err := l.state.ClaimTotalSupply(pool)
	if err != nil {
		return err
	}
	if err := l.state.SetClaimBalance(pool, holder, new(big.Int).Sub(balance, amount)); err != nil {
		return err
	}
	return l.state.SetClaimTotalSupply(pool, new(big.Int).Sub(supply, amount))
}

// BalanceOf returns the holder's claim balance for the pool.
func (l *Ledger) BalanceOf(pool [32]byte, holder [20]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	balance, err := l.state.ClaimBalance(pool, holder)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(balance), nil
}

// TotalSupply returns the outstanding claim supply for the pool.
func (l *Ledger) TotalSupply(pool [32]byte) (*big.Int, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	supply, err := l.state.ClaimTotalSupply(pool)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(supply), nil
}

// Holders returns the addresses with a nonzero claim balance for the pool in
// deterministic order.
func (l *Ledger) Holders(pool [32]byte) ([][20]byte, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	return l.state.ClaimHolders(pool)
}
