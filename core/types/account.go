package types

import "math/big"

// Account holds the settlement-layer balances tracked for every participant
// address. BalanceUSD is the settlement currency scaled by 10^6; BalanceRWD is
// the incentive token scaled by 10^18. The two scales must never be mixed in
// arithmetic without explicit rescaling.
type Account struct {
	Nonce      uint64   `json:"nonce"`
	BalanceUSD *big.Int `json:"balanceUSD"`
	BalanceRWD *big.Int `json:"balanceRWD"`
}

// Clone returns a deep copy of the account with non-nil balances.
func (a *Account) Clone() *Account {
	clone := &Account{BalanceUSD: big.NewInt(0), BalanceRWD: big.NewInt(0)}
	if a == nil {
		return clone
	}
	clone.Nonce = a.Nonce
	if a.BalanceUSD != nil {
		clone.BalanceUSD = new(big.Int).Set(a.BalanceUSD)
	}
	if a.BalanceRWD != nil {
		clone.BalanceRWD = new(big.Int).Set(a.BalanceRWD)
	}
	return clone
}
