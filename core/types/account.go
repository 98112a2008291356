package types

import "math/big"

// Account holds the fungible token balances for a single address. Balances
// are keyed by token symbol and denominated in the token's smallest unit.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// NewAccount returns an account with an initialised balance map.
func NewAccount() *Account {
	return &Account{Balances: make(map[string]*big.Int)}
}

// Balance returns the account's balance for the given token, treating a
// missing entry as zero. The returned value is a copy.
func (a *Account) Balance(token string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[token]; ok && bal != nil {
		return new(big.Int).Set(bal)
	}
	return big.NewInt(0)
}

// SetBalance records the balance for a token, allocating the map on demand.
func (a *Account) SetBalance(token string, amount *big.Int) {
	if a == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[token] = new(big.Int).Set(amount)
}
