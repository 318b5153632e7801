package types

import "math/big"

// Account holds the token balances tracked for an address. Balances is keyed
// by token symbol and every value is denominated in the token's native scale.
type Account struct {
	Nonce    uint64              `json:"nonce"`
	Balances map[string]*big.Int `json:"balances"`
}

// Balance returns the stored balance for the symbol, treating absent entries
// as zero without mutating the account.
func (a *Account) Balance(symbol string) *big.Int {
	if a == nil || a.Balances == nil {
		return big.NewInt(0)
	}
	if bal, ok := a.Balances[symbol]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

// SetBalance records the balance for the symbol, allocating the map lazily.
func (a *Account) SetBalance(symbol string, amount *big.Int) {
	if a == nil {
		return
	}
	if a.Balances == nil {
		a.Balances = make(map[string]*big.Int)
	}
	if amount == nil {
		amount = big.NewInt(0)
	}
	a.Balances[symbol] = new(big.Int).Set(amount)
}
