package token

import (
	"errors"
	"math/big"
	"strings"

	"fusd/core/types"
	"fusd/crypto"
)

var (
	errNilState            = errors.New("token ledger: state not configured")
	errInvalidAmount       = errors.New("token ledger: amount must be positive")
	errInsufficientCustody = errors.New("token ledger: insufficient custody balance to burn")
)

type ledgerState interface {
	GetAccount(addr crypto.Address) (*types.Account, error)
	PutAccount(addr crypto.Address, acc *types.Account) error
	GetSupply(symbol string) (*big.Int, error)
	PutSupply(symbol string, supply *big.Int) error
}

// Token is an in-process transfer collaborator backed by the shared state
// layer. It serves both roles the engine consumes: collateral assets (pull and
// push around engine custody) and the FUSD debt token (engine-directed mint
// and burn). Transfer methods report success as a boolean; a false return
// means no state changed.
type Token struct {
	state    ledgerState
	symbol   string
	decimals uint8
	vault    crypto.Address
}

// NewToken constructs a token ledger. The vault address identifies engine
// custody: Transfer pushes out of it and Burn destroys from it.
func NewToken(state ledgerState, symbol string, decimals uint8, vault crypto.Address) *Token {
	return &Token{
		state:    state,
		symbol:   strings.ToUpper(strings.TrimSpace(symbol)),
		decimals: decimals,
		vault:    vault,
	}
}

// Symbol returns the canonical token symbol.
func (t *Token) Symbol() string { return t.symbol }

// Decimals returns the token's native fixed-point scale.
func (t *Token) Decimals() uint8 { return t.decimals }

// TransferFrom moves amount from the owner to the recipient. It reports false
// when the owner's balance is insufficient or the amount is invalid.
func (t *Token) TransferFrom(from, to crypto.Address, amount *big.Int) bool {
	return t.move(from, to, amount) == nil
}

// Transfer pushes amount out of engine custody to the recipient.
func (t *Token) Transfer(to crypto.Address, amount *big.Int) bool {
	return t.move(t.vault, to, amount) == nil
}

// Mint issues amount to the recipient and grows the supply.
func (t *Token) Mint(to crypto.Address, amount *big.Int) bool {
	if t == nil || t.state == nil || amount == nil || amount.Sign() <= 0 {
		return false
	}
	acc, err := t.state.GetAccount(to)
	if err != nil {
		return false
	}
	supply, err := t.state.GetSupply(t.symbol)
	if err != nil {
		return false
	}
	acc.SetBalance(t.symbol, new(big.Int).Add(acc.Balance(t.symbol), amount))
	if err := t.state.PutAccount(to, acc); err != nil {
		return false
	}
	return t.state.PutSupply(t.symbol, new(big.Int).Add(supply, amount)) == nil
}

// Burn destroys amount held in engine custody and shrinks the supply.
func (t *Token) Burn(amount *big.Int) error {
	if t == nil || t.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	acc, err := t.state.GetAccount(t.vault)
	if err != nil {
		return err
	}
	balance := acc.Balance(t.symbol)
	if balance.Cmp(amount) < 0 {
		return errInsufficientCustody
	}
	supply, err := t.state.GetSupply(t.symbol)
	if err != nil {
		return err
	}
	acc.SetBalance(t.symbol, new(big.Int).Sub(balance, amount))
	if err := t.state.PutAccount(t.vault, acc); err != nil {
		return err
	}
	next := new(big.Int).Sub(supply, amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	return t.state.PutSupply(t.symbol, next)
}

// TotalSupply reports the outstanding supply.
func (t *Token) TotalSupply() (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, errNilState
	}
	return t.state.GetSupply(t.symbol)
}

// BalanceOf returns the holder's balance.
func (t *Token) BalanceOf(addr crypto.Address) (*big.Int, error) {
	if t == nil || t.state == nil {
		return nil, errNilState
	}
	acc, err := t.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	return acc.Balance(t.symbol), nil
}

func (t *Token) move(from, to crypto.Address, amount *big.Int) error {
	if t == nil || t.state == nil {
		return errNilState
	}
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	fromAcc, err := t.state.GetAccount(from)
	if err != nil {
		return err
	}
	balance := fromAcc.Balance(t.symbol)
	if balance.Cmp(amount) < 0 {
		return errInsufficientCustody
	}
	if from.Equal(to) {
		return nil
	}
	toAcc, err := t.state.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.SetBalance(t.symbol, new(big.Int).Sub(balance, amount))
	toAcc.SetBalance(t.symbol, new(big.Int).Add(toAcc.Balance(t.symbol), amount))
	if err := t.state.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return t.state.PutAccount(to, toAcc)
}
