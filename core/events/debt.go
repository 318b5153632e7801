package events

import (
	"math/big"

	"fusd/core/types"
	"fusd/crypto"
)

const (
	// TypeDebtMinted is emitted whenever FUSD is issued against a position.
	TypeDebtMinted = "debt.minted"
	// TypeDebtBurned is emitted whenever FUSD debt is repaid and destroyed.
	TypeDebtBurned = "debt.burned"
)

type DebtMinted struct {
	User   [20]byte
	Amount *big.Int
}

func (DebtMinted) EventType() string { return TypeDebtMinted }

func (e DebtMinted) Event() *types.Event {
	amount := big.NewInt(0)
	if e.Amount != nil {
		amount = new(big.Int).Set(e.Amount)
	}
	return &types.Event{
		Type: TypeDebtMinted,
		Attributes: map[string]string{
			"user":   crypto.MustNewAddress(crypto.AccountPrefix, e.User[:]).String(),
			"amount": amount.String(),
		},
	}
}

// DebtBurned records a repayment. OnBehalfOf and Payer differ when a third
// party covers the debt, most notably during liquidations.
type DebtBurned struct {
	OnBehalfOf [20]byte
	Payer      [20]byte
	Amount     *big.Int
}

func (DebtBurned) EventType() string { return TypeDebtBurned }

func (e DebtBurned) Event() *types.Event {
	amount := big.NewInt(0)
	if e.Amount != nil {
		amount = new(big.Int).Set(e.Amount)
	}
	return &types.Event{
		Type: TypeDebtBurned,
		Attributes: map[string]string{
			"onBehalfOf": crypto.MustNewAddress(crypto.AccountPrefix, e.OnBehalfOf[:]).String(),
			"payer":      crypto.MustNewAddress(crypto.AccountPrefix, e.Payer[:]).String(),
			"amount":     amount.String(),
		},
	}
}
