package events

import (
	"math/big"
	"strings"

	"fusd/core/types"
	"fusd/crypto"
)

const (
	// TypeCollateralDeposited is emitted whenever collateral enters engine custody.
	TypeCollateralDeposited = "collateral.deposited"
	// TypeCollateralRedeemed is emitted whenever collateral leaves engine custody.
	TypeCollateralRedeemed = "collateral.redeemed"
)

type CollateralDeposited struct {
	User   [20]byte
	Asset  string
	Amount *big.Int
}

func (CollateralDeposited) EventType() string { return TypeCollateralDeposited }

func (e CollateralDeposited) Event() *types.Event {
	amount := big.NewInt(0)
	if e.Amount != nil {
		amount = new(big.Int).Set(e.Amount)
	}
	return &types.Event{
		Type: TypeCollateralDeposited,
		Attributes: map[string]string{
			"user":   crypto.MustNewAddress(crypto.AccountPrefix, e.User[:]).String(),
			"asset":  strings.TrimSpace(e.Asset),
			"amount": amount.String(),
		},
	}
}

// CollateralRedeemed records a redemption. From and To differ during
// liquidations, where seized collateral flows straight to the liquidator.
type CollateralRedeemed struct {
	From   [20]byte
	To     [20]byte
	Asset  string
	Amount *big.Int
}

func (CollateralRedeemed) EventType() string { return TypeCollateralRedeemed }

func (e CollateralRedeemed) Event() *types.Event {
	amount := big.NewInt(0)
	if e.Amount != nil {
		amount = new(big.Int).Set(e.Amount)
	}
	return &types.Event{
		Type: TypeCollateralRedeemed,
		Attributes: map[string]string{
			"from":   crypto.MustNewAddress(crypto.AccountPrefix, e.From[:]).String(),
			"to":     crypto.MustNewAddress(crypto.AccountPrefix, e.To[:]).String(),
			"asset":  strings.TrimSpace(e.Asset),
			"amount": amount.String(),
		},
	}
}
