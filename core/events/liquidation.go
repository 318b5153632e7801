package events

import (
	"math/big"
	"strings"

	"fusd/core/types"
	"fusd/crypto"
)

const (
	// TypePositionLiquidated is emitted when a third party forcibly closes part
	// of an unhealthy position.
	TypePositionLiquidated = "position.liquidated"
)

type PositionLiquidated struct {
	User       [20]byte
	Liquidator [20]byte
	Asset      string
	DebtCover  *big.Int
	Seized     *big.Int
}

func (PositionLiquidated) EventType() string { return TypePositionLiquidated }

func (e PositionLiquidated) Event() *types.Event {
	debt := big.NewInt(0)
	if e.DebtCover != nil {
		debt = new(big.Int).Set(e.DebtCover)
	}
	seized := big.NewInt(0)
	if e.Seized != nil {
		seized = new(big.Int).Set(e.Seized)
	}
	return &types.Event{
		Type: TypePositionLiquidated,
		Attributes: map[string]string{
			"user":       crypto.MustNewAddress(crypto.AccountPrefix, e.User[:]).String(),
			"liquidator": crypto.MustNewAddress(crypto.AccountPrefix, e.Liquidator[:]).String(),
			"asset":      strings.TrimSpace(e.Asset),
			"debtCover":  debt.String(),
			"seized":     seized.String(),
		},
	}
}
