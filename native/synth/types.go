package synth

import (
	"math/big"

	"fusd/crypto"
)

// Scale and risk constants. The health-factor arithmetic deliberately mirrors
// the reference protocol: the threshold-adjusted collateral value is divided
// by the raw debt and compared against minHealthFactor without rescaling by
// the 18-decimal precision. See DESIGN.md for the recorded decision.
var (
	precision               = big.NewInt(1_000_000_000_000_000_000)
	additionalFeedPrecision = big.NewInt(10_000_000_000)
	liquidationThreshold    = big.NewInt(50)
	liquidationPrecision    = big.NewInt(100)
	liquidationBonus        = big.NewInt(10)
	bonusPrecision          = big.NewInt(100)
	minHealthFactor         = big.NewInt(1)

	// maxHealthFactor stands in for "infinite" on zero-debt positions.
	maxHealthFactor = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
)

const moduleName = "synth"

// Asset describes one allow-listed collateral type. The asset set is fixed at
// engine construction and never mutated afterwards.
type Asset struct {
	// Symbol is the canonical upper-case identifier for the collateral token.
	Symbol string
	// Decimals is the token's native fixed-point scale.
	Decimals uint8
}

// Position maintains the collateral and debt ledger entries for a single
// account. Positions are created implicitly on first use; a zero-balance
// position is equivalent to a non-existent one.
type Position struct {
	// Address is the unique account identifier for the position owner.
	Address crypto.Address
	// Collateral maps asset symbol to the deposited amount in the asset's
	// native scale.
	Collateral map[string]*big.Int
	// Debt stores the outstanding minted FUSD in 18-decimal fixed point; one
	// unit is one USD by protocol design.
	Debt *big.Int
}

// CollateralBalance returns the deposited amount for the asset without
// mutating the position.
func (p *Position) CollateralBalance(asset string) *big.Int {
	if p == nil || p.Collateral == nil {
		return big.NewInt(0)
	}
	if bal, ok := p.Collateral[asset]; ok && bal != nil {
		return bal
	}
	return big.NewInt(0)
}

// Clone returns a deep copy of the position. The engine stages every mutation
// on a clone and persists it only after all postconditions hold.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{Address: p.Address}
	if p.Collateral != nil {
		clone.Collateral = make(map[string]*big.Int, len(p.Collateral))
		for sym, bal := range p.Collateral {
			if bal == nil {
				continue
			}
			clone.Collateral[sym] = new(big.Int).Set(bal)
		}
	}
	if p.Debt != nil {
		clone.Debt = new(big.Int).Set(p.Debt)
	}
	return clone
}
