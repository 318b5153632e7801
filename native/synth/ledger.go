package synth

import (
	"math/big"

	"fusd/crypto"
)

// Ledger staging helpers. Every mutation operates on a cloned position; the
// engine persists the clone only once all postconditions hold, so a failed
// operation leaves no partial ledger writes behind.

func creditCollateral(pos *Position, asset string, amount *big.Int) {
	if pos.Collateral == nil {
		pos.Collateral = make(map[string]*big.Int)
	}
	current := pos.CollateralBalance(asset)
	pos.Collateral[asset] = new(big.Int).Add(current, amount)
}

// debitCollateral decrements the deposited balance, failing hard on underflow
// rather than clamping.
func debitCollateral(pos *Position, asset string, amount *big.Int) error {
	current := pos.CollateralBalance(asset)
	if current.Cmp(amount) < 0 {
		return ErrInsufficientCollateral
	}
	if pos.Collateral == nil {
		pos.Collateral = make(map[string]*big.Int)
	}
	pos.Collateral[asset] = new(big.Int).Sub(current, amount)
	return nil
}

func increaseDebt(pos *Position, amount *big.Int) {
	if pos.Debt == nil {
		pos.Debt = big.NewInt(0)
	}
	pos.Debt = new(big.Int).Add(pos.Debt, amount)
}

// decreaseDebt decrements outstanding debt, failing hard on underflow.
func decreaseDebt(pos *Position, amount *big.Int) error {
	if pos.Debt == nil {
		pos.Debt = big.NewInt(0)
	}
	if pos.Debt.Cmp(amount) < 0 {
		return ErrInsufficientDebt
	}
	pos.Debt = new(big.Int).Sub(pos.Debt, amount)
	return nil
}

// accountValueUsd sums the USD value of every allow-listed asset held by the
// position, in 18-decimal fixed point. Balances are held in each asset's
// native scale, so the product is normalised by the per-asset scale rather
// than the global precision. The oracle is queried for every listed asset
// regardless of balance, so a stale feed on any asset blocks valuation for
// all accounts.
func (e *Engine) accountValueUsd(pos *Position) (*big.Int, error) {
	total := big.NewInt(0)
	for _, asset := range e.assets {
		price, err := e.adapters[asset.Symbol].PriceUsd()
		if err != nil {
			return nil, err
		}
		balance := pos.CollateralBalance(asset.Symbol)
		if balance.Sign() == 0 {
			continue
		}
		value := new(big.Int).Mul(balance, price)
		value = value.Quo(value, e.scales[asset.Symbol])
		total = new(big.Int).Add(total, value)
	}
	return total, nil
}

// tokenAmountFromUsd converts an 18-decimal USD amount into the asset's
// native units, the inverse of the valuation formula.
func (e *Engine) tokenAmountFromUsd(asset string, usdAmount *big.Int) (*big.Int, error) {
	adapter, ok := e.adapters[asset]
	if !ok {
		return nil, ErrAssetNotAllowed
	}
	price, err := adapter.PriceUsd()
	if err != nil {
		return nil, err
	}
	amount := new(big.Int).Mul(usdAmount, e.scales[asset])
	return amount.Quo(amount, price), nil
}

func (e *Engine) loadPosition(addr crypto.Address) (*Position, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	pos, err := e.state.GetPosition(addr)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		pos = &Position{Address: addr}
	} else {
		// Stage on a private copy so a failed operation cannot leak partial
		// writes through a state layer that hands out shared pointers.
		pos = pos.Clone()
	}
	if pos.Collateral == nil {
		pos.Collateral = make(map[string]*big.Int)
	}
	if pos.Debt == nil {
		pos.Debt = big.NewInt(0)
	}
	return pos, nil
}
