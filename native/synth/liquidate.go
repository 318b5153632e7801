package synth

import (
	"math/big"
	"strings"

	"fusd/core/events"
	"fusd/crypto"
)

// Liquidate lets a third party repay part of an unhealthy account's debt in
// exchange for a discounted claim on its collateral. The caller chooses how
// much debt to cover, up to the target's full outstanding amount; covering it
// all closes the position.
//
// All ledger effects are staged and checked, including the strict
// health-improvement postcondition, before any collaborator is invoked, so a
// failed liquidation leaves every balance untouched. The repaid debt and the
// seized collateral amount are returned.
func (e *Engine) Liquidate(liquidator, user crypto.Address, asset string, debtToCover *big.Int) (*big.Int, *big.Int, error) {
	release, err := e.begin()
	if err != nil {
		return nil, nil, err
	}
	defer release()

	if user.IsZero() {
		return nil, nil, ErrInvalidTarget
	}
	if debtToCover == nil || debtToCover.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if _, ok := e.adapters[symbol]; !ok {
		return nil, nil, ErrAssetNotAllowed
	}
	token := e.collateral[symbol]
	if token == nil || e.debtToken == nil {
		return nil, nil, ErrTokenNotConfigured
	}

	pos, err := e.loadPosition(user)
	if err != nil {
		return nil, nil, err
	}
	startingFactor, err := e.healthFactorOf(pos)
	if err != nil {
		return nil, nil, err
	}
	if startingFactor.Cmp(minHealthFactor) >= 0 {
		return nil, nil, ErrHealthFactorOk
	}
	if pos.Debt.Cmp(debtToCover) < 0 {
		return nil, nil, ErrInsufficientDebt
	}

	seize, err := e.tokenAmountFromUsd(symbol, debtToCover)
	if err != nil {
		return nil, nil, err
	}
	bonus := new(big.Int).Mul(seize, liquidationBonus)
	bonus = bonus.Quo(bonus, bonusPrecision)
	total := new(big.Int).Add(seize, bonus)
	// When the target cannot cover the bonus the liquidator absorbs the
	// shortfall and receives the base amount only.
	if pos.CollateralBalance(symbol).Cmp(total) < 0 {
		total = seize
	}

	if err := decreaseDebt(pos, debtToCover); err != nil {
		return nil, nil, err
	}
	if err := debitCollateral(pos, symbol, total); err != nil {
		return nil, nil, err
	}

	endingFactor, err := e.healthFactorOf(pos)
	if err != nil {
		return nil, nil, err
	}
	// Guards against degenerate liquidations that burn debt without raising
	// the ratio, e.g. seizing from an already-empty position.
	if endingFactor.Cmp(startingFactor) <= 0 {
		return nil, nil, ErrHealthFactorNotImproved
	}

	// A self-liquidation must judge the liquidator by the staged position,
	// not the stale stored one.
	liqPos := pos
	if !liquidator.Equal(user) {
		liqPos, err = e.loadPosition(liquidator)
		if err != nil {
			return nil, nil, err
		}
	}
	liqFactor, err := e.healthFactorOf(liqPos)
	if err != nil {
		return nil, nil, err
	}
	if liqFactor.Cmp(minHealthFactor) < 0 {
		return nil, nil, newHealthFactorError(liqFactor)
	}

	if !e.debtToken.TransferFrom(liquidator, e.vault, debtToCover) {
		return nil, nil, ErrTransferFailed
	}
	if err := e.debtToken.Burn(debtToCover); err != nil {
		return nil, nil, err
	}
	if !token.Transfer(liquidator, total) {
		e.debtToken.Mint(liquidator, debtToCover)
		return nil, nil, ErrRedeemFailed
	}

	if err := e.state.PutPosition(pos); err != nil {
		token.TransferFrom(liquidator, e.vault, total)
		e.debtToken.Mint(liquidator, debtToCover)
		return nil, nil, err
	}
	e.emit(
		events.DebtBurned{OnBehalfOf: addr20(user), Payer: addr20(liquidator), Amount: debtToCover},
		events.CollateralRedeemed{From: addr20(user), To: addr20(liquidator), Asset: symbol, Amount: total},
		events.PositionLiquidated{User: addr20(user), Liquidator: addr20(liquidator), Asset: symbol, DebtCover: debtToCover, Seized: total},
	)
	return new(big.Int).Set(debtToCover), total, nil
}
