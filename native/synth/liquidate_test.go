package synth

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"fusd/core/events"
	"fusd/crypto"
)

// seedUnderwater opens a position at the mint ceiling and then drops the
// oracle price so the position becomes liquidatable.
func seedUnderwater(t *testing.T, fx *fixture, user crypto.Address, collateral, debt *big.Int, crashedPrice int64) {
	t.Helper()
	fx.weth.setBalance(user, collateral)
	if err := fx.engine.DepositCollateralAndMintDebt(user, "WETH", collateral, debt); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	fx.feed.Set(feedPrice(crashedPrice), time.Now())
}

func TestLiquidatePartialCoverSeizesWithBonus(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	// 1 WETH at $2000 backs a $900 mint; at $1500 the factor drops to zero.
	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)
	fx.debt.setBalance(liquidator, usd(450))

	covered, seized, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(450))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if covered.Cmp(usd(450)) != 0 {
		t.Fatalf("unexpected covered amount: %s", covered)
	}
	// $450 at $1500/WETH is 0.3 WETH; the 10% bonus brings it to 0.33.
	wantSeized, _ := new(big.Int).SetString("330000000000000000", 10)
	if seized.Cmp(wantSeized) != 0 {
		t.Fatalf("unexpected seized amount: %s", seized)
	}

	pos := fx.state.positions[fx.state.key(user)]
	if pos.Debt.Cmp(usd(450)) != 0 {
		t.Fatalf("unexpected remaining debt: %s", pos.Debt)
	}
	wantRemaining, _ := new(big.Int).SetString("670000000000000000", 10)
	if pos.CollateralBalance("WETH").Cmp(wantRemaining) != 0 {
		t.Fatalf("unexpected remaining collateral: %s", pos.CollateralBalance("WETH"))
	}
	if fx.weth.balance(liquidator).Cmp(wantSeized) != 0 {
		t.Fatalf("liquidator not paid: %s", fx.weth.balance(liquidator))
	}
	if fx.debt.balance(liquidator).Sign() != 0 {
		t.Fatalf("liquidator FUSD not pulled: %s", fx.debt.balance(liquidator))
	}
	if fx.debt.burned.Cmp(usd(450)) != 0 {
		t.Fatalf("covered debt not burned: %s", fx.debt.burned)
	}
}

func TestLiquidateFullCoverClosesPosition(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)
	fx.debt.setBalance(liquidator, usd(900))

	covered, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(900))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if covered.Cmp(usd(900)) != 0 {
		t.Fatalf("unexpected covered amount: %s", covered)
	}
	pos := fx.state.positions[fx.state.key(user)]
	if pos.Debt.Sign() != 0 {
		t.Fatalf("position not closed: %s", pos.Debt)
	}
	factor, err := fx.engine.HealthFactor(user)
	if err != nil {
		t.Fatalf("health factor: %v", err)
	}
	if factor.Cmp(maxHealthFactor) != 0 {
		t.Fatalf("closed position not maximally healthy: %s", factor)
	}
}

func TestLiquidateBonusShortfallSeizesBaseOnly(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	// 0.6 WETH of collateral cannot cover seize (0.6) plus bonus (0.06), so
	// the liquidator absorbs the shortfall and receives the base amount only.
	collateral, _ := new(big.Int).SetString("600000000000000000", 10)
	fx.weth.setBalance(user, collateral)
	if err := fx.engine.DepositCollateralAndMintDebt(user, "WETH", collateral, usd(600)); err != nil {
		t.Fatalf("seed position: %v", err)
	}
	fx.feed.Set(feedPrice(1000), time.Now())
	fx.debt.setBalance(liquidator, usd(600))

	_, seized, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(600))
	if err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if seized.Cmp(collateral) != 0 {
		t.Fatalf("expected base-only seizure of %s, got %s", collateral, seized)
	}
	pos := fx.state.positions[fx.state.key(user)]
	if pos.CollateralBalance("WETH").Sign() != 0 || pos.Debt.Sign() != 0 {
		t.Fatalf("position not emptied: collateral=%s debt=%s", pos.CollateralBalance("WETH"), pos.Debt)
	}
}

func TestLiquidateHealthyTargetRejected(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)
	fx.weth.setBalance(user, usd(10))
	if err := fx.engine.DepositCollateralAndMintDebt(user, "WETH", usd(10), usd(5000)); err != nil {
		t.Fatalf("seed position: %v", err)
	}

	if _, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(100)); !errors.Is(err, ErrHealthFactorOk) {
		t.Fatalf("expected healthy target rejection, got %v", err)
	}
}

func TestLiquidateValidatesInputs(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)
	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)

	if _, _, err := fx.engine.Liquidate(liquidator, crypto.Address{}, "WETH", usd(1)); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("zero target: got %v", err)
	}
	if _, _, err := fx.engine.Liquidate(liquidator, user, "WETH", big.NewInt(0)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("zero amount: got %v", err)
	}
	if _, _, err := fx.engine.Liquidate(liquidator, user, "DOGE", usd(1)); !errors.Is(err, ErrAssetNotAllowed) {
		t.Fatalf("unknown asset: got %v", err)
	}
	if _, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(901)); !errors.Is(err, ErrInsufficientDebt) {
		t.Fatalf("over-cover: got %v", err)
	}
}

func TestLiquidateRequiresHealthImprovement(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)
	fx.debt.setBalance(liquidator, usd(100))

	// Covering $100 leaves the integer factor at zero on both sides, so the
	// strict improvement postcondition fails and nothing moves.
	_, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(100))
	if !errors.Is(err, ErrHealthFactorNotImproved) {
		t.Fatalf("expected improvement rejection, got %v", err)
	}
	pos := fx.state.positions[fx.state.key(user)]
	if pos.Debt.Cmp(usd(900)) != 0 {
		t.Fatalf("debt changed on rejected liquidation: %s", pos.Debt)
	}
	if fx.debt.balance(liquidator).Cmp(usd(100)) != 0 {
		t.Fatalf("liquidator FUSD moved on rejected liquidation: %s", fx.debt.balance(liquidator))
	}
}

func TestLiquidateRejectsUnhealthyLiquidator(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	// Both accounts are opened at the ceiling; the price crash sinks the
	// liquidator's own position too.
	fx.weth.setBalance(user, usd(1))
	fx.weth.setBalance(liquidator, usd(1))
	if err := fx.engine.DepositCollateralAndMintDebt(user, "WETH", usd(1), usd(900)); err != nil {
		t.Fatalf("seed user: %v", err)
	}
	if err := fx.engine.DepositCollateralAndMintDebt(liquidator, "WETH", usd(1), usd(900)); err != nil {
		t.Fatalf("seed liquidator: %v", err)
	}
	fx.feed.Set(feedPrice(1500), time.Now())

	_, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(900))
	if !errors.Is(err, ErrHealthFactorBroken) {
		t.Fatalf("expected liquidator health rejection, got %v", err)
	}
}

func TestLiquidateSelfJudgedByStagedPosition(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)

	// The user self-liquidates with the FUSD they minted. Judged by the
	// stored position they are unhealthy, but the staged position after
	// covering the full debt is clean, and that is the one that counts.
	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)

	covered, seized, err := fx.engine.Liquidate(user, user, "WETH", usd(900))
	if err != nil {
		t.Fatalf("self-liquidate: %v", err)
	}
	if covered.Cmp(usd(900)) != 0 {
		t.Fatalf("unexpected covered amount: %s", covered)
	}
	// $900 at $1500/WETH is 0.6 WETH plus the 10% bonus.
	wantSeized, _ := new(big.Int).SetString("660000000000000000", 10)
	if seized.Cmp(wantSeized) != 0 {
		t.Fatalf("unexpected seized amount: %s", seized)
	}

	pos := fx.state.positions[fx.state.key(user)]
	if pos.Debt.Sign() != 0 {
		t.Fatalf("position not closed: %s", pos.Debt)
	}
	wantRemaining, _ := new(big.Int).SetString("340000000000000000", 10)
	if pos.CollateralBalance("WETH").Cmp(wantRemaining) != 0 {
		t.Fatalf("unexpected remaining collateral: %s", pos.CollateralBalance("WETH"))
	}
	if fx.weth.balance(user).Cmp(wantSeized) != 0 {
		t.Fatalf("seized collateral not paid out: %s", fx.weth.balance(user))
	}
	if fx.debt.balance(user).Sign() != 0 {
		t.Fatalf("repayment not pulled: %s", fx.debt.balance(user))
	}
}

func TestLiquidatePersistFailureRestoresAllBalances(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)
	fx.debt.setBalance(liquidator, usd(900))
	fx.state.putErr = errors.New("disk full")

	if _, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(900)); err == nil {
		t.Fatal("persist failure not surfaced")
	}
	// Seized collateral went back to custody and the repayment was re-minted.
	if fx.weth.balance(liquidator).Sign() != 0 {
		t.Fatalf("liquidator kept seized collateral: %s", fx.weth.balance(liquidator))
	}
	if fx.weth.balance(fx.vault).Cmp(usd(1)) != 0 {
		t.Fatalf("custody not restored: %s", fx.weth.balance(fx.vault))
	}
	if fx.debt.balance(liquidator).Cmp(usd(900)) != 0 {
		t.Fatalf("repayment not re-minted: %s", fx.debt.balance(liquidator))
	}
	pos := fx.state.positions[fx.state.key(user)]
	if pos.Debt.Cmp(usd(900)) != 0 || pos.CollateralBalance("WETH").Cmp(usd(1)) != 0 {
		t.Fatalf("stored position changed: collateral=%s debt=%s",
			pos.CollateralBalance("WETH"), pos.Debt)
	}
	supply, err := fx.debt.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(usd(900)) != 0 {
		t.Fatalf("supply no longer matches outstanding debt: %s", supply)
	}
}

func TestLiquidateTransferFailureAbortsBeforePersist(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)
	// Liquidator holds no FUSD, so the repayment pull fails.

	_, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(900))
	if !errors.Is(err, ErrTransferFailed) {
		t.Fatalf("expected transfer failure, got %v", err)
	}
	pos := fx.state.positions[fx.state.key(user)]
	if pos.Debt.Cmp(usd(900)) != 0 || pos.CollateralBalance("WETH").Cmp(usd(1)) != 0 {
		t.Fatalf("rejected liquidation mutated position: collateral=%s debt=%s",
			pos.CollateralBalance("WETH"), pos.Debt)
	}
}

func TestLiquidateCollateralPushFailureRestoresRepayment(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)
	fx.debt.setBalance(liquidator, usd(900))
	fx.weth.failTransfer = true

	_, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(900))
	if !errors.Is(err, ErrRedeemFailed) {
		t.Fatalf("expected redeem failure, got %v", err)
	}
	// The compensating mint returns the pulled FUSD to the liquidator.
	if fx.debt.balance(liquidator).Cmp(usd(900)) != 0 {
		t.Fatalf("repayment not compensated: %s", fx.debt.balance(liquidator))
	}
	pos := fx.state.positions[fx.state.key(user)]
	if pos.Debt.Cmp(usd(900)) != 0 {
		t.Fatalf("failed liquidation persisted debt change: %s", pos.Debt)
	}
}

func TestLiquidateEmitsBoundaryEvents(t *testing.T) {
	fx := newFixture(t)
	user := makeAddress(crypto.AccountPrefix, 0x20)
	liquidator := makeAddress(crypto.AccountPrefix, 0x30)

	seedUnderwater(t, fx, user, usd(1), usd(900), 1500)
	fx.debt.setBalance(liquidator, usd(900))
	fx.emitter.events = nil

	if _, _, err := fx.engine.Liquidate(liquidator, user, "WETH", usd(900)); err != nil {
		t.Fatalf("liquidate: %v", err)
	}
	if len(fx.emitter.events) != 3 {
		t.Fatalf("expected three events, got %d", len(fx.emitter.events))
	}
	types := []string{
		fx.emitter.events[0].EventType(),
		fx.emitter.events[1].EventType(),
		fx.emitter.events[2].EventType(),
	}
	want := []string{events.TypeDebtBurned, events.TypeCollateralRedeemed, events.TypePositionLiquidated}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d: got %s, want %s", i, types[i], want[i])
		}
	}
}
