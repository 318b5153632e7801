package synth

import (
	"math/big"
	"strings"
	"time"

	"fusd/core/events"
	"fusd/crypto"
	nativecommon "fusd/native/common"
)

type engineState interface {
	GetPosition(addr crypto.Address) (*Position, error)
	PutPosition(pos *Position) error
}

// Engine orchestrates the collateral/debt state transitions for the synth
// module: deposits, FUSD issuance, redemptions, repayments and liquidations.
// Every public mutating operation runs as a single atomic unit guarded against
// reentrancy; mutations are staged on cloned positions and persisted only once
// all postconditions hold.
type Engine struct {
	state      engineState
	vault      crypto.Address
	assets     []Asset
	scales     map[string]*big.Int
	adapters   map[string]*FeedAdapter
	collateral map[string]CollateralToken
	debtToken  DebtToken
	emitter    events.Emitter
	pauses     nativecommon.PauseView
	guard      nativecommon.ReentrancyGuard
}

// NewEngine constructs an engine over the fixed, ordered collateral allow-list.
// Assets and feeds are paired positionally; mismatched lengths fail with
// ErrConfigMismatch. The asset table is immutable after construction.
func NewEngine(vault crypto.Address, assets []Asset, feeds []PriceFeed, maxQuoteAge time.Duration) (*Engine, error) {
	if len(assets) != len(feeds) {
		return nil, ErrConfigMismatch
	}
	e := &Engine{
		vault:      vault,
		assets:     make([]Asset, 0, len(assets)),
		scales:     make(map[string]*big.Int, len(assets)),
		adapters:   make(map[string]*FeedAdapter, len(assets)),
		collateral: make(map[string]CollateralToken, len(assets)),
	}
	for i, asset := range assets {
		symbol := strings.ToUpper(strings.TrimSpace(asset.Symbol))
		if symbol == "" {
			return nil, ErrConfigMismatch
		}
		asset.Symbol = symbol
		// A zero Decimals means the asset uses the default 18-decimal scale.
		if asset.Decimals == 0 {
			asset.Decimals = 18
		}
		e.assets = append(e.assets, asset)
		e.scales[symbol] = new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(asset.Decimals)), nil)
		e.adapters[symbol] = NewFeedAdapter(feeds[i], maxQuoteAge)
	}
	return e, nil
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter wires the event emitter used for boundary events.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetDebtToken wires the FUSD mint/burn collaborator.
func (e *Engine) SetDebtToken(token DebtToken) {
	if e == nil {
		return
	}
	e.debtToken = token
}

// SetCollateralToken wires the transfer collaborator for one allow-listed
// asset.
func (e *Engine) SetCollateralToken(symbol string, token CollateralToken) error {
	if e == nil {
		return ErrNilState
	}
	canonical := strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := e.adapters[canonical]; !ok {
		return ErrAssetNotAllowed
	}
	e.collateral[canonical] = token
	return nil
}

// Assets returns the ordered collateral allow-list.
func (e *Engine) Assets() []Asset {
	if e == nil {
		return nil
	}
	return append([]Asset(nil), e.assets...)
}

// Vault returns the engine custody address.
func (e *Engine) Vault() crypto.Address {
	return e.vault
}

// FeedAdapter exposes the configured oracle adapter for an asset, primarily
// for queries and the RPC status surface.
func (e *Engine) FeedAdapter(symbol string) *FeedAdapter {
	if e == nil {
		return nil
	}
	return e.adapters[strings.ToUpper(strings.TrimSpace(symbol))]
}

func (e *Engine) begin() (func(), error) {
	release, err := e.guard.Enter()
	if err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		release()
		return nil, err
	}
	return release, nil
}

func (e *Engine) emit(evs ...events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	for _, ev := range evs {
		e.emitter.Emit(ev)
	}
}

func addr20(a crypto.Address) [20]byte {
	var out [20]byte
	copy(out[:], a.Bytes())
	return out
}

// --- Queries ---

// HealthFactor reports the solvency ratio for the account. Zero-debt accounts
// are unconditionally healthy and report the maximal factor. The computation
// is a pure query and safe to call repeatedly within one operation.
func (e *Engine) HealthFactor(user crypto.Address) (*big.Int, error) {
	pos, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	return e.healthFactorOf(pos)
}

// AccountValueUsd reports the aggregate USD value of the account's collateral
// in 18-decimal fixed point.
func (e *Engine) AccountValueUsd(user crypto.Address) (*big.Int, error) {
	pos, err := e.loadPosition(user)
	if err != nil {
		return nil, err
	}
	return e.accountValueUsd(pos)
}

// Position returns a copy of the stored position for the account.
func (e *Engine) Position(user crypto.Address) (*Position, error) {
	return e.loadPosition(user)
}

func (e *Engine) healthFactorOf(pos *Position) (*big.Int, error) {
	if pos == nil || pos.Debt == nil || pos.Debt.Sign() == 0 {
		return new(big.Int).Set(maxHealthFactor), nil
	}
	value, err := e.accountValueUsd(pos)
	if err != nil {
		return nil, err
	}
	adjusted := new(big.Int).Mul(value, liquidationThreshold)
	adjusted = adjusted.Quo(adjusted, liquidationPrecision)
	return adjusted.Quo(adjusted, pos.Debt), nil
}

// --- State transitions ---

// DepositCollateral pulls amount of the asset from the user into engine
// custody and credits the collateral ledger. Deposit-only operations can never
// worsen the health factor, so none is checked.
func (e *Engine) DepositCollateral(user crypto.Address, asset string, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	undo, ev, err := e.applyDeposit(pos, asset, amount)
	if err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		undo()
		return err
	}
	e.emit(ev)
	return nil
}

// MintDebt issues FUSD against the caller's collateral, verifying the
// resulting health factor before the mint collaborator is invoked.
func (e *Engine) MintDebt(user crypto.Address, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	undo, ev, err := e.applyMint(pos, amount)
	if err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		undo()
		return err
	}
	e.emit(ev)
	return nil
}

// RedeemCollateral releases amount of the asset from the from-account's ledger
// to the recipient, re-validating the from-account's health factor afterwards.
func (e *Engine) RedeemCollateral(from, to crypto.Address, asset string, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	pos, err := e.loadPosition(from)
	if err != nil {
		return err
	}
	undo, ev, err := e.applyRedeem(pos, asset, amount, to)
	if err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		undo()
		return err
	}
	e.emit(ev)
	return nil
}

// BurnDebt pulls amount of FUSD from the payer, destroys it and reduces the
// onBehalfOf account's outstanding debt.
func (e *Engine) BurnDebt(payer, onBehalfOf crypto.Address, amount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	pos, err := e.loadPosition(onBehalfOf)
	if err != nil {
		return err
	}
	undo, ev, err := e.applyBurn(pos, payer, amount)
	if err != nil {
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		undo()
		return err
	}
	e.emit(ev)
	return nil
}

// DepositCollateralAndMintDebt composes deposit and mint into one atomic
// operation. A mint failure rolls the deposit back via a compensating push.
func (e *Engine) DepositCollateralAndMintDebt(user crypto.Address, asset string, depositAmount, mintAmount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	undoDeposit, depositEv, err := e.applyDeposit(pos, asset, depositAmount)
	if err != nil {
		return err
	}
	undoMint, mintEv, err := e.applyMint(pos, mintAmount)
	if err != nil {
		undoDeposit()
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		undoMint()
		undoDeposit()
		return err
	}
	e.emit(depositEv, mintEv)
	return nil
}

// RedeemCollateralForDebt burns FUSD before releasing collateral. The
// burn-before-redeem ordering is load-bearing: lowering debt first makes the
// post-redemption health check easier to satisfy.
func (e *Engine) RedeemCollateralForDebt(user crypto.Address, asset string, collateralAmount, burnAmount *big.Int) error {
	release, err := e.begin()
	if err != nil {
		return err
	}
	defer release()

	pos, err := e.loadPosition(user)
	if err != nil {
		return err
	}
	undoBurn, burnEv, err := e.applyBurn(pos, user, burnAmount)
	if err != nil {
		return err
	}
	undoRedeem, redeemEv, err := e.applyRedeem(pos, asset, collateralAmount, user)
	if err != nil {
		undoBurn()
		return err
	}
	if err := e.state.PutPosition(pos); err != nil {
		undoRedeem()
		undoBurn()
		return err
	}
	e.emit(burnEv, redeemEv)
	return nil
}

// --- Staged operation primitives ---

// applyDeposit stages the ledger credit and pulls the asset into custody. The
// returned compensator pushes the pulled amount back and is used when a later
// step of a compound operation fails.
func (e *Engine) applyDeposit(pos *Position, asset string, amount *big.Int) (func(), events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if _, ok := e.adapters[symbol]; !ok {
		return nil, nil, ErrAssetNotAllowed
	}
	token := e.collateral[symbol]
	if token == nil {
		return nil, nil, ErrTokenNotConfigured
	}
	creditCollateral(pos, symbol, amount)
	if !token.TransferFrom(pos.Address, e.vault, amount) {
		return nil, nil, ErrTransferFailed
	}
	user := pos.Address
	undo := func() { token.Transfer(user, amount) }
	ev := events.CollateralDeposited{User: addr20(pos.Address), Asset: symbol, Amount: amount}
	return undo, ev, nil
}

// applyMint stages the debt increase, verifies the resulting health factor and
// only then instructs the mint collaborator. The compensator pulls the issued
// FUSD back into custody and destroys it.
func (e *Engine) applyMint(pos *Position, amount *big.Int) (func(), events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if e.debtToken == nil {
		return nil, nil, ErrTokenNotConfigured
	}
	increaseDebt(pos, amount)
	factor, err := e.healthFactorOf(pos)
	if err != nil {
		return nil, nil, err
	}
	if factor.Cmp(minHealthFactor) < 0 {
		return nil, nil, newHealthFactorError(factor)
	}
	if !e.debtToken.Mint(pos.Address, amount) {
		return nil, nil, ErrMintFailed
	}
	user := pos.Address
	undo := func() {
		e.debtToken.TransferFrom(user, e.vault, amount)
		e.debtToken.Burn(amount)
	}
	return undo, events.DebtMinted{User: addr20(pos.Address), Amount: amount}, nil
}

// applyBurn pre-validates the debt decrease, pulls FUSD from the payer and
// destroys it. The trailing health check is kept for symmetry with mint; it
// cannot fail because burning strictly improves or preserves the factor. The
// compensator re-mints to the payer, which is only reachable from compound
// operations.
func (e *Engine) applyBurn(pos *Position, payer crypto.Address, amount *big.Int) (func(), events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	if e.debtToken == nil {
		return nil, nil, ErrTokenNotConfigured
	}
	if err := decreaseDebt(pos, amount); err != nil {
		return nil, nil, err
	}
	if !e.debtToken.TransferFrom(payer, e.vault, amount) {
		return nil, nil, ErrTransferFailed
	}
	if err := e.debtToken.Burn(amount); err != nil {
		return nil, nil, err
	}
	factor, err := e.healthFactorOf(pos)
	if err != nil {
		return nil, nil, err
	}
	if factor.Cmp(minHealthFactor) < 0 {
		return nil, nil, newHealthFactorError(factor)
	}
	undo := func() { e.debtToken.Mint(payer, amount) }
	ev := events.DebtBurned{OnBehalfOf: addr20(pos.Address), Payer: addr20(payer), Amount: amount}
	return undo, ev, nil
}

// applyRedeem stages the ledger debit, pushes the asset to the recipient and
// re-validates the health factor strictly afterwards. When the late check
// fails the pushed amount is pulled back into custody before the operation
// aborts.
func (e *Engine) applyRedeem(pos *Position, asset string, amount *big.Int, to crypto.Address) (func(), events.Event, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, ErrInvalidAmount
	}
	symbol := strings.ToUpper(strings.TrimSpace(asset))
	if _, ok := e.adapters[symbol]; !ok {
		return nil, nil, ErrAssetNotAllowed
	}
	token := e.collateral[symbol]
	if token == nil {
		return nil, nil, ErrTokenNotConfigured
	}
	if err := debitCollateral(pos, symbol, amount); err != nil {
		return nil, nil, err
	}
	if !token.Transfer(to, amount) {
		return nil, nil, ErrRedeemFailed
	}
	factor, err := e.healthFactorOf(pos)
	if err != nil {
		token.TransferFrom(to, e.vault, amount)
		return nil, nil, err
	}
	if factor.Cmp(minHealthFactor) < 0 {
		token.TransferFrom(to, e.vault, amount)
		return nil, nil, newHealthFactorError(factor)
	}
	undo := func() { token.TransferFrom(to, e.vault, amount) }
	ev := events.CollateralRedeemed{From: addr20(pos.Address), To: addr20(to), Asset: symbol, Amount: amount}
	return undo, ev, nil
}
