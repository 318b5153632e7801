package synth

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	ErrNilState                = errors.New("synth engine: state not configured")
	ErrInvalidAmount           = errors.New("synth engine: amount must be positive")
	ErrAssetNotAllowed         = errors.New("synth engine: collateral asset not allow-listed")
	ErrTransferFailed          = errors.New("synth engine: token transfer collaborator reported failure")
	ErrMintFailed              = errors.New("synth engine: debt token mint reported failure")
	ErrRedeemFailed            = errors.New("synth engine: collateral push transfer reported failure")
	ErrInsufficientCollateral  = errors.New("synth engine: insufficient collateral balance")
	ErrInsufficientDebt        = errors.New("synth engine: repay amount exceeds outstanding debt")
	ErrInvalidTarget           = errors.New("synth engine: liquidation target is the zero identity")
	ErrHealthFactorOk          = errors.New("synth engine: target health factor not below minimum")
	ErrHealthFactorNotImproved = errors.New("synth engine: liquidation did not improve health factor")
	ErrHealthFactorBroken      = errors.New("synth engine: health factor below minimum")
	ErrStalePrice              = errors.New("synth engine: stale oracle price")
	ErrTokenNotConfigured      = errors.New("synth engine: token collaborator not configured")
	ErrConfigMismatch          = errors.New("synth engine: asset and feed lists differ in length")
)

// HealthFactorError reports the offending factor alongside the
// ErrHealthFactorBroken sentinel so callers can branch with errors.Is while
// still surfacing the computed value.
type HealthFactorError struct {
	Factor *big.Int
}

func (e *HealthFactorError) Error() string {
	if e == nil || e.Factor == nil {
		return ErrHealthFactorBroken.Error()
	}
	return fmt.Sprintf("%s (current factor %s)", ErrHealthFactorBroken.Error(), e.Factor)
}

func (e *HealthFactorError) Unwrap() error { return ErrHealthFactorBroken }

func newHealthFactorError(factor *big.Int) error {
	cloned := big.NewInt(0)
	if factor != nil {
		cloned = new(big.Int).Set(factor)
	}
	return &HealthFactorError{Factor: cloned}
}
