package synth

import (
	"math/big"

	"fusd/crypto"
)

// CollateralToken is the transfer collaborator for one allow-listed collateral
// asset. A false return is not a fault: the collaborator performed no state
// change and the engine must treat the operation as failed.
type CollateralToken interface {
	// TransferFrom pulls amount from the owner into the recipient's balance.
	TransferFrom(from, to crypto.Address, amount *big.Int) bool
	// Transfer pushes amount out of engine custody to the recipient.
	Transfer(to crypto.Address, amount *big.Int) bool
}

// DebtToken is the FUSD collaborator. The engine is the only party trusted to
// direct mints and burns.
type DebtToken interface {
	// TransferFrom pulls amount of FUSD from the payer into engine custody.
	TransferFrom(from, to crypto.Address, amount *big.Int) bool
	// Mint issues amount to the recipient.
	Mint(to crypto.Address, amount *big.Int) bool
	// Burn destroys amount already held in engine custody. It is assumed
	// infallible given sufficient custody balance.
	Burn(amount *big.Int) error
	// TotalSupply reports the outstanding FUSD supply.
	TotalSupply() (*big.Int, error)
}
