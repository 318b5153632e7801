package token

import (
	"math/big"
	"testing"

	"fusd/core/types"
	"fusd/crypto"
)

type mockLedgerState struct {
	accounts map[string]*types.Account
	supplies map[string]*big.Int
}

func newMockLedgerState() *mockLedgerState {
	return &mockLedgerState{
		accounts: make(map[string]*types.Account),
		supplies: make(map[string]*big.Int),
	}
}

func (m *mockLedgerState) key(addr crypto.Address) string { return string(addr.Bytes()) }

func (m *mockLedgerState) GetAccount(addr crypto.Address) (*types.Account, error) {
	if acc, ok := m.accounts[m.key(addr)]; ok {
		return acc, nil
	}
	return &types.Account{Balances: make(map[string]*big.Int)}, nil
}

func (m *mockLedgerState) PutAccount(addr crypto.Address, acc *types.Account) error {
	m.accounts[m.key(addr)] = acc
	return nil
}

func (m *mockLedgerState) GetSupply(symbol string) (*big.Int, error) {
	if supply, ok := m.supplies[symbol]; ok {
		return supply, nil
	}
	return big.NewInt(0), nil
}

func (m *mockLedgerState) PutSupply(symbol string, supply *big.Int) error {
	m.supplies[symbol] = supply
	return nil
}

func makeAddress(prefix crypto.AddressPrefix, suffix byte) crypto.Address {
	buf := make([]byte, 20)
	buf[19] = suffix
	return crypto.NewAddress(prefix, buf)
}

func TestMintGrowsBalanceAndSupply(t *testing.T) {
	state := newMockLedgerState()
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	holder := makeAddress(crypto.AccountPrefix, 0x02)
	tok := NewToken(state, "fusd", 18, vault)

	if tok.Symbol() != "FUSD" {
		t.Fatalf("symbol not canonicalised: %s", tok.Symbol())
	}
	if !tok.Mint(holder, big.NewInt(500)) {
		t.Fatal("mint failed")
	}
	balance, err := tok.BalanceOf(holder)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected balance: %s", balance)
	}
	supply, err := tok.TotalSupply()
	if err != nil {
		t.Fatalf("supply: %v", err)
	}
	if supply.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("unexpected supply: %s", supply)
	}
}

func TestMintRejectsInvalidAmounts(t *testing.T) {
	state := newMockLedgerState()
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	holder := makeAddress(crypto.AccountPrefix, 0x02)
	tok := NewToken(state, "FUSD", 18, vault)

	if tok.Mint(holder, nil) {
		t.Fatal("nil amount minted")
	}
	if tok.Mint(holder, big.NewInt(0)) {
		t.Fatal("zero amount minted")
	}
	if tok.Mint(holder, big.NewInt(-5)) {
		t.Fatal("negative amount minted")
	}
}

func TestTransferFromMovesBalance(t *testing.T) {
	state := newMockLedgerState()
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	alice := makeAddress(crypto.AccountPrefix, 0x02)
	bob := makeAddress(crypto.AccountPrefix, 0x03)
	tok := NewToken(state, "WETH", 18, vault)
	tok.Mint(alice, big.NewInt(100))

	if !tok.TransferFrom(alice, bob, big.NewInt(60)) {
		t.Fatal("transfer failed")
	}
	aliceBal, _ := tok.BalanceOf(alice)
	bobBal, _ := tok.BalanceOf(bob)
	if aliceBal.Cmp(big.NewInt(40)) != 0 || bobBal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected balances: alice=%s bob=%s", aliceBal, bobBal)
	}

	if tok.TransferFrom(alice, bob, big.NewInt(41)) {
		t.Fatal("overdraft transfer succeeded")
	}
}

func TestTransferPushesFromCustody(t *testing.T) {
	state := newMockLedgerState()
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	holder := makeAddress(crypto.AccountPrefix, 0x02)
	tok := NewToken(state, "WETH", 18, vault)
	tok.Mint(vault, big.NewInt(100))

	if !tok.Transfer(holder, big.NewInt(30)) {
		t.Fatal("custody push failed")
	}
	vaultBal, _ := tok.BalanceOf(vault)
	holderBal, _ := tok.BalanceOf(holder)
	if vaultBal.Cmp(big.NewInt(70)) != 0 || holderBal.Cmp(big.NewInt(30)) != 0 {
		t.Fatalf("unexpected balances: vault=%s holder=%s", vaultBal, holderBal)
	}
}

func TestSelfTransferIsNoop(t *testing.T) {
	state := newMockLedgerState()
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	alice := makeAddress(crypto.AccountPrefix, 0x02)
	tok := NewToken(state, "WETH", 18, vault)
	tok.Mint(alice, big.NewInt(100))

	if !tok.TransferFrom(alice, alice, big.NewInt(50)) {
		t.Fatal("self transfer rejected")
	}
	balance, _ := tok.BalanceOf(alice)
	if balance.Cmp(big.NewInt(100)) != 0 {
		t.Fatalf("self transfer changed balance: %s", balance)
	}
}

func TestBurnDestroysCustodyBalance(t *testing.T) {
	state := newMockLedgerState()
	vault := makeAddress(crypto.VaultPrefix, 0x01)
	tok := NewToken(state, "FUSD", 18, vault)
	tok.Mint(vault, big.NewInt(100))

	if err := tok.Burn(big.NewInt(40)); err != nil {
		t.Fatalf("burn: %v", err)
	}
	supply, _ := tok.TotalSupply()
	if supply.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected supply after burn: %s", supply)
	}
	vaultBal, _ := tok.BalanceOf(vault)
	if vaultBal.Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("unexpected custody balance after burn: %s", vaultBal)
	}

	if err := tok.Burn(big.NewInt(61)); err == nil {
		t.Fatal("burn beyond custody succeeded")
	}
	if err := tok.Burn(big.NewInt(0)); err == nil {
		t.Fatal("zero burn succeeded")
	}
}
