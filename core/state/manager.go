package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"fusd/core/types"
	"fusd/crypto"
	"fusd/native/synth"
	"fusd/storage"
)

const (
	accountKeyPrefix  = "acct/"
	positionKeyPrefix = "pos/"
	supplyKeyPrefix   = "supply/"
)

// Manager persists accounts, token supplies and engine positions in the
// configured key-value store using a JSON codec. It implements the state
// interfaces consumed by both the synth engine and the token ledgers.
type Manager struct {
	db storage.Database
}

func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

func accountKey(addr crypto.Address) []byte {
	return append([]byte(accountKeyPrefix), addr.Bytes()...)
}

func positionKey(addr crypto.Address) []byte {
	return append([]byte(positionKeyPrefix), addr.Bytes()...)
}

func supplyKey(symbol string) []byte {
	return []byte(supplyKeyPrefix + symbol)
}

// GetAccount loads the account for the address, returning an empty account
// when none is stored yet.
func (m *Manager) GetAccount(addr crypto.Address) (*types.Account, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state manager: database not configured")
	}
	raw, err := m.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{Balances: make(map[string]*big.Int)}, nil
	}
	if err != nil {
		return nil, err
	}
	acc := &types.Account{}
	if err := json.Unmarshal(raw, acc); err != nil {
		return nil, fmt.Errorf("state manager: decode account: %w", err)
	}
	if acc.Balances == nil {
		acc.Balances = make(map[string]*big.Int)
	}
	return acc, nil
}

func (m *Manager) PutAccount(addr crypto.Address, acc *types.Account) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager: database not configured")
	}
	if acc == nil {
		return fmt.Errorf("state manager: nil account")
	}
	raw, err := json.Marshal(acc)
	if err != nil {
		return fmt.Errorf("state manager: encode account: %w", err)
	}
	return m.db.Put(accountKey(addr), raw)
}

// GetSupply loads the outstanding supply for the token symbol, defaulting to
// zero.
func (m *Manager) GetSupply(symbol string) (*big.Int, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state manager: database not configured")
	}
	raw, err := m.db.Get(supplyKey(symbol))
	if errors.Is(err, storage.ErrNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	supply, ok := new(big.Int).SetString(string(raw), 10)
	if !ok {
		return nil, fmt.Errorf("state manager: corrupt supply record for %s", symbol)
	}
	return supply, nil
}

func (m *Manager) PutSupply(symbol string, supply *big.Int) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager: database not configured")
	}
	if supply == nil {
		supply = big.NewInt(0)
	}
	return m.db.Put(supplyKey(symbol), []byte(supply.String()))
}

// storedPosition is the persisted shape of a synth.Position. The address is
// flattened to raw bytes because the crypto.Address fields are unexported.
type storedPosition struct {
	Address    []byte              `json:"address"`
	Collateral map[string]*big.Int `json:"collateral"`
	Debt       *big.Int            `json:"debt"`
}

// GetPosition loads the engine position for the address. A nil position means
// the account has never interacted with the engine, which the engine treats
// the same as a zero-balance position.
func (m *Manager) GetPosition(addr crypto.Address) (*synth.Position, error) {
	if m == nil || m.db == nil {
		return nil, fmt.Errorf("state manager: database not configured")
	}
	raw, err := m.db.Get(positionKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	stored := &storedPosition{}
	if err := json.Unmarshal(raw, stored); err != nil {
		return nil, fmt.Errorf("state manager: decode position: %w", err)
	}
	if len(stored.Address) != crypto.AddressLength {
		return nil, fmt.Errorf("state manager: corrupt position record: address is %d bytes, want %d", len(stored.Address), crypto.AddressLength)
	}
	pos := &synth.Position{
		Address:    crypto.NewAddress(crypto.AccountPrefix, stored.Address),
		Collateral: stored.Collateral,
		Debt:       stored.Debt,
	}
	return pos, nil
}

func (m *Manager) PutPosition(pos *synth.Position) error {
	if m == nil || m.db == nil {
		return fmt.Errorf("state manager: database not configured")
	}
	if pos == nil {
		return fmt.Errorf("state manager: nil position")
	}
	stored := &storedPosition{
		Address:    pos.Address.Bytes(),
		Collateral: pos.Collateral,
		Debt:       pos.Debt,
	}
	raw, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("state manager: encode position: %w", err)
	}
	return m.db.Put(positionKey(pos.Address), raw)
}
