package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/accounts/keystore"
)

// The daemon's operator key is the single signing identity the node boots
// with; its public key derives the fvault custody address that holds pooled
// collateral. The key rests on disk as an Ethereum v3 keystore document so
// standard tooling can inspect or rotate it.

// SaveToKeystore encrypts the operator key under the passphrase and writes it
// to path as a v3 keystore document. The write goes through a scratch
// directory and a rename so an interrupted save never leaves a partially
// written operator key behind. Missing parent directories are created 0700
// and the final file is tightened to 0600.
func SaveToKeystore(path string, key *PrivateKey, passphrase string) error {
	if key == nil {
		return errors.New("crypto: operator key is nil")
	}
	if path == "" {
		return errors.New("crypto: operator keystore path is empty")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("crypto: create keystore directory: %w", err)
	}

	staging, err := os.MkdirTemp(dir, "operator-")
	if err != nil {
		return fmt.Errorf("crypto: create keystore staging directory: %w", err)
	}
	defer os.RemoveAll(staging)

	store := keystore.NewKeyStore(staging, keystore.StandardScryptN, keystore.StandardScryptP)
	if _, err := store.ImportECDSA(key.PrivateKey, passphrase); err != nil {
		return fmt.Errorf("crypto: encrypt operator key: %w", err)
	}

	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("crypto: list keystore staging directory: %w", err)
	}
	if len(entries) == 0 {
		return errors.New("crypto: keystore import produced no file")
	}
	encrypted := filepath.Join(staging, entries[0].Name())

	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("crypto: replace operator keystore: %w", err)
	}
	if err := os.Rename(encrypted, path); err != nil {
		return fmt.Errorf("crypto: move operator keystore into place: %w", err)
	}
	return os.Chmod(path, 0o600)
}

// LoadFromKeystore reads and decrypts the operator key at path. A wrong
// passphrase surfaces as a decryption error from the keystore package.
func LoadFromKeystore(path, passphrase string) (*PrivateKey, error) {
	if path == "" {
		return nil, errors.New("crypto: operator keystore path is empty")
	}
	document, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read operator keystore: %w", err)
	}
	decrypted, err := keystore.DecryptKey(document, passphrase)
	if err != nil {
		return nil, fmt.Errorf("crypto: decrypt operator key: %w", err)
	}
	return &PrivateKey{PrivateKey: decrypted.PrivateKey}, nil
}
