package crypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "nested", "operator.keystore")

	if err := SaveToKeystore(path, key, "hunter2"); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("keystore permissions: got %o, want 600", perm)
	}

	loaded, err := LoadFromKeystore(path, "hunter2")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatal("loaded key differs from saved key")
	}
	if !loaded.PubKey().Address().Equal(key.PubKey().Address()) {
		t.Fatal("loaded key derives a different address")
	}
}

func TestKeystoreWrongPassphrase(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "operator.keystore")
	if err := SaveToKeystore(path, key, "correct"); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatal("wrong passphrase accepted")
	}
}

func TestKeystoreInputValidation(t *testing.T) {
	if err := SaveToKeystore(filepath.Join(t.TempDir(), "k"), nil, ""); err == nil {
		t.Fatal("nil key accepted")
	}
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if err := SaveToKeystore("", key, ""); err == nil {
		t.Fatal("empty path accepted on save")
	}
	if _, err := LoadFromKeystore("", ""); err == nil {
		t.Fatal("empty path accepted on load")
	}
}
