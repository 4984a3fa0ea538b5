package provider

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

// ParseHexKey parses a hex ECDSA private key (with / without 0x).
func ParseHexKey(s string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if h == "" {
		return nil, errors.New("empty private key")
	}
	key, err := crypto.HexToECDSA(h)
	if err != nil {
		return nil, fmt.Errorf("private key: %w", err)
	}
	return key, nil
}

// ParseHexKeys parses a comma separated list of keys; the first becomes the selected account.
func ParseHexKeys(csv string) ([]*ecdsa.PrivateKey, error) {
	var out []*ecdsa.PrivateKey
	for _, part := range strings.Split(csv, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		key, err := ParseHexKey(part)
		if err != nil {
			return nil, fmt.Errorf("key #%d: %w", len(out)+1, err)
		}
		out = append(out, key)
	}
	if len(out) == 0 {
		return nil, errors.New("empty private key")
	}
	return out, nil
}

// LoadKeystore decrypts a go-ethereum / MetaMask-compatible V3 keystore file.
func LoadKeystore(path string, password []byte) (*ecdsa.PrivateKey, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	k, err := keystore.DecryptKey(blob, string(password))
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return k.PrivateKey, nil
}
