package crypto

import (
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
)

var ErrInvalidKey = errors.New("invalid key")

const identityPEMType = "LIBP2P PRIVATE KEY"

// GenerateIdentity generates a new Ed25519 libp2p identity key.
func GenerateIdentity() (p2pcrypto.PrivKey, error) {
	priv, _, err := p2pcrypto.GenerateEd25519Key(rand.Reader)
	return priv, err
}

// ExportIdentityPEM exports an identity key to PEM format
func ExportIdentityPEM(key p2pcrypto.PrivKey) ([]byte, error) {
	raw, err := p2pcrypto.MarshalPrivateKey(key)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: identityPEMType, Bytes: raw}), nil
}

// ImportIdentityPEM imports an identity key from PEM format
func ImportIdentityPEM(pemData []byte) (p2pcrypto.PrivKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil || block.Type != identityPEMType {
		return nil, ErrInvalidKey
	}

	key, err := p2pcrypto.UnmarshalPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return key, nil
}

// SaveKeyToFile saves a PEM encoded key to file
func SaveKeyToFile(filename string, pemData []byte) error {
	return os.WriteFile(filename, pemData, 0600)
}

// LoadKeyFromFile loads a PEM encoded key from file
func LoadKeyFromFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

// LoadOrGenerateIdentity reads the identity key at path, creating and
// saving a new one when the file does not exist. The bool reports whether
// a key was generated.
func LoadOrGenerateIdentity(path string) (p2pcrypto.PrivKey, bool, error) {
	pemData, err := LoadKeyFromFile(path)
	if err == nil {
		key, err := ImportIdentityPEM(pemData)
		return key, false, err
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, false, err
	}

	key, err := GenerateIdentity()
	if err != nil {
		return nil, false, err
	}
	pemData, err = ExportIdentityPEM(key)
	if err != nil {
		return nil, false, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, false, err
	}
	if err := SaveKeyToFile(path, pemData); err != nil {
		return nil, false, err
	}
	return key, true, nil
}
