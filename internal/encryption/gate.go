// Package encryption wraps document bytes at rest with Fernet tokens. Several
// keys may be configured: the first one encrypts, every key is tried when
// decrypting, so keys can be rotated without re-encrypting stored blobs.
package encryption

import (
	"errors"
	"fmt"
	"time"

	"github.com/fernet/fernet-go"
)

var (
	// ErrNoKeys is returned when a Gate is built without any key.
	ErrNoKeys = errors.New("encryption: at least one key is required")
	// ErrInvalidToken means no configured key could verify the ciphertext.
	ErrInvalidToken = errors.New("encryption: invalid or unknown token")
)

// Stored documents never expire.
const noExpiry time.Duration = -1

// Gate encrypts and decrypts document contents. It holds no mutable state and
// is safe for concurrent use.
type Gate struct {
	keys []*fernet.Key
}

// New builds a Gate from URL-safe base64 encoded 32-byte keys, newest first.
func New(encodedKeys ...string) (*Gate, error) {
	if len(encodedKeys) == 0 {
		return nil, ErrNoKeys
	}
	keys, err := fernet.DecodeKeys(encodedKeys...)
	if err != nil {
		return nil, fmt.Errorf("decode keys: %w", err)
	}
	return &Gate{keys: keys}, nil
}

// Encrypt seals plaintext with the primary key.
func (g *Gate) Encrypt(plaintext []byte) ([]byte, error) {
	tok, err := fernet.EncryptAndSign(plaintext, g.keys[0])
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return tok, nil
}

// Decrypt opens a token produced by this Gate or by any earlier primary key
// that is still configured.
func (g *Gate) Decrypt(token []byte) ([]byte, error) {
	msg := fernet.VerifyAndDecrypt(token, noExpiry, g.keys)
	if msg == nil {
		return nil, ErrInvalidToken
	}
	return msg, nil
}

// GenerateKey returns a fresh encoded key suitable for New.
func GenerateKey() (string, error) {
	var k fernet.Key
	if err := k.Generate(); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return k.Encode(), nil
}
