// Package secretx encrypts connection strings and passwords at rest.
//
// Ciphertexts are base64 (std encoding) of
//
//	[1B version][16B salt][12B nonce][...AES-256-GCM ciphertext + tag]
//
// The AES key is derived from a passphrase with scrypt, the passphrase is found through a
// key reference (see KeyResolver).
package secretx

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/scrypt"

	"github.com/marcodd23/go-dal-core/pkg/dbx"
	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

const (
	formatVersion = byte(0x01)
	saltSize      = 16
	nonceSize     = 12
	keySize       = 32
	headerSize    = 1 + saltSize + nonceSize

	// DefaultScryptCost is the scrypt N parameter.
	DefaultScryptCost = 1 << 15
)

// Crypto implements dbx.CredentialCrypto with AES-256-GCM.
type Crypto struct {
	keys KeyResolver
	cost int
}

var _ dbx.CredentialCrypto = (*Crypto)(nil)

// Option configures a Crypto.
type Option func(*Crypto)

// WithScryptCost sets the scrypt N parameter, a power of two greater than 1.
func WithScryptCost(n int) Option {
	return func(c *Crypto) {
		c.cost = n
	}
}

// New returns a Crypto resolving key references with keys, DefaultKeyResolver when nil.
func New(keys KeyResolver, opts ...Option) *Crypto {
	if keys == nil {
		keys = DefaultKeyResolver()
	}

	c := &Crypto{keys: keys, cost: DefaultScryptCost}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Encrypt seals plainText with the passphrase referenced by key.
func (c *Crypto) Encrypt(plainText string, key string) (string, error) {
	passphrase, err := c.keys.Resolve(key)
	if err != nil {
		return "", err
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", errors.Wrap(err, "encrypt: generate salt")
	}

	gcm, err := c.aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.Wrap(err, "encrypt: generate nonce")
	}

	out := make([]byte, 0, headerSize+len(plainText)+gcm.Overhead())
	out = append(out, formatVersion)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, []byte(plainText), nil)

	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a value produced by Encrypt.
func (c *Crypto) Decrypt(cipherText string, key string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(cipherText)
	if err != nil {
		return "", errorx.NewConfigurationErrorWrapper(err, "decrypt: value is not base64")
	}

	if len(blob) < headerSize {
		return "", errorx.NewConfigurationError("decrypt: value too short: %d bytes", len(blob))
	}

	if blob[0] != formatVersion {
		return "", errorx.NewConfigurationError("decrypt: unsupported version: 0x%02x", blob[0])
	}

	passphrase, err := c.keys.Resolve(key)
	if err != nil {
		return "", err
	}

	salt := blob[1 : 1+saltSize]
	nonce := blob[1+saltSize : headerSize]

	gcm, err := c.aead(passphrase, salt)
	if err != nil {
		return "", err
	}

	plain, err := gcm.Open(nil, nonce, blob[headerSize:], nil)
	if err != nil {
		return "", errorx.NewConfigurationErrorWrapper(err, "decrypt: authentication failed (wrong key or corrupted data)")
	}

	return string(plain), nil
}

func (c *Crypto) aead(passphrase string, salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key([]byte(passphrase), salt, c.cost, 8, 1, keySize)
	if err != nil {
		return nil, errors.Wrap(err, "derive key")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "create cipher")
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "create GCM")
	}

	return gcm, nil
}
