package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/marcodd23/go-dal-core/pkg/secretx"
)

func testCrypto() *secretx.Crypto {
	return secretx.New(secretx.DefaultKeyResolver(), secretx.WithScryptCost(1<<10))
}

// TestEncryptRoundTrip encrypts with a literal key and decrypts the result back.
func TestEncryptRoundTrip(t *testing.T) {
	sealed, err := runEncrypt(testCrypto(), "server=db;password=secret", encryptOptions{keyRef: "passphrase"})
	require.NoError(t, err)
	assert.NotEmpty(t, sealed.CipherText)
	assert.Equal(t, "passphrase", sealed.EncryptionKey)

	opened, err := runEncrypt(testCrypto(), sealed.CipherText, encryptOptions{keyRef: "passphrase", decrypt: true})
	require.NoError(t, err)
	assert.Equal(t, "server=db;password=secret", opened.PlainText)
}

// TestEncryptStoresKey checks --store saves the passphrase and returns its keyring reference.
func TestEncryptStoresKey(t *testing.T) {
	keyring.MockInit()

	res, err := runEncrypt(testCrypto(), "secret", encryptOptions{store: "dal-test/sales", passphrase: "pw"})
	require.NoError(t, err)
	assert.Equal(t, "keyring:dal-test/sales", res.EncryptionKey)

	stored, err := keyring.Get("dal-test", "sales")
	require.NoError(t, err)
	assert.Equal(t, "pw", stored)

	plain, err := testCrypto().Decrypt(res.CipherText, res.EncryptionKey)
	require.NoError(t, err)
	assert.Equal(t, "secret", plain)
}

// TestEncryptNeedsKey checks a missing key reference is reported.
func TestEncryptNeedsKey(t *testing.T) {
	_, err := runEncrypt(testCrypto(), "secret", encryptOptions{})
	assert.Error(t, err)

	_, err = runEncrypt(testCrypto(), "secret", encryptOptions{store: "svc/user"})
	assert.Error(t, err)
}

// TestInputText reads the first stdin line when no argument is given.
func TestInputText(t *testing.T) {
	text, err := inputText(strings.NewReader("from-stdin\nignored\n"), nil)
	require.NoError(t, err)
	assert.Equal(t, "from-stdin", text)

	text, err = inputText(strings.NewReader(""), []string{"arg"})
	require.NoError(t, err)
	assert.Equal(t, "arg", text)

	_, err = inputText(strings.NewReader(""), nil)
	assert.Error(t, err)
}
