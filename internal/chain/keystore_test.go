package chain

import (
	"os"
	"path/filepath"
	"testing"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known throwaway key (hardhat account #0).
const testKeyHex = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "correct horse battery staple")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "correct horse battery staple")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestEncryptKeyAcceptsPrefix(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "pw")
	require.NoError(t, err)

	got, err := DecryptKey(blob, "pw")
	require.NoError(t, err)
	assert.Equal(t, testKeyHex, got)
}

func TestEncryptKeyRejectsBadInput(t *testing.T) {
	_, err := EncryptKey(testKeyHex, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password must not be empty")

	_, err = EncryptKey("zzzz", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid private key hex")

	_, err = EncryptKey("deadbeef", "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 32-byte key")
}

func TestDecryptKeyWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "right")
	require.NoError(t, err)

	_, err = DecryptKey(blob, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decryption failed")
}

func TestDecryptKeyRejectsBadBlob(t *testing.T) {
	_, err := DecryptKey([]byte("not json"), "pw")
	require.Error(t, err)

	_, err = DecryptKey([]byte(`{"version":99}`), "pw")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported keystore version")
}

func TestLoadKeyRaw(t *testing.T) {
	want, err := ethcrypto.HexToECDSA(testKeyHex)
	require.NoError(t, err)

	for _, raw := range []string{testKeyHex, "0x" + testKeyHex} {
		key, err := LoadKey(KeyConfig{RawPrivateKey: raw})
		require.NoError(t, err)
		assert.Equal(t, want.D, key.D)
	}
}

func TestLoadKeyEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "pw")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "key.json")
	require.NoError(t, os.WriteFile(path, blob, 0o600))

	key, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	require.NoError(t, err)
	assert.Equal(t, ethcrypto.PubkeyToAddress(key.PublicKey).Hex(),
		"0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
}

func TestLoadKeyNoSource(t *testing.T) {
	_, err := LoadKey(KeyConfig{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no private key source configured")
}

func TestLoadKeyRawWinsOverFile(t *testing.T) {
	// When both sources are set, the raw key is used and the file is never
	// read; a bogus path must not matter.
	key, err := LoadKey(KeyConfig{
		RawPrivateKey:    testKeyHex,
		EncryptedKeyPath: "/does/not/exist.json",
	})
	require.NoError(t, err)
	assert.NotNil(t, key)
}
