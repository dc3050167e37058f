package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coreperf-io/coreperf/client/logger"
)

func testLogger() logger.Logger {
	log := logger.NewLogger(0)
	log.Silent(true)
	return log
}

// generateKeyPair returns a PKCS8 private key PEM and a PKIX public key PEM.
func generateKeyPair(t *testing.T, bits int) (*rsa.PrivateKey, []byte, []byte) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	require.NoError(t, err)

	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	require.NoError(t, err)

	privPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER})
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return priv, privPEM, pubPEM
}

func writeTempFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

// sealLegacyHybrid produces the layout written by older clients. Bytes 12..14
// of the IV are forced out of the new format's length range so detection is
// deterministic.
func sealLegacyHybrid(t *testing.T, pub *rsa.PublicKey, plaintext []byte) []byte {
	t.Helper()
	key := randomBytes(t, dataKeyLength)
	iv := randomBytes(t, legacyHybridIVSize)
	iv[12], iv[13] = 0xff, 0xff

	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	gcm, err := cipher.NewGCMWithNonceSize(block, legacyHybridIVSize)
	require.NoError(t, err)
	sealed := gcm.Seal(nil, iv, plaintext, nil)
	ciphertext, tag := sealed[:len(sealed)-gcmTagSize], sealed[len(sealed)-gcmTagSize:]

	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	require.NoError(t, err)

	blob := append([]byte{}, iv...)
	blob = append(blob, wrapped...)
	blob = append(blob, tag...)
	return append(blob, ciphertext...)
}

// sealLegacyPassword produces AES-ECB ciphertext with PKCS7 padding under the
// legacy key derivation.
func sealLegacyPassword(t *testing.T, password, plaintext []byte) []byte {
	t.Helper()
	pad := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte{}, plaintext...)
	for i := 0; i < pad; i++ {
		padded = append(padded, byte(pad))
	}
	return ecbEncrypt(t, password, padded)
}

func ecbEncrypt(t *testing.T, password, data []byte) []byte {
	t.Helper()
	require.Zero(t, len(data)%aes.BlockSize)
	key, err := legacyPasswordKey(password)
	require.NoError(t, err)
	block, err := aes.NewCipher(key)
	require.NoError(t, err)
	out := make([]byte, len(data))
	for i := 0; i < len(data); i += aes.BlockSize {
		block.Encrypt(out[i:i+aes.BlockSize], data[i:i+aes.BlockSize])
	}
	return out
}
