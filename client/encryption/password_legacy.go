package encryption

import (
	"crypto/aes"

	"golang.org/x/crypto/scrypt"

	"github.com/coreperf-io/coreperf/client/errs"
)

// scrypt parameters and salt of the legacy password format.
const (
	legacyScryptN = 16384
	legacyScryptR = 8
	legacyScryptP = 1
)

var legacyPasswordSalt = []byte("coreperf.results")

// openLegacyPassword decrypts AES-256-ECB ciphertext with PKCS7 padding under
// a key derived with a fixed salt.
//
// The legacy format is not authenticated. A wrong password or corrupted data
// is only detected when the final pad byte falls outside [1, 16]; otherwise
// garbage is returned.
//
// Deprecated: kept only to read result bundles produced by older backends.
func openLegacyPassword(password, blob []byte) ([]byte, error) {
	if len(blob) == 0 || len(blob)%aes.BlockSize != 0 {
		return nil, errs.New(errs.Encryption, "invalid legacy ciphertext length %d", len(blob))
	}
	key, err := legacyPasswordKey(password)
	if err != nil {
		return nil, err
	}
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to create cipher")
	}
	plaintext := make([]byte, len(blob))
	for i := 0; i < len(blob); i += aes.BlockSize {
		block.Decrypt(plaintext[i:i+aes.BlockSize], blob[i:i+aes.BlockSize])
	}
	return unpadPKCS7(plaintext)
}

func legacyPasswordKey(password []byte) ([]byte, error) {
	key, err := scrypt.Key(password, legacyPasswordSalt, legacyScryptN, legacyScryptR, legacyScryptP, dataKeyLength)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to derive key")
	}
	return key, nil
}

// unpadPKCS7 strips the padding indicated by the last byte. Only the range of
// the pad byte is checked.
func unpadPKCS7(data []byte) ([]byte, error) {
	pad := int(data[len(data)-1])
	if pad < 1 || pad > aes.BlockSize {
		return nil, errs.New(errs.Encryption, "invalid padding")
	}
	return data[:len(data)-pad], nil
}
