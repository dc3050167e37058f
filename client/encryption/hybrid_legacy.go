package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/coreperf-io/coreperf/client/errs"
)

// openLegacyHybrid decrypts the layout produced by clients that predate the
// current backend:
//
//	| iv (16) | wrapped key (RSA modulus size) | tag (16) | ciphertext |
//
// The wrapped key width is implied by the private key, so it has no length
// field.
//
// Deprecated: kept only to read packages written by older clients. Nothing
// produces this layout anymore.
func openLegacyHybrid(priv *rsa.PrivateKey, blob []byte) ([]byte, error) {
	keySize := priv.Size()
	headerSize := legacyHybridIVSize + keySize + gcmTagSize
	if len(blob) < headerSize {
		return nil, errs.New(errs.Encryption, "file too small for legacy format with a %d bit key", keySize*8)
	}
	iv := blob[:legacyHybridIVSize]
	wrappedKey := blob[legacyHybridIVSize : legacyHybridIVSize+keySize]
	tag := blob[legacyHybridIVSize+keySize : headerSize]
	ciphertext := blob[headerSize:]

	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, wrappedKey, nil)
	if err != nil {
		return nil, errDecryptionFailed
	}
	defer zeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errDecryptionFailed
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, legacyHybridIVSize)
	if err != nil {
		return nil, errDecryptionFailed
	}

	sealed := make([]byte, 0, len(ciphertext)+gcmTagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, errDecryptionFailed
	}
	return plaintext, nil
}
