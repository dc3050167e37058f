package encryption

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/binary"

	"github.com/google/tink/go/aead/subtle"

	"github.com/coreperf-io/coreperf/client/errs"
	"github.com/coreperf-io/coreperf/client/logger"
)

// errDecryptionFailed is returned for every key unwrap or tag verification
// failure so callers cannot tell a wrong key from tampered data.
var errDecryptionFailed = errs.New(errs.Encryption, "decryption failed")

type hybridDecoder func(priv *rsa.PrivateKey, blob []byte) ([]byte, error)

// HybridEncryptor encrypts files for a holder of an RSA private key. A fresh
// AES-256 data key is generated per call, used once, wrapped with RSA-OAEP
// (SHA-256) and discarded.
type HybridEncryptor struct {
	log      logger.Logger
	decoders map[WireFormat]hybridDecoder
}

// NewHybridEncryptor returns a HybridEncryptor that reports through log.
func NewHybridEncryptor(log logger.Logger) *HybridEncryptor {
	return &HybridEncryptor{
		log: log,
		decoders: map[WireFormat]hybridDecoder{
			FormatNewHybrid:    openHybrid,
			FormatLegacyHybrid: openLegacyHybrid,
		},
	}
}

// EncryptInPlace replaces the file at path with its encryption under the PEM
// encoded RSA public key. The plaintext file no longer exists afterwards.
func (h *HybridEncryptor) EncryptInPlace(publicKeyPEM []byte, path string) error {
	pub, err := ParsePublicKey(publicKeyPEM)
	if err != nil {
		return err
	}
	plaintext, err := readFile(path)
	if err != nil {
		return err
	}
	blob, err := h.Seal(pub, plaintext)
	if err != nil {
		return err
	}
	if err := replaceFile(path, blob); err != nil {
		return err
	}
	h.log.Debugf("Encrypted %s (%d bytes, format=%s)", path, len(blob), FormatNewHybrid)
	return nil
}

// DecryptInPlace replaces the file at path with its decryption under the PEM
// encoded RSA private key. Both the new and the legacy layout are accepted.
func (h *HybridEncryptor) DecryptInPlace(privateKeyPEM []byte, path string) error {
	priv, err := ParsePrivateKey(privateKeyPEM)
	if err != nil {
		return err
	}
	blob, err := readFile(path)
	if err != nil {
		return err
	}
	plaintext, err := h.Open(priv, blob)
	if err != nil {
		return err
	}
	return replaceFile(path, plaintext)
}

// Seal encrypts plaintext into the new hybrid layout.
func (h *HybridEncryptor) Seal(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	if size := pub.Size(); size < minWrappedKeyLen || size > maxWrappedKeyLen {
		return nil, errs.New(errs.Encryption, "unsupported RSA key size: %d bits", size*8)
	}

	key := make([]byte, dataKeyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to generate data key")
	}
	defer zeroBytes(key)

	aead, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to create cipher")
	}
	// iv | ciphertext | tag
	sealed, err := aead.Encrypt(plaintext, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to encrypt data")
	}

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, key, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to wrap data key")
	}

	blob := make([]byte, 0, len(sealed)+2+len(wrappedKey))
	blob = append(blob, sealed[:gcmIVSize]...)
	blob = binary.BigEndian.AppendUint16(blob, uint16(len(wrappedKey)))
	blob = append(blob, wrappedKey...)
	blob = append(blob, sealed[gcmIVSize:]...)
	return blob, nil
}

// Open detects the layout of blob and decrypts it.
func (h *HybridEncryptor) Open(priv *rsa.PrivateKey, blob []byte) ([]byte, error) {
	format, err := DetectHybridFormat(blob)
	if err != nil {
		return nil, err
	}
	decode, ok := h.decoders[format]
	if !ok {
		return nil, errs.New(errs.Encryption, "unrecognized wire format %s", format)
	}
	if format.Legacy() {
		h.log.Warnf("Decrypting %s data; this format is deprecated", format)
	}
	return decode(priv, blob)
}

func openHybrid(priv *rsa.PrivateKey, blob []byte) ([]byte, error) {
	if len(blob) < newHybridHeaderSize {
		return nil, errs.New(errs.Encryption, "file too small")
	}
	keyLen := int(binary.BigEndian.Uint16(blob[wrappedKeyLenOffset:newHybridHeaderSize]))
	keyEnd := newHybridHeaderSize + keyLen
	if len(blob) < keyEnd+gcmTagSize {
		return nil, errs.New(errs.Encryption, "file too small")
	}

	key, err := rsa.DecryptOAEP(sha256.New(), nil, priv, blob[newHybridHeaderSize:keyEnd], nil)
	if err != nil {
		return nil, errDecryptionFailed
	}
	defer zeroBytes(key)

	aead, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, errDecryptionFailed
	}
	sealed := make([]byte, 0, gcmIVSize+len(blob)-keyEnd)
	sealed = append(sealed, blob[:gcmIVSize]...)
	sealed = append(sealed, blob[keyEnd:]...)
	plaintext, err := aead.Decrypt(sealed, nil)
	if err != nil {
		return nil, errDecryptionFailed
	}
	return plaintext, nil
}
