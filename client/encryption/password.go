package encryption

import (
	"crypto/rand"

	"github.com/google/tink/go/aead/subtle"
	"golang.org/x/crypto/scrypt"

	"github.com/coreperf-io/coreperf/client/errs"
	"github.com/coreperf-io/coreperf/client/logger"
)

// scrypt parameters of the new password format.
const (
	scryptN = 32768
	scryptR = 8
	scryptP = 1
)

var errWrongPassword = errs.New(errs.Encryption, "decryption failed (wrong password or corrupted data?)")

type passwordDecoder func(password, blob []byte) ([]byte, error)

// PasswordCipher encrypts files under a key derived from a password with
// scrypt. Result bundles are protected this way with the experiment's one-time
// password.
type PasswordCipher struct {
	log      logger.Logger
	decoders map[WireFormat]passwordDecoder
}

// NewPasswordCipher returns a PasswordCipher that reports through log.
func NewPasswordCipher(log logger.Logger) *PasswordCipher {
	return &PasswordCipher{
		log: log,
		decoders: map[WireFormat]passwordDecoder{
			FormatNewPassword:    openPassword,
			FormatLegacyPassword: openLegacyPassword,
		},
	}
}

// EncryptWithPassword replaces the file at path with its encryption under
// password.
func (p *PasswordCipher) EncryptWithPassword(path string, password []byte) error {
	plaintext, err := readFile(path)
	if err != nil {
		return err
	}
	blob, err := p.Seal(password, plaintext)
	if err != nil {
		return err
	}
	return replaceFile(path, blob)
}

// DecryptWithPassword replaces the file at path with its decryption under
// password. Both the new and the legacy layout are accepted.
func (p *PasswordCipher) DecryptWithPassword(path string, password []byte) error {
	blob, err := readFile(path)
	if err != nil {
		return err
	}
	plaintext, err := p.Open(password, blob)
	if err != nil {
		return err
	}
	if err := replaceFile(path, plaintext); err != nil {
		return err
	}
	p.log.Debugf("Decrypted %s (%d bytes)", path, len(plaintext))
	return nil
}

// Seal encrypts plaintext into the new password layout.
func (p *PasswordCipher) Seal(password, plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to generate salt")
	}
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, dataKeyLength)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to derive key")
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
	tagStart := len(sealed) - gcmTagSize

	blob := make([]byte, 0, saltSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, sealed[:gcmIVSize]...)
	blob = append(blob, sealed[tagStart:]...)
	blob = append(blob, sealed[gcmIVSize:tagStart]...)
	return blob, nil
}

// Open detects the layout of blob and decrypts it.
func (p *PasswordCipher) Open(password, blob []byte) ([]byte, error) {
	format := DetectPasswordFormat(blob)
	decode, ok := p.decoders[format]
	if !ok {
		return nil, errs.New(errs.Encryption, "unrecognized wire format %s", format)
	}
	if format.Legacy() {
		p.log.Warnf("Decrypting %s data; this format is deprecated", format)
	}
	return decode(password, blob)
}

func openPassword(password, blob []byte) ([]byte, error) {
	if len(blob) < newPasswordHeaderSize {
		return nil, errs.New(errs.Encryption, "file too small")
	}
	salt := blob[:saltSize]
	iv := blob[saltSize : saltSize+gcmIVSize]
	tag := blob[saltSize+gcmIVSize : newPasswordHeaderSize]
	ciphertext := blob[newPasswordHeaderSize:]

	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, dataKeyLength)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to derive key")
	}
	defer zeroBytes(key)

	aead, err := subtle.NewAESGCM(key)
	if err != nil {
		return nil, errs.Wrap(errs.Encryption, err, "failed to create cipher")
	}
	sealed := make([]byte, 0, gcmIVSize+len(ciphertext)+gcmTagSize)
	sealed = append(sealed, iv...)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)
	plaintext, err := aead.Decrypt(sealed, nil)
	if err != nil {
		return nil, errWrongPassword
	}
	return plaintext, nil
}
