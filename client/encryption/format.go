// Package encryption implements the two ciphers used by an experiment
// submission: hybrid RSA-OAEP/AES-GCM encryption of the upload package and
// scrypt/AES-GCM password encryption of the result bundle. Each cipher reads
// both the current wire format and the legacy one; the format is detected from
// the leading bytes on every decrypt.
//
// New hybrid layout:
//
//	| iv (12) | wrapped key len (2, BE) | wrapped key | ciphertext | tag (16) |
//
// Legacy hybrid layout:
//
//	| iv (16) | wrapped key (RSA modulus size) | tag (16) | ciphertext |
//
// New password layout:
//
//	| salt (16) | iv (12) | tag (16) | ciphertext |
//
// Legacy password layout is raw AES-ECB ciphertext with PKCS7 padding.
package encryption

import (
	"encoding/binary"
	"fmt"

	"github.com/coreperf-io/coreperf/client/errs"
)

const (
	gcmIVSize  = 12
	gcmTagSize = 16

	// dataKeyLength is the AES-256 key size used by both ciphers.
	dataKeyLength = 32

	// Offsets of the wrapped key length in the new hybrid layout.
	wrappedKeyLenOffset = gcmIVSize
	newHybridHeaderSize = wrappedKeyLenOffset + 2

	// Plausible RSA ciphertext sizes, 1024 to 8192 bit moduli.
	minWrappedKeyLen = 128
	maxWrappedKeyLen = 1024

	legacyHybridIVSize = 16

	saltSize              = 16
	newPasswordHeaderSize = saltSize + gcmIVSize + gcmTagSize
)

// WireFormat identifies the layout of an encrypted blob.
type WireFormat uint8

const (
	// FormatUnknown is returned alongside a detection error.
	FormatUnknown WireFormat = iota
	// FormatLegacyHybrid is the deprecated RSA + AES-GCM (16 byte IV) layout.
	FormatLegacyHybrid
	// FormatNewHybrid is the RSA-OAEP + AES-256-GCM layout.
	FormatNewHybrid
	// FormatLegacyPassword is the deprecated scrypt + AES-ECB layout.
	FormatLegacyPassword
	// FormatNewPassword is the scrypt + AES-256-GCM layout.
	FormatNewPassword
)

func (f WireFormat) String() string {
	switch f {
	case FormatLegacyHybrid:
		return "legacy-hybrid"
	case FormatNewHybrid:
		return "hybrid"
	case FormatLegacyPassword:
		return "legacy-password"
	case FormatNewPassword:
		return "password"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(f))
	}
}

// Legacy reports whether f is one of the deprecated layouts.
func (f WireFormat) Legacy() bool {
	return f == FormatLegacyHybrid || f == FormatLegacyPassword
}

// DetectHybridFormat classifies a hybrid-encrypted blob. The big-endian uint16
// at offset 12 is read as a wrapped key length; a value in [128, 1024] means
// the new layout. Anything else is legacy when at least 16 bytes are present.
// A blob too short to hold the length field cannot be inspected and is
// treated as legacy.
//
// The heuristic can misclassify a legacy blob whose IV bytes 12..14 happen to
// fall in range. It is kept as is for wire compatibility.
func DetectHybridFormat(data []byte) (WireFormat, error) {
	if len(data) < newHybridHeaderSize {
		return FormatLegacyHybrid, nil
	}
	n := binary.BigEndian.Uint16(data[wrappedKeyLenOffset:newHybridHeaderSize])
	if n >= minWrappedKeyLen && n <= maxWrappedKeyLen {
		return FormatNewHybrid, nil
	}
	if len(data) >= legacyHybridIVSize {
		return FormatLegacyHybrid, nil
	}
	return FormatUnknown, errs.New(errs.Encryption, "file too small")
}

// DetectPasswordFormat classifies a password-encrypted blob by length alone:
// anything that can hold the salt, IV and tag header is the new layout.
func DetectPasswordFormat(data []byte) WireFormat {
	if len(data) >= newPasswordHeaderSize {
		return FormatNewPassword
	}
	return FormatLegacyPassword
}
