package encryption

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"

	"github.com/coreperf-io/coreperf/client/errs"
)

// ParsePublicKey decodes an RSA public key from a PEM block of type
// "PUBLIC KEY" (PKIX) or "RSA PUBLIC KEY" (PKCS1).
func ParsePublicKey(pemBytes []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.New(errs.Encryption, "malformed public key: no PEM block found")
	}
	switch block.Type {
	case "RSA PUBLIC KEY":
		key, err := x509.ParsePKCS1PublicKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.Encryption, err, "malformed public key")
		}
		return key, nil
	default:
		parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.Encryption, err, "malformed public key")
		}
		key, ok := parsed.(*rsa.PublicKey)
		if !ok {
			return nil, errs.New(errs.Encryption, "public key is %T, not RSA", parsed)
		}
		return key, nil
	}
}

// ParsePrivateKey decodes an RSA private key from a PEM block of type
// "PRIVATE KEY" (PKCS8) or "RSA PRIVATE KEY" (PKCS1).
func ParsePrivateKey(pemBytes []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, errs.New(errs.Encryption, "malformed private key: no PEM block found")
	}
	switch block.Type {
	case "RSA PRIVATE KEY":
		key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.Encryption, err, "malformed private key")
		}
		return key, nil
	default:
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, errs.Wrap(errs.Encryption, err, "malformed private key")
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, errs.New(errs.Encryption, "private key is %T, not RSA", parsed)
		}
		return key, nil
	}
}
