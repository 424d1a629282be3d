package encryption

import (
	"bytes"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"strings"

	"github.com/rezonia/ksef-connector/internal/model"
)

// ParsePublicKey parses the Service's RSA public key.
//
// Accepted encodings: DER SubjectPublicKeyInfo, DER X.509 certificate,
// PEM "PUBLIC KEY" or "CERTIFICATE" blocks, and base64 of either DER form.
func ParsePublicKey(data []byte) (*rsa.PublicKey, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, model.NewInvalidInputError("public key", "must not be empty")
	}

	if block, _ := pem.Decode(data); block != nil {
		if block.Type == "RSA PUBLIC KEY" {
			key, err := x509.ParsePKCS1PublicKey(block.Bytes)
			if err != nil {
				return nil, model.NewEncryptionError("parse", "invalid PKCS#1 public key", err)
			}
			return key, nil
		}
		return parseDER(block.Bytes)
	}

	if key, err := parseDER(data); err == nil {
		return key, nil
	}

	decoded, err := decodeBase64(string(data))
	if err != nil {
		return nil, model.NewEncryptionError("parse", "public key is neither DER, PEM nor base64", err)
	}
	return parseDER(decoded)
}

// parseDER tries SubjectPublicKeyInfo first, then a certificate
func parseDER(der []byte) (*rsa.PublicKey, error) {
	if pub, err := x509.ParsePKIXPublicKey(der); err == nil {
		return asRSA(pub)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, model.NewEncryptionError("parse", "public key is not an X.509 encoded key or certificate", err)
	}
	return asRSA(cert.PublicKey)
}

func asRSA(pub interface{}) (*rsa.PublicKey, error) {
	key, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, model.NewEncryptionError("parse", fmt.Sprintf("unsupported public key type %T", pub), nil)
	}
	return key, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// MaxSecretSize returns the largest secret WrapSecret accepts for key
func MaxSecretSize(key *rsa.PublicKey) int {
	return key.Size() - 2*sha256.Size - 2
}
