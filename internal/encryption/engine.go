package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/rezonia/ksef-connector/internal/model"
)

// Sizes of the one-time document key material
const (
	DocumentKeySize = 32
	IVSize          = aes.BlockSize
)

// WrapSecret encrypts secret for the holder of publicKey using RSA-OAEP with
// SHA-256 and MGF1-SHA-256. The result is exactly the modulus size.
func WrapSecret(secret, publicKey []byte) ([]byte, error) {
	if len(secret) == 0 {
		return nil, model.NewInvalidInputError("secret", "must not be empty")
	}
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return nil, err
	}
	return wrap(secret, key)
}

func wrap(secret []byte, key *rsa.PublicKey) ([]byte, error) {
	if limit := MaxSecretSize(key); len(secret) > limit {
		return nil, model.NewEncryptionError("wrap",
			fmt.Sprintf("secret is %d bytes, at most %d fit a %d-bit key", len(secret), limit, key.N.BitLen()), nil)
	}
	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, key, secret, nil)
	if err != nil {
		return nil, model.NewEncryptionError("wrap", "RSA-OAEP encryption failed", err)
	}
	return out, nil
}

// EncryptDocument encrypts plaintext with a fresh AES-256 key and IV in CBC
// mode, then wraps the key with publicKey. Two calls never return the same
// envelope for the same input.
func EncryptDocument(plaintext, publicKey []byte) (model.EncryptedEnvelope, error) {
	if len(plaintext) == 0 {
		return model.EncryptedEnvelope{}, model.NewInvalidInputError("plaintext", "must not be empty")
	}
	key, err := ParsePublicKey(publicKey)
	if err != nil {
		return model.EncryptedEnvelope{}, err
	}

	docKey := make([]byte, DocumentKeySize)
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, docKey); err != nil {
		return model.EncryptedEnvelope{}, model.NewEncryptionError("document", "failed to generate key", err)
	}
	defer zero(docKey)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return model.EncryptedEnvelope{}, model.NewEncryptionError("document", "failed to generate IV", err)
	}

	ciphertext, err := encryptCBC(docKey, iv, plaintext)
	if err != nil {
		return model.EncryptedEnvelope{}, err
	}

	wrapped, err := wrap(docKey, key)
	if err != nil {
		return model.EncryptedEnvelope{}, err
	}

	return model.EncryptedEnvelope{
		CipherText: base64.StdEncoding.EncodeToString(ciphertext),
		WrappedKey: base64.StdEncoding.EncodeToString(wrapped),
		IV:         base64.StdEncoding.EncodeToString(iv),
	}, nil
}

// UnwrapSecret reverses WrapSecret with the matching private key
func UnwrapSecret(wrapped []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	out, err := rsa.DecryptOAEP(sha256.New(), nil, privateKey, wrapped, nil)
	if err != nil {
		return nil, model.NewEncryptionError("unwrap", "RSA-OAEP decryption failed", err)
	}
	return out, nil
}

// DecryptDocument reverses EncryptDocument with the matching private key
func DecryptDocument(env model.EncryptedEnvelope, privateKey *rsa.PrivateKey) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(env.CipherText)
	if err != nil {
		return nil, model.NewEncryptionError("decrypt", "cipher text is not base64", err)
	}
	wrapped, err := base64.StdEncoding.DecodeString(env.WrappedKey)
	if err != nil {
		return nil, model.NewEncryptionError("decrypt", "wrapped key is not base64", err)
	}
	iv, err := base64.StdEncoding.DecodeString(env.IV)
	if err != nil {
		return nil, model.NewEncryptionError("decrypt", "IV is not base64", err)
	}

	docKey, err := UnwrapSecret(wrapped, privateKey)
	if err != nil {
		return nil, err
	}
	defer zero(docKey)

	return decryptCBC(docKey, iv, ciphertext)
}

func encryptCBC(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, model.NewEncryptionError("document", "failed to create AES cipher", err)
	}
	padded := pad(plaintext, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return out, nil
}

func decryptCBC(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, model.NewEncryptionError("decrypt", "failed to create AES cipher", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, model.NewEncryptionError("decrypt", fmt.Sprintf("IV must be %d bytes", aes.BlockSize), nil)
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, model.NewEncryptionError("decrypt", "cipher text is not a whole number of blocks", nil)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return unpad(out, aes.BlockSize)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
