package encryption

import (
	"bytes"

	"github.com/rezonia/ksef-connector/internal/model"
)

// pad applies PKCS#7 padding (identical to PKCS#5 for 16-byte blocks)
func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, model.NewEncryptionError("decrypt", "bad padding length", nil)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, model.NewEncryptionError("decrypt", "bad padding", nil)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, model.NewEncryptionError("decrypt", "bad padding", nil)
		}
	}
	return data[:len(data)-n], nil
}
