// Package encryption implements the primitives used by the authorization
// handshake and by document submission.
//
// WrapSecret seals a short secret for the Service with RSA-OAEP (SHA-256,
// MGF1-SHA-256). EncryptDocument encrypts a document with a one-time AES-256
// key in CBC mode with PKCS#7 padding and wraps that key with WrapSecret.
//
// Every function is pure apart from reading crypto/rand and is safe for
// concurrent use.
package encryption
