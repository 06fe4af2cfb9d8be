package chat

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

var ErrDecrypt = errors.New("cannot decrypt message")

// Cipher encrypts and decrypts message content with a per-conversation key
// derived from the two participant ids and a process-wide secret. Keys are
// never stored; both sides of a conversation recompute the same key because
// the ids are sorted before hashing. Rotating the secret makes all
// previously stored ciphertext unreadable.
type Cipher struct {
	secret string
}

func NewCipher(secret string) *Cipher {
	return &Cipher{secret: secret}
}

// deriveKey returns 32 bytes of key material, identical for (a,b) and (b,a).
func (c *Cipher) deriveKey(userA, userB int) [32]byte {
	lo, hi := userA, userB
	if lo > hi {
		lo, hi = hi, lo
	}
	return sha256.Sum256(fmt.Appendf([]byte(c.secret), "%d-%d", lo, hi))
}

// Encrypt seals plaintext (the empty string included) with AES-256-GCM and
// returns base64(nonce || ciphertext).
func (c *Cipher) Encrypt(plaintext string, userA, userB int) (string, error) {
	key := c.deriveKey(userA, userB)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It never panics on bad input: malformed
// ciphertext, a wrong key, or corruption all come back as ErrDecrypt so the
// caller can degrade per message instead of failing the request.
func (c *Cipher) Decrypt(ciphertext string, userA, userB int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecrypt
	}

	key := c.deriveKey(userA, userB)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(raw) < gcm.NonceSize() {
		return "", ErrDecrypt
	}
	nonce, sealed := raw[:gcm.NonceSize()], raw[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plaintext), nil
}
