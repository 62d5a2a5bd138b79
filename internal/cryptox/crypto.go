// Package cryptox implements the password-derived authenticated encryption
// used to protect per-user records: PBKDF2-HMAC-SHA256 key derivation and
// AES-256-GCM sealing.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"

	"github.com/dmitrijs2005/cloakvault/internal/common"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// DefaultIterations is the PBKDF2 work factor used when none is configured.
	DefaultIterations = 100_000
	// SaltSize is the length of the random salt generated for every encryption.
	SaltSize = 16
	// KeySize is the length of the derived key (AES-256).
	KeySize = 32
	// NonceSize is the AES-GCM nonce length prepended to every ciphertext.
	NonceSize = 12
)

// ErrInvalidInput is returned by DeriveKey for a malformed salt or work factor.
var ErrInvalidInput = errors.New("invalid key derivation input")

// DeriveKey turns a password and a 16-byte salt into a 32-byte symmetric key
// using PBKDF2 with HMAC-SHA256.
//
// The same (password, salt, iterations) always yields the same key. The only
// error path is malformed input: a salt that is not SaltSize bytes long or a
// non-positive iteration count.
//
// Example:
//
//	salt, _ := RandomBytes(SaltSize)
//	key, err := DeriveKey("correct horse", salt, DefaultIterations)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer Wipe(key)
func DeriveKey(password string, salt []byte, iterations int) ([]byte, error) {
	if len(salt) != SaltSize || iterations <= 0 {
		return nil, ErrInvalidInput
	}
	return deriveKey(password, salt, iterations), nil
}

func deriveKey(password string, salt []byte, iterations int) []byte {
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}

// Codec encrypts and decrypts text under a password-derived key. It holds no
// mutable state and is safe for concurrent use.
type Codec struct {
	iterations int
}

// NewCodec returns a Codec using the given PBKDF2 iteration count.
// Non-positive values fall back to DefaultIterations.
func NewCodec(iterations int) *Codec {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return &Codec{iterations: iterations}
}

// Iterations reports the PBKDF2 work factor of the codec.
func (c *Codec) Iterations() int { return c.iterations }

// Encrypt seals plaintext with a key derived from password.
//
// A new random salt and a new random GCM nonce are generated on every call, so
// encrypting the same plaintext twice never produces the same ciphertext. The
// returned ciphertext is nonce || AES-GCM output (which carries the
// authentication tag); only the ciphertext and the salt need to be stored.
//
// Parameters:
//   - plaintext: the text to protect.
//   - password: the secret the key is derived from. It is never stored.
//
// Returns:
//   - ciphertext: nonce followed by the sealed data and tag.
//   - salt: the SaltSize-byte salt required for decryption.
//   - err: non-nil only if the system random source fails.
func (c *Codec) Encrypt(plaintext, password string) (ciphertext, salt []byte, err error) {
	salt, err = RandomBytes(SaltSize)
	if err != nil {
		return nil, nil, err
	}

	key, err := DeriveKey(password, salt, c.iterations)
	if err != nil {
		return nil, nil, err
	}
	defer Wipe(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce, err := RandomBytes(aesgcm.NonceSize())
	if err != nil {
		return nil, nil, err
	}

	ciphertext = aesgcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return ciphertext, salt, nil
}

// Decrypt re-derives the key from password and the stored salt, verifies the
// authentication tag and returns the plaintext.
//
// Every failure, whether a wrong password, a tampered or truncated
// ciphertext, or a malformed salt, yields common.ErrDecryptionFailed with no
// partial output.
func (c *Codec) Decrypt(ciphertext []byte, password string, salt []byte) (string, error) {
	if len(ciphertext) < NonceSize {
		return "", common.ErrDecryptionFailed
	}

	key, err := DeriveKey(password, salt, c.iterations)
	if err != nil {
		return "", common.ErrDecryptionFailed
	}
	defer Wipe(key)

	aesgcm, err := newGCM(key)
	if err != nil {
		return "", common.ErrDecryptionFailed
	}

	nonce, sealed := ciphertext[:NonceSize], ciphertext[NonceSize:]
	plaintext, err := aesgcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", common.ErrDecryptionFailed
	}

	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// RandomBytes returns n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

// Wipe overwrites b with zeros. Derived keys are wiped as soon as they are no
// longer needed.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
