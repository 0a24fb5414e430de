// Package security contains everything related to the security of user data
package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"

	"golang.org/x/crypto/pbkdf2"
)

type PBKDF2Hash struct {
	Iterations int
	SaltLength int
	KeyLength  int
}

func New() *PBKDF2Hash {
	return &PBKDF2Hash{
		Iterations: 150000,
		SaltLength: 16,
		KeyLength:  32,
	}
}

// GenerateFromPassword derives a key from p with a fresh random salt. Both
// values are returned hex encoded, the way they are persisted.
func (h *PBKDF2Hash) GenerateFromPassword(p string) (salt, hash string, err error) {
	s, err := genRandByt(h.SaltLength)
	if err != nil {
		return "", "", err
	}

	key := pbkdf2.Key([]byte(p), s, h.Iterations, h.KeyLength, sha256.New)

	return hex.EncodeToString(s), hex.EncodeToString(key), nil
}

// VerifyPasswd compares a password p with the stored hex salt and hash
func (h *PBKDF2Hash) VerifyPasswd(p, salt, hash string) (ok bool, err error) {
	s, err := hex.DecodeString(salt)
	if err != nil {
		return false, errors.New("invalid salt encoding")
	}

	want, err := hex.DecodeString(hash)
	if err != nil {
		return false, errors.New("invalid hash encoding")
	}

	if len(want) == 0 {
		return false, errors.New("empty password hash")
	}

	got := pbkdf2.Key([]byte(p), s, h.Iterations, len(want), sha256.New)

	return subtle.ConstantTimeCompare(want, got) == 1, nil
}

func genRandByt(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}

	return b, nil
}
