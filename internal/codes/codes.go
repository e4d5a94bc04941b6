// Package codes generates, formats, and hashes single-use backup codes.
//
// Codes use a 32-character alphabet with the lookalike characters 0, O, 1 and
// I removed. Only the SHA-256 hash of a canonicalized code is ever persisted;
// the hash is salted with the user ID so identical codes held by different
// users never collide in storage.
package codes

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
)

// Alphabet is the backup code character set.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// New returns a random backup code of length alphabet characters.
func New(length int) (string, error) {
	if length < 1 {
		return "", fmt.Errorf("codes: invalid length %d", length)
	}
	max := big.NewInt(int64(len(Alphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("codes: random source failed: %w", err)
		}
		b.WriteByte(Alphabet[idx.Int64()])
	}
	return b.String(), nil
}

// Format inserts a hyphen at the midpoint for display. Canonicalize undoes it.
func Format(code string) string {
	if len(code) < 4 {
		return code
	}
	mid := len(code) / 2
	return code[:mid] + "-" + code[mid:]
}

// Canonicalize uppercases a user-entered code and strips hyphens and spaces.
func Canonicalize(code string) string {
	code = strings.ToUpper(code)
	code = strings.ReplaceAll(code, "-", "")
	return strings.ReplaceAll(code, " ", "")
}

// Hash returns the storage hash of a canonical code, salted with the user ID.
func Hash(userID, canonical string) [32]byte {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0x00})
	h.Write([]byte(canonical))
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
