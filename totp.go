package goEnroll

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"hash"
	"net/url"
	"strings"
	"time"
)

// totpSecretBytes is the raw shared secret size. 20 bytes matches RFC 4226's
// recommended minimum and encodes to 32 base32 characters.
const totpSecretBytes = 20

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// totpManager implements RFC 6238 generation and verification. It is
// stateless beyond its config snapshot and safe for concurrent use.
type totpManager struct {
	issuer    string
	digits    int
	period    int64
	algorithm string
	skew      int
}

func newTOTPManager(cfg TOTPConfig) *totpManager {
	return &totpManager{
		issuer:    cfg.Issuer,
		digits:    cfg.Digits,
		period:    int64(cfg.Period),
		algorithm: cfg.Algorithm,
		skew:      cfg.Skew,
	}
}

// GenerateSecret returns a fresh random shared secret.
func (t *totpManager) GenerateSecret() ([]byte, error) {
	secret := make([]byte, totpSecretBytes)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("totp: secret generation failed: %w", err)
	}
	return secret, nil
}

// EncodeSecret renders the secret as unpadded base32 for manual entry.
func (t *totpManager) EncodeSecret(secret []byte) string {
	return base32NoPad.EncodeToString(secret)
}

// ProvisionURI builds the otpauth:// URI consumed by authenticator apps.
// The label is issuer:account per the de facto key URI format.
func (t *totpManager) ProvisionURI(secret []byte, account string) string {
	params := url.Values{}
	params.Set("secret", t.EncodeSecret(secret))
	params.Set("issuer", t.issuer)
	params.Set("algorithm", t.algorithm)
	params.Set("digits", fmt.Sprintf("%d", t.digits))
	params.Set("period", fmt.Sprintf("%d", t.period))
	label := url.PathEscape(t.issuer) + ":" + url.PathEscape(account)
	return "otpauth://totp/" + label + "?" + params.Encode()
}

// VerifyCode checks a code against the secret within the configured skew
// window. On success it returns the matched time-step counter so the caller
// can enforce replay protection. Comparison is constant-time per candidate.
func (t *totpManager) VerifyCode(secret []byte, code string, at time.Time) (int64, bool) {
	if len(code) != t.digits || !isNumericString(code) {
		return 0, false
	}
	counter := at.Unix() / t.period
	for offset := -t.skew; offset <= t.skew; offset++ {
		candidate := counter + int64(offset)
		if candidate < 0 {
			continue
		}
		expected := t.hotpCode(secret, candidate)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(code)) == 1 {
			return candidate, true
		}
	}
	return 0, false
}

// hotpCode computes the RFC 4226 HOTP value for one counter.
func (t *totpManager) hotpCode(secret []byte, counter int64) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(t.hmacFunc(), secret)
	mac.Write(msg[:])
	sum := mac.Sum(nil)

	// Dynamic truncation per RFC 4226 section 5.3.
	off := sum[len(sum)-1] & 0x0f
	value := binary.BigEndian.Uint32(sum[off:off+4]) & 0x7fffffff

	mod := uint32(1)
	for i := 0; i < t.digits; i++ {
		mod *= 10
	}
	return fmt.Sprintf("%0*d", t.digits, value%mod)
}

func (t *totpManager) hmacFunc() func() hash.Hash {
	switch t.algorithm {
	case "SHA256":
		return sha256.New
	case "SHA512":
		return sha512.New
	default:
		return sha1.New
	}
}

func isNumericString(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return r < '0' || r > '9' }) == -1
}
