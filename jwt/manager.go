package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod defines a public type used by goEnroll APIs.
//
// SigningMethod instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type SigningMethod string

// Supported signing methods.
const (
	// MethodHS256 is an exported constant or variable used by the enrollment engine.
	MethodHS256 SigningMethod = "hs256"

	// MethodEd25519 is an exported constant or variable used by the enrollment engine.
	MethodEd25519 SigningMethod = "ed25519"
)

// Sentinel errors for token validation.
var (
	// ErrTokenInvalid is an exported constant or variable used by the enrollment engine.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrTokenExpired is an exported constant or variable used by the enrollment engine.
	ErrTokenExpired = errors.New("token expired")
)

// Config defines a public type used by goEnroll APIs.
//
// Config instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type Config struct {
	// Method selects HS256 (Secret) or Ed25519 (PrivateKey/PublicKey).
	Method SigningMethod

	// Secret is the HS256 key. Required for MethodHS256.
	Secret []byte

	// PrivateKey signs and PublicKey verifies for MethodEd25519. A
	// verify-only deployment may leave PrivateKey nil.
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey

	// AccessTTL is the token lifetime. Defaults to 15 minutes.
	AccessTTL time.Duration

	// Issuer and Audience are stamped on issued tokens and enforced on parse
	// when non-empty.
	Issuer   string
	Audience string

	// Leeway tolerates clock drift on time-based claims.
	Leeway time.Duration
}

// AccessClaims defines a public type used by goEnroll APIs.
//
// AccessClaims instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type AccessClaims struct {
	UID string `json:"uid"`
	TID string `json:"tid,omitempty"`
	jwt.RegisteredClaims
}

// Manager defines a public type used by goEnroll APIs.
//
// Manager is safe for concurrent use after NewManager returns.
type Manager struct {
	cfg    Config
	method jwt.SigningMethod
	parser *jwt.Parser
}

// NewManager describes the new manager operation and its observable behavior.
//
// NewManager may return an error when input validation, dependency calls, or security checks
// fail.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL < 0 {
		return nil, errors.New("jwt: access ttl must not be negative")
	}
	if cfg.AccessTTL == 0 {
		cfg.AccessTTL = 15 * time.Minute
	}

	var method jwt.SigningMethod
	switch cfg.Method {
	case MethodHS256:
		if len(cfg.Secret) < 32 {
			return nil, errors.New("jwt: hs256 secret must be at least 32 bytes")
		}
		method = jwt.SigningMethodHS256
	case MethodEd25519:
		if len(cfg.PublicKey) != ed25519.PublicKeySize {
			return nil, errors.New("jwt: ed25519 public key required")
		}
		method = jwt.SigningMethodEdDSA
	default:
		return nil, fmt.Errorf("jwt: unsupported signing method %q", cfg.Method)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{method.Alg()}),
		jwt.WithLeeway(cfg.Leeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{cfg: cfg, method: method, parser: jwt.NewParser(opts...)}, nil
}

// CreateAccess describes the create access operation and its observable behavior.
//
// CreateAccess may return an error when input validation, dependency calls, or security checks
// fail.
func (m *Manager) CreateAccess(uid, tid string) (string, error) {
	if uid == "" {
		return "", errors.New("jwt: uid required")
	}
	now := time.Now()
	claims := AccessClaims{
		UID: uid,
		TID: tid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    m.cfg.Issuer,
			Subject:   uid,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.cfg.AccessTTL)),
		},
	}
	if m.cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.cfg.Audience}
	}

	token := jwt.NewWithClaims(m.method, claims)
	signed, err := token.SignedString(m.signingKey())
	if err != nil {
		return "", fmt.Errorf("jwt: signing failed: %w", err)
	}
	return signed, nil
}

// ParseAccess describes the parse access operation and its observable behavior.
//
// ParseAccess may return an error when input validation, dependency calls, or security checks
// fail.
func (m *Manager) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	_, err := m.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return m.verifyKey(), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.UID == "" {
		return nil, fmt.Errorf("%w: missing uid claim", ErrTokenInvalid)
	}
	return claims, nil
}

func (m *Manager) signingKey() any {
	if m.cfg.Method == MethodEd25519 {
		return m.cfg.PrivateKey
	}
	return m.cfg.Secret
}

func (m *Manager) verifyKey() any {
	if m.cfg.Method == MethodEd25519 {
		return m.cfg.PublicKey
	}
	return m.cfg.Secret
}
