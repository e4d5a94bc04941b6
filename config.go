package goEnroll

import (
	"errors"
	"time"
)

// Config defines a public type used by goEnroll APIs.
//
// Config instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise. Build clones the config,
// so later mutation by the caller has no effect on a running Engine.
type Config struct {
	TOTP       TOTPConfig
	Enrollment EnrollmentConfig
	Audit      AuditConfig
	Metrics    MetricsConfig
}

// TOTPConfig defines a public type used by goEnroll APIs.
//
// TOTPConfig instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type TOTPConfig struct {
	// Issuer appears in the otpauth provisioning URI and authenticator apps.
	Issuer string

	// Digits is the OTP length. RFC 4226 permits 6 to 8.
	Digits int

	// Period is the time-step size in seconds.
	Period int

	// Algorithm is one of SHA1, SHA256, SHA512. SHA1 remains the default for
	// authenticator app compatibility.
	Algorithm string

	// Skew is how many adjacent time steps are accepted on either side of now.
	Skew int

	// EnforceReplayProtection rejects a code whose counter is not strictly
	// greater than the last accepted counter.
	EnforceReplayProtection bool

	// VerifyMaxAttempts and VerifyCooldown bound post-enrollment code checks
	// per user per window.
	VerifyMaxAttempts int
	VerifyCooldown    time.Duration
}

// EnrollmentConfig defines a public type used by goEnroll APIs.
//
// EnrollmentConfig instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type EnrollmentConfig struct {
	// Enabled gates the whole enrollment surface.
	Enabled bool

	// PendingTTL is how long an issued enrollment stays confirmable.
	PendingTTL time.Duration

	// MaxAttempts is the per-enrollment failed confirmation cap. The pending
	// record is destroyed when it is reached.
	MaxAttempts int

	// ConfirmMaxAttempts and ConfirmCooldown bound confirmation calls per
	// user per window, independent of any single enrollment record.
	ConfirmMaxAttempts int
	ConfirmCooldown    time.Duration

	// BackupCodeCount and BackupCodeLength shape the one-time recovery set
	// issued alongside the secret. BackupCodeLength counts alphabet
	// characters before display formatting.
	BackupCodeCount  int
	BackupCodeLength int

	// RedisPrefix namespaces all engine keys. Multi-tenant deployments
	// sharing a Redis must set distinct prefixes or distinct logical DBs.
	RedisPrefix string
}

// AuditConfig defines a public type used by goEnroll APIs.
//
// AuditConfig instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type AuditConfig struct {
	Enabled bool

	// BufferSize is the dispatcher queue depth.
	BufferSize int

	// DropIfFull selects drop-and-count over blocking when the queue is full.
	DropIfFull bool
}

// MetricsConfig defines a public type used by goEnroll APIs.
//
// MetricsConfig instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig describes the default config operation and its observable behavior.
//
// DefaultConfig returns a Config suitable for production use with a six-digit
// SHA1 TOTP profile, a ten-minute pending window, and audit plus metrics on.
func DefaultConfig() Config {
	return Config{
		TOTP: TOTPConfig{
			Issuer:                  "goEnroll",
			Digits:                  6,
			Period:                  30,
			Algorithm:               "SHA1",
			Skew:                    1,
			EnforceReplayProtection: true,
			VerifyMaxAttempts:       5,
			VerifyCooldown:          time.Minute,
		},
		Enrollment: EnrollmentConfig{
			Enabled:            true,
			PendingTTL:         10 * time.Minute,
			MaxAttempts:        5,
			ConfirmMaxAttempts: 10,
			ConfirmCooldown:    time.Minute,
			BackupCodeCount:    10,
			BackupCodeLength:   10,
			RedisPrefix:        "genr",
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
	}
}

// Validate describes the validate operation and its observable behavior.
//
// Validate may return an error when input validation, dependency calls, or security checks fail.
// Validate does not mutate shared global state and can be used concurrently when the receiver
// and dependencies are concurrently safe.
func (c Config) Validate() error {
	if c.TOTP.Issuer == "" {
		return errors.New("config: totp issuer required")
	}
	if c.TOTP.Digits < 6 || c.TOTP.Digits > 8 {
		return errors.New("config: totp digits must be between 6 and 8")
	}
	if c.TOTP.Period < 15 || c.TOTP.Period > 120 {
		return errors.New("config: totp period must be between 15s and 120s")
	}
	switch c.TOTP.Algorithm {
	case "SHA1", "SHA256", "SHA512":
	default:
		return errors.New("config: totp algorithm must be SHA1, SHA256 or SHA512")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 4 {
		return errors.New("config: totp skew must be between 0 and 4")
	}
	if c.TOTP.VerifyMaxAttempts < 1 {
		return errors.New("config: totp verify max attempts must be positive")
	}
	if c.TOTP.VerifyCooldown <= 0 {
		return errors.New("config: totp verify cooldown must be positive")
	}
	if c.Enrollment.Enabled {
		if c.Enrollment.PendingTTL < time.Minute {
			return errors.New("config: enrollment pending ttl must be at least 1m")
		}
		if c.Enrollment.MaxAttempts < 1 {
			return errors.New("config: enrollment max attempts must be positive")
		}
		if c.Enrollment.ConfirmMaxAttempts < 1 {
			return errors.New("config: enrollment confirm max attempts must be positive")
		}
		if c.Enrollment.ConfirmCooldown <= 0 {
			return errors.New("config: enrollment confirm cooldown must be positive")
		}
		if c.Enrollment.BackupCodeCount < 0 || c.Enrollment.BackupCodeCount > 32 {
			return errors.New("config: backup code count must be between 0 and 32")
		}
		if c.Enrollment.BackupCodeCount > 0 && (c.Enrollment.BackupCodeLength < 8 || c.Enrollment.BackupCodeLength > 24) {
			return errors.New("config: backup code length must be between 8 and 24")
		}
		if c.Enrollment.RedisPrefix == "" {
			return errors.New("config: enrollment redis prefix required")
		}
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("config: audit buffer size must be positive")
	}
	return nil
}

// cloneConfig copies the config so the engine owns its settings. Config holds
// no reference types, so a value copy is a deep copy.
func cloneConfig(c Config) Config {
	return c
}
