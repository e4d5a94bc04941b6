package goEnroll

import (
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Builder defines a public type used by goEnroll APIs.
//
// Builder collects dependencies and produces an immutable Engine. A Builder
// is single-use; Build returns an error on reuse.
type Builder struct {
	config       Config
	hasConfig    bool
	redis        *redis.Client
	userProvider UserProvider
	auditSink    AuditSink
	built        bool
}

// New describes the new operation and its observable behavior.
func New() *Builder {
	return &Builder{}
}

// WithConfig describes the with config operation and its observable behavior.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	b.hasConfig = true
	return b
}

// WithRedis describes the with redis operation and its observable behavior.
//
// The client is caller-owned; the engine never closes it.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithUserProvider describes the with user provider operation and its observable behavior.
func (b *Builder) WithUserProvider(p UserProvider) *Builder {
	b.userProvider = p
	return b
}

// WithAuditSink describes the with audit sink operation and its observable behavior.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build describes the build operation and its observable behavior.
//
// Build may return an error when input validation, dependency calls, or security checks fail.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder: already built")
	}
	if b.redis == nil {
		return nil, errors.New("builder: redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("builder: user provider required")
	}
	if !b.hasConfig {
		b.config = DefaultConfig()
	}
	if err := b.config.Validate(); err != nil {
		return nil, fmt.Errorf("builder: %w", err)
	}
	b.built = true

	cfg := b.config
	e := &Engine{
		config:       cfg,
		redis:        b.redis,
		userProvider: b.userProvider,
		totp:         newTOTPManager(cfg.TOTP),
		pendingStore: newPendingEnrollmentStore(b.redis, cfg.Enrollment.RedisPrefix),
		confirmLimiter: newCodeLimiter(b.redis, cfg.Enrollment.RedisPrefix, "cfl",
			cfg.Enrollment.ConfirmMaxAttempts, cfg.Enrollment.ConfirmCooldown),
		verifyLimiter: newCodeLimiter(b.redis, cfg.Enrollment.RedisPrefix, "vfl",
			cfg.TOTP.VerifyMaxAttempts, cfg.TOTP.VerifyCooldown),
		metrics: newMetrics(cfg.Metrics),
		ready:   true,
	}

	if cfg.Audit.Enabled {
		sink := b.auditSink
		if sink == nil {
			sink = NoOpSink{}
		}
		e.audit = newAuditDispatcher(sink, cfg.Audit.BufferSize, cfg.Audit.DropIfFull)
	}
	return e, nil
}
