package goEnroll

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

type mockProvider struct {
	mu     sync.Mutex
	users  map[string]UserRecord
	totp   map[string]*TOTPRecord
	backup map[string][]BackupCodeRecord

	enableCalls  int
	replaceCalls int
	disableCalls int

	failEnable error
}

func newMockProvider() *mockProvider {
	return &mockProvider{
		users: map[string]UserRecord{
			"u-1": {UserID: "u-1", Identifier: "alice@example.com", Status: AccountActive},
			"u-2": {UserID: "u-2", Identifier: "bob@example.com", Status: AccountActive},
		},
		totp:   map[string]*TOTPRecord{},
		backup: map[string][]BackupCodeRecord{},
	}
}

func (p *mockProvider) GetUserByID(_ context.Context, userID string) (UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[userID]
	if !ok {
		return UserRecord{}, ErrUserNotFound
	}
	return u, nil
}

func (p *mockProvider) GetTOTPSecret(_ context.Context, userID string) (*TOTPRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.totp[userID]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (p *mockProvider) EnableTOTP(_ context.Context, userID string, secret []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enableCalls++
	if p.failEnable != nil {
		return p.failEnable
	}
	p.totp[userID] = &TOTPRecord{Secret: secret, Enabled: true, Verified: true}
	u := p.users[userID]
	u.TOTPEnabled = true
	p.users[userID] = u
	return nil
}

func (p *mockProvider) DisableTOTP(_ context.Context, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableCalls++
	delete(p.totp, userID)
	delete(p.backup, userID)
	u := p.users[userID]
	u.TOTPEnabled = false
	p.users[userID] = u
	return nil
}

func (p *mockProvider) UpdateTOTPLastUsedCounter(_ context.Context, userID string, counter int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.totp[userID]; ok {
		rec.LastUsedCounter = counter
	}
	return nil
}

func (p *mockProvider) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCodeRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replaceCalls++
	p.backup[userID] = append([]BackupCodeRecord(nil), codes...)
	return nil
}

func (p *mockProvider) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.backup[userID] {
		rec := &p.backup[userID][i]
		if !rec.Used && rec.Hash == hash {
			rec.Used = true
			return true, nil
		}
	}
	return false, nil
}

func newTestEngine(t *testing.T, mutate func(*Config)) (*Engine, *mockProvider) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Audit.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	provider := newMockProvider()
	engine, err := New().
		WithConfig(cfg).
		WithRedis(newTestRedis(t)).
		WithUserProvider(provider).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine, provider
}

// codeForBundle derives the currently valid authenticator code from an
// issued bundle's base32 secret.
func codeForBundle(t *testing.T, e *Engine, bundle *EnrollmentBundle) string {
	t.Helper()
	secret, err := base32NoPad.DecodeString(bundle.Secret)
	if err != nil {
		t.Fatalf("decode bundle secret: %v", err)
	}
	return codeForSecret(e, secret, 0)
}

func codeForSecret(e *Engine, secret []byte, stepOffset int64) string {
	counter := time.Now().Unix()/int64(e.config.TOTP.Period) + stepOffset
	return e.totp.hotpCode(secret, counter)
}

// invalidCodeFor returns a six-digit code that is valid for no counter in the
// configured skew window.
func invalidCodeFor(e *Engine, secret []byte) string {
	valid := map[string]bool{}
	for off := -int64(e.config.TOTP.Skew); off <= int64(e.config.TOTP.Skew); off++ {
		valid[codeForSecret(e, secret, off)] = true
	}
	candidates := []string{"000000", "111111", "222222", "333333", "444444", "555555"}
	for _, c := range candidates {
		if !valid[c] {
			return c
		}
	}
	return "999999"
}

func mustBegin(t *testing.T, e *Engine, userID string) *EnrollmentBundle {
	t.Helper()
	bundle, err := e.BeginEnrollment(context.Background(), userID)
	if err != nil {
		t.Fatalf("begin enrollment: %v", err)
	}
	return bundle
}

func TestBeginEnrollmentIssuesBundle(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	bundle := mustBegin(t, e, "u-1")

	if bundle.EnrollmentID == "" {
		t.Fatal("expected enrollment id")
	}
	if bundle.Secret == "" {
		t.Fatal("expected base32 secret")
	}
	if !strings.HasPrefix(bundle.QRImageRef, "otpauth://totp/") {
		t.Fatalf("unexpected provisioning uri %q", bundle.QRImageRef)
	}
	if !strings.Contains(bundle.QRImageRef, "alice@example.com") {
		t.Fatalf("uri should carry the account label, got %q", bundle.QRImageRef)
	}
	if got := len(bundle.BackupCodes); got != e.config.Enrollment.BackupCodeCount {
		t.Fatalf("backup codes = %d, want %d", got, e.config.Enrollment.BackupCodeCount)
	}
	for _, code := range bundle.BackupCodes {
		if !strings.Contains(code, "-") {
			t.Fatalf("backup code %q not display formatted", code)
		}
	}
	if bundle.ExpiresAt <= time.Now().Unix() {
		t.Fatal("bundle should expire in the future")
	}
}

func TestBeginEnrollmentReissueInvalidatesPrevious(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()

	first := mustBegin(t, e, "u-1")
	second := mustBegin(t, e, "u-1")
	if first.EnrollmentID == second.EnrollmentID {
		t.Fatal("expected distinct enrollment ids")
	}

	// Only the newest pending secret is confirmable.
	err := e.ConfirmEnrollment(ctx, "u-1", first.EnrollmentID, codeForBundle(t, e, first))
	if !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("first confirm err = %v, want ErrEnrollmentNotFound", err)
	}
	if err := e.ConfirmEnrollment(ctx, "u-1", second.EnrollmentID, codeForBundle(t, e, second)); err != nil {
		t.Fatalf("second confirm: %v", err)
	}
}

func TestBeginEnrollmentRejectsEnrolledUser(t *testing.T) {
	e, provider := newTestEngine(t, nil)
	u := provider.users["u-1"]
	u.TOTPEnabled = true
	provider.users["u-1"] = u

	if _, err := e.BeginEnrollment(context.Background(), "u-1"); !errors.Is(err, ErrAlreadyEnrolled) {
		t.Fatalf("err = %v, want ErrAlreadyEnrolled", err)
	}
}

func TestBeginEnrollmentUnknownUser(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	if _, err := e.BeginEnrollment(context.Background(), "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestBeginEnrollmentAccountStatus(t *testing.T) {
	e, provider := newTestEngine(t, nil)
	u := provider.users["u-1"]
	u.Status = AccountLocked
	provider.users["u-1"] = u

	if _, err := e.BeginEnrollment(context.Background(), "u-1"); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("err = %v, want ErrAccountLocked", err)
	}
}

func TestBeginEnrollmentDisabled(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) { c.Enrollment.Enabled = false })
	if _, err := e.BeginEnrollment(context.Background(), "u-1"); !errors.Is(err, ErrEnrollmentDisabled) {
		t.Fatalf("err = %v, want ErrEnrollmentDisabled", err)
	}
}

func TestConfirmEnrollmentSuccess(t *testing.T) {
	e, provider := newTestEngine(t, nil)
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")

	code := codeForBundle(t, e, bundle)
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, code); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if provider.enableCalls != 1 {
		t.Fatalf("EnableTOTP calls = %d, want 1", provider.enableCalls)
	}
	if provider.replaceCalls != 1 {
		t.Fatalf("ReplaceBackupCodes calls = %d, want 1", provider.replaceCalls)
	}
	rec := provider.totp["u-1"]
	if rec == nil || !rec.Enabled || !rec.Verified {
		t.Fatalf("totp record not promoted: %+v", rec)
	}
	if rec.LastUsedCounter == 0 {
		t.Fatal("confirmation code should seed the replay counter")
	}

	// The pending record is consumed; the same code cannot confirm twice.
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, code); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("second confirm err = %v, want ErrEnrollmentNotFound", err)
	}
}

func TestConfirmEnrollmentInvalidCode(t *testing.T) {
	e, provider := newTestEngine(t, nil)
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")

	secret, err := base32NoPad.DecodeString(bundle.Secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, invalidCodeFor(e, secret)); !errors.Is(err, ErrCodeInvalid) {
		t.Fatalf("err = %v, want ErrCodeInvalid", err)
	}
	if provider.enableCalls != 0 {
		t.Fatal("failed confirmation must not enable totp")
	}

	// A correct code still works afterwards; the record survives a miss.
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, codeForBundle(t, e, bundle)); err != nil {
		t.Fatalf("confirm after miss: %v", err)
	}
}

func TestConfirmEnrollmentAttemptsExceeded(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.Enrollment.MaxAttempts = 3
		c.Enrollment.ConfirmMaxAttempts = 100
	})
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")

	secret, err := base32NoPad.DecodeString(bundle.Secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	bad := invalidCodeFor(e, secret)

	for i := 0; i < 2; i++ {
		if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, bad); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("attempt %d err = %v, want ErrCodeInvalid", i+1, err)
		}
	}
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, bad); !errors.Is(err, ErrEnrollmentAttempts) {
		t.Fatalf("final attempt err = %v, want ErrEnrollmentAttempts", err)
	}

	// Cap destroys the record; even the right code is too late.
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, codeForBundle(t, e, bundle)); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("post-cap err = %v, want ErrEnrollmentNotFound", err)
	}
}

func TestConfirmEnrollmentRateLimited(t *testing.T) {
	e, _ := newTestEngine(t, func(c *Config) {
		c.Enrollment.MaxAttempts = 100
		c.Enrollment.ConfirmMaxAttempts = 2
	})
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")

	secret, err := base32NoPad.DecodeString(bundle.Secret)
	if err != nil {
		t.Fatalf("decode secret: %v", err)
	}
	bad := invalidCodeFor(e, secret)

	for i := 0; i < 2; i++ {
		if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, bad); !errors.Is(err, ErrCodeInvalid) {
			t.Fatalf("attempt %d err = %v, want ErrCodeInvalid", i+1, err)
		}
	}
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, bad); !errors.Is(err, ErrEnrollmentRateLimited) {
		t.Fatalf("err = %v, want ErrEnrollmentRateLimited", err)
	}
}

func TestConfirmEnrollmentWrongUser(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")

	code := codeForBundle(t, e, bundle)
	if err := e.ConfirmEnrollment(ctx, "u-2", bundle.EnrollmentID, code); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("err = %v, want ErrEnrollmentNotFound", err)
	}
}

func TestConfirmEnrollmentUnknownID(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	err := e.ConfirmEnrollment(context.Background(), "u-1", "does-not-exist", "123456")
	if !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("err = %v, want ErrEnrollmentNotFound", err)
	}
}

func TestConfirmEnrollmentEmptyCode(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	bundle := mustBegin(t, e, "u-1")
	err := e.ConfirmEnrollment(context.Background(), "u-1", bundle.EnrollmentID, "")
	if !errors.Is(err, ErrCodeRequired) {
		t.Fatalf("err = %v, want ErrCodeRequired", err)
	}
}

func TestCancelEnrollment(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")

	if err := e.CancelEnrollment(ctx, "u-1", bundle.EnrollmentID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, codeForBundle(t, e, bundle)); !errors.Is(err, ErrEnrollmentNotFound) {
		t.Fatalf("confirm after cancel err = %v, want ErrEnrollmentNotFound", err)
	}

	// Cancelling again, or cancelling garbage, stays quiet.
	if err := e.CancelEnrollment(ctx, "u-1", bundle.EnrollmentID); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if err := e.CancelEnrollment(ctx, "u-1", "never-existed"); err != nil {
		t.Fatalf("cancel unknown: %v", err)
	}
}

func TestCancelEnrollmentWrongUserKeepsRecord(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")

	if err := e.CancelEnrollment(ctx, "u-2", bundle.EnrollmentID); err != nil {
		t.Fatalf("cancel as other user: %v", err)
	}
	if err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, codeForBundle(t, e, bundle)); err != nil {
		t.Fatalf("owner confirm should still work: %v", err)
	}
}

func TestBeginEnrollmentMetrics(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	mustBegin(t, e, "u-1")

	snap := e.MetricsSnapshot()
	if snap.Counters[MetricEnrollmentIssued.String()] != 1 {
		t.Fatalf("issued counter = %d, want 1", snap.Counters[MetricEnrollmentIssued.String()])
	}
}

func TestNilEngineAccessors(t *testing.T) {
	var e *Engine
	if snap := e.MetricsSnapshot(); len(snap.Counters) != 0 || len(snap.Histograms) != 0 {
		t.Fatal("nil engine should snapshot empty")
	}
	if e.AuditDropped() != 0 {
		t.Fatal("nil engine should report zero drops")
	}
	e.Close()
}

func TestProviderFailureIsUnavailable(t *testing.T) {
	e, provider := newTestEngine(t, nil)
	ctx := context.Background()
	bundle := mustBegin(t, e, "u-1")
	provider.failEnable = errors.New("db down")

	err := e.ConfirmEnrollment(ctx, "u-1", bundle.EnrollmentID, codeForBundle(t, e, bundle))
	if !errors.Is(err, ErrEnrollmentUnavailable) {
		t.Fatalf("err = %v, want ErrEnrollmentUnavailable", err)
	}
}
