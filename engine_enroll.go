package goEnroll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/MrEthical07/goEnroll/internal/codes"
)

// BeginEnrollment describes the begin enrollment operation and its observable behavior.
//
// BeginEnrollment issues a fresh TOTP secret and backup code set for a user
// and stores a pending record under a new enrollment ID. The returned bundle
// is the only time plaintext backup codes are visible. Nothing on the user
// record changes until ConfirmEnrollment succeeds.
//
// BeginEnrollment may return an error when input validation, dependency calls, or security
// checks fail. It does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (e *Engine) BeginEnrollment(ctx context.Context, userID string) (*EnrollmentBundle, error) {
	if e == nil || !e.ready {
		return nil, ErrEngineNotReady
	}
	if !e.config.Enrollment.Enabled {
		return nil, ErrEnrollmentDisabled
	}
	if userID == "" {
		return nil, ErrUserNotFound
	}

	user, err := e.userProvider.GetUserByID(ctx, userID)
	if err != nil {
		e.metricInc(MetricEnrollmentIssueFailure)
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	if statusErr := accountStatusError(user.Status); statusErr != nil {
		e.metricInc(MetricEnrollmentIssueFailure)
		return nil, statusErr
	}
	if user.TOTPEnabled {
		e.metricInc(MetricEnrollmentIssueFailure)
		return nil, ErrAlreadyEnrolled
	}

	secret, err := e.totp.GenerateSecret()
	if err != nil {
		e.metricInc(MetricEnrollmentIssueFailure)
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	plainCodes, hashes, err := e.newBackupCodeSet(userID)
	if err != nil {
		e.metricInc(MetricEnrollmentIssueFailure)
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	enrollmentID := uuid.NewString()
	expiresAt := time.Now().Add(e.config.Enrollment.PendingTTL).Unix()
	rec := &pendingEnrollment{
		UserID:     userID,
		Secret:     secret,
		CodeHashes: hashes,
		ExpiresAt:  expiresAt,
	}
	tenantID := tenantIDFromContext(ctx)
	if err := e.pendingStore.Save(ctx, tenantID, enrollmentID, rec, e.config.Enrollment.PendingTTL); err != nil {
		e.metricInc(MetricEnrollmentIssueFailure)
		return nil, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	e.metricInc(MetricEnrollmentIssued)
	e.emitAudit(ctx, auditEnrollmentIssued, true, userID, enrollmentID, nil, nil)

	account := user.Identifier
	if account == "" {
		account = userID
	}
	return &EnrollmentBundle{
		EnrollmentID: enrollmentID,
		Secret:       e.totp.EncodeSecret(secret),
		QRImageRef:   e.totp.ProvisionURI(secret, account),
		BackupCodes:  plainCodes,
		ExpiresAt:    expiresAt,
	}, nil
}

// ConfirmEnrollment describes the confirm enrollment operation and its observable behavior.
//
// ConfirmEnrollment validates the first authenticator code against the pending
// secret. On success it promotes the secret and backup codes to the
// UserProvider, destroys the pending record, and resets the per-user limiter.
// Failed attempts count against both the per-enrollment cap and the per-user
// rate window.
//
// ConfirmEnrollment may return an error when input validation, dependency calls, or security
// checks fail. It does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (e *Engine) ConfirmEnrollment(ctx context.Context, userID, enrollmentID, code string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if !e.config.Enrollment.Enabled {
		return ErrEnrollmentDisabled
	}
	if userID == "" || enrollmentID == "" {
		return ErrEnrollmentNotFound
	}
	if code == "" {
		return ErrCodeRequired
	}

	start := time.Now()
	defer func() {
		e.metricObserve(MetricConfirmLatency, time.Since(start))
	}()

	tenantID := tenantIDFromContext(ctx)
	if err := e.confirmLimiter.Check(ctx, tenantID, userID); err != nil {
		if errors.Is(err, errCodeRateLimited) {
			e.emitRateLimit(ctx, userID, "confirm_enrollment")
			return ErrEnrollmentRateLimited
		}
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	rec, err := e.pendingStore.Get(ctx, tenantID, enrollmentID)
	if err != nil {
		return e.mapPendingStoreError(err)
	}
	if rec.UserID != userID {
		// Do not reveal that the ID exists under another user.
		return ErrEnrollmentNotFound
	}

	counter, ok := e.totp.VerifyCode(rec.Secret, code, time.Now())
	if !ok {
		return e.confirmFailed(ctx, tenantID, userID, enrollmentID)
	}

	if err := e.userProvider.EnableTOTP(ctx, userID, rec.Secret); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	if e.config.TOTP.EnforceReplayProtection {
		if err := e.userProvider.UpdateTOTPLastUsedCounter(ctx, userID, counter); err != nil {
			return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
		}
	}
	if len(rec.CodeHashes) > 0 {
		records := make([]BackupCodeRecord, len(rec.CodeHashes))
		for i, h := range rec.CodeHashes {
			records[i] = BackupCodeRecord{Hash: h}
		}
		if err := e.userProvider.ReplaceBackupCodes(ctx, userID, records); err != nil {
			return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
		}
	}

	if _, err := e.pendingStore.Delete(ctx, tenantID, enrollmentID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	if err := e.confirmLimiter.Reset(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	e.metricInc(MetricEnrollmentConfirmSuccess)
	e.emitAudit(ctx, auditEnrollmentConfirmed, true, userID, enrollmentID, nil, nil)
	return nil
}

// CancelEnrollment describes the cancel enrollment operation and its observable behavior.
//
// CancelEnrollment discards a pending enrollment. Cancelling an unknown or
// already-expired enrollment is not an error; the user record is untouched
// either way.
//
// CancelEnrollment may return an error when input validation, dependency calls, or security
// checks fail. It does not mutate shared global state and can be used concurrently when the
// receiver and dependencies are concurrently safe.
func (e *Engine) CancelEnrollment(ctx context.Context, userID, enrollmentID string) error {
	if e == nil || !e.ready {
		return ErrEngineNotReady
	}
	if !e.config.Enrollment.Enabled {
		return ErrEnrollmentDisabled
	}
	if userID == "" || enrollmentID == "" {
		return nil
	}

	tenantID := tenantIDFromContext(ctx)
	rec, err := e.pendingStore.Get(ctx, tenantID, enrollmentID)
	if errors.Is(err, errEnrollmentRecNotFound) || errors.Is(err, errEnrollmentRecExpired) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	if rec.UserID != userID {
		return nil
	}

	if _, err := e.pendingStore.Delete(ctx, tenantID, enrollmentID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
	e.metricInc(MetricEnrollmentCancelled)
	e.emitAudit(ctx, auditEnrollmentCancelled, true, userID, enrollmentID, nil, nil)
	return nil
}

// confirmFailed records a miss against both caps and classifies the result.
func (e *Engine) confirmFailed(ctx context.Context, tenantID, userID, enrollmentID string) error {
	e.metricInc(MetricEnrollmentConfirmFailure)

	if err := e.confirmLimiter.RecordFailure(ctx, tenantID, userID); err != nil {
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	err := e.pendingStore.RecordFailure(ctx, tenantID, enrollmentID, e.config.Enrollment.MaxAttempts)
	switch {
	case errors.Is(err, errEnrollmentRecExceeded):
		e.metricInc(MetricEnrollmentAttemptsExceeded)
		e.emitAudit(ctx, auditEnrollmentConfirmFailed, false, userID, enrollmentID, ErrEnrollmentAttempts, nil)
		return ErrEnrollmentAttempts
	case errors.Is(err, errEnrollmentRecNotFound), errors.Is(err, errEnrollmentRecExpired):
		return ErrEnrollmentNotFound
	case err != nil:
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	e.emitAudit(ctx, auditEnrollmentConfirmFailed, false, userID, enrollmentID, ErrCodeInvalid, nil)
	return ErrCodeInvalid
}

func (e *Engine) mapPendingStoreError(err error) error {
	switch {
	case errors.Is(err, errEnrollmentRecNotFound), errors.Is(err, errEnrollmentRecCorrupt):
		return ErrEnrollmentNotFound
	case errors.Is(err, errEnrollmentRecExpired):
		e.metricInc(MetricEnrollmentExpired)
		return ErrEnrollmentNotFound
	default:
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}
}

// newBackupCodeSet generates the configured number of codes, returning the
// display forms and the storage hashes in matching order.
func (e *Engine) newBackupCodeSet(userID string) ([]string, [][32]byte, error) {
	count := e.config.Enrollment.BackupCodeCount
	if count == 0 {
		return nil, nil, nil
	}
	plain := make([]string, count)
	hashes := make([][32]byte, count)
	for i := 0; i < count; i++ {
		code, err := codes.New(e.config.Enrollment.BackupCodeLength)
		if err != nil {
			return nil, nil, err
		}
		plain[i] = codes.Format(code)
		hashes[i] = codes.Hash(userID, code)
	}
	return plain, hashes, nil
}
