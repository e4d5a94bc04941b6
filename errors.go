package goEnroll

import "errors"

// Sentinel errors returned by Engine methods. Callers are expected to classify
// failures with errors.Is; wrapped detail is for logs, not for matching.
var (
	// ErrEngineNotReady is an exported constant or variable used by the enrollment engine.
	ErrEngineNotReady = errors.New("engine not initialized")

	// ErrUserNotFound is an exported constant or variable used by the enrollment engine.
	ErrUserNotFound = errors.New("user not found")

	// ErrEnrollmentDisabled is an exported constant or variable used by the enrollment engine.
	ErrEnrollmentDisabled = errors.New("two-factor enrollment disabled")

	// ErrAlreadyEnrolled is an exported constant or variable used by the enrollment engine.
	ErrAlreadyEnrolled = errors.New("two-factor already enabled for user")

	// ErrEnrollmentNotFound is an exported constant or variable used by the enrollment engine.
	ErrEnrollmentNotFound = errors.New("pending enrollment not found or expired")

	// ErrEnrollmentAttempts is an exported constant or variable used by the enrollment engine.
	ErrEnrollmentAttempts = errors.New("pending enrollment attempts exceeded")

	// ErrEnrollmentRateLimited is an exported constant or variable used by the enrollment engine.
	ErrEnrollmentRateLimited = errors.New("confirmation attempts rate limited")

	// ErrEnrollmentUnavailable is an exported constant or variable used by the enrollment engine.
	ErrEnrollmentUnavailable = errors.New("enrollment backend unavailable")

	// ErrCodeRequired is an exported constant or variable used by the enrollment engine.
	ErrCodeRequired = errors.New("code required")

	// ErrCodeInvalid is an exported constant or variable used by the enrollment engine.
	ErrCodeInvalid = errors.New("code invalid")

	// ErrCodeReplayed is an exported constant or variable used by the enrollment engine.
	ErrCodeReplayed = errors.New("code already used")

	// ErrTOTPNotConfigured is an exported constant or variable used by the enrollment engine.
	ErrTOTPNotConfigured = errors.New("totp not configured for user")

	// ErrBackupCodeInvalid is an exported constant or variable used by the enrollment engine.
	ErrBackupCodeInvalid = errors.New("backup code invalid or already used")

	// ErrAccountUnverified is an exported constant or variable used by the enrollment engine.
	ErrAccountUnverified = errors.New("account pending verification")

	// ErrAccountDisabled is an exported constant or variable used by the enrollment engine.
	ErrAccountDisabled = errors.New("account disabled")

	// ErrAccountLocked is an exported constant or variable used by the enrollment engine.
	ErrAccountLocked = errors.New("account locked")

	// ErrAccountDeleted is an exported constant or variable used by the enrollment engine.
	ErrAccountDeleted = errors.New("account deleted")
)

// accountStatusError maps a non-active account status to its sentinel.
func accountStatusError(status AccountStatus) error {
	switch status {
	case AccountActive:
		return nil
	case AccountPendingVerification:
		return ErrAccountUnverified
	case AccountDisabled:
		return ErrAccountDisabled
	case AccountLocked:
		return ErrAccountLocked
	case AccountDeleted:
		return ErrAccountDeleted
	default:
		return ErrAccountDisabled
	}
}
