package goEnroll

import "context"

// AccountStatus defines a public type used by goEnroll APIs.
//
// AccountStatus instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type AccountStatus uint8

// Account lifecycle states recognized by the enrollment engine.
const (
	// AccountActive is an exported constant or variable used by the enrollment engine.
	AccountActive AccountStatus = iota

	// AccountPendingVerification is an exported constant or variable used by the enrollment engine.
	AccountPendingVerification

	// AccountDisabled is an exported constant or variable used by the enrollment engine.
	AccountDisabled

	// AccountLocked is an exported constant or variable used by the enrollment engine.
	AccountLocked

	// AccountDeleted is an exported constant or variable used by the enrollment engine.
	AccountDeleted
)

// UserRecord defines a public type used by goEnroll APIs.
//
// UserRecord instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type UserRecord struct {
	UserID      string
	Identifier  string
	TenantID    string
	Status      AccountStatus
	TOTPEnabled bool
}

// TOTPRecord defines a public type used by goEnroll APIs.
//
// TOTPRecord instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type TOTPRecord struct {
	Secret          []byte
	Enabled         bool
	Verified        bool
	LastUsedCounter int64
}

// BackupCodeRecord defines a public type used by goEnroll APIs.
//
// BackupCodeRecord instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type BackupCodeRecord struct {
	Hash [32]byte
	Used bool
}

// UserProvider defines a public type used by goEnroll APIs.
//
// UserProvider is the persistence contract the host application implements.
// The engine never stores user rows itself; it only stores short-lived
// pending enrollment records in Redis. Implementations must be safe for
// concurrent use.
type UserProvider interface {
	// GetUserByID returns the user record, or ErrUserNotFound.
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)

	// GetTOTPSecret returns the stored TOTP material for a user, or nil when
	// none is configured.
	GetTOTPSecret(ctx context.Context, userID string) (*TOTPRecord, error)

	// EnableTOTP persists the confirmed secret and flips enrollment on. The
	// write must be atomic with respect to other EnableTOTP calls for the
	// same user.
	EnableTOTP(ctx context.Context, userID string, secret []byte) error

	// DisableTOTP removes the stored secret and all backup codes.
	DisableTOTP(ctx context.Context, userID string) error

	// UpdateTOTPLastUsedCounter records the highest accepted time-step
	// counter for replay protection.
	UpdateTOTPLastUsedCounter(ctx context.Context, userID string, counter int64) error

	// ReplaceBackupCodes atomically swaps the full backup code set.
	ReplaceBackupCodes(ctx context.Context, userID string, codes []BackupCodeRecord) error

	// ConsumeBackupCode marks a matching unused code as used and reports
	// whether a match existed.
	ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
}

// EnrollmentBundle defines a public type used by goEnroll APIs.
//
// EnrollmentBundle carries everything the setup screen needs to render:
// the shared secret (base32), the otpauth provisioning URI for QR rendering,
// and the plaintext backup codes. Backup codes are shown exactly once;
// the engine only retains their hashes.
type EnrollmentBundle struct {
	EnrollmentID string
	Secret       string
	QRImageRef   string
	BackupCodes  []string
	ExpiresAt    int64
}
