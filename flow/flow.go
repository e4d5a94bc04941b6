package flow

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// codeLength is the authenticator code size accepted by Submit.
const codeLength = 6

// State defines a public type used by goEnroll APIs.
//
// State instances are intended to be configured during initialization and then
// treated as immutable unless documented otherwise.
type State uint8

// Setup flow states. A flow only ever moves Setup -> Verify -> Complete, with
// a single back edge Verify -> Setup.
const (
	// StateSetup is an exported constant or variable used by the enrollment engine.
	StateSetup State = iota

	// StateVerify is an exported constant or variable used by the enrollment engine.
	StateVerify

	// StateComplete is an exported constant or variable used by the enrollment engine.
	StateComplete
)

// String describes the string operation and its observable behavior.
func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateVerify:
		return "verify"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Sentinel errors returned by Flow methods. Backend implementations should
// return ErrInvalidCode and ErrTransientBackend (wrapped or bare); anything
// else is treated as transient.
var (
	// ErrTransientBackend is an exported constant or variable used by the enrollment engine.
	ErrTransientBackend = errors.New("backend temporarily unavailable")

	// ErrInvalidCode is an exported constant or variable used by the enrollment engine.
	ErrInvalidCode = errors.New("code rejected")

	// ErrValidation is an exported constant or variable used by the enrollment engine.
	ErrValidation = errors.New("input incomplete")

	// ErrInvalidTransition is an exported constant or variable used by the enrollment engine.
	ErrInvalidTransition = errors.New("operation not allowed in current state")

	// ErrRequestPending is an exported constant or variable used by the enrollment engine.
	ErrRequestPending = errors.New("another request is in flight")
)

// Material defines a public type used by goEnroll APIs.
//
// Material is what the setup screen renders: the shared secret for manual
// entry, a QR image reference (otpauth URI or image URL), and the one-time
// backup codes.
type Material struct {
	Secret      string
	QRImageRef  string
	BackupCodes []string
}

func cloneMaterial(m *Material) *Material {
	if m == nil {
		return nil
	}
	out := &Material{Secret: m.Secret, QRImageRef: m.QRImageRef}
	if len(m.BackupCodes) > 0 {
		out.BackupCodes = append([]string(nil), m.BackupCodes...)
	}
	return out
}

// Backend defines a public type used by goEnroll APIs.
//
// Backend is the server contract the flow drives. Both calls operate on an
// implicit authenticated session plus whatever enrollment handle the
// implementation holds internally; the flow never sees server identifiers.
type Backend interface {
	// IssueEnrollment provisions a new secret and returns render material.
	IssueEnrollment(ctx context.Context) (*Material, error)

	// ConfirmEnrollment submits the first authenticator code. A nil return
	// means two-factor is now active on the account.
	ConfirmEnrollment(ctx context.Context, code string) error
}

// Option defines a public type used by goEnroll APIs.
//
// Option configures a Flow at construction.
type Option func(*Flow)

// OnComplete describes the on complete operation and its observable behavior.
//
// The callback fires exactly once per flow, on the transition into
// StateComplete, after the lock is released.
func OnComplete(fn func()) Option {
	return func(f *Flow) { f.onComplete = fn }
}

// OnCancel describes the on cancel operation and its observable behavior.
//
// The callback fires at most once, when Cancel discards the session.
func OnCancel(fn func()) Option {
	return func(f *Flow) { f.onCancel = fn }
}

// Flow defines a public type used by goEnroll APIs.
//
// Flow is safe for concurrent use. At most one backend request is in flight
// at a time; mutating calls made while a request is pending fail with
// ErrRequestPending instead of queueing.
type Flow struct {
	mu      sync.Mutex
	backend Backend

	state     State
	material  *Material
	input     string
	busy      bool
	done      bool
	completed bool

	onComplete func()
	onCancel   func()
}

// New describes the new operation and its observable behavior.
func New(backend Backend, opts ...Option) *Flow {
	f := &Flow{backend: backend, state: StateSetup}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State describes the state operation and its observable behavior.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Busy reports whether a backend request is in flight.
func (f *Flow) Busy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.busy
}

// Material describes the material operation and its observable behavior.
//
// Material returns a copy of the issued render material, or nil before Begin
// succeeds. The material survives Back so returning to the setup screen never
// re-issues a secret.
func (f *Flow) Material() *Material {
	f.mu.Lock()
	defer f.mu.Unlock()
	return cloneMaterial(f.material)
}

// Input describes the input operation and its observable behavior.
func (f *Flow) Input() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// CanSubmit reports whether the verify screen holds a submittable code.
func (f *Flow) CanSubmit() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state == StateVerify && !f.busy && len(f.input) == codeLength
}

// Begin describes the begin operation and its observable behavior.
//
// Begin asks the backend for enrollment material while on the setup screen.
// Calling Begin again after material has been issued is a no-op, so the
// setup screen can be re-entered (via Back) without burning a new secret.
//
// Begin may return an error when input validation, dependency calls, or security checks fail.
func (f *Flow) Begin(ctx context.Context) error {
	f.mu.Lock()
	if f.done || f.state != StateSetup {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	if f.busy {
		f.mu.Unlock()
		return ErrRequestPending
	}
	if f.material != nil {
		f.mu.Unlock()
		return nil
	}
	f.busy = true
	f.mu.Unlock()

	material, err := f.backend.IssueEnrollment(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		return classifyBackendError(err)
	}
	if material == nil || material.Secret == "" {
		return fmt.Errorf("%w: backend returned no material", ErrTransientBackend)
	}
	f.material = cloneMaterial(material)
	return nil
}

// Next describes the next operation and its observable behavior.
//
// Next advances from the setup screen to the verify screen. It requires
// issued material; advancing before Begin succeeds is a transition error.
func (f *Flow) Next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done || f.state != StateSetup || f.material == nil {
		return ErrInvalidTransition
	}
	if f.busy {
		return ErrRequestPending
	}
	f.state = StateVerify
	return nil
}

// SetInput describes the set input operation and its observable behavior.
//
// SetInput replaces the code under entry on the verify screen. Anything that
// is not a digit string of at most six characters is rejected with
// ErrValidation and the previous input is kept.
func (f *Flow) SetInput(code string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done || f.state != StateVerify {
		return ErrInvalidTransition
	}
	if f.busy {
		return ErrRequestPending
	}
	if len(code) > codeLength || !isDigits(code) {
		return ErrValidation
	}
	f.input = code
	return nil
}

// Submit describes the submit operation and its observable behavior.
//
// Submit sends the entered code to the backend. An incomplete code fails
// locally with ErrValidation and never reaches the backend. A rejected code
// leaves the flow on the verify screen with the input intact so the user can
// correct it; success transitions to complete and fires the completion
// callback exactly once.
//
// Submit may return an error when input validation, dependency calls, or security checks fail.
func (f *Flow) Submit(ctx context.Context) error {
	f.mu.Lock()
	if f.done || f.state != StateVerify {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	if f.busy {
		f.mu.Unlock()
		return ErrRequestPending
	}
	if len(f.input) != codeLength {
		f.mu.Unlock()
		return ErrValidation
	}
	code := f.input
	f.busy = true
	f.mu.Unlock()

	err := f.backend.ConfirmEnrollment(ctx, code)

	f.mu.Lock()
	f.busy = false
	if err != nil {
		f.mu.Unlock()
		return classifyBackendError(err)
	}
	f.state = StateComplete
	cb := f.takeCompletionLocked()
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Back describes the back operation and its observable behavior.
//
// Back returns from the verify screen to the setup screen, clearing the
// entered code. The issued material is kept.
func (f *Flow) Back() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done || f.state != StateVerify {
		return ErrInvalidTransition
	}
	if f.busy {
		return ErrRequestPending
	}
	f.state = StateSetup
	f.input = ""
	return nil
}

// Cancel describes the cancel operation and its observable behavior.
//
// Cancel abandons the flow from the setup screen, discarding material and
// input. The backend is not called; the server expires the pending
// enrollment on its own. After Cancel the flow is finished and every method
// returns ErrInvalidTransition.
func (f *Flow) Cancel() error {
	f.mu.Lock()
	if f.done || f.state != StateSetup {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	if f.busy {
		f.mu.Unlock()
		return ErrRequestPending
	}
	f.done = true
	f.material = nil
	f.input = ""
	cb := f.onCancel
	f.onCancel = nil
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// Continue describes the continue operation and its observable behavior.
//
// Continue acknowledges the complete screen. The completion callback fires on
// the Submit transition, so Continue after that is a no-op kept for callers
// that dismiss the screen explicitly.
func (f *Flow) Continue() error {
	f.mu.Lock()
	if f.state != StateComplete {
		f.mu.Unlock()
		return ErrInvalidTransition
	}
	cb := f.takeCompletionLocked()
	f.mu.Unlock()

	if cb != nil {
		cb()
	}
	return nil
}

// takeCompletionLocked hands out the completion callback at most once.
func (f *Flow) takeCompletionLocked() func() {
	if f.completed {
		return nil
	}
	f.completed = true
	cb := f.onComplete
	f.onComplete = nil
	return cb
}

// classifyBackendError folds unknown backend failures into the transient
// class so callers only ever see the three documented sentinels.
func classifyBackendError(err error) error {
	if errors.Is(err, ErrInvalidCode) || errors.Is(err, ErrTransientBackend) || errors.Is(err, ErrValidation) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrTransientBackend, err)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
