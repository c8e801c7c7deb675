// Package biogate wraps the platform biometric/passcode prompt behind a single
// "is the current user still the authenticated owner" check with a short
// validity window.
package biogate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Biometry is the kind of biometric hardware available on the device.
type Biometry string

const (
	BiometryNone        Biometry = "none"
	BiometryFingerprint Biometry = "fingerprint"
	BiometryFace        Biometry = "face"
)

// DenialKind is the taxonomy of authentication failures surfaced to the UI
// layer. Each platform failure code maps 1:1 onto a case.
type DenialKind int

const (
	DenialUserCancelled DenialKind = iota
	DenialUserFallback  // user chose fallback-to-passcode
	DenialSystemCancelled
	DenialPasscodeNotSet
	DenialNotAvailable
	DenialNotEnrolled
	DenialLockedOut
	DenialOther // catch-all, carries the underlying platform error
)

func (k DenialKind) String() string {
	switch k {
	case DenialUserCancelled:
		return "user cancelled"
	case DenialUserFallback:
		return "user chose passcode fallback"
	case DenialSystemCancelled:
		return "system cancelled"
	case DenialPasscodeNotSet:
		return "passcode not set"
	case DenialNotAvailable:
		return "biometry not available"
	case DenialNotEnrolled:
		return "biometry not enrolled"
	case DenialLockedOut:
		return "biometry locked out"
	default:
		return "other"
	}
}

// PromptError is a denied authentication attempt.
type PromptError struct {
	Kind DenialKind
	Err  error // underlying platform error, set at least for DenialOther
}

func (e *PromptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("biometric denied: %s: %v", e.Kind, e.Err)
	}
	return "biometric denied: " + e.Kind.String()
}

func (e *PromptError) Unwrap() error { return e.Err }

// Prompter is the platform collaborator behind the gate.
type Prompter interface {
	// Available reports whether a biometric prompt can be presented, and the
	// biometry kind.
	Available() (bool, Biometry)
	// Authenticate presents the biometric prompt with a human-readable
	// justification. A denial is a *PromptError.
	Authenticate(ctx context.Context, reason string) error
	// AuthenticateWithPasscode presents the device-passcode prompt. This is a
	// distinct operation, not a parameter of Authenticate.
	AuthenticateWithPasscode(ctx context.Context, reason string) error
}

// DefaultGraceWindow is how long a successful authentication stays valid.
const DefaultGraceWindow = 5 * time.Minute

// Gate tracks the authenticated state with a grace window so repeated checks
// shortly after a success do not re-prompt.
type Gate struct {
	mu       sync.Mutex
	prompter Prompter
	window   time.Duration
	now      func() time.Time

	authenticated bool
	lastSuccess   time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithGraceWindow overrides the validity window.
func WithGraceWindow(d time.Duration) Option {
	return func(g *Gate) { g.window = d }
}

// WithClock injects the time source (tests).
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// NewGate builds a Gate over the platform prompter.
func NewGate(prompter Prompter, opts ...Option) *Gate {
	g := &Gate{prompter: prompter, window: DefaultGraceWindow, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g
}

// CheckAvailability reports whether the device can present a biometric
// prompt and which kind.
func (g *Gate) CheckAvailability() (bool, Biometry) {
	return g.prompter.Available()
}

// Authenticate returns nil when the user is (still) the authenticated owner.
// Within the grace window after a success it returns without prompting. A
// failed attempt does not advance state and does not revoke a still-valid
// window from a prior success.
func (g *Gate) Authenticate(ctx context.Context, reason string) error {
	if g.withinGrace() {
		return nil
	}
	if err := g.prompter.Authenticate(ctx, reason); err != nil {
		return err
	}
	g.markSuccess()
	return nil
}

// AuthenticateWithPasscode is the passcode fallback path. Success advances
// the same grace window.
func (g *Gate) AuthenticateWithPasscode(ctx context.Context, reason string) error {
	if g.withinGrace() {
		return nil
	}
	if err := g.prompter.AuthenticateWithPasscode(ctx, reason); err != nil {
		return err
	}
	g.markSuccess()
	return nil
}

// IsAuthenticated reports whether a success is still inside the grace window.
func (g *Gate) IsAuthenticated() bool { return g.withinGrace() }

// Reset revokes the authenticated state. Called explicitly and when
// biometrics are disabled in settings; never implicitly by a failed check.
func (g *Gate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authenticated = false
	g.lastSuccess = time.Time{}
}

func (g *Gate) withinGrace() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated && g.now().Sub(g.lastSuccess) < g.window
}

func (g *Gate) markSuccess() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.authenticated = true
	g.lastSuccess = g.now()
}
