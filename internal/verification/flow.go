// Package verification drives one-time-code entry: sending a code, enforcing
// the resend cooldown and expiry, and submitting what the user typed.
package verification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Code lengths used by the app.
const (
	OTPLength = 5
	PINLength = 4

	DefaultCooldown = 30 * time.Second
	DefaultTTL      = 5 * time.Minute
)

var (
	ErrCooldown     = errors.New("resend is cooling down")
	ErrInvalidCode  = errors.New("invalid code")
	ErrBusy         = errors.New("verification already in progress")
	ErrNotSent      = errors.New("no code has been sent")
	ErrExpired      = errors.New("code expired")
	ErrNoSender     = errors.New("flow has no sender")
	ErrAlreadyFinal = errors.New("code already verified")
)

// State is the position of a Flow in its lifecycle.
type State int

const (
	Idle State = iota
	Sent
	Verifying
	Verified
	Failed
	Expired
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sent:
		return "sent"
	case Verifying:
		return "verifying"
	case Verified:
		return "verified"
	case Failed:
		return "failed"
	case Expired:
		return "expired"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CooldownError carries the time left before another code may be sent.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("resend available in %ds", int(e.Remaining.Round(time.Second)/time.Second))
}

func (e *CooldownError) Is(target error) bool { return target == ErrCooldown }

// Sender delivers a new code to the user.
type Sender interface {
	Send(ctx context.Context) error
}

// Verifier checks a normalized code with the backend.
type Verifier interface {
	Verify(ctx context.Context, code string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context) error

func (f SenderFunc) Send(ctx context.Context) error { return f(ctx) }

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, code string) error

func (f VerifierFunc) Verify(ctx context.Context, code string) error { return f(ctx, code) }

// Option customizes a Flow.
type Option func(*Flow)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) { f.now = now }
}

// WithCooldown sets the minimum gap between sends.
func WithCooldown(d time.Duration) Option {
	return func(f *Flow) { f.cooldown = d }
}

// WithTTL sets how long a sent code stays valid. Zero disables expiry.
func WithTTL(d time.Duration) Option {
	return func(f *Flow) { f.ttl = d }
}

// Flow is safe for concurrent use. Network calls run outside the lock so a
// second tap observes ErrBusy instead of blocking.
type Flow struct {
	mu       sync.Mutex
	length   int
	sender   Sender
	verifier Verifier
	cooldown time.Duration
	ttl      time.Duration
	now      func() time.Time

	state  State
	sentAt time.Time
	busy   bool
}

// New builds a flow for codes of the given length. sender may be nil when the
// code is already known to the user (a PIN), in which case Verify is allowed
// from Idle.
func New(length int, sender Sender, verifier Verifier, opts ...Option) *Flow {
	f := &Flow{
		length:   length,
		sender:   sender,
		verifier: verifier,
		cooldown: DefaultCooldown,
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Remaining reports how long until Send is allowed again.
func (f *Flow) Remaining() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remainingLocked()
}

func (f *Flow) remainingLocked() time.Duration {
	if f.sentAt.IsZero() {
		return 0
	}
	left := f.cooldown - f.now().Sub(f.sentAt)
	if left < 0 {
		return 0
	}
	return left
}

// MarkSent records a code that was delivered outside the flow, such as the
// activation OTP issued by registration, and starts the cooldown.
func (f *Flow) MarkSent() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Idle {
		f.state = Sent
		f.sentAt = f.now()
	}
}

// Send requests a new code. The first send is always allowed; later ones
// wait out the cooldown.
func (f *Flow) Send(ctx context.Context) error {
	if f.sender == nil {
		return ErrNoSender
	}
	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	if f.state == Verified {
		f.mu.Unlock()
		return ErrAlreadyFinal
	}
	if left := f.remainingLocked(); left > 0 {
		f.mu.Unlock()
		return &CooldownError{Remaining: left}
	}
	f.busy = true
	f.mu.Unlock()

	err := f.sender.Send(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		return err
	}
	f.state = Sent
	f.sentAt = f.now()
	return nil
}

// Verify normalizes input and submits it. A failed attempt leaves the flow in
// Failed, from which another Verify is allowed.
func (f *Flow) Verify(ctx context.Context, input string) error {
	code, err := Normalize(input, f.length)
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.busy {
		f.mu.Unlock()
		return ErrBusy
	}
	switch f.state {
	case Verified:
		f.mu.Unlock()
		return ErrAlreadyFinal
	case Expired:
		f.mu.Unlock()
		return ErrExpired
	case Idle:
		if f.sender != nil {
			f.mu.Unlock()
			return ErrNotSent
		}
	}
	if f.sender != nil && f.ttl > 0 && f.now().Sub(f.sentAt) > f.ttl {
		f.state = Expired
		f.mu.Unlock()
		return ErrExpired
	}
	f.busy = true
	f.state = Verifying
	f.mu.Unlock()

	err = f.verifier.Verify(ctx, code)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.busy = false
	if err != nil {
		f.state = Failed
		return err
	}
	f.state = Verified
	return nil
}

// Normalize strips whitespace, rejects non-digits and truncates pasted input
// to length digits.
func Normalize(input string, length int) (string, error) {
	code := strings.Join(strings.Fields(input), "")
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", ErrInvalidCode
		}
	}
	if len(code) < length {
		return "", fmt.Errorf("%w: need %d digits", ErrInvalidCode, length)
	}
	return code[:length], nil
}
