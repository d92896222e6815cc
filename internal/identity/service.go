package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/session"
	"github.com/medpass/medpass/internal/verification"
)

// OTPClient is the part of the API the login flow needs.
type OTPClient interface {
	RequestOTP(ctx context.Context, mobile string) (api.Ack, error)
	VerifyOTP(ctx context.Context, mobile, otp string) (session.Payload, error)
}

// Service manages login and logout against the session store.
type Service struct {
	client   OTPClient
	store    *session.Store
	notifier notification.Notifier
	logger   *slog.Logger
	flowOpts []verification.Option
}

// NewService creates a new identity service. flowOpts tune the OTP flow
// (cooldown, expiry, clock).
func NewService(client OTPClient, store *session.Store, notifier notification.Notifier, logger *slog.Logger, flowOpts ...verification.Option) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}
	return &Service{client: client, store: store, notifier: notifier, logger: logger, flowOpts: flowOpts}
}

// Login is one in-progress OTP login for a mobile number.
type Login struct {
	svc    *Service
	mobile string
	flow   *verification.Flow
}

// Begin validates the mobile number, requests the first OTP and returns the
// login to submit the code against. A non-200 answer to the OTP request is
// surfaced as a notice but does not stop the login, so the user can still
// enter a code that arrived.
func (s *Service) Begin(ctx context.Context, rawMobile string) (*Login, error) {
	mobile, err := NormalizeMobile(rawMobile)
	if err != nil {
		return nil, err
	}
	l := &Login{svc: s, mobile: mobile}
	l.flow = verification.New(verification.OTPLength,
		verification.SenderFunc(l.send),
		verification.VerifierFunc(l.verify),
		s.flowOpts...,
	)
	if err := l.flow.Send(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

// Mobile returns the normalized mobile number.
func (l *Login) Mobile() string { return l.mobile }

// State returns the OTP flow state.
func (l *Login) State() verification.State { return l.flow.State() }

// ResendIn reports how long until another code may be requested.
func (l *Login) ResendIn() time.Duration { return l.flow.Remaining() }

// Resend requests another OTP once the cooldown has passed.
func (l *Login) Resend(ctx context.Context) error { return l.flow.Send(ctx) }

// Submit verifies code and stores the resulting session.
func (l *Login) Submit(ctx context.Context, code string) (*session.Session, error) {
	if l == nil || l.flow == nil {
		return nil, ErrLoginNotStarted
	}
	if err := l.flow.Verify(ctx, code); err != nil {
		return nil, err
	}
	sess := l.svc.store.Get(ctx)
	if !sess.Usable() {
		return nil, ErrSessionNotSaved
	}
	return sess, nil
}

func (l *Login) send(ctx context.Context) error {
	ack, err := l.svc.client.RequestOTP(ctx, l.mobile)
	var se *api.StatusError
	switch {
	case errors.As(err, &se):
		l.svc.logger.Warn("otp request rejected", "mobile", logging.MaskMobile(l.mobile), "status", se.Status)
		l.svc.notify(ctx, notification.KindServerError, api.UserMessage(err, "Could not send OTP."))
		return nil
	case err != nil:
		return fmt.Errorf("request otp: %w", err)
	}
	body := ack.Message.String()
	if body == "" {
		body = "OTP sent to your mobile number."
	}
	l.svc.notify(ctx, notification.KindOTPSent, body)
	return nil
}

func (l *Login) verify(ctx context.Context, code string) error {
	p, err := l.svc.client.VerifyOTP(ctx, l.mobile, code)
	if err != nil {
		l.svc.notify(ctx, notification.KindServerError, api.UserMessage(err, "Invalid OTP."))
		return err
	}
	if p.Token == "" || p.UserID == "" {
		return ErrNoToken
	}
	if !l.svc.store.Save(ctx, p, l.mobile) {
		return ErrSessionNotSaved
	}
	l.svc.logger.Info("login completed", "user_id", p.UserID.String(), "mobile", logging.MaskMobile(l.mobile))
	return nil
}

// Current returns the stored session when it carries credentials.
func (s *Service) Current(ctx context.Context) (*session.Session, bool) {
	sess := s.store.Get(ctx)
	return sess, sess.Usable()
}

// Logout wipes the local session. It never calls the backend.
func (s *Service) Logout(ctx context.Context) bool {
	ok := s.store.Clear(ctx)
	if ok {
		s.logger.Info("logged out")
	}
	return ok
}

func (s *Service) notify(ctx context.Context, kind, body string) {
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Body: body}); err != nil {
		s.logger.Warn("notify", "kind", kind, "error", err)
	}
}
