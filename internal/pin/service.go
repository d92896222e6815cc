// Package pin manages the optional four digit transaction PIN.
package pin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/session"
	"github.com/medpass/medpass/internal/verification"
)

var (
	ErrMismatch   = errors.New("PINs do not match")
	ErrNotEnabled = errors.New("transaction PIN is not enabled")
)

const profilePINStatus = "pin_status"

// Client is the part of the API the PIN needs.
type Client interface {
	SetPIN(ctx context.Context, creds session.Credentials, pin string, enabled bool) (api.Ack, error)
	CheckPIN(ctx context.Context, creds session.Credentials, pin string) (api.Ack, error)
}

// Service reconciles the server pin_status with the local preference.
type Service struct {
	client   Client
	store    *session.Store
	notifier notification.Notifier
	logger   *slog.Logger
	cost     int
}

// NewService constructs a PIN service.
func NewService(client Client, store *session.Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}
	return &Service{client: client, store: store, notifier: notifier, logger: logger, cost: bcrypt.DefaultCost}
}

// Enabled reports whether payments need a PIN. A pin_status of "1" or "0"
// in the cached profile wins and is mirrored into the local flag; without
// it the local flag decides.
func (s *Service) Enabled(ctx context.Context) (bool, error) {
	sess := s.store.Get(ctx)
	if sess == nil {
		return false, errors.New("read session")
	}
	local, err := s.store.Field(ctx, session.KeyPINEnabled)
	if err != nil {
		return false, err
	}
	switch sess.Profile.String(profilePINStatus) {
	case "1":
		if local != "true" {
			s.mirror(ctx, "true")
		}
		return true, nil
	case "0":
		if local != "false" && local != "" {
			s.mirror(ctx, "false")
		}
		return false, nil
	}
	return local == "true", nil
}

// syncProfile records the server's new pin_status in the cached profile so
// Enabled agrees with the change before the next refresh.
func (s *Service) syncProfile(ctx context.Context, status string) {
	if err := s.store.SetProfileField(ctx, profilePINStatus, status); err != nil {
		s.logger.Warn("update cached pin_status", "error", err)
	}
}

func (s *Service) mirror(ctx context.Context, value string) {
	if err := s.store.SetFields(ctx, map[string]string{session.KeyPINEnabled: value}); err != nil {
		s.logger.Warn("mirror pin flag", "error", err)
	}
}

// Setup enables the PIN after the user typed it twice.
func (s *Service) Setup(ctx context.Context, pin, confirm string) error {
	p, err := verification.Normalize(pin, verification.PINLength)
	if err != nil {
		return err
	}
	c, err := verification.Normalize(confirm, verification.PINLength)
	if err != nil {
		return err
	}
	if p != c {
		return ErrMismatch
	}
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}
	if _, err := s.client.SetPIN(ctx, creds, p, true); err != nil {
		s.notify(ctx, notification.KindServerError, api.UserMessage(err, "Failed to set PIN"))
		return err
	}
	s.syncProfile(ctx, "1")
	hash, err := bcrypt.GenerateFromPassword([]byte(p), s.cost)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}
	if err := s.store.SetFields(ctx, map[string]string{
		session.KeyPINEnabled: "true",
		session.KeyPINHash:    string(hash),
	}); err != nil {
		return fmt.Errorf("store pin preference: %w", err)
	}
	s.notify(ctx, notification.KindPINChanged, "Transaction PIN enabled")
	return nil
}

// Verify checks pin with the backend.
func (s *Service) Verify(ctx context.Context, pin string) error {
	p, err := verification.Normalize(pin, verification.PINLength)
	if err != nil {
		return err
	}
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}
	if _, err := s.client.CheckPIN(ctx, creds, p); err != nil {
		s.logger.Info("pin rejected", "reason", api.ReasonOf(err))
		return err
	}
	return nil
}

// MatchesLocal compares pin with the locally stored hash. It is false when no
// hash is stored.
func (s *Service) MatchesLocal(ctx context.Context, pin string) bool {
	hash, err := s.store.Field(ctx, session.KeyPINHash)
	if err != nil || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)) == nil
}

// Flow wraps Verify in a verification flow so repeated submissions while a
// check is running are rejected.
func (s *Service) Flow() *verification.Flow {
	return verification.New(verification.PINLength, nil, verification.VerifierFunc(s.Verify))
}

// Disable verifies pin, turns the PIN off server side and clears the local copy.
func (s *Service) Disable(ctx context.Context, pin string) error {
	if err := s.Verify(ctx, pin); err != nil {
		return err
	}
	creds, err := s.credentials(ctx)
	if err != nil {
		return err
	}
	if _, err := s.client.SetPIN(ctx, creds, "", false); err != nil {
		s.notify(ctx, notification.KindServerError, api.UserMessage(err, "Failed to disable PIN"))
		return err
	}
	s.syncProfile(ctx, "0")
	if err := s.store.SetFields(ctx, map[string]string{
		session.KeyPINEnabled: "false",
		session.KeyPINHash:    "",
	}); err != nil {
		return fmt.Errorf("store pin preference: %w", err)
	}
	s.notify(ctx, notification.KindPINChanged, "Transaction PIN disabled")
	return nil
}

func (s *Service) credentials(ctx context.Context) (session.Credentials, error) {
	creds, err := s.store.Credentials(ctx)
	if errors.Is(err, session.ErrNoCredentials) {
		return creds, api.ErrMissingCredentials
	}
	return creds, err
}

func (s *Service) notify(ctx context.Context, kind, body string) {
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Body: body}); err != nil {
		s.logger.Warn("notify", "kind", kind, "error", err)
	}
}
