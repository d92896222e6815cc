package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/medpass/medpass/internal/logging"
)

// ErrNoCredentials is returned by Credentials when token or user id is missing.
var ErrNoCredentials = errors.New("missing credentials")

// Store is the session repository injected into every flow. It owns the
// flat key layout on top of a KV and serializes its own operations; writes
// are last-writer-wins with no versioning.
type Store struct {
	mu     sync.Mutex
	kv     KV
	logger *slog.Logger
}

// NewStore wraps a KV backend.
func NewStore(kv KV, logger *slog.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{kv: kv, logger: logger}
}

// Save writes a full session after login. Every field is stored as a string;
// missing values become "". It never returns an error: failures are logged
// and reported as false.
func (s *Store) Save(ctx context.Context, p Payload, mobile string) bool {
	profile, err := encodeProfile(p.Profile)
	if err != nil {
		s.logger.Error("encode profile", "error", err)
		return false
	}
	loggedIn := "false"
	if p.Token != "" && p.UserID != "" {
		loggedIn = "true"
	}
	values := map[string]string{
		KeyToken:        p.Token.String(),
		KeyUserID:       p.UserID.String(),
		KeyUserName:     p.Name.String(),
		KeyMobile:       mobile,
		KeyProfile:      profile,
		KeyWalletStatus: p.WalletStatus.String(),
		KeyBalance:      p.Balance.String(),
		KeyBACode:       p.BACode.String(),
		KeyLoggedIn:     loggedIn,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, values); err != nil {
		s.logger.Error("store session", "error", err)
		return false
	}
	s.logger.Debug("session stored", "user_id", p.UserID.String(), "mobile", logging.MaskMobile(mobile))
	return true
}

// Overwrite replaces the server-owned snapshot (identity, profile, wallet
// status, balance) in a single write. Credentials and mobile are untouched.
func (s *Store) Overwrite(ctx context.Context, p Payload) error {
	profile, err := encodeProfile(p.Profile)
	if err != nil {
		return err
	}
	values := map[string]string{
		KeyUserID:       p.UserID.String(),
		KeyUserName:     p.Name.String(),
		KeyProfile:      profile,
		KeyWalletStatus: p.WalletStatus.String(),
		KeyBalance:      p.Balance.String(),
		KeyBACode:       p.BACode.String(),
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(ctx, values)
}

// Get reads the whole session. Missing keys yield empty fields. It returns
// nil only when the backend fails or the cached profile cannot be decoded.
func (s *Store) Get(ctx context.Context) *Session {
	s.mu.Lock()
	values, err := s.kv.Get(ctx, sessionKeys...)
	s.mu.Unlock()
	if err != nil {
		s.logger.Error("read session", "error", err)
		return nil
	}
	profile, err := decodeProfile(values[KeyProfile])
	if err != nil {
		s.logger.Error("decode cached profile", "error", err)
		return nil
	}
	return &Session{
		Token:        values[KeyToken],
		UserID:       values[KeyUserID],
		UserName:     values[KeyUserName],
		UserMobile:   values[KeyMobile],
		Profile:      profile,
		WalletStatus: values[KeyWalletStatus],
		Balance:      values[KeyBalance],
		BACode:       values[KeyBACode],
		IsLoggedIn:   values[KeyLoggedIn] == "true",
	}
}

// IsLoggedIn checks the login flag alone. It can disagree with Session.Usable.
func (s *Store) IsLoggedIn(ctx context.Context) bool {
	v, err := s.Field(ctx, KeyLoggedIn)
	if err != nil {
		s.logger.Error("check login flag", "error", err)
		return false
	}
	return v == "true"
}

// Credentials reads token, user id and mobile. It returns ErrNoCredentials
// when token or user id is empty; mobile may still be empty.
func (s *Store) Credentials(ctx context.Context) (Credentials, error) {
	s.mu.Lock()
	values, err := s.kv.Get(ctx, KeyToken, KeyUserID, KeyMobile)
	s.mu.Unlock()
	if err != nil {
		return Credentials{}, err
	}
	creds := Credentials{Token: values[KeyToken], UserID: values[KeyUserID], Mobile: values[KeyMobile]}
	if !creds.Valid() {
		return creds, ErrNoCredentials
	}
	return creds, nil
}

// Field reads a single key; a missing key reads as "".
func (s *Store) Field(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.kv.Get(ctx, key)
	if err != nil {
		return "", err
	}
	return values[key], nil
}

// SetFields writes a subset of keys in one write.
func (s *Store) SetFields(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(ctx, values)
}

// SetProfileField changes one key of the cached profile, leaving the rest of
// the session alone. It reads and writes under the store lock.
func (s *Store) SetProfileField(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	values, err := s.kv.Get(ctx, KeyProfile)
	if err != nil {
		return err
	}
	profile, err := decodeProfile(values[KeyProfile])
	if err != nil {
		return err
	}
	if profile == nil {
		profile = Profile{}
	}
	profile[key] = value
	raw, err := encodeProfile(profile)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, map[string]string{KeyProfile: raw})
}

// Clear removes every key the store owns. Calling it repeatedly is harmless.
func (s *Store) Clear(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Delete(ctx, AllKeys()...); err != nil {
		s.logger.Error("clear session", "error", err)
		return false
	}
	s.logger.Debug("session cleared")
	return true
}
