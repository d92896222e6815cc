package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/kyc"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/session"
	"github.com/medpass/medpass/internal/verification"
)

var ErrInvalidAmount = errors.New("enter a valid amount")

// Client is the part of the API the wallet needs.
type Client interface {
	UserInfo(ctx context.Context, creds session.Credentials) (session.Payload, error)
	MobileValidate(ctx context.Context, creds session.Credentials) (string, error)
	ResendWalletOTP(ctx context.Context, creds session.Credentials) (api.Ack, error)
	ValidateWalletOTP(ctx context.Context, creds session.Credentials, otp string) (api.Ack, error)
	TransactionReport(ctx context.Context, creds session.Credentials) ([]api.Transaction, error)
	Cashback(ctx context.Context, creds session.Credentials) (decimal.Decimal, bool, error)
	CreateOrder(ctx context.Context, creds session.Credentials, amount decimal.Decimal) (string, error)
}

// Service keeps the cached session in step with the backend.
type Service struct {
	client   Client
	store    *session.Store
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds a wallet service instance.
func NewService(client Client, store *session.Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}
	return &Service{client: client, store: store, notifier: notifier, logger: logger, now: time.Now}
}

// Refresh pulls the profile and overwrites the cached snapshot in one write.
// Nothing is written unless the call succeeds, and no request is made
// without credentials.
func (s *Service) Refresh(ctx context.Context) RefreshResult {
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return missingOrException(err)
	}
	p, err := s.client.UserInfo(ctx, creds)
	if err != nil {
		s.logger.Warn("refresh failed", "reason", api.ReasonOf(err), "error", err)
		return RefreshResult{Reason: api.ReasonOf(err), Payload: payloadOf(err), Err: err}
	}
	if err := s.store.Overwrite(ctx, p); err != nil {
		s.logger.Error("persist refreshed profile", "error", err)
		return RefreshResult{Reason: ReasonException, Err: err}
	}
	return RefreshResult{OK: true, Data: &p}
}

func missingOrException(err error) RefreshResult {
	if errors.Is(err, session.ErrNoCredentials) {
		return RefreshResult{Reason: ReasonMissingCredentials, Err: api.ErrMissingCredentials}
	}
	return RefreshResult{Reason: ReasonException, Err: err}
}

func payloadOf(err error) map[string]any {
	var se *api.StatusError
	if errors.As(err, &se) {
		return se.Payload
	}
	return nil
}

// FetchStatus asks the dedicated endpoint for the wallet status. It needs
// token, user id and mobile, and does not persist the answer.
func (s *Service) FetchStatus(ctx context.Context) StatusResult {
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		r := missingOrException(err)
		return StatusResult{Reason: r.Reason, Err: r.Err}
	}
	if creds.Mobile == "" {
		return StatusResult{Reason: ReasonMissingCredentials, Err: api.ErrMissingCredentials}
	}
	status, err := s.client.MobileValidate(ctx, creds)
	if err != nil {
		s.logger.Warn("wallet status failed", "reason", api.ReasonOf(err), "error", err)
		return StatusResult{Reason: api.ReasonOf(err), Payload: payloadOf(err), Err: err}
	}
	return StatusResult{OK: true, WalletStatus: status}
}

// PersistStatus stores a status obtained from FetchStatus.
func (s *Service) PersistStatus(ctx context.Context, status string) error {
	return s.store.SetFields(ctx, map[string]string{session.KeyWalletStatus: status})
}

// Overview is everything the wallet screen shows.
type Overview struct {
	Session      *session.Session
	WalletStatus string
	Transactions []Transaction
	Cashback     decimal.Decimal
	HasCashback  bool
	MonthSpent   decimal.Decimal
	MonthlyLimit decimal.Decimal
	KYC          kyc.Status

	RefreshErr error
	StatusErr  error
}

// Ready reports whether the wallet can transact.
func (o Overview) Ready() bool { return o.WalletStatus == session.WalletReady }

// Overview loads profile, status, transactions and cashback concurrently.
// Individual failures are recorded on the result; only missing credentials
// abort.
func (s *Service) Overview(ctx context.Context) (Overview, error) {
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return Overview{}, missingOrException(err).Err
	}

	var (
		refresh  RefreshResult
		status   StatusResult
		txns     []api.Transaction
		cashback decimal.Decimal
		hasCB    bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refresh = s.Refresh(gctx)
		return nil
	})
	g.Go(func() error {
		status = s.FetchStatus(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		txns, err = s.client.TransactionReport(gctx, creds)
		if err != nil {
			s.logger.Warn("transactions failed", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		cashback, hasCB, err = s.client.Cashback(gctx, creds)
		if err != nil {
			s.logger.Debug("cashback unavailable", "error", err)
		}
		return nil
	})
	_ = g.Wait()

	if status.OK {
		if err := s.PersistStatus(ctx, status.WalletStatus); err != nil {
			s.logger.Warn("persist wallet status", "error", err)
		}
	}
	sess := s.store.Get(ctx)
	if sess == nil {
		return Overview{}, errors.New("read session")
	}

	o := Overview{
		Session:      sess,
		WalletStatus: sess.WalletStatus,
		Cashback:     cashback,
		HasCashback:  hasCB,
		MonthSpent:   MonthSpent(txns, s.now()),
		KYC:          kyc.StatusOf(sess.Profile),
		RefreshErr:   refresh.Err,
		StatusErr:    status.Err,
	}
	if status.OK {
		o.WalletStatus = status.WalletStatus
	}
	if !hasCB {
		if d, err := decimal.NewFromString(sess.Profile.String("cc_balance")); err == nil {
			o.Cashback = d
		}
	}
	if d, err := decimal.NewFromString(sess.Profile.String("monthly_limit")); err == nil && d.IsPositive() {
		o.MonthlyLimit = d
	}
	for _, t := range txns {
		o.Transactions = append(o.Transactions, normalizeTransaction(t))
	}
	return o, nil
}

// Transactions lists the wallet history.
func (s *Service) Transactions(ctx context.Context) ([]Transaction, error) {
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return nil, missingOrException(err).Err
	}
	raw, err := s.client.TransactionReport(ctx, creds)
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(raw))
	for _, t := range raw {
		out = append(out, normalizeTransaction(t))
	}
	return out, nil
}

// ActivationFlow returns an OTP flow for activating a wallet that is in the
// OTP pending state. The first Send requests a fresh code.
func (s *Service) ActivationFlow(opts ...verification.Option) *verification.Flow {
	return verification.New(verification.OTPLength,
		verification.SenderFunc(s.ResendActivationOTP),
		verification.VerifierFunc(func(ctx context.Context, code string) error {
			_, err := s.VerifyActivationOTP(ctx, code)
			return err
		}),
		opts...,
	)
}

// ResendActivationOTP requests a new wallet activation code.
func (s *Service) ResendActivationOTP(ctx context.Context) error {
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return missingOrException(err).Err
	}
	ack, err := s.client.ResendWalletOTP(ctx, creds)
	if err != nil {
		s.notify(ctx, notification.KindServerError, api.UserMessage(err, "Failed to resend OTP"))
		return err
	}
	s.notify(ctx, notification.KindOTPSent, orDefault(ack.Message.String(), "OTP sent successfully"))
	return nil
}

// VerifyActivationOTP submits the activation code, then refreshes the profile
// and re-reads the wallet status so the cache reflects the activation.
func (s *Service) VerifyActivationOTP(ctx context.Context, otp string) (string, error) {
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return "", missingOrException(err).Err
	}
	if _, err := s.client.ValidateWalletOTP(ctx, creds, otp); err != nil {
		s.notify(ctx, notification.KindServerError, api.UserMessage(err, "Invalid OTP"))
		return "", err
	}
	if r := s.Refresh(ctx); !r.OK {
		s.logger.Warn("refresh after activation", "reason", r.Reason, "error", r.Err)
	}
	walletStatus, _ := s.store.Field(ctx, session.KeyWalletStatus)
	if st := s.FetchStatus(ctx); st.OK {
		walletStatus = st.WalletStatus
		if err := s.PersistStatus(ctx, walletStatus); err != nil {
			s.logger.Warn("persist wallet status", "error", err)
		}
	}
	s.notify(ctx, notification.KindWalletVerified, "Wallet verified successfully")
	return walletStatus, nil
}

// AddMoney creates a checkout order for amount. Failures are logged and
// reported only as ok=false.
func (s *Service) AddMoney(ctx context.Context, amount decimal.Decimal) (orderID string, ok bool) {
	if !amount.IsPositive() {
		s.logger.Warn("add money rejected", "error", ErrInvalidAmount)
		return "", false
	}
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		s.logger.Warn("add money without credentials", "error", err)
		return "", false
	}
	orderID, err = s.client.CreateOrder(ctx, creds, amount)
	if err != nil {
		s.logger.Warn("create order failed", "amount", amount.String(), "reason", api.ReasonOf(err), "error", err)
		return "", false
	}
	s.logger.Info("order created", "order_id", orderID, "amount", amount.String())
	return orderID, true
}

func (s *Service) notify(ctx context.Context, kind, body string) {
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Body: body}); err != nil {
		s.logger.Warn("notify", "kind", kind, "error", err)
	}
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// ParseAmount reads a user-entered rupee amount.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
