package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/session"
	"github.com/medpass/medpass/internal/wallet"
)

// DefaultDescription is sent when the caller gives none.
const DefaultDescription = "Consultation payment"

var (
	ErrInvalidAmount     = errors.New("amount must be at least 1")
	ErrInsufficientFunds = errors.New("insufficient wallet balance")
	ErrServiceRequired   = errors.New("service id is required")
	ErrPINRequired       = errors.New("transaction PIN required")
	ErrWalletNotReady    = errors.New("wallet is not activated")

	minimumAmount = decimal.NewFromInt(1)
)

// Client is the part of the API payments need.
type Client interface {
	MakeTransaction(ctx context.Context, creds session.Credentials, t api.Txn) (api.TxnResult, error)
}

// PINChecker gates payments behind the transaction PIN.
type PINChecker interface {
	Enabled(ctx context.Context) (bool, error)
	Verify(ctx context.Context, pin string) error
}

// Wallet supplies the live wallet status and reloads the cached profile
// after a payment.
type Wallet interface {
	FetchStatus(ctx context.Context) wallet.StatusResult
	PersistStatus(ctx context.Context, status string) error
	Refresh(ctx context.Context) wallet.RefreshResult
}

// Service executes wallet payments to merchant services.
type Service struct {
	client    Client
	store     *session.Store
	pins      PINChecker
	wallet    Wallet
	notifier  notification.Notifier
	logger    *slog.Logger
}

// NewService constructs a payment service.
func NewService(client Client, store *session.Store, pins PINChecker, w Wallet, notifier notification.Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.Discard()
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}
	return &Service{client: client, store: store, pins: pins, wallet: w, notifier: notifier, logger: logger}
}

// PayInput captures one payment.
type PayInput struct {
	ServiceID   string
	Amount      decimal.Decimal
	PRN         string
	Description string
	PartyCode   string
	PIN         string
	// ClientTxID is reused as the idempotency key; a fresh one is generated when empty.
	ClientTxID string
}

// PayResult describes an accepted payment.
type PayResult struct {
	TransactionID string
	Message       string
	Balance       string
	CompletedAt   time.Time
	Refreshed     bool
}

// Pay checks the wallet is activated, validates the amount against the cached
// balance, checks the PIN when enabled, submits one transaction and refreshes
// the session.
func (s *Service) Pay(ctx context.Context, input PayInput) (PayResult, error) {
	if input.ServiceID == "" {
		return PayResult{}, ErrServiceRequired
	}
	if input.Amount.LessThan(minimumAmount) {
		return PayResult{}, ErrInvalidAmount
	}

	sess := s.store.Get(ctx)
	if !sess.Usable() {
		return PayResult{}, api.ErrMissingCredentials
	}
	status, live := s.walletStatus(ctx, sess.WalletStatus)
	if status != session.WalletReady {
		return PayResult{}, ErrWalletNotReady
	}
	balance, err := decimal.NewFromString(sess.Balance)
	if err != nil {
		balance = decimal.Zero
	}
	if input.Amount.GreaterThan(balance) {
		return PayResult{}, fmt.Errorf("%w: balance %s", ErrInsufficientFunds, balance.StringFixed(2))
	}

	if s.pins != nil {
		enabled, err := s.pins.Enabled(ctx)
		if err != nil {
			return PayResult{}, err
		}
		if enabled {
			if input.PIN == "" {
				return PayResult{}, ErrPINRequired
			}
			if err := s.pins.Verify(ctx, input.PIN); err != nil {
				return PayResult{}, err
			}
		}
	}

	desc := input.Description
	if desc == "" {
		desc = DefaultDescription
	}
	key := input.ClientTxID
	if key == "" {
		key = api.NewIdempotencyKey()
	}
	res, err := s.client.MakeTransaction(ctx, sess.Credentials(), api.Txn{
		ServiceID:      input.ServiceID,
		Amount:         input.Amount,
		PRN:            input.PRN,
		BACode:         sess.BACode,
		Description:    desc,
		PartyCode:      input.PartyCode,
		IdempotencyKey: key,
	})
	if err != nil {
		s.logger.Warn("payment failed", "service_id", input.ServiceID, "reason", api.ReasonOf(err), "error", err)
		s.notify(ctx, notification.KindServerError, api.UserMessage(err, "Payment failed"))
		return PayResult{}, err
	}

	outcome := PayResult{
		TransactionID: res.TransactionID.String(),
		Message:       res.Message.String(),
		Balance:       res.Balance.String(),
		CompletedAt:   time.Now().UTC(),
	}
	if s.wallet != nil {
		r := s.wallet.Refresh(ctx)
		outcome.Refreshed = r.OK
		if r.OK && r.Data != nil {
			outcome.Balance = r.Data.Balance.String()
		}
		// the refresh wrote the profile's wallets_status over the live one
		if r.OK && live {
			s.persistStatus(ctx, status)
		}
	}
	s.logger.Info("payment completed", "service_id", input.ServiceID, "transaction_id", outcome.TransactionID, "amount", input.Amount.String())
	s.notify(ctx, notification.KindPaymentCompleted, fmt.Sprintf("Paid ₹%s", input.Amount.StringFixed(2)))
	return outcome, nil
}

// walletStatus prefers the status endpoint over the cached value, which may
// hold the profile's stale wallets_status. The cache is used only when the
// endpoint cannot answer. live reports whether the endpoint answered.
func (s *Service) walletStatus(ctx context.Context, cached string) (status string, live bool) {
	if s.wallet == nil {
		return cached, false
	}
	st := s.wallet.FetchStatus(ctx)
	if !st.OK {
		s.logger.Debug("wallet status unavailable, using cached", "cached", cached, "reason", st.Reason)
		return cached, false
	}
	if st.WalletStatus != cached {
		s.persistStatus(ctx, st.WalletStatus)
	}
	return st.WalletStatus, true
}

func (s *Service) persistStatus(ctx context.Context, status string) {
	if err := s.wallet.PersistStatus(ctx, status); err != nil {
		s.logger.Warn("persist wallet status", "error", err)
	}
}

func (s *Service) notify(ctx context.Context, kind, body string) {
	if err := s.notifier.Send(ctx, notification.Message{Kind: kind, Body: body}); err != nil {
		s.logger.Warn("notify", "kind", kind, "error", err)
	}
}
