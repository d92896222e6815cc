package sandbox

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// Wallet status codes, mirrored from the real backend.
const (
	walletReady         = "0"
	walletNeedsKYC      = "2"
	walletOTPPending    = "20"
	defaultMonthlyLimit = "10000"
)

var (
	errUnknownMobile    = errors.New("mobile number not registered")
	errInvalidOTP       = errors.New("Invalid OTP")
	errOTPExpired       = errors.New("OTP expired")
	errUnknownUser      = errors.New("user not found")
	errWalletNotReady   = errors.New("wallet is not activated")
	errWrongWalletState = errors.New("wallet is not awaiting OTP")
	errInsufficient     = errors.New("insufficient balance")
	errPINNotSet        = errors.New("PIN not set")
	errInvalidPIN       = errors.New("Invalid PIN")
)

type pendingOTP struct {
	code    string
	expires time.Time
}

type txn struct {
	ID       string
	Type     string
	Amount   decimal.Decimal
	DrCr     string
	API      string
	Provider string
	Created  time.Time
}

type user struct {
	id           string
	mobile       string
	token        string
	walletStatus string
	balance      decimal.Decimal
	cashback     decimal.Decimal
	baCode       string
	pinHash      []byte
	profile      map[string]string
	loginOTP     *pendingOTP
	walletOTP    *pendingOTP
	txns         []txn
	payments     map[string]paymentReceipt
}

type paymentReceipt struct {
	TransactionID string
	Balance       decimal.Decimal
}

// State is the sandbox's in-memory backend.
type State struct {
	mu       sync.Mutex
	otp      string
	otpTTL   time.Duration
	now      func() time.Time
	seq      int
	users    map[string]*user
	byMobile map[string]*user
}

// NewState creates an empty backend issuing the fixed otp.
func NewState(otp string, otpTTL time.Duration) *State {
	return &State{
		otp:      otp,
		otpTTL:   otpTTL,
		now:      time.Now,
		seq:      1000,
		users:    make(map[string]*user),
		byMobile: make(map[string]*user),
	}
}

// RequestOTP registers the mobile number on first use and issues a login OTP.
func (s *State) RequestOTP(mobile string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byMobile[mobile]
	if !ok {
		s.seq++
		u = &user{
			id:           strconv.Itoa(s.seq),
			mobile:       mobile,
			walletStatus: walletNeedsKYC,
			balance:      decimal.Zero,
			cashback:     decimal.Zero,
			profile: map[string]string{
				"mobile":        mobile,
				"monthly_limit": defaultMonthlyLimit,
				"kyc_code":      "7",
				"pin_status":    "0",
			},
			payments: make(map[string]paymentReceipt),
		}
		s.users[u.id] = u
		s.byMobile[mobile] = u
	}
	u.loginOTP = &pendingOTP{code: s.otp, expires: s.now().Add(s.otpTTL)}
}

func (s *State) checkOTP(p *pendingOTP, code string) error {
	if p == nil {
		return errInvalidOTP
	}
	if s.now().After(p.expires) {
		return errOTPExpired
	}
	if subtle.ConstantTimeCompare([]byte(p.code), []byte(code)) != 1 {
		return errInvalidOTP
	}
	return nil
}

// VerifyOTP checks the login OTP and issues a fresh token.
func (s *State) VerifyOTP(mobile, code string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byMobile[mobile]
	if !ok {
		return Snapshot{}, errUnknownMobile
	}
	if err := s.checkOTP(u.loginOTP, code); err != nil {
		return Snapshot{}, err
	}
	u.loginOTP = nil
	u.token = uuid.NewString()
	return u.snapshot(true), nil
}

// VerifyToken implements middleware.TokenVerifier.
func (s *State) VerifyToken(_ context.Context, userID, token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	return ok && u.token != "" && subtle.ConstantTimeCompare([]byte(u.token), []byte(token)) == 1
}

// Snapshot is the user view returned by login and user-info.
type Snapshot struct {
	Token        string
	UserID       string
	Name         string
	Profile      map[string]string
	WalletStatus string
	Balance      decimal.Decimal
	BACode       string
	Cashback     decimal.Decimal
}

func (u *user) snapshot(withToken bool) Snapshot {
	profile := make(map[string]string, len(u.profile))
	for k, v := range u.profile {
		profile[k] = v
	}
	profile["cc_balance"] = u.cashback.StringFixed(2)
	snap := Snapshot{
		UserID:       u.id,
		Name:         u.profile["name"],
		Profile:      profile,
		WalletStatus: u.walletStatus,
		Balance:      u.balance,
		BACode:       u.baCode,
		Cashback:     u.cashback,
	}
	if withToken {
		snap.Token = u.token
	}
	return snap
}

func (s *State) withUser(userID string, fn func(u *user) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return errUnknownUser
	}
	return fn(u)
}

// Snapshot returns the current view of a user.
func (s *State) Snapshot(userID string) (Snapshot, error) {
	var snap Snapshot
	err := s.withUser(userID, func(u *user) error {
		snap = u.snapshot(false)
		return nil
	})
	return snap, err
}

// WalletStatus returns the status for the user's mobile.
func (s *State) WalletStatus(userID, mobile string) (string, error) {
	var status string
	err := s.withUser(userID, func(u *user) error {
		if u.mobile != mobile {
			return errUnknownMobile
		}
		status = u.walletStatus
		return nil
	})
	return status, err
}

// Register stores KYC details and moves a fresh wallet to OTP pending.
func (s *State) Register(userID string, fields map[string]string) error {
	return s.withUser(userID, func(u *user) error {
		for k, v := range fields {
			u.profile[k] = v
		}
		u.profile["name"] = fields["firstname"]
		u.profile["kyc_code"] = "0"
		if u.walletStatus == walletNeedsKYC {
			u.walletStatus = walletOTPPending
			u.walletOTP = &pendingOTP{code: s.otp, expires: s.now().Add(s.otpTTL)}
		}
		return nil
	})
}

// ResendWalletOTP issues another activation OTP.
func (s *State) ResendWalletOTP(userID string) error {
	return s.withUser(userID, func(u *user) error {
		if u.walletStatus != walletOTPPending {
			return errWrongWalletState
		}
		u.walletOTP = &pendingOTP{code: s.otp, expires: s.now().Add(s.otpTTL)}
		return nil
	})
}

// ValidateWalletOTP activates the wallet.
func (s *State) ValidateWalletOTP(userID, code string) error {
	return s.withUser(userID, func(u *user) error {
		if u.walletStatus != walletOTPPending {
			return errWrongWalletState
		}
		if err := s.checkOTP(u.walletOTP, code); err != nil {
			return err
		}
		u.walletOTP = nil
		u.walletStatus = walletReady
		u.baCode = "BA" + u.id
		return nil
	})
}

// UpgradeKYC records that proof documents were submitted.
func (s *State) UpgradeKYC(userID string, fields map[string]string) error {
	return s.withUser(userID, func(u *user) error {
		for k, v := range fields {
			if v != "" {
				u.profile[k] = v
			}
		}
		u.profile["kyc_code"] = "1"
		return nil
	})
}

// CreateOrder records an add-money order. The sandbox has no checkout, so
// the order is captured immediately and credited to the wallet.
func (s *State) CreateOrder(userID string, amount decimal.Decimal) (string, error) {
	var orderID string
	err := s.withUser(userID, func(u *user) error {
		if u.walletStatus != walletReady {
			return errWalletNotReady
		}
		orderID = "order_" + uuid.NewString()
		u.balance = u.balance.Add(amount)
		u.txns = append(u.txns, txn{
			ID:       orderID,
			Type:     "1",
			Amount:   amount,
			DrCr:     "C",
			API:      "add_money",
			Provider: "Wallet top-up",
			Created:  s.now(),
		})
		return nil
	})
	return orderID, err
}

// Pay debits the wallet. A repeated idempotency key returns the first receipt.
func (s *State) Pay(userID, key, serviceID, provider string, amount decimal.Decimal) (paymentReceipt, bool, error) {
	var (
		receipt  paymentReceipt
		replayed bool
	)
	err := s.withUser(userID, func(u *user) error {
		if key != "" {
			if r, ok := u.payments[key]; ok {
				receipt, replayed = r, true
				return nil
			}
		}
		if u.walletStatus != walletReady {
			return errWalletNotReady
		}
		if amount.GreaterThan(u.balance) {
			return errInsufficient
		}
		u.balance = u.balance.Sub(amount)
		// 10% of each payment comes back as cashback.
		u.cashback = u.cashback.Add(amount.Div(decimal.NewFromInt(10)).Round(2))
		id := "TXN" + strconv.FormatInt(s.now().UnixNano(), 36)
		u.txns = append(u.txns, txn{
			ID:       id,
			Type:     "2",
			Amount:   amount,
			DrCr:     "D",
			API:      "service:" + serviceID,
			Provider: provider,
			Created:  s.now(),
		})
		receipt = paymentReceipt{TransactionID: id, Balance: u.balance}
		if key != "" {
			u.payments[key] = receipt
		}
		return nil
	})
	return receipt, replayed, err
}

// Transactions lists a user's history, newest first.
func (s *State) Transactions(userID string) ([]txn, error) {
	var out []txn
	err := s.withUser(userID, func(u *user) error {
		for i := len(u.txns) - 1; i >= 0; i-- {
			out = append(out, u.txns[i])
		}
		return nil
	})
	return out, err
}

// SetPIN stores a bcrypt hash of pin, or clears it when disabling.
func (s *State) SetPIN(userID, pin string, enabled bool) error {
	var hash []byte
	if enabled {
		h, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
		if err != nil {
			return err
		}
		hash = h
	}
	return s.withUser(userID, func(u *user) error {
		u.pinHash = hash
		if enabled {
			u.profile["pin_status"] = "1"
		} else {
			u.profile["pin_status"] = "0"
		}
		return nil
	})
}

// CheckPIN compares pin with the stored hash.
func (s *State) CheckPIN(userID, pin string) error {
	var hash []byte
	if err := s.withUser(userID, func(u *user) error {
		hash = u.pinHash
		return nil
	}); err != nil {
		return err
	}
	if len(hash) == 0 {
		return errPINNotSet
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(pin)) != nil {
		return errInvalidPIN
	}
	return nil
}
