package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/session"
	"github.com/medpass/medpass/internal/wallet"
)

type fakeClient struct {
	txns []api.Txn
	err  error
}

func (f *fakeClient) MakeTransaction(_ context.Context, _ session.Credentials, t api.Txn) (api.TxnResult, error) {
	f.txns = append(f.txns, t)
	if f.err != nil {
		return api.TxnResult{}, f.err
	}
	return api.TxnResult{Status: "200", TransactionID: "TXN-1", Balance: "60.00"}, nil
}

type fakePINs struct {
	enabled bool
	pin     string
	checked int
}

func (f *fakePINs) Enabled(context.Context) (bool, error) { return f.enabled, nil }

func (f *fakePINs) Verify(_ context.Context, pin string) error {
	f.checked++
	if pin != f.pin {
		return errors.New("invalid PIN")
	}
	return nil
}

// fakeWallet answers FetchStatus with status, or fails it when status is empty.
type fakeWallet struct {
	status    string
	calls     int
	persisted []string
}

func (f *fakeWallet) FetchStatus(context.Context) wallet.StatusResult {
	if f.status == "" {
		return wallet.StatusResult{Reason: api.ReasonException, Err: errors.New("status endpoint down")}
	}
	return wallet.StatusResult{OK: true, WalletStatus: f.status}
}

func (f *fakeWallet) PersistStatus(_ context.Context, status string) error {
	f.persisted = append(f.persisted, status)
	return nil
}

func (f *fakeWallet) Refresh(context.Context) wallet.RefreshResult {
	f.calls++
	return wallet.RefreshResult{OK: true, Data: &session.Payload{Balance: "50.00"}}
}

type testNotifier struct {
	last notification.Message
}

func (n *testNotifier) Send(_ context.Context, msg notification.Message) error {
	n.last = msg
	return nil
}

func seededStore(t *testing.T, walletStatus, balance string) *session.Store {
	t.Helper()
	store := session.NewStore(session.NewMemoryKV(), nil)
	if !store.Save(context.Background(), session.Payload{Token: "tok", UserID: "1", WalletStatus: session.Scalar(walletStatus), Balance: session.Scalar(balance), BACode: "BA7"}, "9876543210") {
		t.Fatalf("seed session")
	}
	return store
}

func TestPaySuccess(t *testing.T) {
	client := &fakeClient{}
	w := &fakeWallet{status: "0"}
	notifier := &testNotifier{}
	svc := NewService(client, seededStore(t, "0", "100.00"), &fakePINs{}, w, notifier, nil)

	res, err := svc.Pay(context.Background(), PayInput{ServiceID: "svc-1", Amount: decimal.NewFromInt(40), ClientTxID: "abc"})
	if err != nil {
		t.Fatalf("pay failed: %v", err)
	}
	if res.TransactionID != "TXN-1" || res.Balance != "50.00" || !res.Refreshed {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(client.txns) != 1 {
		t.Fatalf("expected one transaction, got %d", len(client.txns))
	}
	sent := client.txns[0]
	if sent.IdempotencyKey != "abc" || sent.BACode != "BA7" || sent.Description != DefaultDescription {
		t.Fatalf("unexpected txn %+v", sent)
	}
	if w.calls != 1 {
		t.Fatalf("expected refresh after payment")
	}
	if notifier.last.Kind != notification.KindPaymentCompleted {
		t.Fatalf("expected notification to be sent")
	}
}

func TestPayValidation(t *testing.T) {
	cases := []struct {
		name    string
		status  string
		balance string
		input   PayInput
		want    error
	}{
		{"no service", "0", "100", PayInput{Amount: decimal.NewFromInt(5)}, ErrServiceRequired},
		{"below minimum", "0", "100", PayInput{ServiceID: "s", Amount: decimal.RequireFromString("0.5")}, ErrInvalidAmount},
		{"over balance", "0", "10", PayInput{ServiceID: "s", Amount: decimal.NewFromInt(11)}, ErrInsufficientFunds},
		{"wallet pending", "20", "100", PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}, ErrWalletNotReady},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := &fakeClient{}
			svc := NewService(client, seededStore(t, tc.status, tc.balance), nil, nil, nil, nil)
			if _, err := svc.Pay(context.Background(), tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(client.txns) != 0 {
				t.Fatalf("no transaction expected")
			}
		})
	}
}

func TestPayRequiresPINWhenEnabled(t *testing.T) {
	client := &fakeClient{}
	pins := &fakePINs{enabled: true, pin: "1234"}
	svc := NewService(client, seededStore(t, "0", "100"), pins, nil, nil, nil)
	ctx := context.Background()

	if _, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}); !errors.Is(err, ErrPINRequired) {
		t.Fatalf("expected PIN required, got %v", err)
	}
	if _, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5), PIN: "0000"}); err == nil {
		t.Fatalf("expected wrong PIN to fail")
	}
	if len(client.txns) != 0 {
		t.Fatalf("payment must not be sent before PIN check")
	}
	if _, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5), PIN: "1234"}); err != nil {
		t.Fatalf("pay: %v", err)
	}
}

func TestPayWithoutSession(t *testing.T) {
	client := &fakeClient{}
	svc := NewService(client, session.NewStore(session.NewMemoryKV(), nil), nil, nil, nil, nil)
	if _, err := svc.Pay(context.Background(), PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}); !errors.Is(err, api.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
}

func TestPayServerRejection(t *testing.T) {
	client := &fakeClient{err: &api.StatusError{HTTPStatus: 200, Status: "400", Message: "Service unavailable"}}
	notifier := &testNotifier{}
	svc := NewService(client, seededStore(t, "0", "100"), nil, &fakeWallet{status: "0"}, notifier, nil)
	if _, err := svc.Pay(context.Background(), PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}); err == nil {
		t.Fatalf("expected failure")
	}
	if notifier.last.Body != "Service unavailable" {
		t.Fatalf("expected server message verbatim, got %q", notifier.last.Body)
	}
}

func TestPayUsesLiveWalletStatus(t *testing.T) {
	ctx := context.Background()

	// cache says registration required, endpoint says ready
	client := &fakeClient{}
	w := &fakeWallet{status: "0"}
	svc := NewService(client, seededStore(t, "2", "100"), nil, w, nil, nil)
	if _, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(w.persisted) != 2 || w.persisted[0] != "0" || w.persisted[1] != "0" {
		t.Fatalf("expected live status persisted before and after refresh, got %v", w.persisted)
	}

	// cache says ready, endpoint says OTP pending
	client = &fakeClient{}
	w = &fakeWallet{status: "20"}
	svc = NewService(client, seededStore(t, "0", "100"), nil, w, nil, nil)
	if _, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}); !errors.Is(err, ErrWalletNotReady) {
		t.Fatalf("expected wallet not ready, got %v", err)
	}
	if len(client.txns) != 0 || w.calls != 0 {
		t.Fatalf("nothing should be sent for a pending wallet")
	}
}

func TestPayFallsBackToCachedStatus(t *testing.T) {
	ctx := context.Background()

	client := &fakeClient{}
	svc := NewService(client, seededStore(t, "20", "100"), nil, &fakeWallet{}, nil, nil)
	if _, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}); !errors.Is(err, ErrWalletNotReady) {
		t.Fatalf("expected wallet not ready, got %v", err)
	}

	w := &fakeWallet{}
	svc = NewService(client, seededStore(t, "0", "100"), nil, w, nil, nil)
	if _, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(5)}); err != nil {
		t.Fatalf("pay: %v", err)
	}
	if len(w.persisted) != 0 {
		t.Fatalf("cached status must not be rewritten, got %v", w.persisted)
	}
}

// splitBackend reports the wallet as registration-required in the profile
// but ready on the status endpoint.
type splitBackend struct {
	balance decimal.Decimal
	paid    int
}

func (b *splitBackend) UserInfo(context.Context, session.Credentials) (session.Payload, error) {
	return session.Payload{
		Status:       "200",
		UserID:       "1",
		Name:         "Asha",
		Profile:      session.Profile{"wallets_status": "2"},
		WalletStatus: "2",
		Balance:      session.Scalar(b.balance.StringFixed(2)),
		BACode:       "BA7",
	}, nil
}

func (b *splitBackend) MobileValidate(context.Context, session.Credentials) (string, error) {
	return session.WalletReady, nil
}

func (b *splitBackend) ResendWalletOTP(context.Context, session.Credentials) (api.Ack, error) {
	return api.Ack{Status: "200"}, nil
}

func (b *splitBackend) ValidateWalletOTP(context.Context, session.Credentials, string) (api.Ack, error) {
	return api.Ack{Status: "200"}, nil
}

func (b *splitBackend) TransactionReport(context.Context, session.Credentials) ([]api.Transaction, error) {
	return nil, nil
}

func (b *splitBackend) Cashback(context.Context, session.Credentials) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, nil
}

func (b *splitBackend) CreateOrder(context.Context, session.Credentials, decimal.Decimal) (string, error) {
	return "ORD-1", nil
}

func (b *splitBackend) MakeTransaction(_ context.Context, _ session.Credentials, t api.Txn) (api.TxnResult, error) {
	b.paid++
	b.balance = b.balance.Sub(t.Amount)
	return api.TxnResult{Status: "200", TransactionID: session.Scalar("TXN-" + t.IdempotencyKey), Balance: session.Scalar(b.balance.StringFixed(2))}, nil
}

func TestPayAfterRefreshWithDivergentStatusSources(t *testing.T) {
	ctx := context.Background()
	backend := &splitBackend{balance: decimal.NewFromInt(100)}
	store := seededStore(t, "0", "100")
	walletSvc := wallet.NewService(backend, store, nil, nil)
	svc := NewService(backend, store, nil, walletSvc, nil, nil)

	first, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(30), ClientTxID: "a"})
	if err != nil {
		t.Fatalf("first pay: %v", err)
	}
	if !first.Refreshed || first.Balance != "70.00" {
		t.Fatalf("unexpected first result %+v", first)
	}
	if got, _ := store.Field(ctx, session.KeyWalletStatus); got != session.WalletReady {
		t.Fatalf("refresh left wallet status %q", got)
	}

	// an explicit refresh stores the profile's status; the next payment must
	// still go through on the endpoint's answer
	if r := walletSvc.Refresh(ctx); !r.OK {
		t.Fatalf("refresh: %v", r.Err)
	}
	second, err := svc.Pay(ctx, PayInput{ServiceID: "s", Amount: decimal.NewFromInt(20), ClientTxID: "b"})
	if err != nil {
		t.Fatalf("second pay: %v", err)
	}
	if second.Balance != "50.00" || backend.paid != 2 {
		t.Fatalf("unexpected second result %+v after %d payments", second, backend.paid)
	}
	if got, _ := store.Field(ctx, session.KeyWalletStatus); got != session.WalletReady {
		t.Fatalf("expected ready status cached, got %q", got)
	}
}
