package wallet

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/session"
)

type countingTransport struct {
	calls atomic.Int32
}

func (c *countingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return http.DefaultTransport.RoundTrip(r)
}

func newHarness(t *testing.T, h http.HandlerFunc) (*Service, session.KV, *countingTransport) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	ct := &countingTransport{}
	client, err := api.New(srv.URL, api.WithHTTPClient(&http.Client{Transport: ct}))
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	kv := session.NewMemoryKV()
	svc := NewService(client, session.NewStore(kv, nil), &notification.Recorder{}, nil)
	return svc, kv, ct
}

func seed(t *testing.T, svc *Service, mobile string) {
	t.Helper()
	ok := svc.store.Save(context.Background(), session.Payload{
		Token:        "abc",
		UserID:       "1",
		Name:         "Asha",
		Profile:      session.Profile{"kyc_code": "0", "monthly_limit": "5000"},
		WalletStatus: "2",
		Balance:      "150.00",
	}, mobile)
	if !ok {
		t.Fatalf("seed session")
	}
}

func TestRefreshWithoutCredentialsMakesNoRequest(t *testing.T) {
	svc, _, ct := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	ctx := context.Background()

	res := svc.Refresh(ctx)
	if res.OK || res.Reason != ReasonMissingCredentials {
		t.Fatalf("unexpected refresh result %+v", res)
	}
	st := svc.FetchStatus(ctx)
	if st.OK || st.Reason != ReasonMissingCredentials {
		t.Fatalf("unexpected status result %+v", st)
	}
	if n := ct.calls.Load(); n != 0 {
		t.Fatalf("expected zero network calls, got %d", n)
	}
}

func TestFetchStatusRequiresMobile(t *testing.T) {
	svc, _, ct := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s", r.URL.Path)
	})
	seed(t, svc, "")
	st := svc.FetchStatus(context.Background())
	if st.Reason != ReasonMissingCredentials {
		t.Fatalf("expected missing-credentials, got %+v", st)
	}
	if ct.calls.Load() != 0 {
		t.Fatalf("expected no network call")
	}
}

func TestRefreshFailureLeavesCacheUntouched(t *testing.T) {
	svc, kv, _ := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":500,"message":"Server busy","user_data":{"kyc_code":"4"},"balance":"0"}`)
	})
	seed(t, svc, "9876543210")
	ctx := context.Background()

	before, err := kv.Get(ctx, session.AllKeys()...)
	if err != nil {
		t.Fatalf("read before: %v", err)
	}
	res := svc.Refresh(ctx)
	if res.OK || res.Reason != ReasonBadStatus {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Payload["message"] != "Server busy" {
		t.Fatalf("expected payload attached, got %v", res.Payload)
	}
	after, err := kv.Get(ctx, session.AllKeys()...)
	if err != nil {
		t.Fatalf("read after: %v", err)
	}
	for k, v := range before {
		if after[k] != v {
			t.Fatalf("key %s changed from %q to %q", k, v, after[k])
		}
	}
}

func TestRefreshTransportFailureIsException(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	client, err := api.New(url)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	svc := NewService(client, session.NewStore(session.NewMemoryKV(), nil), nil, nil)
	seed(t, svc, "9876543210")
	res := svc.Refresh(context.Background())
	if res.Reason != ReasonException || res.Err == nil {
		t.Fatalf("expected exception, got %+v", res)
	}
}

func TestRefreshOverwritesSnapshot(t *testing.T) {
	svc, _, _ := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("token") != "abc" {
			t.Errorf("missing token header")
		}
		io.WriteString(w, `{"status":200,"userId":"1","name":"Asha N","user_data":{"kyc_code":"1"},"wallets_status":"0","balance":"90.5","ba_code":"BA1"}`)
	})
	seed(t, svc, "9876543210")
	ctx := context.Background()

	res := svc.Refresh(ctx)
	if !res.OK || res.Data == nil {
		t.Fatalf("refresh failed: %+v", res)
	}
	sess := svc.store.Get(ctx)
	if sess.Balance != "90.5" || sess.WalletStatus != "0" || sess.BACode != "BA1" || sess.UserName != "Asha N" {
		t.Fatalf("snapshot not overwritten: %+v", sess)
	}
	if sess.Token != "abc" || sess.UserMobile != "9876543210" {
		t.Fatalf("credentials must be kept: %+v", sess)
	}
}

func TestOverviewPrefersStatusEndpoint(t *testing.T) {
	svc, _, _ := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/User/User_Info_new":
			io.WriteString(w, `{"status":200,"userId":"1","user_data":{"kyc_code":"0","monthly_limit":"5000"},"wallets_status":"2","balance":"150"}`)
		case "/Wallet/MobileValidate":
			io.WriteString(w, `{"status":200,"wallet_status":"0"}`)
		case "/Wallet/transactionReport":
			io.WriteString(w, `{"status":200,"tr_data":[
				{"transaction_id":"t1","type":"2","amount":"100","drcr":"D","created":"2024-05-03 10:00:00"},
				{"transaction_id":"t2","type":"1","amount":"500","drcr":"C","created":"2024-05-04"},
				{"transaction_id":"t3","type":"2","amount":"-20","created":"05/05/2024"},
				{"transaction_id":"t4","type":"2","amount":"70","drcr":"D","created":"2024-04-30"}]}`)
		case "/User/User_info":
			io.WriteString(w, `{"cashback":"12.5"}`)
		default:
			http.NotFound(w, r)
		}
	})
	svc.now = func() time.Time { return time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC) }
	seed(t, svc, "9876543210")
	ctx := context.Background()

	o, err := svc.Overview(ctx)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if o.WalletStatus != session.WalletReady || !o.Ready() {
		t.Fatalf("expected status endpoint to win, got %q", o.WalletStatus)
	}
	if stored, _ := svc.store.Field(ctx, session.KeyWalletStatus); stored != session.WalletReady {
		t.Fatalf("expected status persisted, got %q", stored)
	}
	if !o.MonthSpent.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("expected month spent 120, got %s", o.MonthSpent)
	}
	if !o.MonthlyLimit.Equal(decimal.NewFromInt(5000)) {
		t.Fatalf("unexpected monthly limit %s", o.MonthlyLimit)
	}
	if !o.HasCashback || o.Cashback.String() != "12.5" {
		t.Fatalf("unexpected cashback %s", o.Cashback)
	}
	if len(o.Transactions) != 4 || !o.Transactions[1].Credit || o.Transactions[0].Credit {
		t.Fatalf("unexpected transactions %+v", o.Transactions)
	}
	if !o.KYC.NeedsUpgrade() {
		t.Fatalf("expected KYC upgrade prompt")
	}
}

func TestActivationRefreshesAndPersistsStatus(t *testing.T) {
	var validated atomic.Bool
	svc, _, _ := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Wallet/resendUserRegOTP":
			io.WriteString(w, `{"message":"OTP sent"}`)
		case "/Wallet/otp_validation":
			_ = r.ParseForm()
			if r.PostForm.Get("otp") != "12345" {
				io.WriteString(w, `{"status":400,"message":"Invalid OTP"}`)
				return
			}
			validated.Store(true)
			io.WriteString(w, `{"status":200}`)
		case "/User/User_Info_new":
			io.WriteString(w, `{"status":200,"userId":"1","wallets_status":"20","balance":"0"}`)
		case "/Wallet/MobileValidate":
			if validated.Load() {
				io.WriteString(w, `{"status":200,"wallet_status":0}`)
				return
			}
			io.WriteString(w, `{"status":200,"wallet_status":20}`)
		}
	})
	seed(t, svc, "9876543210")
	ctx := context.Background()

	flow := svc.ActivationFlow()
	if err := flow.Send(ctx); err != nil {
		t.Fatalf("send: %v", err)
	}
	if err := flow.Verify(ctx, "99999"); err == nil {
		t.Fatalf("expected wrong code to fail")
	}
	if err := flow.Verify(ctx, "12345"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if stored, _ := svc.store.Field(ctx, session.KeyWalletStatus); stored != session.WalletReady {
		t.Fatalf("expected ready status, got %q", stored)
	}
}

func TestAddMoneyIsSilentOnFailure(t *testing.T) {
	svc, _, ct := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":500,"message":"gateway down"}`)
	})
	ctx := context.Background()
	if _, ok := svc.AddMoney(ctx, decimal.NewFromInt(100)); ok {
		t.Fatalf("expected failure without credentials")
	}
	seed(t, svc, "9876543210")
	if _, ok := svc.AddMoney(ctx, decimal.Zero); ok {
		t.Fatalf("expected zero amount to be rejected")
	}
	if ct.calls.Load() != 0 {
		t.Fatalf("no request expected yet")
	}
	if _, ok := svc.AddMoney(ctx, decimal.NewFromInt(100)); ok {
		t.Fatalf("expected server failure to report ok=false")
	}
}

func TestMonthSpentIgnoresCreditsByType(t *testing.T) {
	now := time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)
	txns := []api.Transaction{
		{Type: "4", Amount: "300", Created: "2024-05-01"},
		{Type: "CREDIT", Amount: "300", Created: "2024-05-01"},
		{Type: "9", Amount: "+40", Created: "2024-05-01"},
		{Type: "9", Amount: "₹ 25.50", Created: "2024-05-02"},
		{Type: "9", Amount: "10", Created: "garbage"},
	}
	if got := MonthSpent(txns, now); !got.Equal(decimal.RequireFromString("25.5")) {
		t.Fatalf("expected 25.5, got %s", got)
	}
}
