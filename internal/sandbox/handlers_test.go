package sandbox

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/medpass/medpass/internal/config"
)

func testConfig() config.Config {
	return config.Config{AppName: "Medpass", SandboxOTP: "12345", OTPTTL: time.Minute, IdempotencyTTL: time.Minute}
}

func doForm(t *testing.T, app *fiber.App, method, path string, form url.Values, headers map[string]string) (int, map[string]any) {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, path, body)
	if form != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return resp.StatusCode, out
}

func login(t *testing.T, app *fiber.App, mobile string) map[string]string {
	t.Helper()
	if _, out := doForm(t, app, fiber.MethodPost, "/User/UserReg", url.Values{"mobile": {mobile}}, nil); out["status"] != float64(200) {
		t.Fatalf("otp request failed: %v", out)
	}
	_, out := doForm(t, app, fiber.MethodPost, "/User/verify_otp", url.Values{"mobile": {mobile}, "otp": {"12345"}}, nil)
	token, _ := out["token"].(string)
	uid, _ := out["userId"].(string)
	if token == "" || uid == "" {
		t.Fatalf("login failed: %v", out)
	}
	return map[string]string{"token": token, "User-ID": uid}
}

func TestHealthz(t *testing.T) {
	app := NewApp(Deps{Cfg: testConfig()})
	req := httptest.NewRequest(fiber.MethodGet, "/healthz", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
}

func TestLoginRejectsBadInput(t *testing.T) {
	app := NewApp(Deps{Cfg: testConfig()})
	_, out := doForm(t, app, fiber.MethodPost, "/User/UserReg", url.Values{"mobile": {"123"}}, nil)
	if out["status"] != float64(400) {
		t.Fatalf("expected status 400, got %v", out)
	}
	doForm(t, app, fiber.MethodPost, "/User/UserReg", url.Values{"mobile": {"9876543210"}}, nil)
	_, out = doForm(t, app, fiber.MethodPost, "/User/verify_otp", url.Values{"mobile": {"9876543210"}, "otp": {"00000"}}, nil)
	if out["status"] != float64(400) || out["message"] != "Invalid OTP" {
		t.Fatalf("expected invalid otp, got %v", out)
	}
}

func TestAuthenticatedRoutesNeedCredentials(t *testing.T) {
	app := NewApp(Deps{Cfg: testConfig()})
	code, out := doForm(t, app, fiber.MethodGet, "/User/User_Info_new", nil, map[string]string{"token": "x", "User-ID": "1"})
	if code != fiber.StatusUnauthorized || out["status"] != float64(401) {
		t.Fatalf("expected 401 envelope, got %d %v", code, out)
	}
}

func TestWalletLifecycle(t *testing.T) {
	app := NewApp(Deps{Cfg: testConfig()})
	creds := login(t, app, "9876543210")

	_, out := doForm(t, app, fiber.MethodPost, "/Wallet/MobileValidate", url.Values{"mobile": {"9876543210"}}, creds)
	if out["wallet_status"] != float64(2) {
		t.Fatalf("expected registration required, got %v", out)
	}

	reg := url.Values{"KYCFLAG": {"1"}}
	for _, k := range kycRequired {
		reg.Set(k, "x")
	}
	if _, out := doForm(t, app, fiber.MethodPost, "/Wallet/registerUser", reg, creds); out["status"] != float64(200) {
		t.Fatalf("register failed: %v", out)
	}
	_, out = doForm(t, app, fiber.MethodPost, "/Wallet/MobileValidate", url.Values{"mobile": {"9876543210"}}, creds)
	if out["wallet_status"] != float64(20) {
		t.Fatalf("expected otp pending, got %v", out)
	}
	if _, out := doForm(t, app, fiber.MethodPost, "/Wallet/otp_validation", url.Values{"otp": {"12345"}}, creds); out["status"] != float64(200) {
		t.Fatalf("activation failed: %v", out)
	}

	_, out = doForm(t, app, fiber.MethodPost, "/Wallet/makeTransaction", url.Values{"service_id": {"1"}, "amount": {"50"}}, creds)
	if out["status"] != float64(409) {
		t.Fatalf("expected insufficient balance, got %v", out)
	}
	if _, out := doForm(t, app, fiber.MethodPost, "/Home/pay", url.Values{"amount": {"100"}}, creds); out["order_id"] == nil {
		t.Fatalf("order failed: %v", out)
	}

	payHeaders := map[string]string{"token": creds["token"], "User-ID": creds["User-ID"], "Idempotency-Key": "k1"}
	_, first := doForm(t, app, fiber.MethodPost, "/Wallet/makeTransaction", url.Values{"service_id": {"1"}, "amount": {"40"}}, payHeaders)
	_, second := doForm(t, app, fiber.MethodPost, "/Wallet/makeTransaction", url.Values{"service_id": {"1"}, "amount": {"40"}}, payHeaders)
	if first["transaction_id"] != second["transaction_id"] || second["balance"] != "60.00" {
		t.Fatalf("expected replayed payment, got %v and %v", first, second)
	}

	_, out = doForm(t, app, fiber.MethodGet, "/Wallet/transactionReport", nil, creds)
	rows, _ := out["tr_data"].([]any)
	if len(rows) != 2 {
		t.Fatalf("expected 2 transactions, got %v", out)
	}
}

func TestIdempotencyWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()
	state := NewState("12345", time.Minute)
	app := NewApp(Deps{Cfg: testConfig(), Cache: cache, State: state})
	creds := login(t, app, "9000000001")

	reg := url.Values{"KYCFLAG": {"1"}}
	for _, k := range kycRequired {
		reg.Set(k, "x")
	}
	doForm(t, app, fiber.MethodPost, "/Wallet/registerUser", reg, creds)
	doForm(t, app, fiber.MethodPost, "/Wallet/otp_validation", url.Values{"otp": {"12345"}}, creds)
	doForm(t, app, fiber.MethodPost, "/Home/pay", url.Values{"amount": {"100"}}, creds)

	headers := map[string]string{"token": creds["token"], "User-ID": creds["User-ID"], "Idempotency-Key": "same"}
	doForm(t, app, fiber.MethodPost, "/Wallet/makeTransaction", url.Values{"service_id": {"3"}, "amount": {"10"}}, headers)
	doForm(t, app, fiber.MethodPost, "/Wallet/makeTransaction", url.Values{"service_id": {"3"}, "amount": {"10"}}, headers)

	keys := mr.Keys()
	found := false
	for _, k := range keys {
		if strings.HasPrefix(k, "idempotency:v1:") {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected idempotency key in redis, got %v", keys)
	}
	txns, _ := state.Transactions(creds["User-ID"])
	if len(txns) != 2 {
		t.Fatalf("expected one top-up and one payment, got %d", len(txns))
	}
}

func TestMerchantsFilterAndDistance(t *testing.T) {
	app := NewApp(Deps{Cfg: testConfig()})
	_, out := doForm(t, app, fiber.MethodGet, "/user/get_merchants?lat=11.587825&lng=76.026344&id=2", nil, nil)
	list, _ := out["merchant_data"].([]any)
	if len(list) != 2 {
		t.Fatalf("expected two lab merchants, got %v", out)
	}
	first := list[0].(map[string]any)
	if _, ok := first["kms"].(float64); !ok {
		t.Fatalf("expected numeric kms, got %v", first["kms"])
	}

	_, out = doForm(t, app, fiber.MethodGet, "/user/get_services/101", nil, nil)
	work, _ := out["work_data"].([]any)
	if len(work) != 7 {
		t.Fatalf("expected a week of hours, got %v", out)
	}
}
