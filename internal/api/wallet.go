package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/session"
)

// Transaction is one row of the wallet transaction report.
type Transaction struct {
	TransactionID session.Scalar `json:"transaction_id"`
	Type          session.Scalar `json:"type"`
	Amount        session.Scalar `json:"amount"`
	DrCr          session.Scalar `json:"drcr"`
	API           session.Scalar `json:"api"`
	ProviderName  session.Scalar `json:"provider_name"`
	Created       session.Scalar `json:"created"`
}

// MobileValidate asks the dedicated endpoint for the wallet readiness code.
// It needs token, user id and the mobile cached at login.
func (c *Client) MobileValidate(ctx context.Context, creds session.Credentials) (string, error) {
	auth, err := authed(creds)
	if err != nil {
		return "", err
	}
	if creds.Mobile == "" {
		return "", ErrMissingCredentials
	}
	var resp struct {
		WalletStatus session.Scalar `json:"wallet_status"`
	}
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/Wallet/MobileValidate",
		form:      url.Values{"mobile": {creds.Mobile}},
		creds:     auth,
		versioned: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	return resp.WalletStatus.String(), nil
}

// ResendWalletOTP triggers a new wallet activation OTP.
func (c *Client) ResendWalletOTP(ctx context.Context, creds session.Credentials) (Ack, error) {
	auth, err := authed(creds)
	if err != nil {
		return Ack{}, err
	}
	var ack Ack
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/Wallet/resendUserRegOTP",
		form:      url.Values{"otp": {""}, "transaction_id": {""}},
		creds:     auth,
		versioned: true,
		lenient:   true,
	}, &ack)
	return ack, err
}

// ValidateWalletOTP submits the wallet activation OTP.
func (c *Client) ValidateWalletOTP(ctx context.Context, creds session.Credentials, otp string) (Ack, error) {
	auth, err := authed(creds)
	if err != nil {
		return Ack{}, err
	}
	var ack Ack
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/Wallet/otp_validation",
		form:      url.Values{"otp": {otp}},
		creds:     auth,
		versioned: true,
		lenient:   true,
	}, &ack)
	return ack, err
}

// TransactionReport lists recent wallet transactions.
func (c *Client) TransactionReport(ctx context.Context, creds session.Credentials) ([]Transaction, error) {
	auth, err := authed(creds)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Data []Transaction `json:"tr_data"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/Wallet/transactionReport", creds: auth}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// CreateOrder registers an add-money order and returns the checkout order id.
func (c *Client) CreateOrder(ctx context.Context, creds session.Credentials, amount decimal.Decimal) (string, error) {
	auth, err := authed(creds)
	if err != nil {
		return "", err
	}
	var resp struct {
		OrderID session.Scalar `json:"order_id"`
	}
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/Home/pay",
		form:      url.Values{"amount": {amount.String()}},
		creds:     auth,
		versioned: true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.OrderID == "" {
		return "", &StatusError{HTTPStatus: http.StatusOK, Status: "200", Message: "missing order id"}
	}
	return resp.OrderID.String(), nil
}
