package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/medpass/medpass/internal/session"
)

// RegisterUser submits the wallet registration (KYC) form. Fields are sent as
// given; KYCFLAG is always set.
func (c *Client) RegisterUser(ctx context.Context, creds session.Credentials, fields url.Values) (Ack, error) {
	auth, err := authed(creds)
	if err != nil {
		return Ack{}, err
	}
	form := url.Values{}
	for k, v := range fields {
		form[k] = append([]string(nil), v...)
	}
	form.Set("KYCFLAG", "1")
	var ack Ack
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/Wallet/registerUser",
		multipart: form,
		creds:     auth,
	}, &ack)
	return ack, err
}

// UpgradeKYC uploads proof documents along with their supporting fields.
func (c *Client) UpgradeKYC(ctx context.Context, creds session.Credentials, fields url.Values, files []File) (Ack, error) {
	auth, err := authed(creds)
	if err != nil {
		return Ack{}, err
	}
	if fields == nil {
		fields = url.Values{}
	}
	var ack Ack
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/Wallet/UpgradeKYC",
		multipart: fields,
		files:     files,
		creds:     auth,
		versioned: true,
	}, &ack)
	return ack, err
}
