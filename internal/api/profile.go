package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/session"
)

// UserInfo fetches the current profile, wallet snapshot and balance.
func (c *Client) UserInfo(ctx context.Context, creds session.Credentials) (session.Payload, error) {
	auth, err := authed(creds)
	if err != nil {
		return session.Payload{}, err
	}
	var p session.Payload
	err = c.do(ctx, request{method: http.MethodGet, path: "/User/User_Info_new", creds: auth}, &p)
	return p, err
}

// Cashback reads the cashback total from the legacy user-info endpoint. ok is
// false when the server does not report a numeric value.
func (c *Client) Cashback(ctx context.Context, creds session.Credentials) (amount decimal.Decimal, ok bool, err error) {
	auth, err := authed(creds)
	if err != nil {
		return decimal.Zero, false, err
	}
	var resp struct {
		Cashback session.Scalar `json:"cashback"`
		UserData json.RawMessage `json:"user_data"`
	}
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/User/User_info",
		form:      url.Values{},
		creds:     auth,
		versioned: true,
		lenient:   true,
	}, &resp)
	if err != nil {
		return decimal.Zero, false, err
	}
	raw := resp.Cashback
	if raw == "" && len(resp.UserData) > 0 {
		var nested struct {
			Cashback session.Scalar `json:"cashback"`
		}
		if json.Unmarshal(resp.UserData, &nested) == nil {
			raw = nested.Cashback
		}
	}
	d, perr := decimal.NewFromString(raw.String())
	if perr != nil {
		return decimal.Zero, false, nil
	}
	return d, true, nil
}
