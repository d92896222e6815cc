package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/medpass/medpass/internal/session"
)

// SetPIN enables (with pin) or disables (with an empty pin) the transaction PIN.
func (c *Client) SetPIN(ctx context.Context, creds session.Credentials, pin string, enabled bool) (Ack, error) {
	auth, err := authed(creds)
	if err != nil {
		return Ack{}, err
	}
	status := "0"
	if enabled {
		status = "1"
	}
	var ack Ack
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/User/setPin",
		form:      url.Values{"pin": {pin}, "pin_status": {status}},
		creds:     auth,
		versioned: true,
	}, &ack)
	return ack, err
}

// CheckPIN verifies the transaction PIN server side.
func (c *Client) CheckPIN(ctx context.Context, creds session.Credentials, pin string) (Ack, error) {
	auth, err := authed(creds)
	if err != nil {
		return Ack{}, err
	}
	var ack Ack
	err = c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/User/checkPin",
		form:      url.Values{"pin": {pin}},
		creds:     auth,
		versioned: true,
	}, &ack)
	return ack, err
}
