package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/medpass/medpass/internal/session"
)

// RequestOTP asks the backend to send a login OTP to mobile.
func (c *Client) RequestOTP(ctx context.Context, mobile string) (Ack, error) {
	var ack Ack
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/User/UserReg",
		multipart: url.Values{"mobile": {mobile}, "otpstatus": {"1"}},
	}, &ack)
	return ack, err
}

// VerifyOTP exchanges a login OTP for a token, user id and profile snapshot.
func (c *Client) VerifyOTP(ctx context.Context, mobile, otp string) (session.Payload, error) {
	var p session.Payload
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      "/User/verify_otp",
		multipart: url.Values{"mobile": {mobile}, "otp": {otp}, "username": {""}},
	}, &p)
	return p, err
}
