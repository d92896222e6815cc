package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/session"
)

// Txn describes a wallet payment to a merchant service.
type Txn struct {
	ServiceID   string
	Amount      decimal.Decimal
	PRN         string
	BACode      string
	Description string
	PartyCode   string
	// IdempotencyKey is sent so a repeated submission is not charged twice.
	IdempotencyKey string
}

// TxnResult is the server acknowledgement of a payment.
type TxnResult struct {
	Status        session.Scalar `json:"status"`
	Message       session.Scalar `json:"message"`
	TransactionID session.Scalar `json:"transaction_id"`
	Balance       session.Scalar `json:"balance"`
}

// MakeTransaction executes a payment.
func (c *Client) MakeTransaction(ctx context.Context, creds session.Credentials, t Txn) (TxnResult, error) {
	auth, err := authed(creds)
	if err != nil {
		return TxnResult{}, err
	}
	key := t.IdempotencyKey
	if key == "" {
		key = NewIdempotencyKey()
	}
	var res TxnResult
	err = c.do(ctx, request{
		method: http.MethodPost,
		path:   "/Wallet/makeTransaction",
		form: url.Values{
			"service_id": {t.ServiceID},
			"amount":     {t.Amount.String()},
			"prn":        {t.PRN},
			"ba_code":    {t.BACode},
			"desc":       {t.Description},
			"partycode":  {t.PartyCode},
		},
		creds:     auth,
		versioned: true,
		headers:   map[string]string{headerIdempotencyKey: key},
	}, &res)
	return res, err
}
