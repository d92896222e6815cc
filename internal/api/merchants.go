package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/medpass/medpass/internal/session"
)

// MerchantRecord is a merchant as the directory endpoints return it. Several
// fields have legacy aliases; callers normalize them.
type MerchantRecord struct {
	ID                  session.Scalar `json:"id"`
	Name                session.Scalar `json:"name"`
	ProviderDisplayName session.Scalar `json:"provider_display_name"`
	PhoneNo             session.Scalar `json:"phone_no"`
	NotificationMobile  session.Scalar `json:"notification_mobile"`
	MerchantMobile      session.Scalar `json:"merchant_mobile"`
	Phone               session.Scalar `json:"phone"`
	Address             session.Scalar `json:"address"`
	Kms                 session.Scalar `json:"kms"`
	MaxDiscount         session.Scalar `json:"max_discount"`
	MedType             session.Scalar `json:"med_type"`
	Logo                session.Scalar `json:"logo"`
	Latitude            session.Scalar `json:"latitude"`
	Longitude           session.Scalar `json:"longitude"`
	MerchantWebsite     session.Scalar `json:"merchant_website"`
	Website             session.Scalar `json:"website"`
	Email               session.Scalar `json:"email"`
	CityName            session.Scalar `json:"city_name"`
	StateName           session.Scalar `json:"state_name"`
}

// ServiceRecord is one service a merchant offers.
type ServiceRecord struct {
	ID              session.Scalar `json:"id"`
	ServiceID       session.Scalar `json:"service_id"`
	MainServiceName session.Scalar `json:"main_service_name"`
	ServiceName     session.Scalar `json:"service_name"`
	Amount          session.Scalar `json:"amount"`
}

// AddressRecord is a merchant branch address.
type AddressRecord struct {
	ProviderName session.Scalar `json:"provider_name"`
	Address      session.Scalar `json:"address"`
	CityName     session.Scalar `json:"city_name"`
	StateName    session.Scalar `json:"state_name"`
	PhoneNo      session.Scalar `json:"phone_no"`
	Email        session.Scalar `json:"email"`
	Latitude     session.Scalar `json:"latitude"`
	Longitude    session.Scalar `json:"longitude"`
}

// WorkRecord is one row of a merchant's weekly schedule.
type WorkRecord struct {
	Day        session.Scalar `json:"day"`
	WorkingTag session.Scalar `json:"working_tag"`
	MrgFrom    session.Scalar `json:"mrg_from"`
	MrgTo      session.Scalar `json:"mrg_to"`
	EveFrom    session.Scalar `json:"eve_from"`
	EveTo      session.Scalar `json:"eve_to"`
}

// MerchantQuery selects merchants near a location, optionally for one service.
type MerchantQuery struct {
	Lat       string
	Lng       string
	ServiceID string
}

// MerchantDetail is the single-merchant response.
type MerchantDetail struct {
	Merchant MerchantRecord
	Services []ServiceRecord
}

// MerchantServices is the services/branches/schedule response.
type MerchantServices struct {
	Merchant  MerchantRecord
	Addresses []AddressRecord
	Schedule  []WorkRecord
}

// Merchants lists merchants near q's location.
func (c *Client) Merchants(ctx context.Context, q MerchantQuery) ([]MerchantRecord, error) {
	query := url.Values{"lat": {q.Lat}, "lng": {q.Lng}}
	if q.ServiceID != "" {
		query.Set("id", q.ServiceID)
	}
	var resp struct {
		Data []MerchantRecord `json:"merchant_data"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user/get_merchants", query: query, lenient: true}, &resp); err != nil {
		return nil, err
	}
	return resp.Data, nil
}

// Merchant fetches one merchant and the services it offers.
func (c *Client) Merchant(ctx context.Context, id string) (MerchantDetail, error) {
	var resp struct {
		Merchant merchantField  `json:"merchant_data"`
		Services []ServiceRecord `json:"service_data"`
	}
	if err := c.do(ctx, request{method: http.MethodGet, path: "/user/get_single_merchant/" + url.PathEscape(id), lenient: true}, &resp); err != nil {
		return MerchantDetail{}, err
	}
	return MerchantDetail{Merchant: resp.Merchant.MerchantRecord, Services: resp.Services}, nil
}

// Services fetches a merchant's branches and working hours.
func (c *Client) Services(ctx context.Context, id string) (MerchantServices, error) {
	var resp struct {
		Merchant  merchantField   `json:"merchant_data"`
		Addresses []AddressRecord `json:"address_data"`
		Schedule  []WorkRecord    `json:"work_data"`
	}
	err := c.do(ctx, request{
		method:  http.MethodGet,
		path:    "/user/get_services/" + url.PathEscape(id),
		lenient: true,
	}, &resp)
	if err != nil {
		return MerchantServices{}, err
	}
	return MerchantServices{Merchant: resp.Merchant.MerchantRecord, Addresses: resp.Addresses, Schedule: resp.Schedule}, nil
}
