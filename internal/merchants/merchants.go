// Package merchants is the provider directory: nearby search, details and
// working hours.
package merchants

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/logging"
)

// LogoBaseURL prefixes merchant logo file names.
const LogoBaseURL = "https://mediimpact.in/assets/img/logo/"

// Fallback location used when the device position is unknown.
const (
	DefaultLatitude  = 11.587825
	DefaultLongitude = 76.026344
)

// Client is the part of the API the directory needs.
type Client interface {
	Merchants(ctx context.Context, q api.MerchantQuery) ([]api.MerchantRecord, error)
	Merchant(ctx context.Context, id string) (api.MerchantDetail, error)
	Services(ctx context.Context, id string) (api.MerchantServices, error)
}

// Location is a coordinate pair; a nil *Location means unknown.
type Location struct {
	Lat float64
	Lng float64
}

// Merchant is a normalized directory entry.
type Merchant struct {
	ID          string
	Name        string
	Phone       string
	Address     string
	Category    string
	Website     string
	LogoURL     string
	DistanceKm  *float64
	MaxDiscount *float64
	Lat         *float64
	Lng         *float64
}

// Distance renders the distance as "2.5 km", or "" when unknown.
func (m Merchant) Distance() string {
	if m.DistanceKm == nil {
		return ""
	}
	return strconv.FormatFloat(*m.DistanceKm, 'f', 1, 64) + " km"
}

// Discount renders the discount as "10% Off", or "" when absent.
func (m Merchant) Discount() string {
	if m.MaxDiscount == nil || *m.MaxDiscount == 0 {
		return ""
	}
	return strconv.FormatFloat(*m.MaxDiscount, 'f', -1, 64) + "% Off"
}

// Normalize maps a raw record, resolving legacy field aliases.
func Normalize(r api.MerchantRecord) Merchant {
	m := Merchant{
		ID:          r.ID.String(),
		Name:        first(r.ProviderDisplayName, r.Name),
		Phone:       first(r.PhoneNo, r.NotificationMobile, r.MerchantMobile, r.Phone),
		Address:     r.Address.String(),
		Category:    r.MedType.String(),
		Website:     first(r.MerchantWebsite, r.Website),
		DistanceKm:  number(r.Kms),
		MaxDiscount: number(r.MaxDiscount),
		Lat:         number(r.Latitude),
		Lng:         number(r.Longitude),
	}
	if logo := r.Logo.String(); logo != "" {
		m.LogoURL = LogoBaseURL + logo
	}
	return m
}

func first(values ...interface{ String() string }) string {
	for _, v := range values {
		if s := strings.TrimSpace(v.String()); s != "" {
			return s
		}
	}
	return ""
}

func number(v interface{ String() string }) *float64 {
	s := strings.TrimSpace(v.String())
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

// Filter keeps merchants whose name, address or phone contains query,
// case-insensitively. An empty query keeps everything.
func Filter(list []Merchant, query string) []Merchant {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return list
	}
	var out []Merchant
	for _, m := range list {
		if strings.Contains(strings.ToLower(m.Name), q) ||
			strings.Contains(strings.ToLower(m.Address), q) ||
			strings.Contains(strings.ToLower(m.Phone), q) {
			out = append(out, m)
		}
	}
	return out
}

// SortByDistance orders nearest first; unknown distances go last.
func SortByDistance(list []Merchant) {
	sort.SliceStable(list, func(i, j int) bool {
		return distanceKey(list[i]) < distanceKey(list[j])
	})
}

func distanceKey(m Merchant) float64 {
	if m.DistanceKm == nil {
		return math.MaxFloat64
	}
	return *m.DistanceKm
}

// SearchInput selects merchants.
type SearchInput struct {
	Location  *Location
	ServiceID string
	Query     string
}

// Detail is a merchant with its offered services.
type Detail struct {
	Merchant Merchant
	Services []string
}

// Branch is one merchant address.
type Branch struct {
	Name    string
	Address string
	City    string
	State   string
	Phone   string
	Email   string
	Lat     *float64
	Lng     *float64
}

// Hours is a working day.
type Hours struct {
	Day     string
	Open    bool
	Morning string
	Evening string
}

// Services is a merchant's branches and schedule.
type Services struct {
	Merchant Merchant
	Branches []Branch
	Hours    []Hours
}

// Directory looks up merchants.
type Directory struct {
	client Client
	logger *slog.Logger
}

// NewDirectory constructs a merchant directory.
func NewDirectory(client Client, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Directory{client: client, logger: logger}
}

// Search lists merchants near the location (or the default one), filtered
// by query and sorted nearest first.
func (d *Directory) Search(ctx context.Context, in SearchInput) ([]Merchant, error) {
	loc := Location{Lat: DefaultLatitude, Lng: DefaultLongitude}
	if in.Location != nil {
		loc = *in.Location
	}
	raw, err := d.client.Merchants(ctx, api.MerchantQuery{
		Lat:       strconv.FormatFloat(loc.Lat, 'f', -1, 64),
		Lng:       strconv.FormatFloat(loc.Lng, 'f', -1, 64),
		ServiceID: in.ServiceID,
	})
	if err != nil {
		d.logger.Warn("merchant search failed", "error", err)
		return nil, err
	}
	list := make([]Merchant, 0, len(raw))
	for _, r := range raw {
		list = append(list, Normalize(r))
	}
	list = Filter(list, in.Query)
	SortByDistance(list)
	return list, nil
}

// Detail fetches one merchant and its service names.
func (d *Directory) Detail(ctx context.Context, id string) (Detail, error) {
	raw, err := d.client.Merchant(ctx, id)
	if err != nil {
		return Detail{}, err
	}
	out := Detail{Merchant: Normalize(raw.Merchant)}
	for _, s := range raw.Services {
		if name := first(s.MainServiceName, s.ServiceName); name != "" {
			out.Services = append(out.Services, name)
		}
	}
	return out, nil
}

// Services fetches branches and working hours.
func (d *Directory) Services(ctx context.Context, id string) (Services, error) {
	raw, err := d.client.Services(ctx, id)
	if err != nil {
		return Services{}, err
	}
	out := Services{Merchant: Normalize(raw.Merchant)}
	for _, a := range raw.Addresses {
		out.Branches = append(out.Branches, Branch{
			Name:    a.ProviderName.String(),
			Address: a.Address.String(),
			City:    a.CityName.String(),
			State:   a.StateName.String(),
			Phone:   a.PhoneNo.String(),
			Email:   a.Email.String(),
			Lat:     number(a.Latitude),
			Lng:     number(a.Longitude),
		})
	}
	for _, w := range raw.Schedule {
		h := Hours{Day: w.Day.String(), Open: w.WorkingTag.String() == "1"}
		if h.Open {
			h.Morning = span(w.MrgFrom.String(), w.MrgTo.String())
			h.Evening = span(w.EveFrom.String(), w.EveTo.String())
		}
		out.Hours = append(out.Hours, h)
	}
	return out, nil
}

func span(from, to string) string {
	if from == "" || to == "" {
		return ""
	}
	return from + " - " + to
}
