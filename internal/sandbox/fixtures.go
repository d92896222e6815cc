package sandbox

import (
	"math"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type merchantService struct {
	ID     string
	Name   string
	Amount string
}

type workDay struct {
	Day                            string
	Open                           bool
	MrgFrom, MrgTo, EveFrom, EveTo string
}

type merchantFixture struct {
	ID          string
	Name        string
	DisplayName string
	Phone       string
	Address     string
	City        string
	State       string
	Email       string
	Website     string
	Logo        string
	MedType     string
	MaxDiscount string
	Lat, Lng    float64
	Services    []merchantService
}

var weekSchedule = []workDay{
	{"Monday", true, "09:00", "13:00", "16:00", "20:00"},
	{"Tuesday", true, "09:00", "13:00", "16:00", "20:00"},
	{"Wednesday", true, "09:00", "13:00", "16:00", "20:00"},
	{"Thursday", true, "09:00", "13:00", "16:00", "20:00"},
	{"Friday", true, "09:00", "13:00", "16:00", "20:00"},
	{"Saturday", true, "09:00", "13:00", "", ""},
	{"Sunday", false, "", "", "", ""},
}

var merchantFixtures = []merchantFixture{
	{
		ID: "101", Name: "wayanad-family-clinic", DisplayName: "Wayanad Family Clinic",
		Phone: "9447000101", Address: "Main Road, Kalpetta", City: "Kalpetta", State: "Kerala",
		Email: "care@wfc.example", Website: "https://wfc.example", Logo: "wfc.png",
		MedType: "Clinic", MaxDiscount: "10", Lat: 11.6085, Lng: 76.0830,
		Services: []merchantService{{"1", "General Consultation", "300"}, {"2", "Lab Tests", "500"}},
	},
	{
		ID: "102", Name: "hill-view-pharmacy",
		Phone: "9447000102", Address: "Bus Stand, Mananthavady", City: "Mananthavady", State: "Kerala",
		Logo: "", MedType: "Pharmacy", MaxDiscount: "15", Lat: 11.8014, Lng: 76.0044,
		Services: []merchantService{{"3", "Pharmacy", "0"}},
	},
	{
		ID: "103", Name: "green-valley-diagnostics", DisplayName: "Green Valley Diagnostics",
		Phone: "9447000103", Address: "NH 766, Sulthan Bathery", City: "Sulthan Bathery", State: "Kerala",
		Email: "lab@gvd.example", Logo: "gvd.png", MedType: "Diagnostics", Lat: 11.6656, Lng: 76.2627,
		Services: []merchantService{{"2", "Lab Tests", "450"}, {"4", "Imaging", "1200"}},
	},
}

func findMerchant(id string) (merchantFixture, bool) {
	for _, m := range merchantFixtures {
		if m.ID == id {
			return m, true
		}
	}
	return merchantFixture{}, false
}

func (m merchantFixture) offers(serviceID string) bool {
	for _, s := range m.Services {
		if s.ID == serviceID {
			return true
		}
	}
	return false
}

func (m merchantFixture) serviceName(serviceID string) string {
	for _, s := range m.Services {
		if s.ID == serviceID {
			return s.Name
		}
	}
	return ""
}

func (m merchantFixture) record(from *[2]float64) fiber.Map {
	rec := fiber.Map{
		"id":                    m.ID,
		"name":                  m.Name,
		"provider_display_name": m.DisplayName,
		"phone_no":              m.Phone,
		"address":               m.Address,
		"city_name":             m.City,
		"state_name":            m.State,
		"email":                 m.Email,
		"merchant_website":      m.Website,
		"logo":                  m.Logo,
		"med_type":              m.MedType,
		"max_discount":          m.MaxDiscount,
		"latitude":              strconv.FormatFloat(m.Lat, 'f', 6, 64),
		"longitude":             strconv.FormatFloat(m.Lng, 'f', 6, 64),
	}
	if from != nil {
		rec["kms"] = math.Round(haversineKm(from[0], from[1], m.Lat, m.Lng)*10) / 10
	}
	return rec
}

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	const earthRadiusKm = 6371.0
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLng := (lng2 - lng1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

func (m merchantFixture) displayName() string {
	if m.DisplayName != "" {
		return m.DisplayName
	}
	return m.Name
}
