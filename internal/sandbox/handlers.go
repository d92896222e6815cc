package sandbox

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/middleware"
)

const maxUploadSize = 2 << 20

var kycRequired = []string{
	"firstname", "lastname", "dob", "email", "mobile", "state",
	"city", "address", "pincode", "id_proof_no", "gender", "add_proof_no",
}

var kycFields = append([]string{
	"middlename", "mothers_maiden_name", "id_proof_type", "add_proof_type",
}, kycRequired...)

// Handler serves the backend contract from State.
type Handler struct {
	state  *State
	logger *slog.Logger
}

// NewHandler builds the sandbox handler.
func NewHandler(state *State, logger *slog.Logger) *Handler {
	return &Handler{state: state, logger: logger}
}

func ok(c *fiber.Ctx, body fiber.Map) error {
	if body == nil {
		body = fiber.Map{}
	}
	body["status"] = http.StatusOK
	return c.Status(http.StatusOK).JSON(body)
}

// reject answers HTTP 200 with an application status, as the real backend does.
func reject(c *fiber.Ctx, status int, message string) error {
	return c.Status(http.StatusOK).JSON(fiber.Map{"status": status, "message": message})
}

func rejectErr(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errUnknownUser):
		return fiber.NewError(http.StatusUnauthorized, err.Error())
	case errors.Is(err, errInsufficient), errors.Is(err, errWalletNotReady), errors.Is(err, errWrongWalletState):
		return reject(c, http.StatusConflict, err.Error())
	default:
		return reject(c, http.StatusBadRequest, err.Error())
	}
}

func snapshotBody(s Snapshot) fiber.Map {
	body := fiber.Map{
		"userId":         s.UserID,
		"name":           s.Name,
		"user_data":      s.Profile,
		"wallets_status": s.WalletStatus,
		"balance":        s.Balance.StringFixed(2),
		"ba_code":        s.BACode,
	}
	if s.Token != "" {
		body["token"] = s.Token
	}
	return body
}

func validMobile(m string) bool {
	if len(m) != 10 {
		return false
	}
	for _, r := range m {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// RequestOTP handles POST /User/UserReg.
func (h *Handler) RequestOTP(c *fiber.Ctx) error {
	mobile := strings.TrimSpace(c.FormValue("mobile"))
	if !validMobile(mobile) {
		return reject(c, http.StatusBadRequest, "Invalid mobile number")
	}
	h.state.RequestOTP(mobile)
	return ok(c, fiber.Map{"message": "OTP sent successfully"})
}

// VerifyOTP handles POST /User/verify_otp.
func (h *Handler) VerifyOTP(c *fiber.Ctx) error {
	snap, err := h.state.VerifyOTP(strings.TrimSpace(c.FormValue("mobile")), strings.TrimSpace(c.FormValue("otp")))
	if err != nil {
		return reject(c, http.StatusBadRequest, err.Error())
	}
	body := snapshotBody(snap)
	body["message"] = "Login successful"
	return ok(c, body)
}

// UserInfo handles GET /User/User_Info_new.
func (h *Handler) UserInfo(c *fiber.Ctx) error {
	snap, err := h.state.Snapshot(middleware.UserID(c))
	if err != nil {
		return rejectErr(c, err)
	}
	return ok(c, snapshotBody(snap))
}

// Cashback handles POST /User/User_info.
func (h *Handler) Cashback(c *fiber.Ctx) error {
	snap, err := h.state.Snapshot(middleware.UserID(c))
	if err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"user_data": fiber.Map{"cashback": snap.Cashback.StringFixed(2)}})
}

// MobileValidate handles POST /Wallet/MobileValidate.
func (h *Handler) MobileValidate(c *fiber.Ctx) error {
	status, err := h.state.WalletStatus(middleware.UserID(c), strings.TrimSpace(c.FormValue("mobile")))
	if err != nil {
		return rejectErr(c, err)
	}
	n, _ := strconv.Atoi(status)
	return ok(c, fiber.Map{"wallet_status": n})
}

// RegisterUser handles POST /Wallet/registerUser.
func (h *Handler) RegisterUser(c *fiber.Ctx) error {
	if c.FormValue("KYCFLAG") != "1" {
		return reject(c, http.StatusBadRequest, "KYCFLAG is required")
	}
	fields := make(map[string]string, len(kycFields))
	for _, k := range kycFields {
		fields[k] = strings.TrimSpace(c.FormValue(k))
	}
	var missing []string
	for _, k := range kycRequired {
		if fields[k] == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return reject(c, http.StatusBadRequest, "Missing fields: "+strings.Join(missing, ", "))
	}
	if err := h.state.Register(middleware.UserID(c), fields); err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"message": "Profile updated successfully"})
}

// ResendWalletOTP handles POST /Wallet/resendUserRegOTP.
func (h *Handler) ResendWalletOTP(c *fiber.Ctx) error {
	if err := h.state.ResendWalletOTP(middleware.UserID(c)); err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"message": "OTP sent successfully"})
}

// ValidateWalletOTP handles POST /Wallet/otp_validation.
func (h *Handler) ValidateWalletOTP(c *fiber.Ctx) error {
	if err := h.state.ValidateWalletOTP(middleware.UserID(c), strings.TrimSpace(c.FormValue("otp"))); err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"message": "Wallet verified successfully"})
}

// UpgradeKYC handles POST /Wallet/UpgradeKYC.
func (h *Handler) UpgradeKYC(c *fiber.Ctx) error {
	uploaded := 0
	for _, field := range []string{"address_proof", "id_proof_file"} {
		fh, err := c.FormFile(field)
		if err != nil {
			continue
		}
		if fh.Size > maxUploadSize {
			return reject(c, http.StatusBadRequest, "Each file must be under 2 MB")
		}
		uploaded++
	}
	if uploaded == 0 {
		return reject(c, http.StatusBadRequest, "Invalid document format")
	}
	fields := map[string]string{}
	for _, k := range []string{"add_proof_type", "add_proof_no", "id_proof_type", "id_proof_no", "middlename", "mothers_maiden_name", "email"} {
		fields[k] = strings.TrimSpace(c.FormValue(k))
	}
	if err := h.state.UpgradeKYC(middleware.UserID(c), fields); err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"message": "KYC documents uploaded"})
}

func formAmount(c *fiber.Ctx) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(strings.TrimSpace(c.FormValue("amount")))
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, false
	}
	return amount, true
}

// CreateOrder handles POST /Home/pay.
func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	amount, valid := formAmount(c)
	if !valid {
		return reject(c, http.StatusBadRequest, "Invalid amount")
	}
	orderID, err := h.state.CreateOrder(middleware.UserID(c), amount)
	if err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"order_id": orderID, "amount": amount.StringFixed(2)})
}

// MakeTransaction handles POST /Wallet/makeTransaction.
func (h *Handler) MakeTransaction(c *fiber.Ctx) error {
	amount, valid := formAmount(c)
	if !valid || amount.LessThan(decimal.NewFromInt(1)) {
		return reject(c, http.StatusBadRequest, "Invalid amount")
	}
	serviceID := strings.TrimSpace(c.FormValue("service_id"))
	if serviceID == "" {
		return reject(c, http.StatusBadRequest, "service_id is required")
	}
	provider := c.FormValue("desc")
	for _, m := range merchantFixtures {
		if name := m.serviceName(serviceID); name != "" {
			provider = m.displayName()
			break
		}
	}
	receipt, replayed, err := h.state.Pay(middleware.UserID(c), c.Get("Idempotency-Key"), serviceID, provider, amount)
	if err != nil {
		return rejectErr(c, err)
	}
	if replayed {
		h.logger.Info("payment replayed", "transaction_id", receipt.TransactionID)
	}
	return ok(c, fiber.Map{
		"message":        "Payment successful",
		"transaction_id": receipt.TransactionID,
		"balance":        receipt.Balance.StringFixed(2),
	})
}

// TransactionReport handles GET /Wallet/transactionReport.
func (h *Handler) TransactionReport(c *fiber.Ctx) error {
	txns, err := h.state.Transactions(middleware.UserID(c))
	if err != nil {
		return rejectErr(c, err)
	}
	rows := make([]fiber.Map, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, fiber.Map{
			"transaction_id": t.ID,
			"type":           t.Type,
			"amount":         t.Amount.StringFixed(2),
			"drcr":           t.DrCr,
			"api":            t.API,
			"provider_name":  t.Provider,
			"created":        t.Created.Format(time.DateTime),
		})
	}
	return ok(c, fiber.Map{"tr_data": rows})
}

// SetPIN handles POST /User/setPin.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	enabled := c.FormValue("pin_status") == "1"
	pin := c.FormValue("pin")
	if enabled && (len(pin) != 4 || strings.Trim(pin, "0123456789") != "") {
		return reject(c, http.StatusBadRequest, "PIN must be 4 digits")
	}
	if err := h.state.SetPIN(middleware.UserID(c), pin, enabled); err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"message": "PIN updated"})
}

// CheckPIN handles POST /User/checkPin.
func (h *Handler) CheckPIN(c *fiber.Ctx) error {
	if err := h.state.CheckPIN(middleware.UserID(c), c.FormValue("pin")); err != nil {
		return rejectErr(c, err)
	}
	return ok(c, fiber.Map{"message": "PIN verified"})
}

// Merchants handles GET /user/get_merchants.
func (h *Handler) Merchants(c *fiber.Ctx) error {
	var from *[2]float64
	lat, latErr := strconv.ParseFloat(c.Query("lat"), 64)
	lng, lngErr := strconv.ParseFloat(c.Query("lng"), 64)
	if latErr == nil && lngErr == nil {
		from = &[2]float64{lat, lng}
	}
	serviceID := c.Query("id")
	list := make([]fiber.Map, 0, len(merchantFixtures))
	for _, m := range merchantFixtures {
		if serviceID != "" && !m.offers(serviceID) {
			continue
		}
		list = append(list, m.record(from))
	}
	return ok(c, fiber.Map{"merchant_data": list})
}

// Merchant handles GET /user/get_single_merchant/:id.
func (h *Handler) Merchant(c *fiber.Ctx) error {
	m, found := findMerchant(c.Params("id"))
	if !found {
		return reject(c, http.StatusNotFound, "Merchant not found")
	}
	services := make([]fiber.Map, 0, len(m.Services))
	for _, s := range m.Services {
		services = append(services, fiber.Map{"service_id": s.ID, "main_service_name": s.Name, "amount": s.Amount})
	}
	return ok(c, fiber.Map{"merchant_data": []fiber.Map{m.record(nil)}, "service_data": services})
}

// Services handles GET /user/get_services/:id.
func (h *Handler) Services(c *fiber.Ctx) error {
	m, found := findMerchant(c.Params("id"))
	if !found {
		return reject(c, http.StatusNotFound, "Merchant not found")
	}
	address := fiber.Map{
		"provider_name": m.displayName(),
		"address":       m.Address,
		"city_name":     m.City,
		"state_name":    m.State,
		"phone_no":      m.Phone,
		"email":         m.Email,
		"latitude":      strconv.FormatFloat(m.Lat, 'f', 6, 64),
		"longitude":     strconv.FormatFloat(m.Lng, 'f', 6, 64),
	}
	work := make([]fiber.Map, 0, len(weekSchedule))
	for _, d := range weekSchedule {
		tag := "0"
		if d.Open {
			tag = "1"
		}
		work = append(work, fiber.Map{
			"day": d.Day, "working_tag": tag,
			"mrg_from": d.MrgFrom, "mrg_to": d.MrgTo, "eve_from": d.EveFrom, "eve_to": d.EveTo,
		})
	}
	return ok(c, fiber.Map{"merchant_data": m.record(nil), "address_data": []fiber.Map{address}, "work_data": work})
}
