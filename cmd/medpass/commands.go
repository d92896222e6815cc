package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/kyc"
	"github.com/medpass/medpass/internal/merchants"
	"github.com/medpass/medpass/internal/payments"
	"github.com/medpass/medpass/internal/session"
	"github.com/medpass/medpass/internal/verification"
	"github.com/medpass/medpass/internal/wallet"
)

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"login":        login,
	"whoami":       whoami,
	"refresh":      refresh,
	"logout":       logout,
	"status":       status,
	"overview":     overview,
	"activate":     activate,
	"transactions": transactions,
	"add-money":    addMoney,
	"pay":          pay,
	"pin":          pinCmd,
	"kyc":          kycCmd,
	"merchants":    searchMerchants,
	"merchant":     merchantDetail,
	"services":     merchantServices,
}

const maxOTPAttempts = 3

// otpLoop reads codes until one verifies. Typing "r" asks for a new code.
func otpLoop(ctx context.Context, a *app, resend func(context.Context) error, submit func(context.Context, string) error) error {
	for attempt := 0; attempt < maxOTPAttempts; {
		code, err := a.prompt("Enter OTP (r to resend): ")
		if err != nil {
			return err
		}
		if code == "r" {
			var cd *verification.CooldownError
			if err := resend(ctx); errors.As(err, &cd) {
				a.printf("Resend available in %ds\n", int(cd.Remaining.Seconds()+0.5))
			} else if err != nil {
				return err
			}
			continue
		}
		err = submit(ctx, code)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, verification.ErrInvalidCode):
			a.printf("Enter the %d digit code\n", verification.OTPLength)
		case errors.Is(err, verification.ErrExpired):
			a.printf("Code expired, type r for a new one\n")
		default:
			var se *api.StatusError
			if !errors.As(err, &se) {
				return err
			}
			attempt++
		}
	}
	return errors.New("too many failed attempts")
}

func login(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	mobile := fs.String("mobile", "", "10 digit mobile number")
	fs.Parse(args)
	if *mobile == "" {
		var err error
		if *mobile, err = a.prompt("Mobile number: "); err != nil {
			return err
		}
	}
	l, err := a.identity.Begin(ctx, *mobile)
	if err != nil {
		return err
	}
	var sess *session.Session
	err = otpLoop(ctx, a, l.Resend, func(ctx context.Context, code string) error {
		s, err := l.Submit(ctx, code)
		sess = s
		return err
	})
	if err != nil {
		return err
	}
	a.printf("Logged in as %s (user %s)\n", orDash(sess.UserName), sess.UserID)
	return nil
}

func requireSession(ctx context.Context, a *app) (*session.Session, error) {
	sess, ok := a.identity.Current(ctx)
	if !ok {
		return nil, errors.New("not logged in, run medpass login")
	}
	return sess, nil
}

func whoami(ctx context.Context, a *app, _ []string) error {
	sess, err := requireSession(ctx, a)
	if err != nil {
		return err
	}
	a.printf("User:    %s (%s)\n", orDash(sess.UserName), sess.UserID)
	a.printf("Mobile:  %s\n", sess.UserMobile)
	a.printf("Wallet:  %s\n", walletLabel(sess.WalletStatus))
	a.printf("Balance: ₹%s\n", orDash(sess.Balance))
	a.printf("KYC:     %s\n", kyc.StatusOf(sess.Profile).Label())
	return nil
}

func refresh(ctx context.Context, a *app, _ []string) error {
	r := a.wallet.Refresh(ctx)
	if !r.OK {
		return fmt.Errorf("%s: %w", r.Reason, r.Err)
	}
	a.printf("Profile refreshed, balance ₹%s\n", orDash(r.Data.Balance.String()))
	return nil
}

func logout(ctx context.Context, a *app, _ []string) error {
	if !a.identity.Logout(ctx) {
		return errors.New("could not clear the session")
	}
	a.printf("Logged out\n")
	return nil
}

func status(ctx context.Context, a *app, _ []string) error {
	st := a.wallet.FetchStatus(ctx)
	if !st.OK {
		return fmt.Errorf("%s: %w", st.Reason, st.Err)
	}
	if err := a.wallet.PersistStatus(ctx, st.WalletStatus); err != nil {
		a.logger.Warn("persist wallet status", "error", err)
	}
	a.printf("Wallet status %s: %s\n", st.WalletStatus, walletLabel(st.WalletStatus))
	return nil
}

func walletLabel(code string) string {
	switch code {
	case session.WalletReady:
		return "active"
	case session.WalletRegistrationRequired:
		return "registration required, run medpass kyc update"
	case session.WalletOTPPending:
		return "waiting for OTP, run medpass activate"
	case "":
		return "unknown"
	default:
		return "code " + code
	}
}

func overview(ctx context.Context, a *app, _ []string) error {
	o, err := a.wallet.Overview(ctx)
	if err != nil {
		return err
	}
	if o.RefreshErr != nil {
		a.printf("(showing cached profile: %s)\n", api.UserMessage(o.RefreshErr, "refresh failed"))
	}
	a.printf("Hello %s\n", orDash(o.Session.UserName))
	a.printf("Wallet:   %s\n", walletLabel(o.WalletStatus))
	a.printf("Balance:  ₹%s\n", orDash(o.Session.Balance))
	a.printf("Cashback: ₹%s\n", o.Cashback.StringFixed(2))
	if o.MonthlyLimit.IsPositive() {
		a.printf("Spent:    ₹%s of ₹%s this month\n", o.MonthSpent.StringFixed(2), o.MonthlyLimit.StringFixed(2))
	} else {
		a.printf("Spent:    ₹%s this month\n", o.MonthSpent.StringFixed(2))
	}
	a.printf("KYC:      %s\n", o.KYC.Label())
	printTransactions(a, o.Transactions, 5)
	return nil
}

func printTransactions(a *app, txns []wallet.Transaction, limit int) {
	if len(txns) == 0 {
		a.printf("No transactions yet\n")
		return
	}
	for i, t := range txns {
		if limit > 0 && i == limit {
			break
		}
		sign := "-"
		if t.Credit {
			sign = "+"
		}
		a.printf("%-20s %s₹%-10s %s\n", t.Created, sign, t.Amount.StringFixed(2), t.Provider)
	}
}

func transactions(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("transactions", flag.ExitOnError)
	limit := fs.Int("n", 0, "show at most n entries")
	fs.Parse(args)
	txns, err := a.wallet.Transactions(ctx)
	if err != nil {
		return err
	}
	printTransactions(a, txns, *limit)
	return nil
}

func activate(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("activate", flag.ExitOnError)
	resend := fs.Bool("resend", false, "request a fresh code first")
	fs.Parse(args)
	flow := a.wallet.ActivationFlow(verification.WithCooldown(a.cfg.ResendCooldown), verification.WithTTL(a.cfg.OTPTTL))
	if *resend {
		if err := flow.Send(ctx); err != nil {
			return err
		}
	} else {
		// the code from registration is already on its way
		flow.MarkSent()
	}
	return otpLoop(ctx, a, flow.Send, flow.Verify)
}

func addMoney(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: medpass add-money <amount>")
	}
	amount, err := wallet.ParseAmount(args[0])
	if err != nil {
		return err
	}
	orderID, ok := a.wallet.AddMoney(ctx, amount)
	if !ok {
		return errors.New("could not create the order")
	}
	a.printf("Order %s created for ₹%s\n", orderID, amount.StringFixed(2))
	return nil
}

func pay(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ExitOnError)
	serviceID := fs.String("service", "", "merchant service id")
	amountText := fs.String("amount", "", "amount in rupees")
	prn := fs.String("prn", "", "payment reference number")
	desc := fs.String("desc", "", "description")
	party := fs.String("party", "", "party code")
	pinText := fs.String("pin", "", "transaction PIN")
	txID := fs.String("id", "", "client transaction id, reused on retry")
	fs.Parse(args)

	amount, err := decimal.NewFromString(strings.TrimSpace(*amountText))
	if err != nil {
		return payments.ErrInvalidAmount
	}
	in := payments.PayInput{
		ServiceID:   *serviceID,
		Amount:      amount,
		PRN:         *prn,
		Description: *desc,
		PartyCode:   *party,
		PIN:         *pinText,
		ClientTxID:  *txID,
	}
	res, err := a.payments.Pay(ctx, in)
	if errors.Is(err, payments.ErrPINRequired) {
		if in.PIN, err = a.prompt("Transaction PIN: "); err != nil {
			return err
		}
		res, err = a.payments.Pay(ctx, in)
	}
	if err != nil {
		return err
	}
	a.printf("Paid ₹%s, transaction %s, balance ₹%s\n", amount.StringFixed(2), res.TransactionID, orDash(res.Balance))
	return nil
}

func pinCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		enabled, err := a.pin.Enabled(ctx)
		if err != nil {
			return err
		}
		a.printf("Transaction PIN enabled: %t\n", enabled)
		return nil
	}
	switch args[0] {
	case "setup":
		p, err := a.prompt("New PIN: ")
		if err != nil {
			return err
		}
		c, err := a.prompt("Confirm PIN: ")
		if err != nil {
			return err
		}
		return a.pin.Setup(ctx, p, c)
	case "verify":
		p, err := a.prompt("PIN: ")
		if err != nil {
			return err
		}
		if err := a.pin.Flow().Verify(ctx, p); err != nil {
			return err
		}
		a.printf("PIN verified\n")
		return nil
	case "disable":
		p, err := a.prompt("Current PIN: ")
		if err != nil {
			return err
		}
		return a.pin.Disable(ctx, p)
	default:
		return fmt.Errorf("unknown pin command %q", args[0])
	}
}

func kycCmd(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		st := a.kyc.Status(ctx)
		a.printf("KYC status: %s\n", st.Label())
		if st.NeedsUpgrade() {
			a.printf("Upload proof documents with medpass kyc upload\n")
		}
		return nil
	}
	switch args[0] {
	case "update":
		return kycUpdate(ctx, a, args[1:])
	case "upload":
		return kycUpload(ctx, a, args[1:])
	default:
		return fmt.Errorf("unknown kyc command %q", args[0])
	}
}

func kycUpdate(ctx context.Context, a *app, args []string) error {
	sess, err := requireSession(ctx, a)
	if err != nil {
		return err
	}
	d := kyc.DetailsFromProfile(sess.Profile)
	if d.Mobile == "" {
		d.Mobile = sess.UserMobile
	}
	fs := flag.NewFlagSet("kyc update", flag.ExitOnError)
	fs.StringVar(&d.FirstName, "first", d.FirstName, "first name")
	fs.StringVar(&d.MiddleName, "middle", d.MiddleName, "middle name")
	fs.StringVar(&d.LastName, "last", d.LastName, "last name")
	fs.StringVar(&d.MothersMaidenName, "mother", d.MothersMaidenName, "mother's maiden name")
	fs.StringVar(&d.DOB, "dob", d.DOB, "date of birth, YYYY-MM-DD")
	fs.StringVar(&d.Email, "email", d.Email, "email address")
	fs.StringVar(&d.Mobile, "mobile", d.Mobile, "mobile number")
	fs.StringVar(&d.Gender, "gender", d.Gender, "gender")
	fs.StringVar(&d.State, "state", d.State, "state")
	fs.StringVar(&d.City, "city", d.City, "city")
	fs.StringVar(&d.Address, "address", d.Address, "street address")
	fs.StringVar(&d.Pincode, "pincode", d.Pincode, "postal code")
	fs.StringVar(&d.IDProofType, "id-type", d.IDProofType, "id proof type")
	fs.StringVar(&d.IDProofNo, "id-no", d.IDProofNo, "id proof number")
	fs.StringVar(&d.AddProofType, "add-type", d.AddProofType, "address proof type")
	fs.StringVar(&d.AddProofNo, "add-no", d.AddProofNo, "address proof number")
	fs.Parse(args)

	if _, err := a.kyc.UpdateProfile(ctx, d); err != nil {
		var missing *kyc.MissingFieldsError
		if errors.As(err, &missing) {
			fs.Usage()
		}
		return err
	}
	if st := a.wallet.FetchStatus(ctx); st.OK {
		if err := a.wallet.PersistStatus(ctx, st.WalletStatus); err != nil {
			a.logger.Warn("persist wallet status", "error", err)
		}
		a.printf("Wallet: %s\n", walletLabel(st.WalletStatus))
	}
	return nil
}

func kycUpload(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("kyc upload", flag.ExitOnError)
	addressFile := fs.String("address-proof", "", "address proof file")
	idFile := fs.String("id-proof", "", "id proof file")
	var docs kyc.Documents
	fs.StringVar(&docs.AddProofType, "add-type", "", "address proof type")
	fs.StringVar(&docs.AddProofNo, "add-no", "", "address proof number")
	fs.StringVar(&docs.IDProofType, "id-type", "", "id proof type")
	fs.StringVar(&docs.IDProofNo, "id-no", "", "id proof number")
	fs.Parse(args)

	var err error
	if *addressFile != "" {
		if docs.AddressProof, err = kyc.ReadDocument(*addressFile); err != nil {
			return err
		}
	}
	if *idFile != "" {
		if docs.IDProof, err = kyc.ReadDocument(*idFile); err != nil {
			return err
		}
	}
	if _, err := a.kyc.UploadDocuments(ctx, docs); err != nil {
		return err
	}
	if r := a.wallet.Refresh(ctx); r.OK {
		a.printf("KYC status: %s\n", a.kyc.Status(ctx).Label())
	}
	return nil
}

func searchMerchants(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("merchants", flag.ExitOnError)
	lat := fs.Float64("lat", merchants.DefaultLatitude, "latitude")
	lng := fs.Float64("lng", merchants.DefaultLongitude, "longitude")
	serviceID := fs.String("service", "", "only merchants offering this service id")
	query := fs.String("q", "", "filter by name, address or category")
	fs.Parse(args)

	list, err := a.directory.Search(ctx, merchants.SearchInput{
		Location:  &merchants.Location{Lat: *lat, Lng: *lng},
		ServiceID: *serviceID,
		Query:     *query,
	})
	if err != nil {
		return err
	}
	if len(list) == 0 {
		a.printf("No merchants found\n")
		return nil
	}
	for _, m := range list {
		a.printf("%-6s %-32s %-10s %-8s %s\n", m.ID, m.Name, orDash(m.Distance()), m.Discount(), m.Category)
	}
	return nil
}

func merchantID(args []string, name string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("usage: medpass %s <merchant id>", name)
	}
	if _, err := strconv.Atoi(args[0]); err != nil {
		return "", fmt.Errorf("invalid merchant id %q", args[0])
	}
	return args[0], nil
}

func merchantDetail(ctx context.Context, a *app, args []string) error {
	id, err := merchantID(args, "merchant")
	if err != nil {
		return err
	}
	d, err := a.directory.Detail(ctx, id)
	if err != nil {
		return err
	}
	m := d.Merchant
	a.printf("%s\n%s\n", m.Name, m.Address)
	if m.Phone != "" {
		a.printf("Phone: %s\n", m.Phone)
	}
	if m.Website != "" {
		a.printf("Web:   %s\n", m.Website)
	}
	if disc := m.Discount(); disc != "" {
		a.printf("%s\n", disc)
	}
	for _, s := range d.Services {
		a.printf("  - %s\n", s)
	}
	return nil
}

func merchantServices(ctx context.Context, a *app, args []string) error {
	id, err := merchantID(args, "services")
	if err != nil {
		return err
	}
	s, err := a.directory.Services(ctx, id)
	if err != nil {
		return err
	}
	a.printf("%s\n", s.Merchant.Name)
	for _, b := range s.Branches {
		a.printf("%s, %s, %s %s\n", b.Address, b.City, b.State, b.Phone)
	}
	for _, h := range s.Hours {
		if !h.Open {
			a.printf("%-10s closed\n", h.Day)
			continue
		}
		a.printf("%-10s %-15s %s\n", h.Day, h.Morning, h.Evening)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
