package wallet

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/session"
)

// Reason codes reported by Refresh and FetchStatus.
const (
	ReasonMissingCredentials = api.ReasonMissingCredentials
	ReasonBadStatus          = api.ReasonBadStatus
	ReasonException          = api.ReasonException
)

// RefreshResult reports the outcome of a profile refresh. Data is set on
// success; Payload carries the server response for bad-status; Err carries the
// underlying failure.
type RefreshResult struct {
	OK      bool
	Reason  string
	Data    *session.Payload
	Payload map[string]any
	Err     error
}

// StatusResult reports the outcome of a wallet status fetch.
type StatusResult struct {
	OK           bool
	WalletStatus string
	Reason       string
	Payload      map[string]any
	Err          error
}

// Transaction is a normalized row of the transaction report.
type Transaction struct {
	ID       string
	Credit   bool
	Amount   decimal.Decimal
	Provider string
	API      string
	Created  string
	Raw      api.Transaction
}

var (
	ymdPattern = regexp.MustCompile(`^(\d{4})-(\d{2})-(\d{2})`)
	dmyPattern = regexp.MustCompile(`^(\d{2})/(\d{2})/(\d{4})`)
	amountJunk = regexp.MustCompile(`[^0-9.\-]`)
)

// normalizeTransaction marks types 1 and 4 as credits and strips currency
// decorations from the amount.
func normalizeTransaction(raw api.Transaction) Transaction {
	typ := strings.TrimSpace(raw.Type.String())
	provider := raw.ProviderName.String()
	if provider == "" {
		provider = raw.API.String()
	}
	return Transaction{
		ID:       raw.TransactionID.String(),
		Credit:   typ == "1" || typ == "4",
		Amount:   parseAmount(raw.Amount.String()).Abs(),
		Provider: provider,
		API:      raw.API.String(),
		Created:  raw.Created.String(),
		Raw:      raw,
	}
}

func parseAmount(s string) decimal.Decimal {
	d, err := decimal.NewFromString(amountJunk.ReplaceAllString(s, ""))
	if err != nil {
		return decimal.Zero
	}
	return d
}

// isDebit prefers the amount sign, then the dr/cr marker, then the type code.
func isDebit(raw api.Transaction) bool {
	amountText := raw.Amount.String()
	amount := parseAmount(amountText)
	drcr := strings.ToUpper(raw.DrCr.String())
	typ := strings.ToUpper(strings.TrimSpace(raw.Type.String()))

	if amount.IsNegative() {
		return true
	}
	if amount.IsPositive() && strings.Contains(amountText, "+") {
		return false
	}
	if strings.HasPrefix(drcr, "D") {
		return true
	}
	if strings.HasPrefix(drcr, "C") {
		return false
	}
	switch typ {
	case "1", "4", "C", "CREDIT":
		return false
	}
	return true
}

// transactionMonth extracts year and month from YYYY-MM-DD, DD/MM/YYYY or
// an RFC 3339 style timestamp.
func transactionMonth(created string) (int, time.Month, bool) {
	s := strings.TrimSpace(created)
	if m := ymdPattern.FindStringSubmatch(s); m != nil {
		return atoi(m[1]), time.Month(atoi(m[2])), true
	}
	if m := dmyPattern.FindStringSubmatch(s); m != nil {
		return atoi(m[3]), time.Month(atoi(m[2])), true
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, strings.Replace(s, " ", "T", 1)); err == nil {
			return t.Year(), t.Month(), true
		}
	}
	return 0, 0, false
}

func atoi(s string) int {
	n := 0
	for _, r := range s {
		n = n*10 + int(r-'0')
	}
	return n
}

// MonthSpent sums debits dated in now's calendar month.
func MonthSpent(txns []api.Transaction, now time.Time) decimal.Decimal {
	total := decimal.Zero
	for _, t := range txns {
		y, m, ok := transactionMonth(t.Created.String())
		if !ok || y != now.Year() || m != now.Month() {
			continue
		}
		if !isDebit(t) {
			continue
		}
		total = total.Add(parseAmount(t.Amount.String()).Abs())
	}
	return total
}
