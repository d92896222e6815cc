package kyc

import "github.com/medpass/medpass/internal/session"

// Status is the backend KYC code.
type Status string

const (
	StatusNone          Status = "0"
	StatusSubmitted     Status = "1"
	StatusVerified      Status = "2"
	StatusCheckApproved Status = "3"
	StatusApproved      Status = "4"
	StatusRejected      Status = "5"
	StatusNoWallet      Status = "7"
)

// StatusOf reads kyc_code, falling back to kyc_status.
func StatusOf(p session.Profile) Status {
	if v := p.String("kyc_code"); v != "" {
		return Status(v)
	}
	return Status(p.String("kyc_status"))
}

// Label is the human-readable status.
func (s Status) Label() string {
	switch s {
	case "":
		return "Not available"
	case StatusNone:
		return "Non-KYC"
	case StatusSubmitted:
		return "Documents Submitted"
	case StatusVerified:
		return "KYC Verified"
	case StatusCheckApproved:
		return "KYC Check Approved"
	case StatusApproved:
		return "KYC Approved"
	case StatusRejected:
		return "Rejected"
	case StatusNoWallet:
		return "Wallet Not Created"
	default:
		return "Unknown"
	}
}

// NeedsUpgrade reports whether the user should submit KYC documents.
func (s Status) NeedsUpgrade() bool { return s == StatusNone }

// Pending reports whether documents await approval.
func (s Status) Pending() bool { return s == StatusSubmitted }
