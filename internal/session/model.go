package session

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Storage keys. The layout is flat and unversioned; every value is a string.
const (
	KeyToken        = "userToken"
	KeyUserID       = "userId"
	KeyUserName     = "userName"
	KeyMobile       = "userMobile"
	KeyProfile      = "userData"
	KeyWalletStatus = "walletStatus"
	KeyBalance      = "userBalance"
	KeyBACode       = "baCode"
	KeyLoggedIn     = "isLoggedIn"

	KeyPINEnabled = "userPinEnabled"
	KeyPINHash    = "userPinCode"
)

// Wallet status codes computed by the backend.
const (
	WalletReady                = "0"
	WalletRegistrationRequired = "2"
	WalletOTPPending           = "20"
)

var sessionKeys = []string{
	KeyToken, KeyUserID, KeyUserName, KeyMobile, KeyProfile,
	KeyWalletStatus, KeyBalance, KeyBACode, KeyLoggedIn,
}

// AllKeys lists every key owned by the store, including the PIN preference.
func AllKeys() []string {
	return append(append([]string(nil), sessionKeys...), KeyPINEnabled, KeyPINHash)
}

// Session is the locally persisted bundle of credentials and cached profile data.
type Session struct {
	Token        string
	UserID       string
	UserName     string
	UserMobile   string
	Profile      Profile
	WalletStatus string
	Balance      string
	BACode       string
	IsLoggedIn   bool
}

// Usable reports whether the session carries both credentials. Callers must
// use this rather than IsLoggedIn: the flag alone can be stale.
func (s *Session) Usable() bool {
	return s != nil && s.Token != "" && s.UserID != ""
}

// Credentials returns the auth headers material held by the session.
func (s *Session) Credentials() Credentials {
	if s == nil {
		return Credentials{}
	}
	return Credentials{Token: s.Token, UserID: s.UserID, Mobile: s.UserMobile}
}

// Credentials identify the caller to the backend.
type Credentials struct {
	Token  string
	UserID string
	Mobile string
}

// Valid reports whether token and user id are present.
func (c Credentials) Valid() bool {
	return c.Token != "" && c.UserID != ""
}

// Payload is the user snapshot returned by OTP verification and the
// user-info endpoint.
type Payload struct {
	Status       Scalar  `json:"status"`
	Message      string  `json:"message"`
	Token        Scalar  `json:"token"`
	UserID       Scalar  `json:"userId"`
	Name         Scalar  `json:"name"`
	Profile      Profile `json:"user_data"`
	WalletStatus Scalar  `json:"wallets_status"`
	Balance      Scalar  `json:"balance"`
	BACode       Scalar  `json:"ba_code"`
}

// Scalar decodes any JSON scalar into its string form. null becomes "".
// Numbers keep their literal text so balances are not rounded through float64.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*s = ""
	case b[0] == '"':
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	default:
		*s = Scalar(b)
	}
	return nil
}

// String returns the scalar text.
func (s Scalar) String() string { return string(s) }

// Int parses the scalar as an integer, accepting "200" and 200 alike.
func (s Scalar) Int() (int, bool) {
	n, err := strconv.Atoi(string(s))
	if err != nil {
		f, ferr := strconv.ParseFloat(string(s), 64)
		if ferr != nil || f != float64(int(f)) {
			return 0, false
		}
		return int(f), true
	}
	return n, true
}

// Profile is the opaque user_data object. Keys map to scalar values such as
// name, address, KYC codes, pin_status and the monthly limit.
type Profile map[string]any

// UnmarshalJSON accepts an object, null, or an empty array (which some
// backends emit for an empty map).
func (p *Profile) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*p = nil
		return nil
	}
	if len(b) > 0 && b[0] == '[' {
		var arr []any
		if err := json.Unmarshal(b, &arr); err != nil {
			return err
		}
		if len(arr) != 0 {
			return fmt.Errorf("user_data: expected object, got array of %d", len(arr))
		}
		*p = nil
		return nil
	}
	// Numbers stay json.Number so large ids keep every digit.
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	m := map[string]any{}
	if err := dec.Decode(&m); err != nil {
		return err
	}
	*p = m
	return nil
}

// String returns the value under key rendered as a string, or "" when absent.
func (p Profile) String(key string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

func encodeProfile(p Profile) (string, error) {
	if p == nil {
		return "{}", nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeProfile(raw string) (Profile, error) {
	if raw == "" {
		return nil, nil
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, err
	}
	return p, nil
}
