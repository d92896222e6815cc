package identity

import (
	"errors"
	"strings"
)

var (
	ErrInvalidMobile   = errors.New("enter a valid 10 digit mobile number")
	ErrNoToken         = errors.New("verification response carried no token")
	ErrSessionNotSaved = errors.New("verified but the session could not be saved")
	ErrLoginNotStarted = errors.New("login has not been started")
)

// NormalizeMobile strips spaces and validates a 10 digit mobile number.
func NormalizeMobile(raw string) (string, error) {
	m := strings.Join(strings.Fields(raw), "")
	if len(m) != 10 {
		return "", ErrInvalidMobile
	}
	for _, r := range m {
		if r < '0' || r > '9' {
			return "", ErrInvalidMobile
		}
	}
	return m, nil
}
