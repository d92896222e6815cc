package main

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/verification"
)

func testApp(input string) (*app, *bytes.Buffer) {
	var out bytes.Buffer
	return &app{out: &out, in: bufio.NewReader(strings.NewReader(input))}, &out
}

func TestOTPLoopRetriesAfterRejectedCode(t *testing.T) {
	a, out := testApp("12a\nr\n11111\n12345\n")
	var submitted []string
	resends := 0
	err := otpLoop(context.Background(), a,
		func(context.Context) error {
			resends++
			return &verification.CooldownError{Remaining: 12 * time.Second}
		},
		func(_ context.Context, code string) error {
			submitted = append(submitted, code)
			if code == "12345" {
				return nil
			}
			if code == "12a" {
				return verification.ErrInvalidCode
			}
			return &api.StatusError{HTTPStatus: 200, Status: "400", Message: "Invalid OTP"}
		})
	if err != nil {
		t.Fatalf("otpLoop: %v", err)
	}
	if resends != 1 {
		t.Fatalf("expected one resend, got %d", resends)
	}
	if len(submitted) != 3 {
		t.Fatalf("expected 3 submissions, got %v", submitted)
	}
	if !strings.Contains(out.String(), "Resend available in 12s") {
		t.Fatalf("missing cooldown notice: %q", out.String())
	}
}

func TestOTPLoopGivesUp(t *testing.T) {
	a, _ := testApp("11111\n22222\n33333\n44444\n")
	calls := 0
	err := otpLoop(context.Background(), a, nil, func(context.Context, string) error {
		calls++
		return &api.StatusError{HTTPStatus: 200, Status: "400"}
	})
	if err == nil {
		t.Fatalf("expected an error after %d attempts", maxOTPAttempts)
	}
	if calls != maxOTPAttempts {
		t.Fatalf("expected %d calls, got %d", maxOTPAttempts, calls)
	}
}

func TestWalletLabel(t *testing.T) {
	if got := walletLabel("20"); !strings.Contains(got, "activate") {
		t.Fatalf("unexpected label %q", got)
	}
	if got := walletLabel("9"); got != "code 9" {
		t.Fatalf("unexpected label %q", got)
	}
}
