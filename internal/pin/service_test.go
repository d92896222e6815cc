package pin

import (
	"context"
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/session"
)

type fakeClient struct {
	serverPIN string
	enabled   bool
	checks    int
}

func (f *fakeClient) SetPIN(_ context.Context, _ session.Credentials, pin string, enabled bool) (api.Ack, error) {
	f.serverPIN, f.enabled = pin, enabled
	return api.Ack{Status: "200"}, nil
}

func (f *fakeClient) CheckPIN(_ context.Context, _ session.Credentials, pin string) (api.Ack, error) {
	f.checks++
	if pin != f.serverPIN {
		return api.Ack{}, &api.StatusError{HTTPStatus: 200, Status: "400", Message: "Invalid PIN"}
	}
	return api.Ack{Status: "200"}, nil
}

func newService(t *testing.T, profile session.Profile) (*Service, *fakeClient, *session.Store) {
	t.Helper()
	store := session.NewStore(session.NewMemoryKV(), nil)
	if !store.Save(context.Background(), session.Payload{Token: "tok", UserID: "1", Profile: profile}, "9876543210") {
		t.Fatalf("seed session")
	}
	client := &fakeClient{}
	svc := NewService(client, store, nil, nil)
	svc.cost = bcrypt.MinCost
	return svc, client, store
}

func TestSetupStoresHashNotPlaintext(t *testing.T) {
	svc, client, store := newService(t, nil)
	ctx := context.Background()

	if err := svc.Setup(ctx, "1234", "4321"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := svc.Setup(ctx, "1234", "1234"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if !client.enabled || client.serverPIN != "1234" {
		t.Fatalf("server not updated: %+v", client)
	}
	stored, _ := store.Field(ctx, session.KeyPINHash)
	if stored == "" || stored == "1234" {
		t.Fatalf("expected bcrypt hash, got %q", stored)
	}
	if !svc.MatchesLocal(ctx, "1234") || svc.MatchesLocal(ctx, "0000") {
		t.Fatalf("local hash check failed")
	}
	enabled, err := svc.Enabled(ctx)
	if err != nil || !enabled {
		t.Fatalf("expected enabled, got %v %v", enabled, err)
	}
}

func TestProfileStatusWins(t *testing.T) {
	svc, _, store := newService(t, session.Profile{"pin_status": "0"})
	ctx := context.Background()
	_ = store.SetFields(ctx, map[string]string{session.KeyPINEnabled: "true"})

	enabled, err := svc.Enabled(ctx)
	if err != nil || enabled {
		t.Fatalf("profile pin_status 0 should win, got %v %v", enabled, err)
	}
	if local, _ := store.Field(ctx, session.KeyPINEnabled); local != "false" {
		t.Fatalf("expected local flag mirrored, got %q", local)
	}
}

func TestSetupUpdatesCachedProfileStatus(t *testing.T) {
	svc, _, store := newService(t, session.Profile{"name": "Asha", "pin_status": "0"})
	ctx := context.Background()

	if err := svc.Setup(ctx, "1234", "1234"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	enabled, err := svc.Enabled(ctx)
	if err != nil || !enabled {
		t.Fatalf("expected enabled right after setup, got %v %v", enabled, err)
	}
	if local, _ := store.Field(ctx, session.KeyPINEnabled); local != "true" {
		t.Fatalf("local flag rewritten to %q", local)
	}
	sess := store.Get(ctx)
	if sess.Profile.String("pin_status") != "1" || sess.Profile.String("name") != "Asha" {
		t.Fatalf("unexpected cached profile %v", sess.Profile)
	}

	if err := svc.Disable(ctx, "1234"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if enabled, _ := svc.Enabled(ctx); enabled {
		t.Fatalf("expected disabled right after disable")
	}
	if got := store.Get(ctx).Profile.String("pin_status"); got != "0" {
		t.Fatalf("expected cached pin_status 0, got %q", got)
	}
}

func TestLocalFlagWithoutProfileStatus(t *testing.T) {
	svc, _, store := newService(t, session.Profile{"name": "Asha"})
	ctx := context.Background()
	if enabled, _ := svc.Enabled(ctx); enabled {
		t.Fatalf("expected disabled by default")
	}
	_ = store.SetFields(ctx, map[string]string{session.KeyPINEnabled: "true"})
	if enabled, _ := svc.Enabled(ctx); !enabled {
		t.Fatalf("expected local flag to decide")
	}
}

func TestDisableRequiresCorrectPIN(t *testing.T) {
	svc, client, store := newService(t, nil)
	ctx := context.Background()
	if err := svc.Setup(ctx, "1234", "1234"); err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := svc.Disable(ctx, "9999"); err == nil {
		t.Fatalf("expected wrong PIN to fail")
	}
	if err := svc.Disable(ctx, "1234"); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if client.enabled {
		t.Fatalf("server should be disabled")
	}
	if hash, _ := store.Field(ctx, session.KeyPINHash); hash != "" {
		t.Fatalf("expected hash cleared")
	}
}

func TestVerifyWithoutSession(t *testing.T) {
	store := session.NewStore(session.NewMemoryKV(), nil)
	client := &fakeClient{}
	svc := NewService(client, store, nil, nil)
	if err := svc.Verify(context.Background(), "1234"); !errors.Is(err, api.ErrMissingCredentials) {
		t.Fatalf("expected missing credentials, got %v", err)
	}
	if client.checks != 0 {
		t.Fatalf("expected no backend call")
	}
}
