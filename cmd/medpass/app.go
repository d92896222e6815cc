package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/medpass/medpass/internal/api"
	"github.com/medpass/medpass/internal/config"
	"github.com/medpass/medpass/internal/identity"
	"github.com/medpass/medpass/internal/infra"
	"github.com/medpass/medpass/internal/kyc"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/merchants"
	"github.com/medpass/medpass/internal/notification"
	"github.com/medpass/medpass/internal/payments"
	"github.com/medpass/medpass/internal/pin"
	"github.com/medpass/medpass/internal/session"
	"github.com/medpass/medpass/internal/verification"
	"github.com/medpass/medpass/internal/wallet"
)

// app holds the wired services for one command run.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	out    io.Writer
	in     *bufio.Reader
	store  *session.Store

	identity  *identity.Service
	wallet    *wallet.Service
	kyc       *kyc.Service
	pin       *pin.Service
	payments  *payments.Service
	directory *merchants.Directory

	closers []func()
}

func newApp(ctx context.Context, envFile string, out, errOut io.Writer) (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := logging.NewText(cfg.LogLevel, errOut)

	a := &app{cfg: cfg, logger: logger, out: out, in: bufio.NewReader(os.Stdin)}
	kv, err := a.sessionKV(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = session.NewStore(kv, logger)

	client, err := api.FromConfig(cfg, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	notifier := notification.NewWriterNotifier(out)

	a.identity = identity.NewService(client, a.store, notifier, logger, verification.WithCooldown(cfg.ResendCooldown), verification.WithTTL(cfg.OTPTTL))
	a.wallet = wallet.NewService(client, a.store, notifier, logger)
	a.kyc = kyc.NewService(client, a.store, notifier, logger)
	a.pin = pin.NewService(client, a.store, notifier, logger)
	a.payments = payments.NewService(client, a.store, a.pin, a.wallet, notifier, logger)
	a.directory = merchants.NewDirectory(client, logger)
	return a, nil
}

func (a *app) sessionKV(ctx context.Context) (session.KV, error) {
	switch a.cfg.SessionBackend {
	case config.BackendRedis:
		client, err := infra.NewRedisClient(ctx, a.cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close redis", "error", err)
			}
		})
		return session.NewRedisKV(client, a.cfg.SessionNamespace), nil
	case config.BackendPostgres:
		pool, err := infra.NewPostgresPool(ctx, a.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, pool.Close)
		if err := infra.Migrate(ctx, pool); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		return session.NewPostgresKV(pool, a.cfg.SessionNamespace), nil
	default:
		return session.NewMemoryKV(), nil
	}
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// prompt prints label and reads one trimmed line from stdin.
func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(a.out, label)
	line, err := a.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}
