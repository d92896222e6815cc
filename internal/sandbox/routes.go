package sandbox

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/medpass/medpass/internal/config"
	"github.com/medpass/medpass/internal/logging"
	"github.com/medpass/medpass/internal/middleware"
)

const otpRequestsPerMinute = 5

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	Cache  *redis.Client
	Logger *slog.Logger
	State  *State
	// AccessLog enables the plain text access log on stdout.
	AccessLog bool
}

// errorHandler renders every error in the backend's JSON envelope.
func errorHandler(c *fiber.Ctx, err error) error {
	code := http.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"status": code, "message": err.Error()})
}

// Setup configures middlewares and all sandbox routes.
func Setup(app *fiber.App, d Deps) {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.State == nil {
		d.State = NewState(d.Cfg.SandboxOTP, d.Cfg.OTPTTL)
	}
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	if d.AccessLog {
		// [HH:MM:SS] 200 -  145ms METHOD /path
		app.Use(logger.New(logger.Config{
			Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
			TimeFormat: "15:04:05",
			TimeZone:   "Local",
		}))
	}

	RegisterHealthRoutes(app, d)

	h := NewHandler(d.State, d.Logger)
	auth := middleware.CredentialAuth(d.State)
	audit := middleware.Audit(d.Logger)
	rateLimit := middleware.OTPRateLimit(d.Cache, otpRequestsPerMinute)

	user := app.Group("/User", audit)
	user.Post("/UserReg", rateLimit, h.RequestOTP)
	user.Post("/verify_otp", h.VerifyOTP)
	user.Get("/User_Info_new", auth, h.UserInfo)
	user.Post("/User_info", auth, h.Cashback)
	user.Post("/setPin", auth, h.SetPIN)
	user.Post("/checkPin", auth, h.CheckPIN)

	w := app.Group("/Wallet", audit, auth)
	w.Post("/MobileValidate", h.MobileValidate)
	w.Post("/registerUser", h.RegisterUser)
	w.Post("/resendUserRegOTP", h.ResendWalletOTP)
	w.Post("/otp_validation", h.ValidateWalletOTP)
	w.Post("/UpgradeKYC", h.UpgradeKYC)
	w.Get("/transactionReport", h.TransactionReport)
	w.Post("/makeTransaction", middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger), h.MakeTransaction)

	app.Post("/Home/pay", audit, auth, h.CreateOrder)

	directory := app.Group("/user", audit)
	directory.Get("/get_merchants", h.Merchants)
	directory.Get("/get_single_merchant/:id", h.Merchant)
	directory.Get("/get_services/:id", h.Services)
}

// RegisterHealthRoutes adds a liveness endpoint reporting Redis reachability.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		redisStatus := "disabled"
		if d.Cache != nil {
			redisStatus = "ok"
			ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
			defer cancel()
			if err := d.Cache.Ping(ctx).Err(); err != nil {
				redisStatus = err.Error()
			}
		}
		status := http.StatusOK
		if redisStatus != "ok" && redisStatus != "disabled" {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    fiber.Map{"redis": redisStatus},
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
