package main

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/knadh/koanf/v2"
	"github.com/newroots/portfolio/internal/auth"
	"github.com/newroots/portfolio/internal/limiter"
	"github.com/newroots/portfolio/internal/mailer"
	"github.com/newroots/portfolio/internal/otp"
	"github.com/newroots/portfolio/internal/store"
	storeredis "github.com/newroots/portfolio/internal/store/redis"
	"github.com/newroots/portfolio/internal/token"
	"github.com/zerodha/logf"
)

// App is the global app context that groups the necessary
// controls (store, services, config etc.) to be injected into
// the HTTP handlers.
type App struct {
	store   store.Store
	auth    *auth.Service
	limiter *limiter.Limiter
	lo      logf.Logger

	constants constants
}

var (
	ko = koanf.New(".")

	// Version of the build injected at build time.
	buildString = "unknown"
)

func main() {
	initConfig()
	lo := initLogger(ko.Bool("app.debug"))

	// Load the store.
	var rc storeredis.Conf
	if err := ko.UnmarshalWithConf("store.redis", &rc, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		lo.Fatal("error reading store config", "error", err)
	}
	st := storeredis.New(rc)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if err := st.Ping(ctx); err != nil {
		lo.Fatal("unable to reach store", "error", err)
	}

	consts := initConstants()

	// Mail backend.
	notifier, err := initNotifier()
	if err != nil {
		lo.Fatal("error initializing mail backend", "error", err)
	}
	mail, err := mailer.New(notifier, mailer.Opt{
		SiteName:    consts.SiteName,
		FrontendURL: consts.FrontendURL,
		OTPTTL:      consts.OtpTTL,
	})
	if err != nil {
		lo.Fatal("error compiling mail templates", "error", err)
	}
	lo.Info("loaded mail backend", "backend", notifier.Name())

	issuer, err := token.New([]byte(ko.String("app.jwt_secret")), consts.TokenTTL)
	if err != nil {
		lo.Fatal("error initializing token issuer", "error", err)
	}

	app := &App{
		store:     st,
		limiter:   limiter.New(st, initLimits()),
		lo:        lo,
		constants: consts,
	}
	app.auth = auth.New(st, otp.New(st, consts.OtpTTL, consts.OtpMaxAttempts), issuer, mail,
		auth.Config{
			OwnerEmail:     consts.OwnerEmail,
			OwnerAllowList: ko.Strings("app.admin_emails"),
			FrontendURL:    consts.FrontendURL,
			ResetTokenTTL:  ko.Duration("app.reset_token_ttl"),
		}, lo)

	// One-off: create the admin account from config and exit.
	if ko.Bool("seed-admin") {
		if err := seedAdmin(app); err != nil {
			lo.Fatal("error seeding admin account", "error", err)
		}
		lo.Info("seeded admin account", "email", ko.String("app.admin.email"))
		return
	}

	// HTTP Server.
	timeout := ko.Duration("app.server_timeout")
	if timeout.Seconds() < 1 {
		timeout = time.Second * 5
	}

	srv := &http.Server{
		Addr:         ko.String("app.address"),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		Handler:      initHTTPRouter(app),
	}

	lo.Info("starting server", "address", srv.Addr)
	if err := srv.ListenAndServe(); err != nil {
		lo.Fatal("couldn't start server", "error", err)
	}
}

// initHTTPRouter registers the HTTP routes.
func initHTTPRouter(app *App) *chi.Mux {
	r := chi.NewRouter()

	// The SPA runs on a different origin and sends the session cookie.
	if origins := ko.Strings("app.cors_origins"); len(origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("portfolio"))
	})

	r.Post("/auth/login", wrap(app, handleLogin))
	r.Post("/auth/verify-otp", wrap(app, handleVerifyOTP))
	r.Post("/auth/resend-otp", wrap(app, handleResendOTP))
	r.Post("/auth/logout", wrap(app, handleLogout))
	r.Get("/auth/check", wrap(app, authOptional(handleAuthCheck)))
	r.Get("/auth/status", wrap(app, authOptional(handleAuthCheck)))
	r.Post("/auth/register", wrap(app, handleRegister))
	r.Post("/auth/verify-email", wrap(app, handleVerifyEmail))
	r.Post("/auth/change-password", wrap(app, authRequired(handleChangePassword)))
	r.Post("/auth/request-password-reset", wrap(app, handleRequestPasswordReset))
	r.Post("/auth/reset-password", wrap(app, handleResetPassword))

	r.Get("/content/{section}", wrap(app, handleGetContent))
	r.Get("/content/{section}/{id}", wrap(app, handleGetContentItem))
	r.Post("/content/{section}", wrap(app, adminRequired(handleCreateContent)))
	r.Put("/content/{section}/{id}", wrap(app, adminRequired(handleUpdateContent)))
	r.Delete("/content/{section}/{id}", wrap(app, adminRequired(handleDeleteContent)))

	r.Post("/api/contact", wrap(app, handleContact))
	r.Get("/api/contact", wrap(app, adminRequired(handleGetMessages)))
	r.Get("/api/contact/{id}", wrap(app, adminRequired(handleGetMessage)))
	r.Put("/api/contact/{id}/status", wrap(app, adminRequired(handleSetMessageStatus)))
	r.Delete("/api/contact/{id}", wrap(app, adminRequired(handleDeleteMessage)))
	r.Get("/api/health", wrap(app, handleHealthCheck))

	return r
}
