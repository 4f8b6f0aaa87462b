package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/newroots/portfolio/internal/limiter"
	"github.com/newroots/portfolio/internal/mailer"
	mailapi "github.com/newroots/portfolio/internal/mailer/api"
	mailsmtp "github.com/newroots/portfolio/internal/mailer/smtp"
	"github.com/newroots/portfolio/internal/models"
	"github.com/newroots/portfolio/internal/password"
	flag "github.com/spf13/pflag"
	"github.com/zerodha/logf"
)

type constants struct {
	SiteName       string
	RootURL        string
	FrontendURL    string
	OwnerEmail     string
	OtpTTL         time.Duration
	OtpMaxAttempts int
	TokenTTL       time.Duration
	SecureCookies  bool

	// Sections is the content section allow-list. Empty allows any.
	Sections []string
}

func initConfig() {
	// Register --help handler.
	f := flag.NewFlagSet("config", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	f.StringSlice("config", []string{"config.toml"},
		"Path to one or more TOML config files to load in order")
	f.Bool("seed-admin", false, "Create the admin account from config and exit")
	f.Bool("version", false, "Show build version")
	f.Parse(os.Args[1:])

	// Display version.
	if ok, _ := f.GetBool("version"); ok {
		fmt.Println(buildString)
		os.Exit(0)
	}

	// Read the config files.
	cFiles, _ := f.GetStringSlice("config")
	for _, c := range cFiles {
		log.Printf("reading config: %s", c)
		if err := ko.Load(file.Provider(c), toml.Parser()); err != nil {
			log.Printf("error reading config: %v", err)
		}
	}
	// Load environment variables and merge into the loaded config.
	if err := ko.Load(env.Provider("PORTFOLIO_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "PORTFOLIO_")), "__", ".", -1)
	}), nil); err != nil {
		log.Printf("error loading env config: %v", err)
	}

	ko.Load(posflag.Provider(f, ".", ko), nil)
}

func initLogger(debug bool) logf.Logger {
	opt := logf.Opts{EnableCaller: true}
	if debug {
		opt.Level = logf.DebugLevel
		opt.EnableColor = true
	}
	return logf.New(opt)
}

func initConstants() constants {
	c := constants{
		SiteName:       ko.String("app.site_name"),
		RootURL:        strings.TrimRight(ko.String("app.root_url"), "/"),
		FrontendURL:    strings.TrimRight(ko.String("app.frontend_url"), "/"),
		OwnerEmail:     ko.String("app.owner_email"),
		OtpTTL:         ko.Duration("app.otp_ttl"),
		OtpMaxAttempts: ko.Int("app.otp_max_attempts"),
		TokenTTL:       ko.Duration("app.token_ttl"),
		SecureCookies:  ko.Bool("app.secure_cookies"),
		Sections:       ko.Strings("app.sections"),
	}

	if c.OtpTTL <= 0 {
		c.OtpTTL = 10 * time.Minute
	}
	if c.OtpMaxAttempts <= 0 {
		c.OtpMaxAttempts = 5
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 24 * time.Hour
	}

	return c
}

// initNotifier loads the configured mail backend.
func initNotifier() (mailer.Notifier, error) {
	backend := ko.String("mail.backend")
	switch backend {
	case "smtp", "":
		var c mailsmtp.Config
		if err := ko.UnmarshalWithConf("mail.smtp", &c, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			return nil, err
		}
		return mailsmtp.New(c)
	case "api":
		var c mailapi.Config
		if err := ko.UnmarshalWithConf("mail.api", &c, koanf.UnmarshalConf{Tag: "json"}); err != nil {
			return nil, err
		}
		return mailapi.New(c)
	default:
		return nil, fmt.Errorf("unknown mail backend '%s'", backend)
	}
}

// initLimits loads the rate-limit rules, with sane defaults for the
// OTP-triggering endpoints.
func initLimits() map[string]limiter.Rule {
	out := map[string]limiter.Rule{
		"login":    {Max: 5, Window: time.Minute},
		"resend":   {Max: 3, Window: 2 * time.Minute},
		"register": {Max: 5, Window: time.Minute},
		"reset":    {Max: 3, Window: time.Hour},
		"contact":  {Max: 5, Window: 10 * time.Minute},
	}

	for _, name := range ko.MapKeys("limits") {
		out[name] = limiter.Rule{
			Max:    ko.Int("limits." + name + ".max"),
			Window: ko.Duration("limits." + name + ".window"),
		}
	}

	return out
}

// seedAdmin writes the admin account described in the config.
func seedAdmin(app *App) error {
	var (
		email = strings.ToLower(strings.TrimSpace(ko.String("app.admin.email")))
		pass  = ko.String("app.admin.password")
		name  = ko.String("app.admin.name")
	)
	if email == "" || pass == "" {
		return errors.New("app.admin.email and app.admin.password are required")
	}
	if err := mailer.ValidAddress(email); err != nil {
		return err
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()

	return app.store.PutAccount(ctx, models.Account{
		Email:      email,
		Password:   hash,
		FullName:   name,
		IsAdmin:    true,
		IsVerified: true,
		CreatedAt:  time.Now().UnixMilli(),
	})
}
