// Package auth orchestrates the two-step admin login (password, then a
// mailed OTP), account registration, and password lifecycle flows.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/newroots/portfolio/internal/mailer"
	"github.com/newroots/portfolio/internal/models"
	"github.com/newroots/portfolio/internal/otp"
	"github.com/newroots/portfolio/internal/password"
	"github.com/newroots/portfolio/internal/store"
	"github.com/newroots/portfolio/internal/token"
	"github.com/zerodha/logf"
)

var (
	// ErrMissingFields is returned when a required input is empty.
	ErrMissingFields = errors.New("missing required fields")

	// ErrInvalidCredentials covers both an unknown email and a wrong
	// password so the two cases cannot be told apart.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNotAuthorized is returned when a valid account is not allowed
	// to use the admin login.
	ErrNotAuthorized = errors.New("account is not authorized for admin access")

	// ErrNoAccount is returned when an operation needs an account that
	// does not exist.
	ErrNoAccount = errors.New("account not found")

	// ErrEmailTaken is returned on registering an existing email.
	ErrEmailTaken = errors.New("an account with this email already exists")

	// ErrNotify is returned when a mail could not be dispatched.
	ErrNotify = errors.New("error sending email")

	// ErrSamePassword is returned when a password change reuses the
	// current password.
	ErrSamePassword = errors.New("new password must differ from the current one")

	// ErrBadEmail is returned for a malformed email address.
	ErrBadEmail = errors.New("invalid email address")
)

// Session is the identity attached to an authenticated request.
type Session struct {
	Email      string `json:"email"`
	IsAdmin    bool   `json:"is_admin"`
	IsVerified bool   `json:"is_verified"`
}

// Config has the deployment-specific knobs for the auth flows.
type Config struct {
	// OwnerEmail receives admin login OTPs regardless of which admin
	// account is logging in.
	OwnerEmail string

	// OwnerAllowList are emails granted admin login in addition to
	// accounts flagged as admin.
	OwnerAllowList []string

	// FrontendURL is the SPA origin used to build reset links.
	FrontendURL string

	ResetTokenTTL time.Duration
}

// Service wires the credential store, OTP ledger, token issuer, and
// mailer into the login flows.
type Service struct {
	store  store.Store
	ledger *otp.Ledger
	issuer *token.Issuer
	mail   *mailer.Service
	cfg    Config
	lo     logf.Logger
}

// New returns an auth Service.
func New(st store.Store, ledger *otp.Ledger, issuer *token.Issuer, mail *mailer.Service, cfg Config, lo logf.Logger) *Service {
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = time.Hour
	}
	return &Service{
		store:  st,
		ledger: ledger,
		issuer: issuer,
		mail:   mail,
		cfg:    cfg,
		lo:     lo,
	}
}

// Login checks the email+password pair and, if the account may use the
// admin login, issues an OTP and mails it to the configured owner
// address. The caller then completes the login with VerifyOTP.
func (s *Service) Login(ctx context.Context, email, pass string) error {
	email = normalize(email)
	if email == "" || pass == "" {
		return ErrMissingFields
	}

	acc, err := s.store.Account(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return ErrInvalidCredentials
		}
		return err
	}

	if !password.Verify(pass, acc.Password) {
		return ErrInvalidCredentials
	}

	if !s.isAdmin(acc) {
		return ErrNotAuthorized
	}

	code, err := s.ledger.Issue(ctx, email)
	if err != nil {
		return err
	}

	if err := s.mail.SendOTP(s.cfg.OwnerEmail, code); err != nil {
		s.lo.Error("error sending OTP mail", "error", err, "backend", s.mail.Name())
		return ErrNotify
	}

	return nil
}

// VerifyOTP completes a login. On success it returns a signed session
// token and the account. OTP failures pass through from the ledger.
func (s *Service) VerifyOTP(ctx context.Context, email, code string) (string, models.Account, error) {
	email = normalize(email)
	if email == "" || code == "" {
		return "", models.Account{}, ErrMissingFields
	}

	if err := s.ledger.Verify(ctx, email, code); err != nil {
		return "", models.Account{}, err
	}

	acc, err := s.store.Account(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return "", models.Account{}, ErrNoAccount
		}
		return "", models.Account{}, err
	}

	if err := s.store.TouchLogin(ctx, email, time.Now()); err != nil {
		s.lo.Error("error recording login time", "error", err, "email", email)
	}

	tk, err := s.issuer.Issue(email, acc.IsAdmin, acc.IsVerified)
	if err != nil {
		return "", models.Account{}, err
	}

	return tk, acc, nil
}

// Resend replaces a pending login OTP with a fresh one. The account
// must exist and be admin-eligible, mirroring Login.
func (s *Service) Resend(ctx context.Context, email string) error {
	email = normalize(email)
	if email == "" {
		return ErrMissingFields
	}

	acc, err := s.store.Account(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return ErrInvalidCredentials
		}
		return err
	}
	if !s.isAdmin(acc) {
		return ErrNotAuthorized
	}

	code, err := s.ledger.Issue(ctx, email)
	if err != nil {
		return err
	}

	if err := s.mail.SendOTP(s.cfg.OwnerEmail, code); err != nil {
		s.lo.Error("error sending OTP mail", "error", err, "backend", s.mail.Name())
		return ErrNotify
	}

	return nil
}

// Register creates an unverified account and mails a verification code
// to the registrant.
func (s *Service) Register(ctx context.Context, email, pass, fullName string) error {
	email = normalize(email)
	if email == "" || pass == "" {
		return ErrMissingFields
	}
	if err := mailer.ValidAddress(email); err != nil {
		return ErrBadEmail
	}
	if err := password.ValidateStrength(pass); err != nil {
		return err
	}

	if _, err := s.store.Account(ctx, email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, store.ErrNotExist) {
		return err
	}

	hash, err := password.Hash(pass)
	if err != nil {
		return err
	}

	acc := models.Account{
		Email:     email,
		Password:  hash,
		FullName:  strings.TrimSpace(fullName),
		CreatedAt: time.Now().UnixMilli(),
	}
	if err := s.store.PutAccount(ctx, acc); err != nil {
		return err
	}

	code, err := s.ledger.Issue(ctx, email)
	if err != nil {
		return err
	}
	if err := s.mail.SendOTP(email, code); err != nil {
		s.lo.Error("error sending verification mail", "error", err, "backend", s.mail.Name())
		return ErrNotify
	}

	return nil
}

// VerifyEmail consumes a registration OTP and marks the account
// verified. The welcome mail is best effort.
func (s *Service) VerifyEmail(ctx context.Context, email, code string) error {
	email = normalize(email)
	if email == "" || code == "" {
		return ErrMissingFields
	}

	if err := s.ledger.Verify(ctx, email, code); err != nil {
		return err
	}

	if err := s.store.SetVerified(ctx, email, time.Now()); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return ErrNoAccount
		}
		return err
	}

	acc, err := s.store.Account(ctx, email)
	if err == nil {
		if err := s.mail.SendWelcome(email, acc.FullName); err != nil {
			s.lo.Error("error sending welcome mail", "error", err, "email", email)
		}
	}

	return nil
}

// ChangePassword swaps an account's password after re-checking the
// current one.
func (s *Service) ChangePassword(ctx context.Context, email, oldPass, newPass string) error {
	email = normalize(email)
	if email == "" || oldPass == "" || newPass == "" {
		return ErrMissingFields
	}

	acc, err := s.store.Account(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return ErrInvalidCredentials
		}
		return err
	}

	if !password.Verify(oldPass, acc.Password) {
		return ErrInvalidCredentials
	}
	if oldPass == newPass {
		return ErrSamePassword
	}
	if err := password.ValidateStrength(newPass); err != nil {
		return err
	}

	hash, err := password.Hash(newPass)
	if err != nil {
		return err
	}

	return s.store.SetPassword(ctx, email, hash)
}

// RequestPasswordReset issues a reset token and mails a link. It stays
// silent on unknown emails so the endpoint cannot be used to probe for
// accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = normalize(email)
	if email == "" {
		return ErrMissingFields
	}

	if _, err := s.store.Account(ctx, email); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return nil
		}
		return err
	}

	tok, err := resetToken()
	if err != nil {
		return err
	}
	if err := s.ledger.IssueCode(ctx, email, tok, s.cfg.ResetTokenTTL); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s&email=%s",
		strings.TrimRight(s.cfg.FrontendURL, "/"), tok, url.QueryEscape(email))

	if err := s.mail.SendPasswordReset(email, link); err != nil {
		s.lo.Error("error sending reset mail", "error", err, "backend", s.mail.Name())
		return ErrNotify
	}

	return nil
}

// ResetPassword consumes a reset token and sets the new password.
func (s *Service) ResetPassword(ctx context.Context, email, tok, newPass string) error {
	email = normalize(email)
	if email == "" || tok == "" || newPass == "" {
		return ErrMissingFields
	}

	// Validate the new password before touching the ledger; a rejected
	// password must not consume the single-use token.
	if err := password.ValidateStrength(newPass); err != nil {
		return err
	}
	if err := s.ledger.Verify(ctx, email, tok); err != nil {
		return err
	}

	hash, err := password.Hash(newPass)
	if err != nil {
		return err
	}

	if err := s.store.SetPassword(ctx, email, hash); err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return ErrNoAccount
		}
		return err
	}

	return nil
}

// Identify validates a raw session token and resolves it to a live
// Session. Admin and verification flags come from the stored account,
// not the token, so a demotion takes effect immediately.
func (s *Service) Identify(ctx context.Context, raw string) (Session, error) {
	claims, err := s.issuer.Verify(raw)
	if err != nil {
		return Session{}, err
	}

	acc, err := s.store.Account(ctx, claims.Email())
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return Session{}, ErrNoAccount
		}
		return Session{}, err
	}

	return Session{
		Email:      acc.Email,
		IsAdmin:    s.isAdmin(acc),
		IsVerified: acc.IsVerified,
	}, nil
}

func (s *Service) isAdmin(acc models.Account) bool {
	if acc.IsAdmin {
		return true
	}
	for _, e := range s.cfg.OwnerAllowList {
		if normalize(e) == acc.Email {
			return true
		}
	}
	return false
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func resetToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
