package auth

import (
	"context"
	"log"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/newroots/portfolio/internal/mailer"
	"github.com/newroots/portfolio/internal/models"
	"github.com/newroots/portfolio/internal/otp"
	"github.com/newroots/portfolio/internal/password"
	storeredis "github.com/newroots/portfolio/internal/store/redis"
	"github.com/newroots/portfolio/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zerodha/logf"
)

const (
	adminEmail = "admin@example.com"
	ownerEmail = "owner@example.com"
	adminPass  = "Sup3rSecret!"
)

var (
	rdis   *miniredis.Miniredis
	rStore *storeredis.Redis

	ctx = context.Background()
)

func init() {
	rd, err := miniredis.Run()
	if err != nil {
		log.Println(err)
	}
	rdis = rd

	port, _ := strconv.Atoi(rd.Port())
	rStore = storeredis.New(storeredis.Conf{
		Host: rd.Host(),
		Port: port,
	})
}

// sink records mails instead of sending them.
type sink struct {
	to      string
	subject string
	body    string
	fail    bool
}

func (s *sink) Name() string { return "sink" }

func (s *sink) Send(to, subject string, body []byte) error {
	if s.fail {
		return assert.AnError
	}
	s.to = to
	s.subject = subject
	s.body = string(body)
	return nil
}

func newService(t *testing.T) (*Service, *sink) {
	rdis.FlushDB()
	t.Cleanup(func() {
		rdis.FlushDB()
	})

	snk := &sink{}
	mail, err := mailer.New(snk, mailer.Opt{SiteName: "Test", OTPTTL: 10 * time.Minute})
	require.NoError(t, err)

	issuer, err := token.New([]byte("test-secret"), 24*time.Hour)
	require.NoError(t, err)

	ledger := otp.New(rStore, 10*time.Minute, 5)

	lo := logf.New(logf.Opts{})
	svc := New(rStore, ledger, issuer, mail, Config{
		OwnerEmail:  ownerEmail,
		FrontendURL: "https://example.com",
	}, lo)

	// Seed the admin account.
	hash, err := password.Hash(adminPass)
	require.NoError(t, err)
	require.NoError(t, rStore.PutAccount(ctx, models.Account{
		Email:      adminEmail,
		Password:   hash,
		FullName:   "Site Admin",
		IsAdmin:    true,
		IsVerified: true,
		CreatedAt:  time.Now().UnixMilli(),
	}))

	return svc, snk
}

// pendingCode reads the code most recently issued for an email.
func pendingCode(t *testing.T, svc *Service, email string) string {
	rec, err := svc.ledger.Peek(ctx, email)
	require.NoError(t, err)
	return rec.Code
}

func TestLoginIssuesOTPToOwner(t *testing.T) {
	svc, snk := newService(t)

	require.NoError(t, svc.Login(ctx, adminEmail, adminPass))
	assert.Equal(t, ownerEmail, snk.to, "the OTP goes to the configured owner address")
	assert.Contains(t, snk.body, pendingCode(t, svc, adminEmail))
}

func TestLoginNormalizesEmail(t *testing.T) {
	svc, _ := newService(t)
	assert.NoError(t, svc.Login(ctx, "  Admin@Example.COM ", adminPass))
}

func TestLoginInvalidCredentials(t *testing.T) {
	svc, _ := newService(t)

	// Unknown email and wrong password yield the same error.
	assert.Equal(t, ErrInvalidCredentials, svc.Login(ctx, "nobody@example.com", adminPass))
	assert.Equal(t, ErrInvalidCredentials, svc.Login(ctx, adminEmail, "WrongPass1!"))
	assert.Equal(t, ErrMissingFields, svc.Login(ctx, adminEmail, ""))
}

func TestLoginNonAdmin(t *testing.T) {
	svc, _ := newService(t)

	hash, err := password.Hash("An0ther$ecret")
	require.NoError(t, err)
	require.NoError(t, rStore.PutAccount(ctx, models.Account{
		Email:    "user@example.com",
		Password: hash,
	}))

	assert.Equal(t, ErrNotAuthorized, svc.Login(ctx, "user@example.com", "An0ther$ecret"))
}

func TestLoginAllowList(t *testing.T) {
	svc, _ := newService(t)
	svc.cfg.OwnerAllowList = []string{"User@Example.com"}

	hash, err := password.Hash("An0ther$ecret")
	require.NoError(t, err)
	require.NoError(t, rStore.PutAccount(ctx, models.Account{
		Email:    "user@example.com",
		Password: hash,
	}))

	assert.NoError(t, svc.Login(ctx, "user@example.com", "An0ther$ecret"))
}

func TestLoginNotifyFailure(t *testing.T) {
	svc, snk := newService(t)
	snk.fail = true

	assert.Equal(t, ErrNotify, svc.Login(ctx, adminEmail, adminPass))
}

func TestVerifyOTP(t *testing.T) {
	svc, _ := newService(t)

	require.NoError(t, svc.Login(ctx, adminEmail, adminPass))
	code := pendingCode(t, svc, adminEmail)

	tk, acc, err := svc.VerifyOTP(ctx, adminEmail, code)
	require.NoError(t, err)
	assert.Equal(t, adminEmail, acc.Email)
	assert.NotZero(t, acc.LastLogin, "a completed login is stamped on the account")

	claims, err := svc.issuer.Verify(tk)
	require.NoError(t, err)
	assert.Equal(t, adminEmail, claims.Email())
	assert.True(t, claims.IsAdmin)
}

func TestVerifyOTPWrongCode(t *testing.T) {
	svc, _ := newService(t)

	require.NoError(t, svc.Login(ctx, adminEmail, adminPass))
	code := pendingCode(t, svc, adminEmail)

	wrong := "000000"
	if wrong == code {
		wrong = "000001"
	}

	_, _, err := svc.VerifyOTP(ctx, adminEmail, wrong)
	assert.Equal(t, otp.ErrMismatch, err)

	// The correct code is single use.
	_, _, err = svc.VerifyOTP(ctx, adminEmail, code)
	require.NoError(t, err)
	_, _, err = svc.VerifyOTP(ctx, adminEmail, code)
	assert.Equal(t, otp.ErrNotFound, err)
}

func TestResend(t *testing.T) {
	svc, snk := newService(t)

	require.NoError(t, svc.Login(ctx, adminEmail, adminPass))
	first := pendingCode(t, svc, adminEmail)

	require.NoError(t, svc.Resend(ctx, adminEmail))
	second := pendingCode(t, svc, adminEmail)
	assert.Equal(t, ownerEmail, snk.to)

	if first != second {
		_, _, err := svc.VerifyOTP(ctx, adminEmail, first)
		assert.Equal(t, otp.ErrMismatch, err, "a resend supersedes the old code")
	}
	_, _, err := svc.VerifyOTP(ctx, adminEmail, second)
	assert.NoError(t, err)
}

func TestRegister(t *testing.T) {
	svc, snk := newService(t)

	require.NoError(t, svc.Register(ctx, "New@Example.com", "G00dPass!word", "New User"))
	assert.Equal(t, "new@example.com", snk.to, "the verification code goes to the registrant")

	acc, err := rStore.Account(ctx, "new@example.com")
	require.NoError(t, err)
	assert.False(t, acc.IsVerified)
	assert.False(t, acc.IsAdmin)
	assert.NotEqual(t, "G00dPass!word", acc.Password, "passwords are stored hashed")

	// Verify the email with the mailed code.
	code := pendingCode(t, svc, "new@example.com")
	require.NoError(t, svc.VerifyEmail(ctx, "new@example.com", code))

	acc, err = rStore.Account(ctx, "new@example.com")
	require.NoError(t, err)
	assert.True(t, acc.IsVerified)
	assert.Contains(t, snk.body, "New User", "the welcome mail greets by name")
}

func TestRegisterRejections(t *testing.T) {
	svc, _ := newService(t)

	assert.Equal(t, ErrEmailTaken, svc.Register(ctx, adminEmail, "G00dPass!word", ""))
	assert.Equal(t, ErrBadEmail, svc.Register(ctx, "not-an-email", "G00dPass!word", ""))
	assert.ErrorIs(t, svc.Register(ctx, "new@example.com", "weak", ""), password.ErrWeak)
	assert.Equal(t, ErrMissingFields, svc.Register(ctx, "", "", ""))
}

func TestChangePassword(t *testing.T) {
	svc, _ := newService(t)

	assert.Equal(t, ErrInvalidCredentials, svc.ChangePassword(ctx, adminEmail, "WrongPass1!", "N3wSecret!x"))
	assert.Equal(t, ErrSamePassword, svc.ChangePassword(ctx, adminEmail, adminPass, adminPass))
	assert.ErrorIs(t, svc.ChangePassword(ctx, adminEmail, adminPass, "weak"), password.ErrWeak)

	require.NoError(t, svc.ChangePassword(ctx, adminEmail, adminPass, "N3wSecret!x"))
	assert.Equal(t, ErrInvalidCredentials, svc.Login(ctx, adminEmail, adminPass))
	assert.NoError(t, svc.Login(ctx, adminEmail, "N3wSecret!x"))
}

func TestPasswordReset(t *testing.T) {
	svc, snk := newService(t)

	require.NoError(t, svc.RequestPasswordReset(ctx, adminEmail))
	assert.Equal(t, adminEmail, snk.to)
	assert.Contains(t, snk.body, "https://example.com/reset-password?token=")

	// Pull the token out of the mailed link.
	rec, err := svc.ledger.Peek(ctx, adminEmail)
	require.NoError(t, err)
	tok := rec.Code
	assert.Contains(t, snk.body, tok)

	require.NoError(t, svc.ResetPassword(ctx, adminEmail, tok, "N3wSecret!x"))
	assert.NoError(t, svc.Login(ctx, adminEmail, "N3wSecret!x"))

	// The token is single use.
	assert.Equal(t, otp.ErrNotFound, svc.ResetPassword(ctx, adminEmail, tok, "An0ther$ecret"))
}

func TestPasswordResetWeakPasswordKeepsToken(t *testing.T) {
	svc, _ := newService(t)

	require.NoError(t, svc.RequestPasswordReset(ctx, adminEmail))
	rec, err := svc.ledger.Peek(ctx, adminEmail)
	require.NoError(t, err)
	tok := rec.Code

	// A rejected password must not consume the token.
	assert.ErrorIs(t, svc.ResetPassword(ctx, adminEmail, tok, "weak"), password.ErrWeak)

	// Retrying with a valid password still works.
	require.NoError(t, svc.ResetPassword(ctx, adminEmail, tok, "N3wSecret!x"))
	assert.NoError(t, svc.Login(ctx, adminEmail, "N3wSecret!x"))
}

func TestPasswordResetUnknownEmailIsSilent(t *testing.T) {
	svc, snk := newService(t)

	require.NoError(t, svc.RequestPasswordReset(ctx, "nobody@example.com"))
	assert.Empty(t, snk.to, "no mail goes out for an unknown email")
}

func TestIdentify(t *testing.T) {
	svc, _ := newService(t)

	require.NoError(t, svc.Login(ctx, adminEmail, adminPass))
	tk, _, err := svc.VerifyOTP(ctx, adminEmail, pendingCode(t, svc, adminEmail))
	require.NoError(t, err)

	sess, err := svc.Identify(ctx, tk)
	require.NoError(t, err)
	assert.Equal(t, Session{Email: adminEmail, IsAdmin: true, IsVerified: true}, sess)

	_, err = svc.Identify(ctx, "not-a-token")
	assert.Equal(t, token.ErrMalformed, err)

	_, err = svc.Identify(ctx, strings.Repeat("x", 64))
	assert.Error(t, err)
}
