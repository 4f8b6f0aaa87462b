// Package otp implements the one-time-passcode ledger: at most one live
// code per email, a fixed expiry horizon, and a capped attempt counter.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/newroots/portfolio/internal/models"
	"github.com/newroots/portfolio/internal/store"
)

var (
	// ErrNotFound is returned when no pending code exists for the email.
	ErrNotFound = errors.New("no pending OTP for this email")

	// ErrExpired is returned when the code's deadline has passed. The
	// record is deleted as a side effect.
	ErrExpired = errors.New("OTP has expired")

	// ErrTooManyAttempts is returned once the attempt cap is reached.
	// The record is deleted as a side effect.
	ErrTooManyAttempts = errors.New("too many OTP attempts")

	// ErrMismatch is returned for a wrong code. The attempt counter is
	// incremented and the record kept, so the caller may retry up to
	// the cap.
	ErrMismatch = errors.New("incorrect OTP")
)

// Ledger manages pending OTP records on top of a Store.
//
// There is no per-email lock: issuing a new code while a verification
// for the same email is in flight is last-writer-wins. That is
// acceptable for the single-administrator deployment this serves; a
// multi-tenant deployment would need compare-and-swap at the storage
// layer.
type Ledger struct {
	store       store.Store
	ttl         time.Duration
	maxAttempts int

	now func() time.Time
}

// New returns a Ledger issuing codes that expire ttl from issuance and
// allow maxAttempts failed verifications.
func New(st store.Store, ttl time.Duration, maxAttempts int) *Ledger {
	return &Ledger{
		store:       st,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Issue generates a random 6-digit code for the email, superseding any
// prior record and resetting the attempt counter.
func (l *Ledger) Issue(ctx context.Context, email string) (string, error) {
	code, err := GenerateCode()
	if err != nil {
		return "", err
	}
	if err := l.put(ctx, email, code, l.ttl); err != nil {
		return "", err
	}
	return code, nil
}

// IssueCode stores a caller-supplied code (e.g. a password reset token)
// under the email with a custom TTL, superseding any prior record.
func (l *Ledger) IssueCode(ctx context.Context, email, code string, ttl time.Duration) error {
	return l.put(ctx, email, code, ttl)
}

// Verify checks a submitted code against the pending record. On success
// the record is deleted (codes are single use) and nil is returned.
// Failures are ErrNotFound, ErrExpired, ErrTooManyAttempts, or
// ErrMismatch; only a mismatch leaves the record in place.
func (l *Ledger) Verify(ctx context.Context, email, code string) error {
	rec, err := l.store.OTP(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotExist) {
			return ErrNotFound
		}
		return err
	}

	now := l.now()
	if now.UnixMilli() > rec.ExpiresAt {
		_ = l.store.DeleteOTP(ctx, email)
		return ErrExpired
	}

	if rec.Attempts >= rec.MaxAttempts {
		_ = l.store.DeleteOTP(ctx, email)
		return ErrTooManyAttempts
	}

	if subtle.ConstantTimeCompare([]byte(rec.Code), []byte(code)) != 1 {
		if _, err := l.store.IncrAttempts(ctx, email); err != nil {
			return err
		}
		return ErrMismatch
	}

	return l.store.DeleteOTP(ctx, email)
}

// Peek returns the pending record without touching the attempt counter.
func (l *Ledger) Peek(ctx context.Context, email string) (models.OTP, error) {
	rec, err := l.store.OTP(ctx, email)
	if errors.Is(err, store.ErrNotExist) {
		return rec, ErrNotFound
	}
	return rec, err
}

func (l *Ledger) put(ctx context.Context, email, code string, ttl time.Duration) error {
	now := l.now()
	rec := models.OTP{
		Email:       email,
		Code:        code,
		Attempts:    0,
		MaxAttempts: l.maxAttempts,
		IssuedAt:    now.UnixMilli(),
		ExpiresAt:   now.Add(ttl).UnixMilli(),
	}

	// Keep the row in storage past its logical deadline so an expired
	// code is reported as expired, not as never having existed.
	return l.store.SetOTP(ctx, rec, ttl*2)
}

// GenerateCode draws a uniformly random 6-digit code. The range is the
// full 000000-999999, zero-padded.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
