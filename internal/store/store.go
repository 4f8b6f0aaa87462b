package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/newroots/portfolio/internal/models"
)

// ErrNotExist is returned when a requested record (account, OTP,
// content item) does not exist.
var ErrNotExist = errors.New("the record does not exist")

// Store represents the storage backend for accounts, pending OTPs,
// portfolio content, contact messages, and rate-limit windows.
type Store interface {
	// PutAccount writes an account keyed by its lowercased email,
	// creating or overwriting it.
	PutAccount(ctx context.Context, a models.Account) error

	// Account fetches an account by email. Returns ErrNotExist when
	// no account is registered under the email.
	Account(ctx context.Context, email string) (models.Account, error)

	// TouchLogin stamps the last successful login time on an account.
	// Returns ErrNotExist when no such account exists.
	TouchLogin(ctx context.Context, email string, at time.Time) error

	// SetPassword replaces the stored password hash. Returns ErrNotExist
	// when no such account exists.
	SetPassword(ctx context.Context, email, hash string) error

	// SetVerified marks the account's email as verified. Returns
	// ErrNotExist when no such account exists.
	SetVerified(ctx context.Context, email string, at time.Time) error

	// SetOTP writes the pending OTP for o.Email, superseding any prior
	// record. keep is the storage TTL after which the record is
	// reclaimed; the logical deadline is o.ExpiresAt.
	SetOTP(ctx context.Context, o models.OTP, keep time.Duration) error

	// OTP fetches the pending OTP for an email. Returns ErrNotExist
	// when there is none.
	OTP(ctx context.Context, email string) (models.OTP, error)

	// IncrAttempts increments the attempt counter on the pending OTP
	// and returns the new count.
	IncrAttempts(ctx context.Context, email string) (int, error)

	// DeleteOTP removes the pending OTP for an email.
	DeleteOTP(ctx context.Context, email string) error

	// PutContent writes a content item, creating or overwriting it.
	PutContent(ctx context.Context, item models.ContentItem) error

	// Content lists all items in a section.
	Content(ctx context.Context, section string) ([]models.ContentItem, error)

	// ContentItem fetches a single item. Returns ErrNotExist when the
	// item is absent from the section.
	ContentItem(ctx context.Context, section, id string) (models.ContentItem, error)

	// UpdateContent replaces the payload of an existing item. Returns
	// ErrNotExist when the item is absent.
	UpdateContent(ctx context.Context, section, id string, data json.RawMessage, at time.Time) error

	// DeleteContent removes an item. Returns ErrNotExist when the item
	// is absent.
	DeleteContent(ctx context.Context, section, id string) error

	// PutMessage appends a contact message.
	PutMessage(ctx context.Context, m models.ContactMessage) error

	// Messages lists contact messages, newest first.
	Messages(ctx context.Context) ([]models.ContactMessage, error)

	// Message fetches a single contact message. Returns ErrNotExist
	// when no message has the id.
	Message(ctx context.Context, id string) (models.ContactMessage, error)

	// SetMessageStatus updates a message's triage status. Returns
	// ErrNotExist when no message has the id.
	SetMessageStatus(ctx context.Context, id, status string) error

	// DeleteMessage removes a contact message. Returns ErrNotExist when
	// no message has the id.
	DeleteMessage(ctx context.Context, id string) error

	// WindowCount prunes rate-limit window entries older than cutoff
	// and returns the remaining count along with the oldest remaining
	// entry's timestamp (zero when the window is empty).
	WindowCount(ctx context.Context, key string, cutoff time.Time) (int, time.Time, error)

	// WindowAppend records one hit in a rate-limit window. keep bounds
	// how long the window key is retained.
	WindowAppend(ctx context.Context, key string, at time.Time, keep time.Duration) error

	// Ping checks if the store is reachable.
	Ping(ctx context.Context) error
}
