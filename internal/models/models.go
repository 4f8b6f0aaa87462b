package models

import "encoding/json"

// Account is a credential-store record. The password hash is never
// serialized to JSON responses.
type Account struct {
	Email      string `redis:"email" json:"email"`
	Password   string `redis:"password" json:"-"`
	FullName   string `redis:"full_name" json:"full_name,omitempty"`
	IsVerified bool   `redis:"is_verified" json:"is_verified"`
	IsAdmin    bool   `redis:"is_admin" json:"is_admin"`

	// Unix milliseconds.
	CreatedAt int64 `redis:"created_at" json:"created_at"`
	LastLogin int64 `redis:"last_login" json:"last_login,omitempty"`
}

// OTP is a pending one-time code (or password reset token) keyed by
// the lowercased account email. At most one live record exists per email;
// issuing a new one supersedes the old.
type OTP struct {
	Email       string `redis:"email" json:"email"`
	Code        string `redis:"code" json:"-"`
	Attempts    int    `redis:"attempts" json:"attempts"`
	MaxAttempts int    `redis:"max_attempts" json:"max_attempts"`

	// Unix milliseconds. ExpiresAt is the authoritative deadline checked
	// at verification time; the storage TTL only reclaims dead records.
	IssuedAt  int64 `redis:"issued_at" json:"issued_at"`
	ExpiresAt int64 `redis:"expires_at" json:"expires_at"`
}

// ContentItem is one entry in a portfolio section (projects, skills,
// certificates, hackathons, workshops). Data carries the section-specific
// payload opaquely.
type ContentItem struct {
	ID      string `redis:"id" json:"id"`
	Section string `redis:"section" json:"section"`
	Slug    string `redis:"slug" json:"slug,omitempty"`

	Data json.RawMessage `redis:"data" json:"data"`

	CreatedAt int64 `redis:"created_at" json:"created_at"`
	UpdatedAt int64 `redis:"updated_at" json:"updated_at,omitempty"`
}

// ContactMessage is a message submitted by a site visitor.
type ContactMessage struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
	Phone   string `json:"phone,omitempty"`
	Status  string `json:"status"`

	CreatedAt int64 `json:"created_at"`
}
