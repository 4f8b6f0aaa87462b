// Package api delivers mail through a transactional-mail HTTP API
// (Brevo-compatible JSON endpoint).
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Config contains the mail API endpoint configuration.
type Config struct {
	URL       string        `json:"url"`
	Key       string        `json:"key"`
	FromEmail string        `json:"from_email"`
	FromName  string        `json:"from_name"`
	Timeout   time.Duration `json:"timeout"`
	MaxConns  int           `json:"max_conns"`
}

// API posts mails to an HTTP endpoint.
type API struct {
	cfg  Config
	http *http.Client
}

type address struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// payload is the request body the endpoint expects.
type payload struct {
	Sender      address   `json:"sender"`
	To          []address `json:"to"`
	Subject     string    `json:"subject"`
	HTMLContent string    `json:"htmlContent"`
}

// New returns a mail API backend.
func New(cfg Config) (*API, error) {
	if cfg.URL == "" {
		cfg.URL = "https://api.brevo.com/v3/smtp/email"
	}

	// Initialize the HTTP client.
	if cfg.Timeout.Seconds() < 1 {
		cfg.Timeout = time.Second * 3
	}
	if cfg.MaxConns < 1 {
		cfg.MaxConns = 1
	}

	return &API{
		cfg: cfg,
		http: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost:   cfg.MaxConns,
				ResponseHeaderTimeout: cfg.Timeout,
			},
		},
	}, nil
}

// Name returns the backend's name.
func (a *API) Name() string {
	return "api"
}

// Send posts one mail to the endpoint.
func (a *API) Send(to, subject string, body []byte) error {
	p := payload{
		Sender:      address{Email: a.cfg.FromEmail, Name: a.cfg.FromName},
		To:          []address{{Email: to}},
		Subject:     subject,
		HTMLContent: string(body),
	}

	b, err := json.Marshal(p)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, a.cfg.URL, bytes.NewReader(b))
	if err != nil {
		return err
	}

	req.Header.Set("User-Agent", "portfolio")
	req.Header.Add("Content-Type", "application/json")
	req.Header.Set("api-key", a.cfg.Key)

	resp, err := a.http.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		// Drain and close the body to let the Transport reuse the connection
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("mail API returned %d", resp.StatusCode)
	}

	return nil
}
