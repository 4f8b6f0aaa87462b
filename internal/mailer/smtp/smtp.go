// Package smtp delivers mail over a pooled SMTP connection.
package smtp

import (
	"crypto/tls"
	"fmt"
	"net/smtp"
	"time"

	"github.com/knadh/smtppool"
)

// Config represents an SMTP server's credentials.
type Config struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	AuthProtocol string        `json:"auth_protocol"`
	Username     string        `json:"username"`
	Password     string        `json:"password"`
	FromEmail    string        `json:"from_email"`
	FromName     string        `json:"from_name"`
	Timeout      time.Duration `json:"timeout"`
	MaxConns     int           `json:"max_conns"`

	// STARTTLS or TLS.
	TLSType       string `json:"tls_type"`
	TLSSkipVerify bool   `json:"tls_skip_verify"`
}

// SMTP is a generic SMTP e-mail backend.
type SMTP struct {
	cfg Config
	p   *smtppool.Pool
}

// New creates and returns an SMTP mail backend.
func New(cfg Config) (*SMTP, error) {
	if cfg.FromEmail == "" {
		cfg.FromEmail = "noreply@localhost"
	}

	// Initialize the SMTP mailer.
	var auth smtp.Auth
	switch cfg.AuthProtocol {
	case "login":
		auth = &smtppool.LoginAuth{Username: cfg.Username, Password: cfg.Password}
	case "cram":
		auth = smtp.CRAMMD5Auth(cfg.Username, cfg.Password)
	case "plain":
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	case "", "none":
	default:
		return nil, fmt.Errorf("unknown SMTP auth type '%s'", cfg.AuthProtocol)
	}

	opt := smtppool.Opt{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MaxConns:        cfg.MaxConns,
		IdleTimeout:     time.Second * 10,
		PoolWaitTimeout: cfg.Timeout,
		Auth:            auth,
	}

	// TLS config.
	if cfg.TLSType != "none" {
		opt.TLSConfig = &tls.Config{}
		if cfg.TLSSkipVerify {
			opt.TLSConfig.InsecureSkipVerify = cfg.TLSSkipVerify
		} else {
			opt.TLSConfig.ServerName = cfg.Host
		}

		// SSL/TLS, not STARTTLS.
		if cfg.TLSType == "TLS" {
			opt.SSL = true
		}
	}

	pool, err := smtppool.New(opt)
	if err != nil {
		return nil, err
	}

	return &SMTP{
		p:   pool,
		cfg: cfg,
	}, nil
}

// Name returns the backend's name.
func (s *SMTP) Name() string {
	return "smtp"
}

// Send pushes an e-mail to the SMTP server.
func (s *SMTP) Send(to, subject string, body []byte) error {
	from := s.cfg.FromEmail
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	}

	return s.p.Send(smtppool.Email{
		From:    from,
		To:      []string{to},
		Subject: subject,
		HTML:    body,
	})
}
