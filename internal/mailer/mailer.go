// Package mailer renders and dispatches the transactional mails the
// auth flow sends: OTP codes, welcome notes, and password reset links.
package mailer

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"regexp"
	"time"

	"github.com/Masterminds/sprig"
)

// Notifier is a backend that can deliver a rendered mail. Depending on
// the implementation this is an SMTP pool or a transactional-mail HTTP
// API.
type Notifier interface {
	// Name returns the backend's name for logs.
	Name() string

	// Send dispatches one mail.
	Send(to, subject string, body []byte) error
}

// http://www.golangprograms.com/regular-expression-to-validate-email-address.html
var reMail = regexp.MustCompile("^[a-zA-Z0-9.!#$%&'*+/=?^_`{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$")

// ValidAddress validates an e-mail address.
func ValidAddress(to string) error {
	if !reMail.MatchString(to) {
		return errors.New("invalid e-mail address")
	}
	return nil
}

// Opt holds values exposed to every mail template.
type Opt struct {
	SiteName    string
	FrontendURL string
	OTPTTL      time.Duration
}

// Data is the template context for one mail.
type Data struct {
	SiteName string
	Code     string
	Name     string
	Link     string
	TTL      time.Duration
}

const (
	otpSubject = `Your {{ .SiteName }} OTP code`
	otpBody    = `<p>Hello,</p>
<p>Your one-time password for {{ .SiteName }} is:</p>
<h2 style="letter-spacing: 5px;">{{ .Code }}</h2>
<p><strong>This code is valid for {{ .TTL.Minutes }} minutes only.</strong></p>
<p>If you didn't request this code, please ignore this email.</p>`

	welcomeSubject = `Welcome to {{ .SiteName }}`
	welcomeBody    = `<p>Hi {{ default "there" .Name }},</p>
<p>Your email has been verified and your {{ .SiteName }} account is ready.</p>`

	resetSubject = `Reset your {{ .SiteName }} password`
	resetBody    = `<p>Hello,</p>
<p>A password reset was requested for your {{ .SiteName }} account.
<a href="{{ .Link }}">Click here to choose a new password.</a></p>
<p>The link is valid for one hour. If you didn't request a reset, you
can ignore this email.</p>`
)

type tpl struct {
	subject *template.Template
	body    *template.Template
}

func (t *tpl) render(d Data) (string, []byte, error) {
	var (
		subj = &bytes.Buffer{}
		out  = &bytes.Buffer{}
	)
	if err := t.subject.Execute(subj, d); err != nil {
		return "", nil, err
	}
	if err := t.body.Execute(out, d); err != nil {
		return "", nil, err
	}
	return subj.String(), out.Bytes(), nil
}

// Service renders mail templates and pushes them through a Notifier.
type Service struct {
	notifier Notifier
	opt      Opt
	tpls     map[string]*tpl
}

// New compiles the built-in templates and returns a mail Service.
func New(n Notifier, opt Opt) (*Service, error) {
	if opt.SiteName == "" {
		opt.SiteName = "Portfolio"
	}

	s := &Service{
		notifier: n,
		opt:      opt,
		tpls:     make(map[string]*tpl),
	}

	for name, raw := range map[string][2]string{
		"otp":     {otpSubject, otpBody},
		"welcome": {welcomeSubject, welcomeBody},
		"reset":   {resetSubject, resetBody},
	} {
		subj, err := template.New(name + "_subject").Funcs(sprig.HtmlFuncMap()).Parse(raw[0])
		if err != nil {
			return nil, fmt.Errorf("error parsing %s subject template: %v", name, err)
		}
		body, err := template.New(name).Funcs(sprig.HtmlFuncMap()).Parse(raw[1])
		if err != nil {
			return nil, fmt.Errorf("error parsing %s template: %v", name, err)
		}
		s.tpls[name] = &tpl{subject: subj, body: body}
	}

	return s, nil
}

// Name returns the underlying notifier's name.
func (s *Service) Name() string {
	return s.notifier.Name()
}

// SendOTP mails a one-time code.
func (s *Service) SendOTP(to, code string) error {
	return s.send("otp", to, Data{Code: code, TTL: s.opt.OTPTTL})
}

// SendWelcome mails the post-verification welcome note.
func (s *Service) SendWelcome(to, name string) error {
	return s.send("welcome", to, Data{Name: name})
}

// SendPasswordReset mails a reset link.
func (s *Service) SendPasswordReset(to, link string) error {
	return s.send("reset", to, Data{Link: link})
}

func (s *Service) send(name, to string, d Data) error {
	d.SiteName = s.opt.SiteName
	subj, body, err := s.tpls[name].render(d)
	if err != nil {
		return err
	}
	return s.notifier.Send(to, subj, body)
}
