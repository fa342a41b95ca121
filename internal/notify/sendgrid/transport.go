// Package sendgrid delivers notification emails through the SendGrid v3 API.
package sendgrid

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/BhekumusaEric/apply4me-sub001/internal/notify"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// Config holds SendGrid credentials and the sender identity.
type Config struct {
	APIKey    string
	FromEmail string
	FromName  string
	AppName   string
	// Host overrides the API host. Tests point it at an httptest server.
	Host string
}

// Transport implements notify.Transport.
type Transport struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

var _ notify.Transport = (*Transport)(nil)

// New constructs a Transport.
func New(cfg Config) (*Transport, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	if cfg.FromEmail == "" {
		return nil, errors.New("sendgrid from email is required")
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	t := &Transport{
		key:  cfg.APIKey,
		host: host,
		from: sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
	}
	if cfg.AppName != "" {
		t.subjPrefix = "[" + cfg.AppName + "] "
	}
	return t, nil
}

// Send implements notify.Transport. A status of 400 or above is an error.
// Canceling ctx aborts an in-flight request.
func (t *Transport) Send(ctx context.Context, msg notify.Message) error {
	req := sendgrid.GetRequest(t.key, endpoint, t.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(t.prepare(msg))

	res, err := rest.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send email: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (t *Transport) prepare(msg notify.Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = t.subjPrefix + msg.Subject
	p.AddTos(sgmail.NewEmail(msg.ToName, msg.To))

	m := sgmail.NewV3Mail()
	m.SetFrom(t.from)
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", msg.TextBody),
		sgmail.NewContent("text/html", msg.HTMLBody),
	)
	return m
}
