package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"picshare/internal/pkg/logger"
)

// Email is a rendered transactional message. It is also the payload of
// queued e-mail jobs.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

var passwordResetTmpl = template.Must(template.New("password-reset").Parse(`<!DOCTYPE html>
<html>
  <body style="font-family: Arial, sans-serif; color: #222;">
    <h2>Reset your password</h2>
    <p>We received a request to reset the password of your picshare account.</p>
    <p><a href="{{.URL}}" style="background:#6469ff;color:#fff;padding:10px 18px;border-radius:6px;text-decoration:none;">Choose a new password</a></p>
    <p>The link is valid for {{.Validity}}. If you did not ask for it, you can ignore this e-mail.</p>
  </body>
</html>`))

// PasswordResetEmail renders the reset e-mail for resetURL.
func PasswordResetEmail(to, resetURL string, validity time.Duration) (Email, error) {
	var buf bytes.Buffer
	err := passwordResetTmpl.Execute(&buf, struct {
		URL      string
		Validity string
	}{URL: resetURL, Validity: validity.String()})
	if err != nil {
		return Email{}, err
	}
	return Email{To: to, Subject: "Password reset", HTML: buf.String()}, nil
}

// ConsoleMailer writes e-mails to the log. Used in development.
type ConsoleMailer struct{}

func (ConsoleMailer) Send(ctx context.Context, msg Email) error {
	logger.FromContext(ctx).Info("[DEV-EMAIL]", slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.String("html", msg.HTML))
	return nil
}

// ResendMailer delivers through the Resend HTTP API.
type ResendMailer struct {
	endpoint string
	apiKey   string
	from     string
	client   *http.Client
}

func NewResendMailer(endpoint, apiKey, fromName, fromAddr string) *ResendMailer {
	from := fromAddr
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", fromName, fromAddr)
	}
	return &ResendMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		from:     from,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *ResendMailer) Send(ctx context.Context, msg Email) error {
	body, err := json.Marshal(map[string]any{
		"from":    m.from,
		"to":      []string{msg.To},
		"subject": msg.Subject,
		"html":    msg.HTML,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("resend: status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// JobPublisher is satisfied by queue.Publisher.
type JobPublisher interface {
	Publish(ctx context.Context, queue string, payload any) error
}

// QueueMailer hands e-mails to the mailer worker through the broker.
type QueueMailer struct {
	publisher JobPublisher
	queue     string
}

func NewQueueMailer(p JobPublisher, queue string) *QueueMailer {
	return &QueueMailer{publisher: p, queue: queue}
}

func (m *QueueMailer) Send(ctx context.Context, msg Email) error {
	return m.publisher.Publish(ctx, m.queue, msg)
}
