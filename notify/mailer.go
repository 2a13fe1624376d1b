// Package notify delivers outbound email through the Postmark HTTP API.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Postmark sends templated HTML email to a single recipient or a broadcast
// list. Every call carries an explicit timeout so a slow provider cannot
// hang a request indefinitely.
type Postmark struct {
	client  *http.Client
	baseURL string
	token   string
	from    string
	logger  *zap.Logger
}

// NewPostmark builds the gateway. timeout bounds each delivery call.
func NewPostmark(baseURL, token, from string, timeout time.Duration, logger *zap.Logger) *Postmark {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Postmark{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		from:    from,
		logger:  logger,
	}
}

// AccountCreated emails a password-setup link to a freshly provisioned user.
func (p *Postmark) AccountCreated(ctx context.Context, email, setupLink string) error {
	body, err := renderTemplate(accountCreatedTmpl, map[string]string{
		"Link":  setupLink,
		"Email": email,
	})
	if err != nil {
		return err
	}
	return p.send(ctx, email, "Dispute Portal Account Creation", body)
}

// DisputeCreated confirms a new dispute to its creator with the tracking id.
func (p *Postmark) DisputeCreated(ctx context.Context, email, trackingID string) error {
	body, err := renderTemplate(disputeCreatedTmpl, map[string]string{
		"TrackingID": trackingID,
	})
	if err != nil {
		return err
	}
	return p.send(ctx, email, "Dispute Created Successfully", body)
}

// ReplyPosted broadcasts a new comment to every registered address.
func (p *Postmark) ReplyPosted(ctx context.Context, recipients []string, trackingID, reply, replierEmail string) error {
	if len(recipients) == 0 {
		return nil
	}
	body, err := renderTemplate(replyPostedTmpl, map[string]string{
		"TrackingID": trackingID,
		"Reply":      reply,
		"Replier":    replierEmail,
	})
	if err != nil {
		return err
	}
	return p.send(ctx, strings.Join(recipients, ","), "Dispute Information Updated", body)
}

type emailPayload struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HTMLBody string `json:"HtmlBody"`
}

func (p *Postmark) send(ctx context.Context, to, subject, htmlBody string) error {
	payload, err := json.Marshal(emailPayload{
		From:     p.from,
		To:       to,
		Subject:  subject,
		HTMLBody: htmlBody,
	})
	if err != nil {
		return fmt.Errorf("notify: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/email", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("X-Postmark-Server-Token", p.token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: postmark status %d: %s", resp.StatusCode, string(snippet))
	}

	p.logger.Debug("email sent", zap.String("subject", subject))
	return nil
}

func renderTemplate(tmpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("notify: render template: %w", err)
	}
	return buf.String(), nil
}
