package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/smallbiznis/hostelway/internal/providers/httpx"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"go.uber.org/zap"
)

// ErrSessionClosed means the free-form messaging window has expired and
// the message must be re-sent as an approved template.
var ErrSessionClosed = errors.New("messaging_session_closed")

const defaultTemplateLanguage = "en"

type Client interface {
	// SendSession delivers a free-form text message inside an open
	// conversation window.
	SendSession(ctx context.Context, creds settingsdomain.Credentials, to, body string) error

	// SendTemplate delivers a pre-approved template with positional
	// body parameters.
	SendTemplate(ctx context.Context, creds settingsdomain.Credentials, to, template string, params []string) error
}

type client struct {
	http *httpx.Client
	log  *zap.Logger
}

func NewClient(http *httpx.Client, log *zap.Logger) Client {
	return &client{http: http, log: log.Named("messaging")}
}

func (c *client) SendSession(ctx context.Context, creds settingsdomain.Credentials, to, body string) error {
	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text":              map[string]string{"body": body},
	})
	if err != nil {
		return err
	}

	err = c.send(ctx, creds, "send_session", payload)
	if isSessionClosed(err) {
		return ErrSessionClosed
	}
	return err
}

func (c *client) SendTemplate(ctx context.Context, creds settingsdomain.Credentials, to, template string, params []string) error {
	parameters := make([]map[string]string, 0, len(params))
	for _, param := range params {
		parameters = append(parameters, map[string]string{"type": "text", "text": param})
	}

	language := creds.Get("template_language")
	if language == "" {
		language = defaultTemplateLanguage
	}

	payload, err := json.Marshal(map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "template",
		"template": map[string]any{
			"name":     template,
			"language": map[string]string{"code": language},
			"components": []map[string]any{
				{"type": "body", "parameters": parameters},
			},
		},
	})
	if err != nil {
		return err
	}

	return c.send(ctx, creds, "send_template", payload)
}

func (c *client) send(ctx context.Context, creds settingsdomain.Credentials, operation string, payload []byte) error {
	_, err := c.http.Do(ctx, "messaging", operation, httpx.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(creds.Get("base_url"), "/") + "/" + creds.Get("phone_number_id") + "/messages",
		Header: map[string]string{
			"Authorization": "Bearer " + creds.Get("access_token"),
			"Content-Type":  "application/json",
		},
		Body: payload,
	})
	return err
}

// isSessionClosed recognizes the provider's refusal to deliver free-form
// messages outside the 24h conversation window.
func isSessionClosed(err error) bool {
	var rejected *httpx.RejectedError
	if !errors.As(err, &rejected) {
		return false
	}
	message := strings.ToLower(rejected.Message)
	return strings.Contains(message, "re-engagement") ||
		strings.Contains(message, "session") ||
		strings.Contains(message, "24 hour")
}
