package lock

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/hostelway/internal/clock"
	"github.com/smallbiznis/hostelway/internal/providers/httpx"
	settingsdomain "github.com/smallbiznis/hostelway/internal/settings/domain"
	"go.uber.org/zap"
)

var ErrInvalidResponse = errors.New("lock_invalid_response")

// tokenSkew forces a refresh shortly before the provider-reported expiry.
const tokenSkew = 30 * time.Second

type IssuedCode struct {
	CodeID string `json:"code_id"`
	Code   string `json:"code"`
}

type Lock struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Client interface {
	IssueTemporaryCode(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID, lockID string, start, end time.Time, label string) (IssuedCode, error)
	RevokeCode(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID, lockID, codeID string) error
	ListLocks(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID) ([]Lock, error)
}

type cachedToken struct {
	token     string
	expiresAt time.Time
}

type client struct {
	http  *httpx.Client
	log   *zap.Logger
	clock clock.Clock

	mu     sync.Mutex
	tokens map[snowflake.ID]cachedToken
}

func NewClient(http *httpx.Client, log *zap.Logger, clk clock.Clock) Client {
	return &client{
		http:   http,
		log:    log.Named("lock"),
		clock:  clk,
		tokens: make(map[snowflake.ID]cachedToken),
	}
}

func (c *client) IssueTemporaryCode(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID, lockID string, start, end time.Time, label string) (IssuedCode, error) {
	token, err := c.accessToken(ctx, creds, orgID)
	if err != nil {
		return IssuedCode{}, err
	}

	body, err := json.Marshal(map[string]string{
		"start": start.UTC().Format(time.RFC3339),
		"end":   end.UTC().Format(time.RFC3339),
		"label": label,
	})
	if err != nil {
		return IssuedCode{}, err
	}

	resp, err := c.http.Do(ctx, "lock", "issue_code", httpx.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(creds.Get("base_url"), "/") + "/v1/locks/" + url.PathEscape(lockID) + "/codes",
		Header: map[string]string{
			"Authorization": "Bearer " + token,
			"Content-Type":  "application/json",
		},
		Body: body,
	})
	if err != nil {
		return IssuedCode{}, err
	}

	var issued IssuedCode
	if err := json.Unmarshal(resp.Body, &issued); err != nil {
		return IssuedCode{}, ErrInvalidResponse
	}
	if issued.CodeID == "" || issued.Code == "" {
		return IssuedCode{}, ErrInvalidResponse
	}
	return issued, nil
}

func (c *client) RevokeCode(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID, lockID, codeID string) error {
	token, err := c.accessToken(ctx, creds, orgID)
	if err != nil {
		return err
	}

	_, err = c.http.Do(ctx, "lock", "revoke_code", httpx.Request{
		Method: http.MethodDelete,
		URL:    strings.TrimRight(creds.Get("base_url"), "/") + "/v1/locks/" + url.PathEscape(lockID) + "/codes/" + url.PathEscape(codeID),
		Header: map[string]string{"Authorization": "Bearer " + token},
	})
	return err
}

func (c *client) ListLocks(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID) ([]Lock, error) {
	token, err := c.accessToken(ctx, creds, orgID)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(ctx, "lock", "list_locks", httpx.Request{
		Method: http.MethodGet,
		URL:    strings.TrimRight(creds.Get("base_url"), "/") + "/v1/locks",
		Header: map[string]string{"Authorization": "Bearer " + token},
	})
	if err != nil {
		return nil, err
	}

	var body struct {
		Locks []Lock `json:"locks"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, ErrInvalidResponse
	}
	return body.Locks, nil
}

// accessToken returns a cached token for the org or exchanges credentials
// for a fresh one via the password grant.
func (c *client) accessToken(ctx context.Context, creds settingsdomain.Credentials, orgID snowflake.ID) (string, error) {
	now := c.clock.Now()

	c.mu.Lock()
	cached, ok := c.tokens[orgID]
	c.mu.Unlock()
	if ok && now.Before(cached.expiresAt) {
		return cached.token, nil
	}

	values := url.Values{}
	values.Set("grant_type", "password")
	values.Set("client_id", creds.Get("client_id"))
	values.Set("client_secret", creds.Get("client_secret"))
	values.Set("username", creds.Get("username"))
	values.Set("password", creds.Get("password"))

	resp, err := c.http.Do(ctx, "lock", "token_exchange", httpx.Request{
		Method: http.MethodPost,
		URL:    strings.TrimRight(creds.Get("base_url"), "/") + "/oauth/token",
		Header: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:   []byte(values.Encode()),
	})
	if err != nil {
		return "", err
	}

	var grant struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(resp.Body, &grant); err != nil {
		return "", ErrInvalidResponse
	}
	if grant.AccessToken == "" {
		return "", ErrInvalidResponse
	}

	expiresAt := now.Add(time.Duration(grant.ExpiresIn) * time.Second)
	c.mu.Lock()
	c.tokens[orgID] = cachedToken{token: grant.AccessToken, expiresAt: expiresAt.Add(-tokenSkew)}
	c.mu.Unlock()

	c.log.Debug("lock token refreshed", zap.String("org_id", orgID.String()))
	return grant.AccessToken, nil
}
