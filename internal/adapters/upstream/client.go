// Package upstream talks to the platform's OAuth and EventSub HTTP APIs.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/okian/twitch-sources/pkg/logger"
	"github.com/okian/twitch-sources/pkg/metrics"
	"golang.org/x/time/rate"
)

const (
	defaultTokenURL = "https://id.twitch.tv/oauth2/token"
	defaultAPIURL   = "https://api.twitch.tv/helix"
	defaultTimeout  = 10 * time.Second
	maxResponseSize = 1 << 20

	callToken  = "token"
	callCreate = "create_subscription"
)

// Client issues client-credentials grants and subscription creates.
type Client struct {
	httpClient   *http.Client
	tokenURL     string
	apiURL       string
	clientID     string
	clientSecret string
	limiter      *rate.Limiter
	logger       logger.Logger
}

// NewClient builds a client for the given application credentials.
func NewClient(clientID, clientSecret string, opts ...Option) (*Client, error) {
	if clientID == "" || clientSecret == "" {
		return nil, fmt.Errorf("%w: client credentials are required", ErrUpstream)
	}
	c := &Client{
		httpClient:   &http.Client{Timeout: defaultTimeout},
		tokenURL:     defaultTokenURL,
		apiURL:       defaultAPIURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		limiter:      rate.NewLimiter(rate.Limit(10), 20),
		logger:       logger.Named("upstream"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ClientID is the application id requests are issued for.
func (c *Client) ClientID() string { return c.clientID }

// FetchAppToken performs a client-credentials grant and returns the access token.
func (c *Client) FetchAppToken(ctx context.Context) (string, error) {
	body := tokenRequest{
		ClientID:     c.clientID,
		ClientSecret: c.clientSecret,
		GrantType:    "client_credentials",
	}
	var resp tokenResponse
	if err := c.do(ctx, callToken, c.tokenURL, "", body, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrEmpty)
	}
	return resp.AccessToken, nil
}

// CreateSubscription registers one subscription and returns the upstream record.
func (c *Client) CreateSubscription(ctx context.Context, accessToken string, req CreateRequest) (Created, error) {
	var resp createResponse
	u := strings.TrimRight(c.apiURL, "/") + "/eventsub/subscriptions"
	if err := c.do(ctx, callCreate, u, accessToken, req, &resp); err != nil {
		return Created{}, err
	}
	if len(resp.Data) == 0 || resp.Data[0].ID == "" {
		return Created{}, fmt.Errorf("%w: %s", ErrEmpty, req.Type)
	}
	return resp.Data[0], nil
}

func (c *Client) do(ctx context.Context, call, url, accessToken string, in, out any) (err error) {
	start := time.Now()
	status := "error"
	defer func() {
		metrics.RecordUpstreamRequest(call, status, float64(time.Since(start).Milliseconds()))
		if err != nil {
			metrics.RecordErrorByComponent("upstream", call)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %s: rate limit wait: %w", ErrUpstream, call, err)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: %s: marshal: %w", ErrUpstream, call, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %s: build request: %w", ErrUpstream, call, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Client-ID", c.clientID)
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrUpstream, call, err)
	}
	defer resp.Body.Close()
	status = strconv.Itoa(resp.StatusCode)

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("%w: %s: read body: %w", ErrUpstream, call, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &er) == nil && er.Message != "" {
			msg = er.Message
		}
		c.logger.Warn(ctx, "upstream call rejected",
			logger.String("call", call),
			logger.Int("status", resp.StatusCode),
			logger.String("message", msg))
		return fmt.Errorf("%w: %s: %d %s", ErrStatus, call, resp.StatusCode, msg)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrDecode, call, err)
	}
	return nil
}
