package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/config"
)

// Client issues chat requests against the Zai.is API.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	userAgent    string
	maxRetries   int
	streamBuffer int
	logger       *slog.Logger
}

// NewClient creates an upstream client from configuration.
func NewClient(cfg config.UpstreamConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		userAgent:    cfg.UserAgent,
		maxRetries:   cfg.MaxRetries,
		streamBuffer: cfg.StreamBuffer,
		logger:       logger,
	}
}

// Chunk is one increment of a streamed completion. Err is non-nil for a
// terminal mid-stream failure; no further chunks follow it.
type Chunk struct {
	Content string
	Err     error
}

// Call performs one chat turn with the given account's token: it creates a
// conversation, then streams the completion. The returned channel is closed
// when the stream ends. Errors before streaming begins are returned
// directly; mid-stream failures arrive as a final Chunk with Err set.
//
// Call never mutates the account or the pool; it only classifies failures
// for the caller to act on.
func (c *Client) Call(ctx context.Context, acct account.Account, req *Request) (<-chan Chunk, error) {
	if len(req.Messages) == 0 {
		return nil, &UnrecoverableError{StatusCode: http.StatusBadRequest, Message: "no messages provided"}
	}

	now := time.Now()

	chatID, err := c.createChat(ctx, acct, req.Model, lastUserContent(req), now)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("conversation created",
		"chat_id", chatID,
		"model", req.Model,
		"account_id", acct.ID,
	)

	return c.streamCompletion(ctx, acct, req, now)
}

// createChat creates a new upstream conversation and returns its ID.
// A 401 here is the upstream's invalid-token signature.
func (c *Client) createChat(ctx context.Context, acct account.Account, model, userContent string, now time.Time) (string, error) {
	payload := buildNewChatRequest(model, userContent, now)

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/api/v1/chats/new", payload, acct.AccessToken)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.classifyStatus(acct.ID, resp)
	}

	var chat newChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return "", &ParseError{Cause: err}
	}

	return chat.ID, nil
}

// streamCompletion issues the completion call and hands the response body
// to a reader goroutine feeding a bounded chunk channel.
func (c *Client) streamCompletion(ctx context.Context, acct account.Account, req *Request, now time.Time) (<-chan Chunk, error) {
	payload := buildCompletionRequest(req, now)

	resp, err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/api/chat/completions", payload, acct.AccessToken)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.classifyStatus(acct.ID, resp)
	}

	// Bounded channel: a slow client stalls the upstream read instead of
	// growing an in-memory backlog.
	chunks := make(chan Chunk, c.streamBuffer)
	go c.readStream(ctx, resp.Body, chunks)

	return chunks, nil
}

// VerifyToken checks whether a bearer token is still accepted by the
// upstream. Returns nil when valid, an AuthError when rejected.
func (c *Client) VerifyToken(ctx context.Context, token string) error {
	if len(token) < 50 {
		return &AuthError{Message: "token too short to be a session token"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/chats/?page=1", nil)
	if err != nil {
		return fmt.Errorf("failed to build verify request: %w", err)
	}
	c.setHeaders(req, token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UnavailableError{Message: "token verification failed", Cause: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{Message: "token rejected"}
	default:
		return &UnavailableError{StatusCode: resp.StatusCode, Message: "unexpected verify status"}
	}
}

// renewResponse is the session endpoint's body.
type renewResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// Renew attempts a lightweight token renewal using the account's existing
// session material. A 401 means the session itself is dead and only a full
// re-login can produce a token.
func (c *Client) Renew(ctx context.Context, acct account.Account) (string, time.Time, error) {
	session := acct.AccessToken
	if session == "" {
		session = acct.CredentialRef
	}
	if session == "" {
		return "", time.Time{}, &AuthError{AccountID: acct.ID, Message: "no session material to renew with"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auths/", nil)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to build renew request: %w", err)
	}
	c.setHeaders(req, session)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", time.Time{}, &UnavailableError{Message: "renewal request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", time.Time{}, c.classifyStatus(acct.ID, resp)
	}

	var renewed renewResponse
	if err := json.NewDecoder(resp.Body).Decode(&renewed); err != nil {
		return "", time.Time{}, &ParseError{Cause: err}
	}
	if renewed.Token == "" {
		return "", time.Time{}, &ParseError{Cause: fmt.Errorf("renewal response carried no token")}
	}

	var expiry time.Time
	if renewed.ExpiresAt > 0 {
		expiry = time.Unix(renewed.ExpiresAt, 0)
	}

	return renewed.Token, expiry, nil
}

// doRequest issues a JSON request with browser-equivalent headers, retrying
// transient (5xx/network) failures with exponential backoff. Non-5xx
// responses are returned to the caller for classification.
func (c *Client) doRequest(ctx context.Context, method, url string, payload any, token string) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &UnavailableError{Message: "request cancelled during backoff", Cause: ctx.Err()}
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		c.setHeaders(req, token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &UnavailableError{Message: "request cancelled", Cause: ctx.Err()}
			}
			lastErr = err
			c.logger.Warn("upstream request failed, retrying",
				"url", url,
				"attempt", attempt+1,
				"error", err,
			)
			continue
		}

		if resp.StatusCode >= 500 && attempt < c.maxRetries {
			drainAndClose(resp)
			lastErr = fmt.Errorf("upstream returned status %d", resp.StatusCode)
			c.logger.Warn("upstream server error, retrying",
				"url", url,
				"status", resp.StatusCode,
				"attempt", attempt+1,
			)
			continue
		}

		return resp, nil
	}

	return nil, &UnavailableError{Message: "request failed after retries", Cause: lastErr}
}

// classifyStatus maps a non-200 upstream response to the failure taxonomy.
func (c *Client) classifyStatus(accountID string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := string(bytes.TrimSpace(body))
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return &AuthError{AccountID: accountID, Message: msg}
	case resp.StatusCode == http.StatusForbidden:
		return &BannedError{AccountID: accountID, Message: msg}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &RateLimitError{
			AccountID:  accountID,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    msg,
		}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &UnrecoverableError{StatusCode: resp.StatusCode, Message: msg}
	default:
		return &UnavailableError{StatusCode: resp.StatusCode, Message: msg}
	}
}

// setHeaders applies the browser-equivalent header set the upstream expects.
func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Origin", c.baseURL)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Authorization", "Bearer "+token)
}

// parseRetryAfter parses a Retry-After header (seconds or HTTP date).
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
