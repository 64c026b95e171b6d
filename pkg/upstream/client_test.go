package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/config"
)

const testToken = "00000000-0000-0000-0000-000000000000-padding-to-session-length"

func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	return NewClient(config.UpstreamConfig{
		BaseURL:      srv.URL,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		UserAgent:    "test-agent",
		StreamBuffer: 16,
	}, nil)
}

func testAccount() account.Account {
	return account.Account{ID: "acct-1", AccessToken: testToken}
}

func testRequest() *Request {
	return &Request{
		Model:    DefaultModel,
		Messages: []Message{{Role: "user", Content: "hi"}},
		Stream:   true,
	}
}

// upstreamStub serves the two-call protocol: chat creation then streaming.
func upstreamStub(t *testing.T, createStatus int, sseLines []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/chats/new":
			if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
				t.Errorf("missing bearer token, got %q", got)
			}
			if got := r.Header.Get("Origin"); got == "" {
				t.Error("missing Origin header")
			}
			if createStatus != http.StatusOK {
				w.WriteHeader(createStatus)
				return
			}
			fmt.Fprint(w, `{"id":"chat-123"}`)
		case "/api/chat/completions":
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			for _, line := range sseLines {
				fmt.Fprintf(w, "%s\n\n", line)
				flusher.Flush()
			}
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func collect(t *testing.T, chunks <-chan Chunk) (string, error) {
	t.Helper()
	var sb strings.Builder
	for chunk := range chunks {
		if chunk.Err != nil {
			return sb.String(), chunk.Err
		}
		sb.WriteString(chunk.Content)
	}
	return sb.String(), nil
}

func TestCallStreamsContent(t *testing.T) {
	srv := upstreamStub(t, http.StatusOK, []string{
		`data: {"choices":[{"delta":{"content":"Hello"}}]}`,
		`data: {"choices":[{"delta":{"content":", "}}]}`,
		`: keepalive comment`,
		`data: {"content":"world"}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	chunks, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	got, streamErr := collect(t, chunks)
	if streamErr != nil {
		t.Fatalf("unexpected stream error: %v", streamErr)
	}
	if got != "Hello, world" {
		t.Errorf("streamed content = %q, want %q", got, "Hello, world")
	}
}

func TestCallEmptyMessages(t *testing.T) {
	srv := upstreamStub(t, http.StatusOK, nil)
	defer srv.Close()

	_, err := testClient(t, srv).Call(context.Background(), testAccount(), &Request{Model: DefaultModel})

	var unrecErr *UnrecoverableError
	if !errors.As(err, &unrecErr) {
		t.Fatalf("expected UnrecoverableError, got %v", err)
	}
}

func TestCallStatusClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantKind account.FailureKind
	}{
		{"401 is auth expiry", http.StatusUnauthorized, account.FailureAuthExpired},
		{"403 is a ban", http.StatusForbidden, account.FailurePermanentlyBanned},
		{"429 is rate limiting", http.StatusTooManyRequests, account.FailureRateLimited},
		{"400 is unrecoverable", http.StatusBadRequest, account.FailureUnrecoverable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := upstreamStub(t, tt.status, nil)
			defer srv.Close()

			_, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())
			if err == nil {
				t.Fatal("expected an error")
			}
			if kind := Classify(err); kind != tt.wantKind {
				t.Errorf("Classify() = %v, want %v", kind, tt.wantKind)
			}
		})
	}
}

func TestCallAuthErrorCarriesAccountID(t *testing.T) {
	srv := upstreamStub(t, http.StatusUnauthorized, nil)
	defer srv.Close()

	_, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if authErr.AccountID != "acct-1" {
		t.Errorf("AccountID = %q, want %q", authErr.AccountID, "acct-1")
	}
}

func TestCallRetryAfterParsed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())

	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if rateErr.RetryAfter != 30*time.Second {
		t.Errorf("RetryAfter = %s, want 30s", rateErr.RetryAfter)
	}
}

func TestCallRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"id":"chat-123"}`)
	}))
	defer srv.Close()

	acct := testAccount()
	chatID, err := testClient(t, srv).createChat(context.Background(), acct, DefaultModel, "hi", time.Now())
	if err != nil {
		t.Fatalf("expected retries to succeed: %v", err)
	}
	if chatID != "chat-123" {
		t.Errorf("chat ID = %q", chatID)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want 3", got)
	}
}

func TestCallExhaustsRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())

	var unavailErr *UnavailableError
	if !errors.As(err, &unavailErr) {
		t.Fatalf("expected UnavailableError, got %v", err)
	}
	// MaxRetries=2: the final 503 is returned and classified, not retried.
	if got := calls.Load(); got != 3 {
		t.Errorf("upstream called %d times, want 3", got)
	}
}

func TestStreamErrorEvent(t *testing.T) {
	srv := upstreamStub(t, http.StatusOK, []string{
		`data: {"choices":[{"delta":{"content":"partial"}}]}`,
		`data: {"error":"model overloaded"}`,
	})
	defer srv.Close()

	chunks, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	got, streamErr := collect(t, chunks)
	if got != "partial" {
		t.Errorf("content before error = %q, want %q", got, "partial")
	}
	var se *StreamError
	if !errors.As(streamErr, &se) {
		t.Fatalf("expected StreamError, got %v", streamErr)
	}
	if !strings.Contains(se.Message, "model overloaded") {
		t.Errorf("error message %q missing upstream detail", se.Message)
	}
}

func TestStreamBreakBeforeDone(t *testing.T) {
	srv := upstreamStub(t, http.StatusOK, []string{
		`data: {"choices":[{"delta":{"content":"cut "}}]}`,
		`data: {"choices":[{"delta":{"content":"short"}}]}`,
		// Body ends without a [DONE] terminator.
	})
	defer srv.Close()

	chunks, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	got, streamErr := collect(t, chunks)
	if got != "cut short" {
		t.Errorf("content = %q", got)
	}
	var se *StreamError
	if !errors.As(streamErr, &se) {
		t.Fatalf("expected StreamError for truncated stream, got %v", streamErr)
	}
}

func TestStreamSkipsMalformedFrames(t *testing.T) {
	srv := upstreamStub(t, http.StatusOK, []string{
		`data: {not json`,
		`data: {"choices":[{"delta":{"content":"ok"}}]}`,
		`data: [DONE]`,
	})
	defer srv.Close()

	chunks, err := testClient(t, srv).Call(context.Background(), testAccount(), testRequest())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	got, streamErr := collect(t, chunks)
	if streamErr != nil {
		t.Fatalf("unexpected stream error: %v", streamErr)
	}
	if got != "ok" {
		t.Errorf("content = %q, want %q", got, "ok")
	}
}

func TestStreamContextCancel(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/chats/new":
			fmt.Fprint(w, `{"id":"chat-123"}`)
		case "/api/chat/completions":
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "data: {\"content\":\"first\"}\n\n")
			flusher.Flush()
			<-release
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	chunks, err := testClient(t, srv).Call(ctx, testAccount(), testRequest())
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	first := <-chunks
	if first.Content != "first" {
		t.Fatalf("first chunk = %+v", first)
	}
	cancel()

	// Channel must close without a terminal error: the client went away.
	select {
	case chunk, open := <-chunks:
		if open && chunk.Err != nil {
			t.Errorf("cancelled stream produced error chunk: %v", chunk.Err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not end after context cancel")
	}
}

func TestVerifyToken(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr any
	}{
		{"valid token", http.StatusOK, nil},
		{"rejected token", http.StatusUnauthorized, &AuthError{}},
		{"upstream down", http.StatusBadGateway, &UnavailableError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/api/v1/chats/" {
					t.Errorf("unexpected path %s", r.URL.Path)
				}
				if r.URL.Query().Get("page") != "1" {
					t.Errorf("missing page query, got %q", r.URL.RawQuery)
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := testClient(t, srv).VerifyToken(context.Background(), testToken)
			switch want := tt.wantErr.(type) {
			case nil:
				if err != nil {
					t.Errorf("expected valid token, got %v", err)
				}
			case *AuthError:
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					t.Errorf("expected AuthError, got %v", err)
				}
			case *UnavailableError:
				var unavailErr *UnavailableError
				if !errors.As(err, &unavailErr) {
					t.Errorf("expected UnavailableError, got %v", err)
				}
			default:
				t.Fatalf("bad test case %T", want)
			}
		})
	}
}

func TestVerifyTokenTooShort(t *testing.T) {
	c := NewClient(config.UpstreamConfig{BaseURL: "http://127.0.0.1:0", Timeout: time.Second}, nil)

	err := c.VerifyToken(context.Background(), "short")

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for short token, got %v", err)
	}
}

func TestRenew(t *testing.T) {
	expiresAt := time.Now().Add(24 * time.Hour).Unix()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auths/" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer "+testToken {
			t.Errorf("renew must reuse the session token, got %q", got)
		}
		fmt.Fprintf(w, `{"token":"renewed-token","expires_at":%d}`, expiresAt)
	}))
	defer srv.Close()

	token, expiry, err := testClient(t, srv).Renew(context.Background(), testAccount())
	if err != nil {
		t.Fatalf("Renew failed: %v", err)
	}
	if token != "renewed-token" {
		t.Errorf("token = %q", token)
	}
	if expiry.Unix() != expiresAt {
		t.Errorf("expiry = %v, want unix %d", expiry, expiresAt)
	}
}

func TestRenewDeadSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, _, err := testClient(t, srv).Renew(context.Background(), testAccount())

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError for dead session, got %v", err)
	}
}

func TestRenewNoSessionMaterial(t *testing.T) {
	c := NewClient(config.UpstreamConfig{BaseURL: "http://127.0.0.1:0", Timeout: time.Second}, nil)

	_, _, err := c.Renew(context.Background(), account.Account{ID: "empty"})

	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthError without session material, got %v", err)
	}
}
