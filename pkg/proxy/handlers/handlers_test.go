package handlers

import (
	"bufio"
	"context"
	"strings"
	"sync"
	"testing"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/requestlog"
	"zaigate/zaigate/pkg/upstream"
)

// stubCaller serves a fixed chunk sequence regardless of account.
type stubCaller struct {
	chunks []upstream.Chunk
	err    error
}

func (c *stubCaller) Call(ctx context.Context, acct account.Account, req *upstream.Request) (<-chan upstream.Chunk, error) {
	if c.err != nil {
		return nil, c.err
	}
	ch := make(chan upstream.Chunk, len(c.chunks)+1)
	for _, chunk := range c.chunks {
		ch <- chunk
	}
	close(ch)
	return ch, nil
}

// captureRecorder collects records and signals each arrival.
type captureRecorder struct {
	mu      sync.Mutex
	records []requestlog.Record
	arrived chan struct{}
}

func newCaptureRecorder() *captureRecorder {
	return &captureRecorder{arrived: make(chan struct{}, 16)}
}

func (r *captureRecorder) Record(ctx context.Context, rec requestlog.Record) error {
	r.mu.Lock()
	r.records = append(r.records, rec)
	r.mu.Unlock()
	r.arrived <- struct{}{}
	return nil
}

func (r *captureRecorder) last(t *testing.T) requestlog.Record {
	t.Helper()
	<-r.arrived
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.records[len(r.records)-1]
}

func newTestEngine(t *testing.T, caller proxy.Caller) *proxy.Engine {
	t.Helper()
	pool := account.NewPool(3, nil)
	pool.Add(&account.Account{
		ID:          "acct-1",
		AccessToken: strings.Repeat("t", 64),
		Health:      account.HealthHealthy,
	})
	return proxy.NewEngine(pool, caller, proxy.NewImageInliner(0), 3, nil, nil)
}

// sseEvent is one parsed server-sent event frame.
type sseEvent struct {
	event string
	data  string
}

// parseSSE splits a response body into its SSE frames.
func parseSSE(t *testing.T, body string) []sseEvent {
	t.Helper()
	var events []sseEvent
	var current sseEvent
	scanner := bufio.NewScanner(strings.NewReader(body))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if current.data != "" || current.event != "" {
				events = append(events, current)
				current = sseEvent{}
			}
		case strings.HasPrefix(line, "event: "):
			current.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			current.data = strings.TrimPrefix(line, "data: ")
		}
	}
	if current.data != "" || current.event != "" {
		events = append(events, current)
	}
	return events
}
