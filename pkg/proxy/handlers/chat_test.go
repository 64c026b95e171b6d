package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"zaigate/zaigate/pkg/proxy/types"
	"zaigate/zaigate/pkg/upstream"
)

func postChat(body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestChatBufferedResponse(t *testing.T) {
	caller := &stubCaller{chunks: []upstream.Chunk{
		{Content: "Hello"},
		{Content: ", world"},
	}}
	recorder := newCaptureRecorder()
	h := NewChatHandler(newTestEngine(t, caller), recorder, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postChat(`{"model":"gpt-5-2025-08-07","messages":[{"role":"user","content":"hi"}]}`))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp types.ChatCompletionResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Choices) != 1 {
		t.Fatalf("choices = %d", len(resp.Choices))
	}
	if got := resp.Choices[0].Message.Content; got != "Hello, world" {
		t.Errorf("content = %q", got)
	}
	if resp.Choices[0].FinishReason != "stop" {
		t.Errorf("finish_reason = %q", resp.Choices[0].FinishReason)
	}
	if !strings.HasPrefix(resp.ID, "chatcmpl-") {
		t.Errorf("id = %q", resp.ID)
	}
	if resp.Usage.CompletionTokens == 0 {
		t.Error("completion tokens not estimated")
	}

	logged := recorder.last(t)
	if logged.Status != http.StatusOK || logged.AccountID != "acct-1" {
		t.Errorf("record = %+v", logged)
	}
}

func TestChatStreamingResponse(t *testing.T) {
	caller := &stubCaller{chunks: []upstream.Chunk{
		{Content: "Hel"},
		{Content: "lo"},
	}}
	h := NewChatHandler(newTestEngine(t, caller), newCaptureRecorder(), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postChat(`{"model":"gpt-5-2025-08-07","stream":true,"messages":[{"role":"user","content":"hi"}]}`))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	events := parseSSE(t, rec.Body.String())
	if len(events) == 0 {
		t.Fatal("no SSE frames")
	}
	if events[len(events)-1].data != "[DONE]" {
		t.Fatalf("last frame = %q, want [DONE]", events[len(events)-1].data)
	}
	if got := strings.Count(rec.Body.String(), "[DONE]"); got != 1 {
		t.Errorf("[DONE] appears %d times, want exactly once", got)
	}

	var content string
	var sawRole, sawFinish bool
	for _, ev := range events[:len(events)-1] {
		var chunk types.ChatCompletionStreamChunk
		if err := json.Unmarshal([]byte(ev.data), &chunk); err != nil {
			t.Fatalf("decode frame %q: %v", ev.data, err)
		}
		if len(chunk.Choices) != 1 {
			continue
		}
		choice := chunk.Choices[0]
		content += choice.Delta.Content
		if choice.Delta.Role == "assistant" {
			sawRole = true
		}
		if choice.FinishReason != nil && *choice.FinishReason == "stop" {
			sawFinish = true
		}
	}
	if content != "Hello" {
		t.Errorf("streamed content = %q", content)
	}
	if !sawRole {
		t.Error("no frame carried the assistant role")
	}
	if !sawFinish {
		t.Error("no frame carried finish_reason stop")
	}
}

func TestChatStreamMidFlightError(t *testing.T) {
	caller := &stubCaller{chunks: []upstream.Chunk{
		{Content: "partial"},
		{Err: &upstream.StreamError{Message: "connection reset"}},
	}}
	recorder := newCaptureRecorder()
	h := NewChatHandler(newTestEngine(t, caller), recorder, nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postChat(`{"stream":true,"messages":[{"role":"user","content":"hi"}]}`))

	body := rec.Body.String()
	if !strings.Contains(body, "partial") {
		t.Error("partial content not relayed before the error")
	}
	if !strings.Contains(body, `"error"`) {
		t.Error("no error frame in stream")
	}
	if got := strings.Count(body, "[DONE]"); got != 1 {
		t.Errorf("[DONE] appears %d times, want exactly once", got)
	}

	logged := recorder.last(t)
	if logged.Status != http.StatusBadGateway || logged.ErrorKind != "stream_error" {
		t.Errorf("record = %+v", logged)
	}
}

func TestChatDispatchFailure(t *testing.T) {
	caller := &stubCaller{err: &upstream.UnrecoverableError{StatusCode: 400, Message: "no"}}
	h := NewChatHandler(newTestEngine(t, caller), newCaptureRecorder(), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postChat(`{"messages":[{"role":"user","content":"hi"}]}`))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp types.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Type != types.ErrorTypeInvalidRequest {
		t.Errorf("type = %q", resp.Error.Type)
	}
}

func TestChatInvalidBody(t *testing.T) {
	h := NewChatHandler(newTestEngine(t, &stubCaller{}), newCaptureRecorder(), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, postChat(`{`))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChatMethodNotAllowed(t *testing.T) {
	h := NewChatHandler(newTestEngine(t, &stubCaller{}), newCaptureRecorder(), nil, nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/chat/completions", nil))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "method_not_allowed") {
		t.Errorf("body = %s", rec.Body.String())
	}
}
