package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/proxy/middleware"
	"zaigate/zaigate/pkg/proxy/types"
	"zaigate/zaigate/pkg/requestlog"
	"zaigate/zaigate/pkg/telemetry/metrics"
	"zaigate/zaigate/pkg/upstream"
)

// ChatHandler serves POST /v1/chat/completions.
type ChatHandler struct {
	engine   *proxy.Engine
	recorder requestlog.Recorder
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewChatHandler creates the chat completions handler. recorder and
// collector may be nil.
func NewChatHandler(engine *proxy.Engine, recorder requestlog.Recorder, collector *metrics.Collector, logger *slog.Logger) *ChatHandler {
	if recorder == nil {
		recorder = requestlog.NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{
		engine:   engine,
		recorder: recorder,
		metrics:  collector,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	if r.Method != http.MethodPost {
		errResp := types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			"method",
			"method_not_allowed",
		)
		h.writeError(w, r, errResp)
		return
	}

	chatReq, err := proxy.ParseChatCompletionRequest(r)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to parse request",
			"request_id", requestID,
			"error", err,
		)
		h.writeError(w, r, proxy.HandleError(err))
		return
	}

	upReq, err := h.engine.Translate(ctx, chatReq)
	if err != nil {
		h.logger.WarnContext(ctx, "failed to translate request",
			"request_id", requestID,
			"error", err,
		)
		h.writeError(w, r, proxy.HandleError(err))
		return
	}

	h.logger.InfoContext(ctx, "processing chat completion",
		"request_id", requestID,
		"model", upReq.Model,
		"messages", len(upReq.Messages),
		"stream", chatReq.Stream,
	)

	result, err := h.engine.Dispatch(ctx, upReq)
	if err != nil {
		errResp := proxy.HandleError(err)
		h.record(ctx, requestID, upReq.Model, "", errResp.Error.HTTPStatusCode(), 0, 0, errResp.Error.Code, start)
		h.writeError(w, r, errResp)
		return
	}

	responseID := "chatcmpl-" + uuid.NewString()

	if chatReq.Stream {
		h.streamResponse(w, r, result, responseID, upReq, requestID, start)
		return
	}
	h.bufferedResponse(w, r, result, responseID, upReq, requestID, start)
}

// streamResponse relays the upstream stream as OpenAI SSE chunks. A
// mid-stream failure becomes a terminal error frame; the stream always
// ends with exactly one [DONE] marker.
func (h *ChatHandler) streamResponse(w http.ResponseWriter, r *http.Request, result *proxy.Result, responseID string, upReq *upstream.Request, requestID string, start time.Time) {
	ctx := r.Context()

	proxy.SetSSEHeaders(w)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	chunkCount := 0
	status := http.StatusOK
	errorKind := ""

	for chunk := range result.Chunks {
		if chunk.Err != nil {
			h.logger.ErrorContext(ctx, "stream failed mid-flight",
				"request_id", requestID,
				"account_id", result.AccountID,
				"chunks_sent", chunkCount,
				"error", chunk.Err,
			)
			if err := proxy.WriteSSEError(w, proxy.HandleError(chunk.Err)); err != nil {
				h.logger.ErrorContext(ctx, "failed to write SSE error", "error", err)
			}
			status = http.StatusBadGateway
			errorKind = "stream_error"
			break
		}

		if err := proxy.WriteSSEChunk(w, proxy.NewStreamChunk(responseID, upReq.Model, chunk.Content, chunkCount == 0)); err != nil {
			h.logger.WarnContext(ctx, "client write failed during streaming",
				"request_id", requestID,
				"chunks_sent", chunkCount,
				"error", err,
			)
			return
		}
		chunkCount++

		select {
		case <-ctx.Done():
			h.logger.InfoContext(ctx, "client disconnected during streaming",
				"request_id", requestID,
				"chunks_sent", chunkCount,
			)
			return
		default:
		}
	}

	if status == http.StatusOK {
		if err := proxy.WriteSSEChunk(w, proxy.NewFinalStreamChunk(responseID, upReq.Model, "stop")); err != nil {
			h.logger.ErrorContext(ctx, "failed to write final chunk", "error", err)
		}
	}
	if err := proxy.WriteSSEDone(w); err != nil {
		h.logger.ErrorContext(ctx, "failed to write SSE done marker", "error", err)
	}

	if h.metrics != nil {
		h.metrics.RecordStreamChunks(upReq.Model, chunkCount)
	}
	h.record(ctx, requestID, upReq.Model, result.AccountID, status, result.Attempts-1, chunkCount, errorKind, start)

	h.logger.InfoContext(ctx, "streaming chat completion finished",
		"request_id", requestID,
		"account_id", result.AccountID,
		"model", upReq.Model,
		"chunks_sent", chunkCount,
		"attempts", result.Attempts,
		"total_latency_ms", time.Since(start).Milliseconds(),
	)
}

// bufferedResponse collects the whole stream and returns one completion
// object.
func (h *ChatHandler) bufferedResponse(w http.ResponseWriter, r *http.Request, result *proxy.Result, responseID string, upReq *upstream.Request, requestID string, start time.Time) {
	ctx := r.Context()

	var content string
	chunkCount := 0
	for chunk := range result.Chunks {
		if chunk.Err != nil {
			errResp := proxy.HandleError(chunk.Err)
			h.record(ctx, requestID, upReq.Model, result.AccountID, errResp.Error.HTTPStatusCode(), result.Attempts-1, chunkCount, "stream_error", start)
			h.writeError(w, r, errResp)
			return
		}
		content += chunk.Content
		chunkCount++
	}

	promptTokens := 0
	for _, msg := range upReq.Messages {
		promptTokens += len(msg.Content) / 4
	}

	resp := proxy.NewCompletionResponse(responseID, upReq.Model, content, promptTokens)
	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response",
			"request_id", requestID,
			"error", err,
		)
	}

	h.record(ctx, requestID, upReq.Model, result.AccountID, http.StatusOK, result.Attempts-1, chunkCount, "", start)

	h.logger.InfoContext(ctx, "chat completion finished",
		"request_id", requestID,
		"account_id", result.AccountID,
		"model", upReq.Model,
		"attempts", result.Attempts,
		"total_latency_ms", time.Since(start).Milliseconds(),
	)
}

func (h *ChatHandler) writeError(w http.ResponseWriter, r *http.Request, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}

func (h *ChatHandler) record(ctx context.Context, requestID, model, accountID string, status, retries, chunks int, errorKind string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest(model, strconv.Itoa(status), time.Since(start))
	}
	rec := requestlog.Record{
		RequestID: requestID,
		Model:     model,
		AccountID: accountID,
		Status:    status,
		Retries:   retries,
		Chunks:    chunks,
		Latency:   time.Since(start),
		ErrorKind: errorKind,
	}
	go func() {
		if err := h.recorder.Record(context.WithoutCancel(ctx), rec); err != nil {
			h.logger.Error("failed to record request outcome", "error", err)
		}
	}()
}
