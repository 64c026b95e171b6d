package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"zaigate/zaigate/pkg/proxy"
	"zaigate/zaigate/pkg/proxy/middleware"
	"zaigate/zaigate/pkg/proxy/types"
	"zaigate/zaigate/pkg/requestlog"
	"zaigate/zaigate/pkg/telemetry/metrics"
	"zaigate/zaigate/pkg/upstream"
)

// anthropicModelMap maps Anthropic model identifiers (and common aliases)
// to the upstream model table. Claude 3.x names map forward to their
// Claude 4 successors.
var anthropicModelMap = map[string]string{
	"claude-opus-4-20250514":     "claude-opus-4-20250514",
	"claude-sonnet-4-20250514":   "claude-sonnet-4-20250514",
	"claude-sonnet-4-5-20250929": "claude-sonnet-4-5-20250929",
	"claude-haiku-4-5-20251001":  "claude-haiku-4-5-20251001",

	"claude-3-5-sonnet-20241022": "claude-sonnet-4-5-20250929",
	"claude-3-5-sonnet-latest":   "claude-sonnet-4-5-20250929",
	"claude-3-5-haiku-20241022":  "claude-haiku-4-5-20251001",
	"claude-3-5-haiku-latest":    "claude-haiku-4-5-20251001",

	"claude-3-opus-20240229":   "claude-opus-4-20250514",
	"claude-3-opus-latest":     "claude-opus-4-20250514",
	"claude-3-sonnet-20240229": "claude-sonnet-4-20250514",
	"claude-3-haiku-20240307":  "claude-haiku-4-5-20251001",

	"opus":   "claude-opus-4-20250514",
	"sonnet": "claude-sonnet-4-5-20250929",
	"haiku":  "claude-haiku-4-5-20251001",
}

// mapAnthropicModel resolves an Anthropic model name to an upstream one.
func mapAnthropicModel(model string) string {
	if mapped, ok := anthropicModelMap[model]; ok {
		return mapped
	}
	return upstream.Normalize(model)
}

// MessagesHandler serves POST /v1/messages, the Anthropic Messages
// compatibility endpoint.
type MessagesHandler struct {
	engine   *proxy.Engine
	recorder requestlog.Recorder
	metrics  *metrics.Collector
	logger   *slog.Logger
}

// NewMessagesHandler creates the Anthropic compatibility handler.
func NewMessagesHandler(engine *proxy.Engine, recorder requestlog.Recorder, collector *metrics.Collector, logger *slog.Logger) *MessagesHandler {
	if recorder == nil {
		recorder = requestlog.NopRecorder{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MessagesHandler{
		engine:   engine,
		recorder: recorder,
		metrics:  collector,
		logger:   logger,
	}
}

// ServeHTTP implements http.Handler.
func (h *MessagesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetRequestID(ctx)
	start := time.Now()

	if r.Method != http.MethodPost {
		h.writeError(w, r, types.NewInvalidRequestError(
			fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			"method",
			"method_not_allowed",
		))
		return
	}

	msgReq, err := proxy.ParseAnthropicRequest(r)
	if err != nil {
		h.writeError(w, r, proxy.HandleError(err))
		return
	}

	chatReq := h.toChatRequest(msgReq)
	upReq, err := h.engine.Translate(ctx, chatReq)
	if err != nil {
		h.writeError(w, r, proxy.HandleError(err))
		return
	}

	h.logger.InfoContext(ctx, "processing anthropic message",
		"request_id", requestID,
		"model", msgReq.Model,
		"upstream_model", upReq.Model,
		"stream", msgReq.Stream,
	)

	result, err := h.engine.Dispatch(ctx, upReq)
	if err != nil {
		errResp := proxy.HandleError(err)
		h.record(requestID, upReq.Model, "", errResp.Error.HTTPStatusCode(), 0, errResp.Error.Code, start)
		h.writeError(w, r, errResp)
		return
	}

	messageID := "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:24]
	inputTokens := 0
	for _, msg := range upReq.Messages {
		inputTokens += len(msg.Content) / 4
	}

	if msgReq.Stream {
		h.streamResponse(w, r, result, messageID, msgReq.Model, upReq.Model, inputTokens, requestID, start)
		return
	}
	h.bufferedResponse(w, r, result, messageID, msgReq.Model, upReq.Model, inputTokens, requestID, start)
}

// toChatRequest converts an Anthropic request into the internal OpenAI
// shape, hoisting the system prompt into the message list.
func (h *MessagesHandler) toChatRequest(req *types.AnthropicRequest) *types.ChatCompletionRequest {
	messages := make([]types.Message, 0, len(req.Messages)+1)
	if req.System != nil {
		messages = append(messages, types.Message{Role: "system", Content: req.System})
	}
	messages = append(messages, req.Messages...)

	return &types.ChatCompletionRequest{
		Model:    mapAnthropicModel(req.Model),
		Messages: messages,
		Stream:   true,
	}
}

// streamResponse relays the stream as Anthropic SSE events:
// message_start, content_block_start, content_block_delta*,
// content_block_stop, message_delta, message_stop.
func (h *MessagesHandler) streamResponse(w http.ResponseWriter, r *http.Request, result *proxy.Result, messageID, clientModel, upstreamModel string, inputTokens int, requestID string, start time.Time) {
	ctx := r.Context()

	proxy.SetSSEHeaders(w)
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}

	_ = proxy.WriteSSEEvent(w, "message_start", types.AnthropicMessageStart{
		Type: "message_start",
		Message: types.AnthropicResponse{
			ID:      messageID,
			Type:    "message",
			Role:    "assistant",
			Content: []types.AnthropicContentBlock{},
			Model:   clientModel,
			Usage:   types.AnthropicUsage{InputTokens: inputTokens},
		},
	})
	_ = proxy.WriteSSEEvent(w, "content_block_start", types.AnthropicContentBlockStart{
		Type:         "content_block_start",
		Index:        0,
		ContentBlock: types.AnthropicContentBlock{Type: "text"},
	})

	outputTokens := 0
	status := http.StatusOK
	errorKind := ""

	for chunk := range result.Chunks {
		if chunk.Err != nil {
			h.logger.ErrorContext(ctx, "anthropic stream failed mid-flight",
				"request_id", requestID,
				"account_id", result.AccountID,
				"error", chunk.Err,
			)
			_ = proxy.WriteSSEError(w, proxy.HandleError(chunk.Err))
			status = http.StatusBadGateway
			errorKind = "stream_error"
			break
		}
		if chunk.Content == "" {
			continue
		}
		outputTokens += len(chunk.Content) / 4
		if err := proxy.WriteSSEEvent(w, "content_block_delta", types.AnthropicContentBlockDelta{
			Type:  "content_block_delta",
			Index: 0,
			Delta: types.AnthropicTextDelta{Type: "text_delta", Text: chunk.Content},
		}); err != nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}

	if status == http.StatusOK {
		_ = proxy.WriteSSEEvent(w, "content_block_stop", types.AnthropicContentBlockStop{
			Type: "content_block_stop", Index: 0,
		})
		_ = proxy.WriteSSEEvent(w, "message_delta", types.AnthropicMessageDelta{
			Type:  "message_delta",
			Delta: types.AnthropicStopDelta{StopReason: "end_turn"},
			Usage: types.AnthropicUsageDelta{OutputTokens: max(outputTokens, 1)},
		})
		_ = proxy.WriteSSEEvent(w, "message_stop", types.AnthropicMessageStop{Type: "message_stop"})
	}

	h.record(requestID, upstreamModel, result.AccountID, status, result.Attempts-1, errorKind, start)
}

// bufferedResponse collects the stream into one Anthropic message object.
func (h *MessagesHandler) bufferedResponse(w http.ResponseWriter, r *http.Request, result *proxy.Result, messageID, clientModel, upstreamModel string, inputTokens int, requestID string, start time.Time) {
	ctx := r.Context()

	var content strings.Builder
	for chunk := range result.Chunks {
		if chunk.Err != nil {
			errResp := proxy.HandleError(chunk.Err)
			h.record(requestID, upstreamModel, result.AccountID, errResp.Error.HTTPStatusCode(), result.Attempts-1, "stream_error", start)
			h.writeError(w, r, errResp)
			return
		}
		content.WriteString(chunk.Content)
	}

	text := content.String()
	resp := types.AnthropicResponse{
		ID:         messageID,
		Type:       "message",
		Role:       "assistant",
		Content:    []types.AnthropicContentBlock{{Type: "text", Text: text}},
		Model:      clientModel,
		StopReason: "end_turn",
		Usage: types.AnthropicUsage{
			InputTokens:  inputTokens,
			OutputTokens: max(len(text)/4, 1),
		},
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, resp); err != nil {
		h.logger.ErrorContext(ctx, "failed to write response",
			"request_id", requestID,
			"error", err,
		)
	}
	h.record(requestID, upstreamModel, result.AccountID, http.StatusOK, result.Attempts-1, "", start)
}

func (h *MessagesHandler) writeError(w http.ResponseWriter, r *http.Request, errResp *types.ErrorResponse) {
	if err := proxy.WriteErrorResponse(w, errResp); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to write error response", "error", err)
	}
}

func (h *MessagesHandler) record(requestID, model, accountID string, status, retries int, errorKind string, start time.Time) {
	if h.metrics != nil {
		h.metrics.RecordRequest(model, strconv.Itoa(status), time.Since(start))
	}
	rec := requestlog.Record{
		RequestID: requestID,
		Model:     model,
		AccountID: accountID,
		Status:    status,
		Retries:   retries,
		Latency:   time.Since(start),
		ErrorKind: errorKind,
	}
	go func() {
		if err := h.recorder.Record(context.Background(), rec); err != nil {
			h.logger.Error("failed to record request outcome", "error", err)
		}
	}()
}
