package proxy

import (
	"context"
	"log/slog"

	"zaigate/zaigate/pkg/account"
	"zaigate/zaigate/pkg/proxy/types"
	"zaigate/zaigate/pkg/telemetry/logging"
	"zaigate/zaigate/pkg/telemetry/metrics"
	"zaigate/zaigate/pkg/upstream"
)

// Caller dispatches one chat turn against the upstream with a specific
// account. Satisfied by *upstream.Client.
type Caller interface {
	Call(ctx context.Context, acct account.Account, req *upstream.Request) (<-chan upstream.Chunk, error)
}

// Result is a successfully dispatched request: the upstream accepted the
// call and is streaming. Mid-stream failures arrive on Chunks as a final
// chunk with Err set; they are terminal and never re-dispatched.
type Result struct {
	// AccountID is the account serving the request.
	AccountID string

	// Attempts is how many accounts were tried, including the one that
	// succeeded.
	Attempts int

	// Chunks delivers the content stream. The account's health
	// bookkeeping is applied as the channel drains.
	Chunks <-chan upstream.Chunk
}

// Engine turns an inbound request into upstream calls, rotating through
// pool accounts on recoverable failures. An account is never tried twice
// for the same request.
type Engine struct {
	pool    *account.Pool
	caller  Caller
	inliner *ImageInliner
	budget  int
	metrics *metrics.Collector
	logger  *slog.Logger
}

// NewEngine creates a dispatch engine. The metrics collector may be nil.
func NewEngine(pool *account.Pool, caller Caller, inliner *ImageInliner, retryBudget int, collector *metrics.Collector, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if retryBudget < 1 {
		retryBudget = 1
	}
	return &Engine{
		pool:    pool,
		caller:  caller,
		inliner: inliner,
		budget:  retryBudget,
		metrics: collector,
		logger:  logger,
	}
}

// Translate converts an inbound OpenAI-shaped request into the upstream
// request form: the model is normalized and multimodal content is
// flattened with images inlined. Translation failures are the client's
// error and happen before any account is selected.
func (e *Engine) Translate(ctx context.Context, req *types.ChatCompletionRequest) (*upstream.Request, error) {
	messages := make([]upstream.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		content, err := e.inliner.FlattenContent(ctx, msg.Content)
		if err != nil {
			return nil, err
		}
		messages = append(messages, upstream.Message{
			Role:    msg.Role,
			Content: content,
		})
	}

	return &upstream.Request{
		Model:    upstream.Normalize(req.Model),
		Messages: messages,
		Stream:   req.Stream,
	}, nil
}

// Dispatch selects an account and calls the upstream, retrying with a
// different account on recoverable failures until the retry budget is
// spent. Unrecoverable failures (bans, malformed requests) surface
// immediately.
func (e *Engine) Dispatch(ctx context.Context, req *upstream.Request) (*Result, error) {
	tried := make(map[string]struct{})
	var lastErr error

	for attempt := 1; attempt <= e.budget; attempt++ {
		acct, err := e.pool.Select(tried)
		if err != nil {
			// Pool exhausted. Report the upstream failure that got us
			// here, if any; otherwise the pool's own condition.
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}
		tried[acct.ID] = struct{}{}

		if e.metrics != nil {
			e.metrics.RecordSelection(acct.ID)
		}

		chunks, err := e.caller.Call(ctx, acct, req)
		if err == nil {
			e.logger.DebugContext(ctx, "request dispatched",
				append(logging.ContextFields(ctx),
					"account_id", acct.ID,
					"model", req.Model,
					"attempt", attempt,
				)...)
			return &Result{
				AccountID: acct.ID,
				Attempts:  attempt,
				Chunks:    e.watch(ctx, acct.ID, chunks),
			}, nil
		}

		kind := upstream.Classify(err)
		e.pool.ReportFailure(acct.ID, kind)
		if e.metrics != nil {
			e.metrics.RecordAccountFailure(acct.ID, string(kind))
		}

		if !upstream.Retriable(kind) {
			e.logger.WarnContext(ctx, "request failed without retry",
				append(logging.ContextFields(ctx),
					"account_id", acct.ID,
					"failure_kind", string(kind),
					"error", err,
				)...)
			return nil, err
		}

		e.logger.WarnContext(ctx, "account failed, rotating",
			append(logging.ContextFields(ctx),
				"account_id", acct.ID,
				"failure_kind", string(kind),
				"attempt", attempt,
				"error", err,
			)...)
		if e.metrics != nil {
			e.metrics.RecordRetry(string(kind))
		}
		lastErr = err
	}

	return nil, lastErr
}

// watch forwards the upstream stream while applying health bookkeeping: a
// clean end reports success, a mid-stream error reports an upstream
// failure, and a client disconnect reports nothing.
func (e *Engine) watch(ctx context.Context, accountID string, in <-chan upstream.Chunk) <-chan upstream.Chunk {
	out := make(chan upstream.Chunk)
	go func() {
		defer close(out)
		failed := false
		for chunk := range in {
			if chunk.Err != nil {
				failed = true
				kind := upstream.Classify(chunk.Err)
				e.pool.ReportFailure(accountID, kind)
				if e.metrics != nil {
					e.metrics.RecordAccountFailure(accountID, string(kind))
				}
			}
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		}
		if !failed && ctx.Err() == nil {
			e.pool.ReportSuccess(accountID)
		}
	}()
	return out
}
