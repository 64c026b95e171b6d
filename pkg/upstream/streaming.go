package upstream

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"
)

// maxLineSize bounds a single SSE line. Upstream chunks are small, but a
// model can emit a long unbroken delta.
const maxLineSize = 1024 * 1024

// readStream consumes the upstream SSE body and forwards content deltas on
// the chunk channel. The channel is always closed on return. A broken read
// before the terminator surfaces as one final Chunk with Err set; context
// cancellation (client gone) ends the stream silently.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, chunks chan<- Chunk) {
	defer close(chunks)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	done := false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			done = true
			break
		}

		var event streamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			// Malformed frames are skipped, not fatal.
			c.logger.Debug("skipping malformed stream frame", "error", err)
			continue
		}

		if event.Error != "" {
			c.deliver(ctx, chunks, Chunk{Err: &StreamError{Message: event.Error}})
			return
		}

		content := event.extractContent()
		if content == "" {
			continue
		}

		if !c.deliver(ctx, chunks, Chunk{Content: content}) {
			return
		}
	}

	if done {
		return
	}
	if ctx.Err() != nil {
		// Client disconnected; nothing left to tell it.
		return
	}

	err := scanner.Err()
	if err == nil {
		err = io.ErrUnexpectedEOF
	}
	c.deliver(ctx, chunks, Chunk{Err: &StreamError{Message: "stream ended before completion", Cause: err}})
}

// deliver sends a chunk unless the context is already cancelled. Returns
// false when the consumer is gone.
func (c *Client) deliver(ctx context.Context, chunks chan<- Chunk, chunk Chunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
