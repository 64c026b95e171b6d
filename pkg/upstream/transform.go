package upstream

import (
	"time"

	"github.com/google/uuid"
)

// Message is one normalized conversation message. Image content has already
// been inlined by the proxy before it reaches the upstream client.
type Message struct {
	Role    string
	Content string
}

// Request is the normalized request context handed to Call.
type Request struct {
	// Model is the upstream model identifier (already normalized).
	Model string

	// Messages is the conversation so far. Must be non-empty; the last
	// message carries the turn the upstream answers.
	Messages []Message

	// Stream controls whether the caller consumes incremental chunks.
	// The upstream itself always streams; this flag is carried for the
	// proxy's response shaping.
	Stream bool
}

// messageNode is the upstream's conversation-graph message shape.
type messageNode struct {
	ID          string   `json:"id"`
	ParentID    *string  `json:"parentId"`
	ChildrenIDs []string `json:"childrenIds"`
	Role        string   `json:"role"`
	Content     string   `json:"content"`
	Timestamp   int64    `json:"timestamp"`
	Models      []string `json:"models,omitempty"`
	Model       string   `json:"model,omitempty"`
	ModelName   string   `json:"modelName,omitempty"`
	ModelIdx    int      `json:"modelIdx,omitempty"`
}

// newChatRequest is the body for POST /api/v1/chats/new.
type newChatRequest struct {
	Chat     chatPayload `json:"chat"`
	FolderID *string     `json:"folder_id"`
}

type chatPayload struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	Models    []string       `json:"models"`
	Params    map[string]any `json:"params"`
	History   historyPayload `json:"history"`
	Messages  []messageNode  `json:"messages"`
	Tags      []string       `json:"tags"`
	Timestamp int64          `json:"timestamp"`
}

type historyPayload struct {
	Messages  map[string]messageNode `json:"messages"`
	CurrentID string                 `json:"currentId"`
}

// newChatResponse is the body of a successful chat creation.
type newChatResponse struct {
	ID string `json:"id"`
}

// completionRequest is the body for POST /api/chat/completions.
type completionRequest struct {
	Stream      bool                `json:"stream"`
	Model       string              `json:"model"`
	Messages    []completionMessage `json:"messages"`
	Params      map[string]any      `json:"params"`
	ToolServers []any               `json:"tool_servers"`
	Features    map[string]bool     `json:"features"`
	Variables   map[string]string   `json:"variables"`
}

type completionMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	Extensions map[string]any `json:"extensions"`
}

// streamEvent is one parsed SSE data payload. The upstream emits either
// OpenAI-shaped delta events or its own {"content": ...} shape.
type streamEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Content string `json:"content"`
	Error   string `json:"error"`
}

// extractContent pulls the incremental text out of a stream event,
// preferring the OpenAI delta shape.
func (e *streamEvent) extractContent() string {
	if len(e.Choices) > 0 {
		return e.Choices[0].Delta.Content
	}
	return e.Content
}

// buildNewChatRequest constructs the conversation-creation payload for one
// turn: a user message node and an empty assistant node linked to it.
func buildNewChatRequest(model, userContent string, now time.Time) newChatRequest {
	userID := uuid.NewString()
	assistantID := uuid.NewString()
	ts := now.Unix()

	userNode := messageNode{
		ID:          userID,
		ParentID:    nil,
		ChildrenIDs: []string{assistantID},
		Role:        "user",
		Content:     userContent,
		Timestamp:   ts,
		Models:      []string{model},
	}
	assistantNode := messageNode{
		ID:          assistantID,
		ParentID:    &userID,
		ChildrenIDs: []string{},
		Role:        "assistant",
		Content:     "",
		Timestamp:   ts,
		Model:       model,
		ModelName:   DisplayName(model),
		ModelIdx:    0,
	}

	return newChatRequest{
		Chat: chatPayload{
			ID:     "",
			Title:  "New Chat",
			Models: []string{model},
			Params: map[string]any{},
			History: historyPayload{
				Messages: map[string]messageNode{
					userID:      userNode,
					assistantID: assistantNode,
				},
				CurrentID: assistantID,
			},
			Messages:  []messageNode{userNode, assistantNode},
			Tags:      []string{},
			Timestamp: ts * 1000,
		},
		FolderID: nil,
	}
}

// buildCompletionRequest constructs the streaming completion payload.
func buildCompletionRequest(req *Request, now time.Time) completionRequest {
	messages := make([]completionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, completionMessage{
			Role:       m.Role,
			Content:    m.Content,
			Extensions: map[string]any{},
		})
	}

	return completionRequest{
		Stream:   true,
		Model:    req.Model,
		Messages: messages,
		Params:   map[string]any{},
		// Always a non-null array; the upstream rejects null here.
		ToolServers: []any{},
		Features: map[string]bool{
			"image_generation": false,
			"code_interpreter": false,
			"web_search":       false,
		},
		Variables: map[string]string{
			"{{CURRENT_DATETIME}}": now.Format("2006-01-02 15:04:05"),
			"{{CURRENT_DATE}}":     now.Format("2006-01-02"),
			"{{CURRENT_TIME}}":     now.Format("15:04:05"),
			"{{CURRENT_WEEKDAY}}":  now.Weekday().String(),
			"{{CURRENT_TIMEZONE}}": "UTC",
			"{{USER_LANGUAGE}}":    "en-US",
		},
	}
}

// lastUserContent returns the content of the final message, which is the
// turn submitted to the conversation-creation endpoint.
func lastUserContent(req *Request) string {
	if len(req.Messages) == 0 {
		return ""
	}
	return req.Messages[len(req.Messages)-1].Content
}
