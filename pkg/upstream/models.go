package upstream

// Model describes one upstream model identifier.
type Model struct {
	// ID is the OpenAI-style model identifier clients request.
	ID string

	// DisplayName is the name the upstream UI shows for this model.
	DisplayName string
}

// DefaultModel is used when a request names no model or an unknown one.
const DefaultModel = "gpt-5-2025-08-07"

// models is the fixed supported-model table. The upstream exposes no model
// discovery endpoint; this list tracks what its UI offers.
var models = []Model{
	{ID: "gpt-5-2025-08-07", DisplayName: "GPT-5"},
	{ID: "claude-opus-4-20250514", DisplayName: "Claude Opus 4"},
	{ID: "claude-sonnet-4-5-20250929", DisplayName: "Claude Sonnet 4.5"},
	{ID: "claude-sonnet-4-20250514", DisplayName: "Claude Sonnet 4"},
	{ID: "claude-haiku-4-5-20251001", DisplayName: "Claude Haiku 4.5"},
	{ID: "gemini-2.5-pro", DisplayName: "Gemini 2.5 Pro"},
	{ID: "gemini-2.5-flash-image", DisplayName: "Nano Banana"},
	{ID: "gemini-3-pro-image-preview", DisplayName: "Nano Banana Pro"},
	{ID: "o1-2024-12-17", DisplayName: "o1"},
	{ID: "o3-pro-2025-06-10", DisplayName: "o3-pro"},
	{ID: "o4-mini-2025-04-16", DisplayName: "o4-mini"},
	{ID: "grok-4-0709", DisplayName: "Grok 4"},
	{ID: "grok-4-1-fast-reasoning", DisplayName: "Grok 4.1 Fast"},
}

// Models returns the fixed supported-model table.
func Models() []Model {
	out := make([]Model, len(models))
	copy(out, models)
	return out
}

// Supported reports whether the identifier is in the model table.
func Supported(id string) bool {
	for _, m := range models {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Normalize maps a requested model identifier to the one actually sent
// upstream: empty and unknown identifiers fall back to the default model.
func Normalize(id string) string {
	if Supported(id) {
		return id
	}
	return DefaultModel
}

// DisplayName returns the upstream UI name for a model identifier, or the
// identifier itself when unknown.
func DisplayName(id string) string {
	for _, m := range models {
		if m.ID == id {
			return m.DisplayName
		}
	}
	return id
}
