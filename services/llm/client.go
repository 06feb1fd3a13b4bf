package llm

import "context"

type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Usage is the token accounting returned with every completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// GenerateResult is a plain text completion plus its token usage.
type GenerateResult struct {
	Text  string
	Usage Usage
	Model string
}

// ToolDef describes one callable tool in the provider's function-calling
// format. Parameters is a JSON-schema object (type/properties/required).
type ToolDef struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Message is one turn of a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// ToolChatRequest asks the model to select zero or more tools.
type ToolChatRequest struct {
	Messages []Message
	Tools    []ToolDef
	Params   GenerationParams
}

// ToolInvocation is one tool call proposed by the model. Arguments are
// decoded from the provider's JSON payload; malformed payloads surface
// as an error from the client, not a half-parsed invocation.
type ToolInvocation struct {
	Name      string
	Arguments map[string]any
}

// ToolChatResult is the model's response to a tool-selection request:
// either proposed invocations, free text, or both (some providers emit
// commentary alongside calls).
type ToolChatResult struct {
	Invocations []ToolInvocation
	Text        string
	Usage       Usage
	Model       string
}

// LLMClient defines the standard interface for any LLM backend.
type LLMClient interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (*GenerateResult, error)

	// ChatWithTools runs one function-calling turn. An empty
	// Invocations slice with non-empty Text means the model chose to
	// answer directly instead of calling tools.
	ChatWithTools(ctx context.Context, req ToolChatRequest) (*ToolChatResult, error)
}
