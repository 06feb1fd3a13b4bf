package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// OpenAIClient speaks the OpenAI chat-completions API, including the
// function-calling surface used for tool selection. It also works
// against OpenAI-compatible gateways (vLLM, LiteLLM) via a base-URL
// override.
type OpenAIClient struct {
	client  *openai.Client
	model   string
	limiter *rate.Limiter
}

// OpenAIOptions configures an OpenAIClient. Zero values fall back to
// environment variables and defaults.
type OpenAIOptions struct {
	// Model is the chat model identifier, e.g. "gpt-4o-mini".
	Model string

	// BaseURL overrides the API endpoint for OpenAI-compatible
	// gateways. Empty means api.openai.com.
	BaseURL string

	// RequestsPerSecond throttles outbound calls across all sessions
	// sharing this client. <= 0 disables throttling.
	RequestsPerSecond float64
}

// NewOpenAIClient builds a client from options plus the standard
// credential sources: OPENAI_API_KEY, falling back to the container
// secret mount.
func NewOpenAIClient(opts OpenAIOptions) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from Podman Secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}

	model := opts.Model
	if model == "" {
		model = os.Getenv("OPENAI_MODEL")
	}
	if model == "" {
		model = "gpt-4o-mini"
		slog.Warn("no model configured, defaulting to gpt-4o-mini")
	}

	cfg := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = opts.BaseURL
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), 1)
	}

	slog.Info("Initializing OpenAI client", "model", model, "base_url", cfg.BaseURL)
	return &OpenAIClient{
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: limiter,
	}, nil
}

// Generate implements the LLMClient interface.
func (o *OpenAIClient) Generate(ctx context.Context, prompt string, params GenerationParams) (*GenerateResult, error) {
	if err := o.wait(ctx); err != nil {
		return nil, err
	}
	slog.Debug("Generating text via OpenAI", "model", o.model)

	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	applyParams(&req, params)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI API call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	return &GenerateResult{
		Text:  resp.Choices[0].Message.Content,
		Usage: usageFrom(resp.Usage),
		Model: resp.Model,
	}, nil
}

// ChatWithTools implements the LLMClient interface.
func (o *OpenAIClient) ChatWithTools(ctx context.Context, tcr ToolChatRequest) (*ToolChatResult, error) {
	if err := o.wait(ctx); err != nil {
		return nil, err
	}
	slog.Debug("Tool-selection call via OpenAI", "model", o.model, "tools", len(tcr.Tools))

	req := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: make([]openai.ChatCompletionMessage, 0, len(tcr.Messages)),
	}
	for _, m := range tcr.Messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}
	for _, td := range tcr.Tools {
		req.Tools = append(req.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        td.Name,
				Description: td.Description,
				Parameters:  td.Parameters,
			},
		})
	}
	applyParams(&req, tcr.Params)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		slog.Error("OpenAI tool-selection call failed", "error", err)
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI returned no choices")
	}

	choice := resp.Choices[0]
	result := &ToolChatResult{
		Text:  choice.Message.Content,
		Usage: usageFrom(resp.Usage),
		Model: resp.Model,
	}
	for _, tc := range choice.Message.ToolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("malformed tool arguments for %q: %w", tc.Function.Name, err)
			}
		}
		result.Invocations = append(result.Invocations, ToolInvocation{
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	slog.Debug("Received tool-selection response",
		"finish_reason", choice.FinishReason, "invocations", len(result.Invocations))
	return result, nil
}

func (o *OpenAIClient) wait(ctx context.Context) error {
	if o.limiter == nil {
		return nil
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

func applyParams(req *openai.ChatCompletionRequest, params GenerationParams) {
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if params.TopP != nil {
		req.TopP = *params.TopP
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
}

func usageFrom(u openai.Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
	}
}
