package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	antoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	oaoption "github.com/openai/openai-go/option"
)

// AnthropicPrefix routes a model id to the Anthropic Messages API, e.g.
// "anthropic:claude-sonnet-4-5".
const AnthropicPrefix = "anthropic:"

// OpenRouter talks to any OpenAI-compatible chat completions endpoint.
type OpenRouter struct {
	client    *openai.Client
	maxTokens int64
}

func NewOpenRouter(baseURL, apiKey string, maxTokens int64) *OpenRouter {
	opts := []oaoption.RequestOption{oaoption.WithBaseURL(baseURL)}
	if apiKey != "" {
		opts = append(opts, oaoption.WithAPIKey(apiKey))
	}
	// Retries are left to the council: a failed member is simply absent.
	opts = append(opts, oaoption.WithMaxRetries(0))
	client := openai.NewClient(opts...)
	return &OpenRouter{client: &client, maxTokens: maxTokens}
}

func (o *OpenRouter) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: toOpenAIMessages(messages),
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(o.maxTokens)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai api error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned")
	}
	return resp.Choices[0].Message.Content, nil
}

func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

// Anthropic talks to the Anthropic Messages API directly.
type Anthropic struct {
	client    *anthropic.Client
	maxTokens int64
}

func NewAnthropic(apiKey string, maxTokens int64) *Anthropic {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	client := anthropic.NewClient(antoption.WithAPIKey(apiKey), antoption.WithMaxRetries(0))
	return &Anthropic{client: &client, maxTokens: maxTokens}
}

func (a *Anthropic) Complete(ctx context.Context, model string, messages []Message) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: a.maxTokens,
	}
	for _, m := range messages {
		switch m.Role {
		case "system":
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case "assistant":
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			sb.WriteString(block.AsText().Text)
		}
	}
	return sb.String(), nil
}
