package handlers

import (
	"context"
	"regexp"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/lyzr/agentkit/internal/errs"
	"github.com/lyzr/agentkit/internal/models"
)

const defaultSummarizeModel = "gpt-4o"

const defaultSystemPrompt = "You are an expert email analyst. Given an email (subject, body, and any attachments), " +
	"produce a clean, structured summary with the following sections:\n" +
	"1. **Summary** - 2-3 sentence overview\n" +
	"2. **Key Points** - bullet list of important information\n" +
	"3. **Action Items** - any tasks or follow-ups required\n" +
	"4. **Sentiment** - overall tone (positive / neutral / negative)\n" +
	"5. **Category** - classify as: support / sales / invoice / hr / general\n" +
	"Be concise and professional."

// ChatClient is the subset of the OpenAI chat-completions API the
// summarize handler needs, narrow enough to fake in tests.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, apiKey, model string, temperature float64, systemPrompt, userContent string) (ChatCompletionResult, error)
}

// ChatCompletionResult is the subset of a chat completion response the
// summarize handler consumes.
type ChatCompletionResult struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// openAIChatClient is the default ChatClient backed by github.com/openai/openai-go.
type openAIChatClient struct{}

func (openAIChatClient) CreateChatCompletion(ctx context.Context, apiKey, model string, temperature float64, systemPrompt, userContent string) (ChatCompletionResult, error) {
	client := openai.NewClient(option.WithAPIKey(apiKey))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.F(model),
		Messages: openai.F([]openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userContent),
		}),
		Temperature: openai.F(temperature),
	})
	if err != nil {
		return ChatCompletionResult{}, errs.Wrap(errs.KindUpstreamError, "openai chat completion failed", err)
	}
	if len(resp.Choices) == 0 {
		return ChatCompletionResult{}, errs.New(errs.KindUpstreamError, "openai returned no choices")
	}

	result := ChatCompletionResult{Content: resp.Choices[0].Message.Content}
	result.PromptTokens = int(resp.Usage.PromptTokens)
	result.CompletionTokens = int(resp.Usage.CompletionTokens)
	result.TotalTokens = int(resp.Usage.TotalTokens)
	return result, nil
}

// SummarizeHandler calls an LLM chat endpoint to turn extracted email
// content into a five-section structured summary.
type SummarizeHandler struct {
	client         ChatClient
	fallbackAPIKey string
}

// NewSummarizeHandler builds a SummarizeHandler backed by the official
// OpenAI SDK. fallbackAPIKey is used when a node omits api_key, mirroring
// the OPENAI_API_KEY environment fallback.
func NewSummarizeHandler(fallbackAPIKey string) Handler {
	return &SummarizeHandler{client: openAIChatClient{}, fallbackAPIKey: fallbackAPIKey}
}

// NewSummarizeHandlerWithClient builds a SummarizeHandler with an
// injectable ChatClient, used by tests to avoid real network calls.
func NewSummarizeHandlerWithClient(client ChatClient, fallbackAPIKey string) Handler {
	return &SummarizeHandler{client: client, fallbackAPIKey: fallbackAPIKey}
}

func (h *SummarizeHandler) Execute(ctx context.Context, data, runContext map[string]any, side SideChannel) (Output, error) {
	apiKey := firstNonEmpty(strings.TrimSpace(getString(data, "api_key")), h.fallbackAPIKey)
	if apiKey == "" {
		return Output{}, errs.New(errs.KindConfigError, "OpenAI API key is required; set it in the summarize node config or OPENAI_API_KEY")
	}

	model := firstNonEmpty(getString(data, "model"), defaultSummarizeModel)
	temperature := getFloat(data, "temperature", 0.3)
	emailContent := getString(data, "email_content")
	systemPrompt := firstNonEmpty(getString(data, "system_prompt"), defaultSystemPrompt)

	result, err := h.client.CreateChatCompletion(ctx, apiKey, model, temperature, systemPrompt, "Analyse this email:\n\n"+emailContent)
	if err != nil {
		return Output{}, err
	}

	out := Output{Data: map[string]any{
		"summary":      result.Content,
		"overview":     extractSection(result.Content, "Summary"),
		"key_points":   extractSection(result.Content, "Key Points"),
		"action_items": extractSection(result.Content, "Action Items"),
		"sentiment":    extractSection(result.Content, "Sentiment"),
		"category":     extractSection(result.Content, "Category"),
		"model":        model,
	}}

	if result.TotalTokens > 0 || result.PromptTokens > 0 || result.CompletionTokens > 0 {
		out.TokenUsage = &models.TokenUsage{
			PromptTokens:     result.PromptTokens,
			CompletionTokens: result.CompletionTokens,
			TotalTokens:      result.TotalTokens,
		}
	}

	return out, nil
}

// extractSection locates a heading (tolerant of Markdown decoration and
// case) and captures the text up to the next heading-like boundary.
func extractSection(text, heading string) string {
	pattern := `(?is)(?:#+\s*|\*\*)?` + regexp.QuoteMeta(heading) + `[:*]*\*?\s*(.*?)(?:\n(?:#+|\d+\.|\*\*)|$)`
	re := regexp.MustCompile(pattern)
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}
