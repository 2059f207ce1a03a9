package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyzr/agentkit/internal/errs"
)

func TestRegistry_UnknownNodeTypeFails(t *testing.T) {
	reg := NewRegistry("")

	_, err := reg.HandlerFor("does_not_exist")

	require.Error(t, err)
	assert.Equal(t, errs.KindUnknownNodeType, errs.KindOf(err))
}

func TestRegistry_ResolvesBuiltins(t *testing.T) {
	reg := NewRegistry("fallback-key")

	for _, nodeType := range []string{"email_trigger", "extract_content", "summarize", "google_sheets", "response"} {
		h, err := reg.HandlerFor(nodeType)
		require.NoError(t, err, nodeType)
		assert.NotNil(t, h, nodeType)
	}
}

func TestEmailTriggerHandler_UnwrapsPollerPayload(t *testing.T) {
	h := NewEmailTriggerHandler()

	runContext := map[string]any{
		"trigger": map[string]any{
			"body": map[string]any{
				"trigger_type": "gmail",
				"body": map[string]any{
					"subject": "Hi",
					"sender":  "a@x",
					"body":    "<p>Hello</p>",
				},
			},
		},
	}

	out, err := h.Execute(context.Background(), map[string]any{}, runContext, nil)

	require.NoError(t, err)
	assert.Equal(t, "Hi", out.Data["subject"])
	assert.Equal(t, "a@x", out.Data["sender"])
}

func TestEmailTriggerHandler_FallsBackToTestFields(t *testing.T) {
	h := NewEmailTriggerHandler()

	out, err := h.Execute(context.Background(), map[string]any{
		"test_subject": "Fallback subject",
	}, map[string]any{}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Fallback subject", out.Data["subject"])
	assert.Equal(t, "(No Body)", out.Data["body"])
	assert.Equal(t, "unknown@example.com", out.Data["sender"])
}

func TestExtractContentHandler_StripsHTMLAndCollapsesWhitespace(t *testing.T) {
	h := NewExtractContentHandler()

	out, err := h.Execute(context.Background(), map[string]any{
		"subject":     "Hi",
		"body":        "<p>Hello</p>",
		"attachments": []any{},
	}, map[string]any{}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Hello", out.Data["clean_body"])
	assert.Equal(t, 0, out.Data["attachment_count"])
}

func TestExtractContentHandler_DecodesBase64Attachment(t *testing.T) {
	h := NewExtractContentHandler()

	out, err := h.Execute(context.Background(), map[string]any{
		"subject": "Hi",
		"body":    "body",
		"attachments": []any{
			map[string]any{"filename": "note.txt", "content": "aGVsbG8="}, // "hello"
		},
	}, map[string]any{}, nil)

	require.NoError(t, err)
	texts := out.Data["attachment_texts"].([]any)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0].(string), "hello")
}

func TestExtractContentHandler_InvalidBase64FallsBackToPlaceholder(t *testing.T) {
	h := NewExtractContentHandler()

	out, err := h.Execute(context.Background(), map[string]any{
		"subject": "Hi",
		"body":    "body",
		"attachments": []any{
			map[string]any{"filename": "note.txt", "content": "not-valid-base64!!"},
		},
	}, map[string]any{}, nil)

	require.NoError(t, err)
	texts := out.Data["attachment_texts"].([]any)
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0].(string), "not decoded")
}

func TestSummarizeHandler_FailsWithoutAPIKey(t *testing.T) {
	h := NewSummarizeHandlerWithClient(fakeChatClient{}, "")

	_, err := h.Execute(context.Background(), map[string]any{}, map[string]any{}, nil)

	require.Error(t, err)
	assert.Equal(t, errs.KindConfigError, errs.KindOf(err))
}

func TestSummarizeHandler_ExtractsStructuredSections(t *testing.T) {
	summary := "**Summary** Short overview.\n**Key Points** - point one\n**Action Items** - none\n" +
		"**Sentiment** positive\n**Category** general"

	h := NewSummarizeHandlerWithClient(fakeChatClient{content: summary}, "")

	out, err := h.Execute(context.Background(), map[string]any{
		"api_key":       "test-key",
		"email_content": "hello",
	}, map[string]any{}, nil)

	require.NoError(t, err)
	assert.Equal(t, "Short overview.", out.Data["overview"])
	assert.Equal(t, "positive", out.Data["sentiment"])
	assert.Equal(t, "general", out.Data["category"])
}

func TestResponseHandler_PassesBodyThrough(t *testing.T) {
	h := NewResponseHandler()

	out, err := h.Execute(context.Background(), map[string]any{
		"body": map[string]any{"who": "bob@x"},
	}, map[string]any{}, nil)

	require.NoError(t, err)
	assert.Equal(t, "json", out.Data["type"])
	assert.Equal(t, map[string]any{"who": "bob@x"}, out.Data["data"])
}

func TestResponseHandler_EmptyBodyYieldsEmptyMap(t *testing.T) {
	h := NewResponseHandler()

	out, err := h.Execute(context.Background(), map[string]any{}, map[string]any{}, nil)

	require.NoError(t, err)
	assert.Equal(t, map[string]any{}, out.Data["data"])
}

type fakeChatClient struct {
	content string
	err     error
}

func (f fakeChatClient) CreateChatCompletion(ctx context.Context, apiKey, model string, temperature float64, systemPrompt, userContent string) (ChatCompletionResult, error) {
	if f.err != nil {
		return ChatCompletionResult{}, f.err
	}
	return ChatCompletionResult{Content: f.content, PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30}, nil
}
