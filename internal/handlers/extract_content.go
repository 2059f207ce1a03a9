package handlers

import (
	"context"
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	htmlTagPattern    = regexp.MustCompile(`<[^>]+>`)
	whitespacePattern = regexp.MustCompile(`\s+`)
)

// ExtractContentHandler normalizes an email's body and attachments into a
// single text block suitable for summarization.
type ExtractContentHandler struct{}

// NewExtractContentHandler builds an ExtractContentHandler.
func NewExtractContentHandler() Handler { return &ExtractContentHandler{} }

func (h *ExtractContentHandler) Execute(ctx context.Context, data, runContext map[string]any, side SideChannel) (Output, error) {
	subject := getString(data, "subject")
	body := getString(data, "body")
	attachments := getSlice(data, "attachments")

	cleanBody := whitespacePattern.ReplaceAllString(htmlTagPattern.ReplaceAllString(body, " "), " ")
	cleanBody = strings.TrimSpace(cleanBody)

	attachmentTexts := make([]string, 0, len(attachments))
	for _, raw := range attachments {
		att, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name := firstNonEmpty(getString(att, "filename"), getString(att, "name"), "attachment")
		content := getString(att, "content")
		switch {
		case content == "":
			attachmentTexts = append(attachmentTexts, fmt.Sprintf("[Attachment: %s]", name))
		default:
			decoded, err := base64.StdEncoding.DecodeString(content)
			if err != nil {
				attachmentTexts = append(attachmentTexts, fmt.Sprintf("[Attachment: %s] (binary, not decoded)", name))
				continue
			}
			attachmentTexts = append(attachmentTexts, fmt.Sprintf("[Attachment: %s]\n%s", name, decodeIgnoringInvalidUTF8(decoded)))
		}
	}

	combined := fmt.Sprintf("Subject: %s\n\nBody:\n%s", subject, cleanBody)
	if len(attachmentTexts) > 0 {
		combined += "\n\nAttachments:\n" + strings.Join(attachmentTexts, "\n\n")
	}

	attachmentTextsAny := make([]any, len(attachmentTexts))
	for i, t := range attachmentTexts {
		attachmentTextsAny[i] = t
	}

	return Output{Data: map[string]any{
		"subject":          subject,
		"clean_body":       cleanBody,
		"attachment_count": len(attachments),
		"attachment_texts": attachmentTextsAny,
		"combined_text":    combined,
	}}, nil
}

// decodeIgnoringInvalidUTF8 mirrors Python's str.decode(errors="ignore"):
// drop any byte sequence that doesn't form a valid rune instead of erroring.
func decodeIgnoringInvalidUTF8(b []byte) string {
	var sb strings.Builder
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		if r == utf8.RuneError && size <= 1 {
			b = b[1:]
			continue
		}
		sb.WriteRune(r)
		b = b[size:]
	}
	return sb.String()
}
