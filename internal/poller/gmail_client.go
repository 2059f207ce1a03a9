// Package poller implements the Gmail event source: a background loop that
// fetches new messages for each active Gmail integration and dispatches
// matching workflows.
package poller

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/lyzr/agentkit/internal/errs"
)

// GmailCredentials is the sealed credential bundle's decoded shape.
type GmailCredentials struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	TokenURI     string   `json:"token_uri"`
	ClientID     string   `json:"client_id"`
	ClientSecret string   `json:"client_secret"`
	Scopes       []string `json:"scopes"`
}

// Attachment describes one email attachment's metadata. Attachment bodies
// are not fetched: the trigger payload carries no content for them, so the
// extract_content handler lists each one by filename only.
type Attachment struct {
	Filename     string
	MimeType     string
	Size         int64
	AttachmentID string
}

// EmailMessage is a fetched Gmail message in the shape the poller forwards
// to triggered workflows.
type EmailMessage struct {
	MessageID   string
	ThreadID    string
	Subject     string
	Sender      string
	To          string
	Body        string
	Attachments []Attachment
	ReceivedAt  string
	Snippet     string
	Labels      []string
}

// GmailClient wraps the Gmail API for one integration's credentials.
type GmailClient struct {
	service     *gmail.Service
	tokenSource oauth2.TokenSource
}

// NewGmailClient builds a Gmail API client from decoded credentials. When
// baseURL is set, it builds an unauthenticated client pointed at that
// endpoint instead, for tests.
func NewGmailClient(ctx context.Context, creds GmailCredentials, baseURL string) (*GmailClient, error) {
	if baseURL != "" {
		service, err := gmail.NewService(ctx, option.WithoutAuthentication(), option.WithEndpoint(baseURL))
		if err != nil {
			return nil, fmt.Errorf("build test gmail client: %w", err)
		}
		return &GmailClient{service: service}, nil
	}

	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = []string{gmail.GmailReadonlyScope}
	}

	endpoint := google.Endpoint
	if creds.TokenURI != "" {
		endpoint.TokenURL = creds.TokenURI
	}

	cfg := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
	token := &oauth2.Token{AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken}
	tokenSource := cfg.TokenSource(ctx, token)

	service, err := gmail.NewService(ctx, option.WithTokenSource(tokenSource))
	if err != nil {
		return nil, fmt.Errorf("build gmail client: %w", err)
	}

	return &GmailClient{service: service, tokenSource: tokenSource}, nil
}

// CurrentAccessToken returns the access token the underlying token source
// is presently using, which may have been silently refreshed by a prior
// API call. Returns "" if the client has no token source (test doubles).
func (c *GmailClient) CurrentAccessToken() string {
	if c.tokenSource == nil {
		return ""
	}
	token, err := c.tokenSource.Token()
	if err != nil {
		return ""
	}
	return token.AccessToken
}

// UnreadMessages fetches unread messages, used the first time an
// integration is polled.
func (c *GmailClient) UnreadMessages(ctx context.Context, maxResults int64) ([]EmailMessage, error) {
	return c.listAndFetch(ctx, "is:unread", maxResults)
}

// MessagesSince fetches messages received after the given time, used on
// every subsequent poll once a watermark exists.
func (c *GmailClient) MessagesSince(ctx context.Context, since time.Time, maxResults int64) ([]EmailMessage, error) {
	return c.listAndFetch(ctx, fmt.Sprintf("after:%d", since.Unix()), maxResults)
}

func (c *GmailClient) listAndFetch(ctx context.Context, query string, maxResults int64) ([]EmailMessage, error) {
	listResp, err := c.service.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, errs.Wrap(errs.KindPollerError, "list gmail messages failed", err)
	}

	messages := make([]EmailMessage, 0, len(listResp.Messages))
	for _, ref := range listResp.Messages {
		full, err := c.service.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			// One bad message shouldn't fail the whole poll tick.
			continue
		}
		messages = append(messages, parseMessage(full))
	}

	return messages, nil
}

func parseMessage(msg *gmail.Message) EmailMessage {
	headers := map[string]string{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			headers[h.Name] = h.Value
		}
	}

	receivedAt := headerValue(headers, "Date")
	if msg.InternalDate > 0 {
		receivedAt = time.UnixMilli(msg.InternalDate).UTC().Format(time.RFC3339)
	}

	subject := headerValue(headers, "Subject")
	if subject == "" {
		subject = "(No Subject)"
	}
	sender := headerValue(headers, "From")
	if sender == "" {
		sender = "unknown@example.com"
	}

	var body string
	var attachments []Attachment
	if msg.Payload != nil {
		body = extractBody(msg.Payload)
		attachments = extractAttachments(msg.Payload)
	}

	return EmailMessage{
		MessageID:   msg.Id,
		ThreadID:    msg.ThreadId,
		Subject:     subject,
		Sender:      sender,
		To:          headerValue(headers, "To"),
		Body:        body,
		Attachments: attachments,
		ReceivedAt:  receivedAt,
		Snippet:     msg.Snippet,
		Labels:      msg.LabelIds,
	}
}

func headerValue(headers map[string]string, name string) string {
	return headers[name]
}

// extractBody prefers a text/plain part, falls back to text/html, and
// recurses into multipart/* nesting the way nested MIME messages require.
func extractBody(part *gmail.MessagePart) string {
	if len(part.Parts) == 0 {
		return decodeBodyData(part.Body)
	}

	var htmlFallback string
	for _, p := range part.Parts {
		switch p.MimeType {
		case "text/plain":
			if text := decodeBodyData(p.Body); text != "" {
				return text
			}
		case "text/html":
			if htmlFallback == "" {
				htmlFallback = decodeBodyData(p.Body)
			}
		default:
			if len(p.Parts) > 0 {
				if nested := extractBody(p); nested != "" {
					return nested
				}
			}
		}
	}

	return htmlFallback
}

func decodeBodyData(body *gmail.MessagePartBody) string {
	if body == nil || body.Data == "" {
		return ""
	}
	decoded, err := base64.URLEncoding.DecodeString(body.Data)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(body.Data)
		if err != nil {
			return ""
		}
	}
	return string(decoded)
}

func extractAttachments(part *gmail.MessagePart) []Attachment {
	var attachments []Attachment
	for _, p := range part.Parts {
		if p.Filename != "" {
			att := Attachment{Filename: p.Filename, MimeType: p.MimeType}
			if p.Body != nil {
				att.Size = p.Body.Size
				att.AttachmentID = p.Body.AttachmentId
			}
			attachments = append(attachments, att)
		} else if len(p.Parts) > 0 {
			attachments = append(attachments, extractAttachments(p)...)
		}
	}
	return attachments
}
