package mailbox

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const user = "me"

// Gmail reads and marks messages through the Gmail API
type Gmail struct {
	client     *gmail.Service
	clientOpts []option.ClientOption
	attempts   uint
	retryDelay time.Duration
	logger     *slog.Logger
}

// GmailOption configures a Gmail client
type GmailOption func(*Gmail)

// WithRetry sets how many times an API call is attempted and the initial backoff delay
func WithRetry(attempts uint, delay time.Duration) GmailOption {
	return func(g *Gmail) {
		g.attempts = attempts
		g.retryDelay = delay
	}
}

// WithClientOptions passes extra options, such as an endpoint, to the Gmail API client
func WithClientOptions(opts ...option.ClientOption) GmailOption {
	return func(g *Gmail) {
		g.clientOpts = append(g.clientOpts, opts...)
	}
}

// NewGmail creates a Gmail client that authenticates with httpClient
func NewGmail(ctx context.Context, httpClient *http.Client, logger *slog.Logger, opts ...GmailOption) (*Gmail, error) {
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gmail{
		attempts:   3,
		retryDelay: 2 * time.Second,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(g)
	}

	clientOpts := append([]option.ClientOption{option.WithHTTPClient(httpClient)}, g.clientOpts...)
	client, err := gmail.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	g.client = client

	return g, nil
}

// Search returns up to max decoded messages matching a Gmail search query
func (g *Gmail) Search(ctx context.Context, query string, max int) ([]*Message, error) {
	if query == "" {
		query = DefaultQuery
	}

	var resp *gmail.ListMessagesResponse
	err := g.do(ctx, func() error {
		var err error
		call := g.client.Users.Messages.List(user).Q(query).Context(ctx)
		if max > 0 {
			call = call.MaxResults(int64(max))
		}
		resp, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	g.logger.Info("found messages", "query", query, "count", len(resp.Messages))

	messages := make([]*Message, 0, len(resp.Messages))
	for _, ref := range resp.Messages {
		msg, err := g.get(ctx, ref.Id)
		if err != nil {
			g.logger.Error("failed to get message", "message_id", ref.Id, "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

func (g *Gmail) get(ctx context.Context, id string) (*Message, error) {
	var raw *gmail.Message
	err := g.do(ctx, func() error {
		var err error
		raw, err = g.client.Users.Messages.Get(user, id).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting message: %w", err)
	}
	return decodeMessage(raw, g.logger), nil
}

// Attachment downloads one attachment's bytes
func (g *Gmail) Attachment(ctx context.Context, messageID, attachmentID string) ([]byte, error) {
	var body *gmail.MessagePartBody
	err := g.do(ctx, func() error {
		var err error
		body, err = g.client.Users.Messages.Attachments.Get(user, messageID, attachmentID).Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("getting attachment: %w", err)
	}

	data, err := decodeBase64URL(body.Data)
	if err != nil {
		return nil, fmt.Errorf("decoding attachment: %w", err)
	}
	return data, nil
}

// MarkAsRead removes the UNREAD label from a message
func (g *Gmail) MarkAsRead(ctx context.Context, messageID string) error {
	err := g.do(ctx, func() error {
		_, err := g.client.Users.Messages.Modify(user, messageID, &gmail.ModifyMessageRequest{
			RemoveLabelIds: []string{"UNREAD"},
		}).Context(ctx).Do()
		return err
	})
	if err != nil {
		return fmt.Errorf("marking message as read: %w", err)
	}
	g.logger.Debug("marked message as read", "message_id", messageID)
	return nil
}

// do retries transient API failures with exponential backoff
func (g *Gmail) do(ctx context.Context, call func() error) error {
	return retry.Do(
		call,
		retry.Context(ctx),
		retry.RetryIf(isTransient),
		retry.Attempts(g.attempts),
		retry.Delay(g.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			g.logger.Warn("gmail call failed, will retry", "attempt", n+1, "error", err)
		}),
	)
}

// isTransient is false for client errors other than rate limiting
func isTransient(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func decodeMessage(raw *gmail.Message, logger *slog.Logger) *Message {
	msg := &Message{ID: raw.Id}
	if raw.InternalDate > 0 {
		msg.Date = time.UnixMilli(raw.InternalDate)
	}
	if raw.Payload == nil {
		return msg
	}

	for _, header := range raw.Payload.Headers {
		switch strings.ToLower(header.Name) {
		case "subject":
			msg.Subject = header.Value
		case "from":
			msg.From = header.Value
		case "date":
			if d, err := mail.ParseDate(header.Value); err == nil {
				msg.Date = d
			}
		}
	}

	var plain, html string
	walkParts(raw.Payload, func(part *gmail.MessagePart) {
		if part.Filename != "" {
			att := Attachment{Filename: part.Filename, MimeType: part.MimeType}
			if part.Body != nil {
				att.ID = part.Body.AttachmentId
				att.Size = part.Body.Size
				if part.Body.Data != "" {
					if data, err := decodeBase64URL(part.Body.Data); err == nil {
						att.Data = data
					} else {
						logger.Warn("failed to decode inline attachment", "message_id", raw.Id, "filename", part.Filename, "error", err)
					}
				}
			}
			msg.Attachments = append(msg.Attachments, att)
			return
		}
		if part.Body == nil || part.Body.Data == "" {
			return
		}
		switch part.MimeType {
		case "text/plain":
			if plain == "" {
				plain = decodeText(part.Body.Data)
			}
		case "text/html":
			if html == "" {
				html = decodeText(part.Body.Data)
			}
		}
	})

	msg.Body = plain
	if msg.Body == "" && html != "" {
		msg.Body = stripTags(html)
	}
	return msg
}

func walkParts(part *gmail.MessagePart, visit func(*gmail.MessagePart)) {
	visit(part)
	for _, child := range part.Parts {
		walkParts(child, visit)
	}
}

func decodeText(data string) string {
	b, err := decodeBase64URL(data)
	if err != nil {
		return ""
	}
	return string(b)
}

// decodeBase64URL accepts Gmail's URL-safe base64 with or without padding
func decodeBase64URL(data string) ([]byte, error) {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return b, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(data, "="))
}

var (
	reTags   = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>|<[^>]+>`)
	reBlanks = regexp.MustCompile(`[ \t]+`)
)

func stripTags(html string) string {
	text := reTags.ReplaceAllString(html, " ")
	text = strings.NewReplacer("&nbsp;", " ", "&amp;", "&", "&lt;", "<", "&gt;", ">").Replace(text)
	return strings.TrimSpace(reBlanks.ReplaceAllString(text, " "))
}
