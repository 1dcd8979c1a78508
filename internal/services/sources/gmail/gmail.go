// Package gmail fetches recent message headers from the Gmail API.
package gmail

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/services/sources"
	"github.com/benvon/todo-digest/internal/services/sources/duedate"
)

const maxSubjectLength = 80

var (
	subjectNoise = []string{"unsubscribe", "newsletter", "뉴스레터", "수신거부"}
	senderNoise  = []string{"noreply", "no-reply", "marketing"}
)

// MessageMeta is the header-only view of one message
type MessageMeta struct {
	ID           string
	ThreadID     string
	Subject      string
	From         string
	Date         string
	Snippet      string
	Unread       bool
	InternalDate int64
}

// MailAPI lists and reads message metadata for the authenticated mailbox
type MailAPI interface {
	ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error)
	GetMetadata(ctx context.Context, id string) (*MessageMeta, error)
}

// Fetcher implements sources.Fetcher for Gmail
type Fetcher struct {
	newClient func(ctx context.Context, token string) (MailAPI, error)
	limits    config.GmailLimits
	rules     []duedate.Rule
	logger    *zap.Logger
	now       func() time.Time
}

var _ sources.Fetcher = (*Fetcher)(nil)

// Option configures a Fetcher
type Option func(*Fetcher)

// WithClientFactory replaces the Gmail client constructor
func WithClientFactory(newClient func(ctx context.Context, token string) (MailAPI, error)) Option {
	return func(f *Fetcher) { f.newClient = newClient }
}

// WithClock sets the time source. Its location is the civil calendar for due dates.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a Gmail fetcher. Subjects are only scanned for calendar dates,
// never for relative words like "today".
func NewFetcher(limits config.GmailLimits, log *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		newClient: NewServiceClient,
		limits:    limits,
		rules:     duedate.AbsoluteRules(),
		logger:    logger.OrNop(log),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns models.ProviderGmail
func (f *Fetcher) Provider() models.Provider {
	return models.ProviderGmail
}

// Fetch lists matching messages and normalizes their headers. A failed read of a
// single message skips that message only.
func (f *Fetcher) Fetch(ctx context.Context, creds sources.Credentials, _ sources.Scope) ([]models.SourceItem, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("gmail access token is empty")
	}
	client, err := f.newClient(ctx, creds.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail client: %w", err)
	}

	ids, err := client.ListMessageIDs(ctx, f.limits.Query, int64(f.limits.MaxResults))
	if err != nil {
		return nil, fmt.Errorf("failed to list gmail messages: %w", err)
	}

	now := sources.LocalNow(ctx, f.now)
	items := make([]models.SourceItem, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		meta, err := client.GetMetadata(ctx, id)
		if err != nil {
			f.logger.Warn("gmail_message_get_failed",
				zap.String("message_id", id),
				zap.String("error", logger.SanitizeError(err)))
			continue
		}
		if item, ok := f.toItem(meta, now); ok {
			items = append(items, item)
		}
	}

	f.logger.Debug("gmail_fetch_complete", zap.Int("listed", len(ids)), zap.Int("items", len(items)))
	return items, nil
}

func (f *Fetcher) toItem(meta *MessageMeta, now time.Time) (models.SourceItem, bool) {
	if sources.ContainsAny(meta.Subject, subjectNoise...) || sources.ContainsAny(meta.From, senderNoise...) {
		return models.SourceItem{}, false
	}

	sender, address := ParseSender(meta.From)
	subject := strings.TrimSpace(meta.Subject)
	if subject == "" {
		subject = "(no subject)"
	}

	var due *time.Time
	if res, ok := duedate.Scan(subject, now, f.rules); ok {
		due = res.Date
	}
	if duedate.IsPast(due, now) {
		return models.SourceItem{}, false
	}

	return models.SourceItem{
		Type:      models.SourceTypeEmail,
		ID:        meta.ID,
		Link:      MessageLink(meta.ID),
		Title:     sender + ": " + sources.Truncate(subject, maxSubjectLength),
		Content:   strings.TrimSpace(meta.Snippet),
		Author:    formatAuthor(sender, address),
		Timestamp: messageTime(meta, now.Location()),
		DueDate:   due,
		Metadata: map[string]any{
			"unread":   meta.Unread,
			"threadId": meta.ThreadID,
		},
	}, true
}

// MessageLink opens the message in the Gmail web client
func MessageLink(id string) string {
	return "https://mail.google.com/mail/u/0/#inbox/" + id
}

// ParseSender splits a From header into display name and address. The display
// name falls back to the address, then to the raw header.
func ParseSender(from string) (name, address string) {
	addr, err := mail.ParseAddress(from)
	if err != nil {
		raw := strings.TrimSpace(from)
		return raw, ""
	}
	if addr.Name != "" {
		return addr.Name, addr.Address
	}
	return addr.Address, addr.Address
}

func formatAuthor(name, address string) string {
	if address == "" || name == address {
		return name
	}
	return fmt.Sprintf("%s <%s>", name, address)
}

func messageTime(meta *MessageMeta, loc *time.Location) *time.Time {
	if meta.Date != "" {
		if t, err := mail.ParseDate(meta.Date); err == nil {
			t = t.In(loc)
			return &t
		}
	}
	if meta.InternalDate > 0 {
		t := time.UnixMilli(meta.InternalDate).In(loc)
		return &t
	}
	return nil
}

// serviceClient adapts *gmail.Service to MailAPI
type serviceClient struct {
	svc *gmailapi.Service
}

// NewServiceClient builds a MailAPI backed by the Gmail REST API using a static OAuth token
func NewServiceClient(ctx context.Context, token string) (MailAPI, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	svc, err := gmailapi.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, err
	}
	return &serviceClient{svc: svc}, nil
}

func (c *serviceClient) ListMessageIDs(ctx context.Context, query string, maxResults int64) ([]string, error) {
	resp, err := c.svc.Users.Messages.List("me").Q(query).MaxResults(maxResults).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (c *serviceClient) GetMetadata(ctx context.Context, id string) (*MessageMeta, error) {
	msg, err := c.svc.Users.Messages.Get("me", id).
		Format("metadata").
		MetadataHeaders("Subject", "From", "Date").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}

	meta := &MessageMeta{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		Snippet:      msg.Snippet,
		InternalDate: msg.InternalDate,
	}
	for _, label := range msg.LabelIds {
		if label == "UNREAD" {
			meta.Unread = true
		}
	}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch strings.ToLower(h.Name) {
			case "subject":
				meta.Subject = h.Value
			case "from":
				meta.From = h.Value
			case "date":
				meta.Date = h.Value
			}
		}
	}
	return meta, nil
}
