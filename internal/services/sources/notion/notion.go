// Package notion fetches recently edited pages and databases from the Notion API.
package notion

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/services/sources"
	"github.com/benvon/todo-digest/internal/services/sources/duedate"
)

const untitled = "Untitled"

var (
	dueNames      = []string{"due", "deadline", "date", "마감", "기한", "날짜", "일정"}
	statusNames   = []string{"status", "상태"}
	doneNames     = []string{"done", "complete", "완료"}
	completedVals = []string{"done", "complete", "completed", "완료", "완료됨", "finished"}
)

// SearchAPI is the part of the Notion API used by the fetcher
type SearchAPI interface {
	Search(ctx context.Context, pageSize int) (*SearchResponse, error)
}

var _ SearchAPI = (*Client)(nil)

// Fetcher implements sources.Fetcher for Notion
type Fetcher struct {
	newClient func(token string) SearchAPI
	limits    config.NotionLimits
	logger    *zap.Logger
	now       func() time.Time
}

var _ sources.Fetcher = (*Fetcher)(nil)

// Option configures a Fetcher
type Option func(*Fetcher)

// WithBaseURL points the fetcher at another API root
func WithBaseURL(baseURL string, httpClient *http.Client) Option {
	return func(f *Fetcher) {
		f.newClient = func(token string) SearchAPI { return NewClient(baseURL, token, httpClient) }
	}
}

// WithClock sets the time source. Its location is the civil calendar for due dates.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// NewFetcher creates a Notion fetcher
func NewFetcher(limits config.NotionLimits, log *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		newClient: func(token string) SearchAPI { return NewClient(DefaultBaseURL, token, nil) },
		limits:    limits,
		logger:    logger.OrNop(log),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns models.ProviderNotion
func (f *Fetcher) Provider() models.Provider {
	return models.ProviderNotion
}

// Fetch searches recent pages and drops untitled, completed and past-due results
func (f *Fetcher) Fetch(ctx context.Context, creds sources.Credentials, scope sources.Scope) ([]models.SourceItem, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("notion token is empty")
	}
	resp, err := f.newClient(creds.AccessToken).Search(ctx, f.limits.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("notion search failed: %w", err)
	}

	allowed := allowSet(scope.AllowList)
	now := sources.LocalNow(ctx, f.now)
	items := make([]models.SourceItem, 0, len(resp.Results))
	for _, obj := range resp.Results {
		if len(items) >= f.limits.MaxResults {
			break
		}
		if allowed != nil && !allowed[NormalizeID(obj.ID)] {
			continue
		}
		if item, ok := toItem(obj, now); ok {
			items = append(items, item)
		}
	}

	f.logger.Debug("notion_fetch_complete", zap.Int("results", len(resp.Results)), zap.Int("items", len(items)))
	return items, nil
}

func toItem(obj Object, now time.Time) (models.SourceItem, bool) {
	title := strings.TrimSpace(Title(obj))
	if title == "" || title == untitled {
		return models.SourceItem{}, false
	}

	status := Status(obj.Properties)
	if IsCompleted(status) {
		return models.SourceItem{}, false
	}

	due := DueDate(obj.Properties, now.Location())
	if duedate.IsPast(due, now) {
		return models.SourceItem{}, false
	}

	metadata := map[string]any{
		"object":     obj.Object,
		"parentType": obj.Parent.Type,
	}
	if id := obj.Parent.ID(); id != "" {
		metadata["parentId"] = id
	}
	if status != "" {
		metadata["status"] = status
	}
	display := title
	if obj.Icon != nil && obj.Icon.Type == "emoji" && obj.Icon.Emoji != "" {
		metadata["icon"] = obj.Icon.Emoji
		display = obj.Icon.Emoji + " " + title
	}

	item := models.SourceItem{
		Type:     models.SourceTypeNotion,
		ID:       obj.ID,
		Link:     pageLink(obj),
		Title:    display,
		DueDate:  due,
		Metadata: metadata,
	}
	if t, err := time.Parse(time.RFC3339, obj.LastEditedTime); err == nil {
		t = t.In(now.Location())
		item.Timestamp = &t
	}
	return item, true
}

// Title returns a database's title or the page's title-typed property
func Title(obj Object) string {
	if obj.Object == "database" {
		return plainText(obj.Title)
	}
	for _, name := range sortedNames(obj.Properties) {
		if p := obj.Properties[name]; p.Type == "title" {
			return plainText(p.Title)
		}
	}
	return ""
}

// DueDate returns the start of the first date property whose name reads like a deadline.
// Properties are visited in name order so the choice is stable.
func DueDate(props map[string]Property, loc *time.Location) *time.Time {
	for _, name := range sortedNames(props) {
		p := props[name]
		if p.Type != "date" || p.Date == nil || p.Date.Start == "" {
			continue
		}
		if !sources.ContainsAny(name, dueNames...) {
			continue
		}
		if t, ok := parseDate(p.Date.Start, loc); ok {
			return &t
		}
	}
	return nil
}

// Status returns the page's status signal: a status value, a status-like select, or "done"
// for a checked completion checkbox. A completed signal wins over any other; otherwise the
// first signal in property-name order is returned.
func Status(props map[string]Property) string {
	first := ""
	for _, name := range sortedNames(props) {
		p := props[name]
		var signal string
		switch {
		case p.Type == "status" && p.Status != nil && p.Status.Name != "":
			signal = p.Status.Name
		case p.Type == "select" && p.Select != nil && p.Select.Name != "" && sources.ContainsAny(name, statusNames...):
			signal = p.Select.Name
		case p.Type == "checkbox" && p.Checkbox != nil && *p.Checkbox && sources.ContainsAny(name, doneNames...):
			signal = "done"
		default:
			continue
		}
		if IsCompleted(signal) {
			return signal
		}
		if first == "" {
			first = signal
		}
	}
	return first
}

// IsCompleted reports whether a status value means the work is finished
func IsCompleted(status string) bool {
	return slices.Contains(completedVals, strings.ToLower(strings.TrimSpace(status)))
}

// NormalizeID strips hyphens and lowercases a Notion id
func NormalizeID(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}

func allowSet(allow []string) map[string]bool {
	if len(allow) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allow))
	for _, id := range allow {
		set[NormalizeID(id)] = true
	}
	return set
}

func pageLink(obj Object) string {
	if obj.URL != "" {
		return obj.URL
	}
	return "https://www.notion.so/" + NormalizeID(obj.ID)
}

func plainText(runs []RichText) string {
	var b strings.Builder
	for _, r := range runs {
		b.WriteString(r.PlainText)
	}
	return b.String()
}

func sortedNames(props map[string]Property) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// parseDate accepts both date-only and date-time property values
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	if t, err := time.ParseInLocation("2006-01-02", s, loc); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), true
	}
	return time.Time{}, false
}
