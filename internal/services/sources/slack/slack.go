// Package slack fetches recent channel messages from the Slack Web API.
package slack

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/benvon/todo-digest/internal/config"
	"github.com/benvon/todo-digest/internal/logger"
	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/services/sources"
	"github.com/benvon/todo-digest/internal/services/sources/duedate"
)

const (
	maxTitleLength = 100
	minTextLength  = 10
)

// Slack error codes for channels the token cannot read. These are skipped silently.
var expectedCodes = []string{"not_in_channel", "missing_scope", "channel_not_found"}

// Message subtypes that carry no actionable content
var skippedSubtypes = map[string]bool{
	"channel_join":      true,
	"channel_leave":     true,
	"group_join":        true,
	"group_leave":       true,
	"channel_topic":     true,
	"channel_purpose":   true,
	"channel_name":      true,
	"channel_archive":   true,
	"channel_unarchive": true,
	"group_topic":       true,
	"group_purpose":     true,
	"group_name":        true,
	"pinned_item":       true,
	"unpinned_item":     true,
	"bot_add":           true,
	"bot_remove":        true,
	"message_deleted":   true,
	"message_changed":   true,
}

// API is the subset of the Slack Web API used by the fetcher. *slack.Client satisfies it.
type API interface {
	GetConversationsContext(ctx context.Context, params *slack.GetConversationsParameters) ([]slack.Channel, string, error)
	GetConversationHistoryContext(ctx context.Context, params *slack.GetConversationHistoryParameters) (*slack.GetConversationHistoryResponse, error)
	GetUsersContext(ctx context.Context, options ...slack.GetUsersOption) ([]slack.User, error)
}

var _ API = (*slack.Client)(nil)

// UserDirectory caches a workspace's user-id to display-name map between runs
type UserDirectory interface {
	Get(ctx context.Context, team string) (map[string]string, bool)
	Put(ctx context.Context, team string, names map[string]string)
}

// Fetcher implements sources.Fetcher for Slack
type Fetcher struct {
	newClient func(token string) API
	users     UserDirectory
	limits    config.SlackLimits
	rules     []duedate.Rule
	logger    *zap.Logger
	now       func() time.Time
}

var _ sources.Fetcher = (*Fetcher)(nil)

// Option configures a Fetcher
type Option func(*Fetcher)

// WithClientFactory replaces the Slack client constructor
func WithClientFactory(newClient func(token string) API) Option {
	return func(f *Fetcher) { f.newClient = newClient }
}

// WithClock sets the time source. Its location is the civil calendar for due dates.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithUserDirectory enables user-name caching
func WithUserDirectory(users UserDirectory) Option {
	return func(f *Fetcher) { f.users = users }
}

// NewFetcher creates a Slack fetcher
func NewFetcher(limits config.SlackLimits, log *zap.Logger, opts ...Option) *Fetcher {
	f := &Fetcher{
		newClient: func(token string) API { return slack.New(token) },
		limits:    limits,
		rules:     duedate.Rules(),
		logger:    logger.OrNop(log),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Provider returns models.ProviderSlack
func (f *Fetcher) Provider() models.Provider {
	return models.ProviderSlack
}

// Fetch scans channels in member-first order and returns recent actionable messages.
// History calls are sequential so the global message and channel caps can stop the scan early.
func (f *Fetcher) Fetch(ctx context.Context, creds sources.Credentials, scope sources.Scope) ([]models.SourceItem, error) {
	if creds.AccessToken == "" {
		return nil, fmt.Errorf("slack access token is empty")
	}
	client := f.newClient(creds.AccessToken)
	now := sources.LocalNow(ctx, f.now)

	channels, err := f.listChannels(ctx, client)
	if err != nil {
		return nil, err
	}
	channels = rankChannels(filterChannels(channels, scope.AllowList))

	names := f.userNames(ctx, client, creds.TeamID)
	oldest := strconv.FormatInt(now.Add(-f.limits.HistoryWindow).Unix(), 10)

	items := make([]models.SourceItem, 0, f.limits.MaxMessages)
	succeeded := 0
	for _, ch := range channels {
		if len(items) >= f.limits.MaxMessages || succeeded >= f.limits.MaxChannels {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		resp, err := client.GetConversationHistoryContext(ctx, &slack.GetConversationHistoryParameters{
			ChannelID: ch.ID,
			Oldest:    oldest,
			Limit:     f.limits.MessagesPerChannel,
		})
		if err != nil {
			err = classify(err, ch.ID)
			if !sources.IsExpected(err) {
				f.logger.Warn("slack_channel_history_failed",
					zap.String("channel_id", ch.ID),
					zap.String("error", logger.SanitizeError(err)))
			}
			continue
		}
		succeeded++

		for _, msg := range resp.Messages {
			if len(items) >= f.limits.MaxMessages {
				break
			}
			item, ok := f.toItem(msg, ch, creds.TeamID, names, now)
			if ok {
				items = append(items, item)
			}
		}
	}

	f.logger.Debug("slack_fetch_complete",
		zap.Int("channels_scanned", succeeded),
		zap.Int("items", len(items)))
	return items, nil
}

func (f *Fetcher) listChannels(ctx context.Context, client API) ([]slack.Channel, error) {
	var all []slack.Channel
	cursor := ""
	for page := 0; page < f.limits.MaxChannelPages; page++ {
		channels, next, err := client.GetConversationsContext(ctx, &slack.GetConversationsParameters{
			Cursor:          cursor,
			ExcludeArchived: true,
			Limit:           f.limits.ChannelPageSize,
			Types:           []string{"public_channel", "private_channel"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list slack channels: %w", err)
		}
		all = append(all, channels...)
		if next == "" {
			break
		}
		cursor = next
	}
	return all, nil
}

// userNames is best-effort: a failure yields raw user ids in titles
func (f *Fetcher) userNames(ctx context.Context, client API, team string) map[string]string {
	if f.users != nil && team != "" {
		if names, ok := f.users.Get(ctx, team); ok {
			return names
		}
	}

	users, err := client.GetUsersContext(ctx)
	if err != nil {
		f.logger.Debug("slack_users_list_failed", zap.String("error", logger.SanitizeError(err)))
		return map[string]string{}
	}

	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = displayName(u)
	}
	if f.users != nil && team != "" {
		f.users.Put(ctx, team, names)
	}
	return names
}

func displayName(u slack.User) string {
	switch {
	case u.Profile.DisplayName != "":
		return u.Profile.DisplayName
	case u.RealName != "":
		return u.RealName
	default:
		return u.Name
	}
}

func (f *Fetcher) toItem(msg slack.Message, ch slack.Channel, team string, names map[string]string, now time.Time) (models.SourceItem, bool) {
	if skippedSubtypes[msg.SubType] {
		return models.SourceItem{}, false
	}
	isBot := msg.BotID != "" || msg.SubType == "bot_message"
	if isBot && !strings.Contains(strings.ToLower(msg.Text), "reminder") {
		return models.SourceItem{}, false
	}

	text := strings.TrimSpace(CleanText(msg.Text, names))
	if len([]rune(text)) < minTextLength {
		return models.SourceItem{}, false
	}

	metadata := map[string]any{
		"channelId":   ch.ID,
		"channelName": ch.Name,
		"ts":          msg.Timestamp,
		"isThread":    msg.ThreadTimestamp != "" || msg.ReplyCount > 0,
	}

	var due *time.Time
	if res, ok := duedate.Scan(text, now, f.rules); ok {
		due = res.Date
		if res.Hint != "" {
			metadata["dueHint"] = res.Hint
		}
	}
	if duedate.IsPast(due, now) {
		return models.SourceItem{}, false
	}

	author := names[msg.User]
	if author == "" {
		author = msg.Username
	}
	if author == "" {
		author = msg.User
	}

	return models.SourceItem{
		Type:      models.SourceTypeSlack,
		ID:        ch.ID + ":" + msg.Timestamp,
		Link:      ChannelLink(team, ch.ID),
		Title:     sources.Truncate(text, maxTitleLength),
		Content:   text,
		Channel:   ch.Name,
		Author:    author,
		Timestamp: parseTimestamp(msg.Timestamp, now.Location()),
		DueDate:   due,
		Metadata:  metadata,
	}, true
}

// ChannelLink deep-links to a channel, using the workspace id when known
func ChannelLink(team, channelID string) string {
	if team != "" {
		return fmt.Sprintf("https://app.slack.com/client/%s/%s", team, channelID)
	}
	return "https://slack.com/app_redirect?channel=" + channelID
}

func filterChannels(channels []slack.Channel, allow []string) []slack.Channel {
	if len(allow) == 0 {
		return channels
	}
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowed[strings.TrimPrefix(strings.TrimSpace(a), "#")] = true
	}
	filtered := make([]slack.Channel, 0, len(channels))
	for _, ch := range channels {
		if allowed[ch.ID] || allowed[ch.Name] {
			filtered = append(filtered, ch)
		}
	}
	return filtered
}

// rankChannels puts channels the token's user belongs to first, keeping provider order otherwise
func rankChannels(channels []slack.Channel) []slack.Channel {
	ranked := slices.Clone(channels)
	slices.SortStableFunc(ranked, func(a, b slack.Channel) int {
		switch {
		case a.IsMember == b.IsMember:
			return 0
		case a.IsMember:
			return -1
		default:
			return 1
		}
	})
	return ranked
}

func classify(err error, channelID string) error {
	msg := err.Error()
	for _, code := range expectedCodes {
		if strings.Contains(msg, code) {
			return &sources.ExpectedError{Provider: models.ProviderSlack, Code: code, Resource: channelID}
		}
	}
	return fmt.Errorf("conversations.history %s: %w", channelID, err)
}

func parseTimestamp(ts string, loc *time.Location) *time.Time {
	secs, frac, _ := strings.Cut(ts, ".")
	s, err := strconv.ParseInt(secs, 10, 64)
	if err != nil {
		return nil
	}
	var micros int64
	if frac != "" {
		micros, _ = strconv.ParseInt(frac, 10, 64)
	}
	t := time.Unix(s, micros*int64(time.Microsecond)).In(loc)
	return &t
}

var (
	userMention    = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|([^>]+))?>`)
	channelMention = regexp.MustCompile(`<#([A-Z0-9]+)(?:\|([^>]*))?>`)
	specialMention = regexp.MustCompile(`<!(here|channel|everyone)(?:\|[^>]*)?>`)
	labeledLink    = regexp.MustCompile(`<([^<>|]+)\|([^<>]+)>`)
	bareLink       = regexp.MustCompile(`<([^<>]+)>`)
)

// CleanText rewrites Slack mrkdwn markup (mentions and links) into plain text
func CleanText(text string, names map[string]string) string {
	text = userMention.ReplaceAllStringFunc(text, func(m string) string {
		parts := userMention.FindStringSubmatch(m)
		if name := names[parts[1]]; name != "" {
			return "@" + name
		}
		if parts[2] != "" {
			return "@" + parts[2]
		}
		return "@" + parts[1]
	})
	text = channelMention.ReplaceAllStringFunc(text, func(m string) string {
		parts := channelMention.FindStringSubmatch(m)
		if parts[2] != "" {
			return "#" + parts[2]
		}
		return "#" + parts[1]
	})
	text = specialMention.ReplaceAllString(text, "@$1")
	text = labeledLink.ReplaceAllString(text, "$2")
	text = bareLink.ReplaceAllString(text, "$1")
	text = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&").Replace(text)
	return strings.TrimSpace(text)
}
