package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SlackLimits bounds the Slack channel scan
type SlackLimits struct {
	MaxChannelPages    int           `yaml:"max_channel_pages"`
	ChannelPageSize    int           `yaml:"channel_page_size"`
	HistoryWindow      time.Duration `yaml:"history_window"`
	MessagesPerChannel int           `yaml:"messages_per_channel"`
	MaxMessages        int           `yaml:"max_messages"`
	MaxChannels        int           `yaml:"max_channels"`
}

// GmailLimits bounds the Gmail query
type GmailLimits struct {
	Query      string `yaml:"query"`
	MaxResults int    `yaml:"max_results"`
}

// NotionLimits bounds the Notion search
type NotionLimits struct {
	MaxResults int `yaml:"max_results"`
}

// GenerationLimits bounds prompt size, output size and deduplication
type GenerationLimits struct {
	DedupThreshold     float64 `yaml:"dedup_threshold"`
	DedupPoolSize      int     `yaml:"dedup_pool_size"`
	PromptTitles       int     `yaml:"prompt_titles"`
	PromptItemsPerType int     `yaml:"prompt_items_per_type"`
	MinTodos           int     `yaml:"min_todos"`
	MaxTodos           int     `yaml:"max_todos"`
}

// Limits groups every tunable cap used by the ingestion pipeline
type Limits struct {
	Slack      SlackLimits      `yaml:"slack"`
	Gmail      GmailLimits      `yaml:"gmail"`
	Notion     NotionLimits     `yaml:"notion"`
	Generation GenerationLimits `yaml:"generation"`
}

// DefaultLimits returns the built-in caps
func DefaultLimits() Limits {
	return Limits{
		Slack: SlackLimits{
			MaxChannelPages:    10,
			ChannelPageSize:    200,
			HistoryWindow:      24 * time.Hour,
			MessagesPerChannel: 10,
			MaxMessages:        30,
			MaxChannels:        10,
		},
		Gmail: GmailLimits{
			Query:      "is:unread OR newer_than:3d",
			MaxResults: 20,
		},
		Notion: NotionLimits{
			MaxResults: 30,
		},
		Generation: GenerationLimits{
			DedupThreshold:     0.75,
			DedupPoolSize:      100,
			PromptTitles:       20,
			PromptItemsPerType: 15,
			MinTodos:           3,
			MaxTodos:           6,
		},
	}
}

// LoadLimits returns DefaultLimits overlaid with the YAML file at path.
// An empty path yields the defaults.
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	if path == "" {
		return limits, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("failed to read limits file: %w", err)
	}
	if err := yaml.Unmarshal(data, &limits); err != nil {
		return Limits{}, fmt.Errorf("failed to parse limits file: %w", err)
	}
	if err := limits.Validate(); err != nil {
		return Limits{}, fmt.Errorf("invalid limits file %s: %w", path, err)
	}
	return limits, nil
}

// Validate rejects caps that would disable or unbound the pipeline
func (l Limits) Validate() error {
	switch {
	case l.Slack.MaxChannelPages <= 0:
		return fmt.Errorf("slack.max_channel_pages must be positive")
	case l.Slack.MaxMessages <= 0:
		return fmt.Errorf("slack.max_messages must be positive")
	case l.Slack.MaxChannels <= 0:
		return fmt.Errorf("slack.max_channels must be positive")
	case l.Slack.ChannelPageSize <= 0 || l.Slack.ChannelPageSize > 1000:
		return fmt.Errorf("slack.channel_page_size must be between 1 and 1000")
	case l.Slack.MessagesPerChannel <= 0:
		return fmt.Errorf("slack.messages_per_channel must be positive")
	case l.Slack.HistoryWindow <= 0:
		return fmt.Errorf("slack.history_window must be positive")
	case l.Gmail.MaxResults <= 0:
		return fmt.Errorf("gmail.max_results must be positive")
	case l.Notion.MaxResults <= 0 || l.Notion.MaxResults > 100:
		return fmt.Errorf("notion.max_results must be between 1 and 100")
	case l.Generation.DedupThreshold <= 0 || l.Generation.DedupThreshold > 1:
		return fmt.Errorf("generation.dedup_threshold must be in (0, 1]")
	case l.Generation.DedupPoolSize <= 0:
		return fmt.Errorf("generation.dedup_pool_size must be positive")
	case l.Generation.PromptTitles <= 0:
		return fmt.Errorf("generation.prompt_titles must be positive")
	case l.Generation.PromptItemsPerType <= 0:
		return fmt.Errorf("generation.prompt_items_per_type must be positive")
	case l.Generation.MinTodos <= 0 || l.Generation.MaxTodos < l.Generation.MinTodos:
		return fmt.Errorf("generation.min_todos/max_todos out of range")
	}
	return nil
}

// YAML renders the limits in the same shape LoadLimits accepts
func (l Limits) YAML() (string, error) {
	out, err := yaml.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("failed to marshal limits: %w", err)
	}
	return string(out), nil
}
