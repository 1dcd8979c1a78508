package models

import "time"

// SourceType identifies which external tool a SourceItem came from
type SourceType string

const (
	SourceTypeSlack  SourceType = "slack"
	SourceTypeEmail  SourceType = "email"
	SourceTypeNotion SourceType = "notion"
)

// Provider identifies a connected third-party account
type Provider string

const (
	ProviderSlack  Provider = "slack"
	ProviderGmail  Provider = "gmail"
	ProviderNotion Provider = "notion"
)

// SourceType returns the item type produced by the provider's fetcher
func (p Provider) SourceType() SourceType {
	switch p {
	case ProviderSlack:
		return SourceTypeSlack
	case ProviderGmail:
		return SourceTypeEmail
	case ProviderNotion:
		return SourceTypeNotion
	default:
		return SourceType(p)
	}
}

// SourceItem is one normalized unit of external data (message, email, page)
// eligible for todo generation. It only lives for the duration of one run.
type SourceItem struct {
	Type      SourceType     `json:"type"`
	ID        string         `json:"id"`
	Link      string         `json:"link"`
	Title     string         `json:"title"`
	Content   string         `json:"content,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	Author    string         `json:"author,omitempty"`
	Timestamp *time.Time     `json:"timestamp,omitempty"`
	DueDate   *time.Time     `json:"due_date,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// MetadataString returns a string metadata value, or "" if absent
func (s SourceItem) MetadataString(key string) string {
	if s.Metadata == nil {
		return ""
	}
	v, _ := s.Metadata[key].(string)
	return v
}
