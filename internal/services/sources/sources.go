// Package sources defines the contract shared by the provider fetchers that feed todo generation.
package sources

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/benvon/todo-digest/internal/models"
)

// Credentials is a usable bearer token (OAuth access token or integration key) for one provider
type Credentials struct {
	AccessToken string
	TeamID      string
}

// Scope restricts a fetch to user-selected channels or pages. An empty AllowList means everything.
type Scope struct {
	AllowList []string
}

// Fetcher pulls recent items from one provider and normalizes them into SourceItems.
// Past-due and completed items never leave a Fetcher. Any returned error means
// "zero items from this provider" to the caller.
type Fetcher interface {
	Provider() models.Provider
	Fetch(ctx context.Context, creds Credentials, scope Scope) ([]models.SourceItem, error)
}

// ExpectedError marks a per-resource provider failure that is part of normal operation
// (for example a channel the bot was never invited to) and is skipped without logging.
type ExpectedError struct {
	Provider models.Provider
	Code     string
	Resource string
}

func (e *ExpectedError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Code, e.Resource)
}

// IsExpected reports whether err (or any error in its chain) is an ExpectedError
func IsExpected(err error) bool {
	var expected *ExpectedError
	return errors.As(err, &expected)
}

type locationKey struct{}

// WithLocation sets the civil time zone fetchers use to decide what is past due
func WithLocation(ctx context.Context, loc *time.Location) context.Context {
	if loc == nil {
		return ctx
	}
	return context.WithValue(ctx, locationKey{}, loc)
}

// LocalNow returns now() in the time zone set by WithLocation, if any
func LocalNow(ctx context.Context, now func() time.Time) time.Time {
	t := now()
	if loc, ok := ctx.Value(locationKey{}).(*time.Location); ok {
		return t.In(loc)
	}
	return t
}

// Truncate cuts s to at most n runes
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// ContainsAny reports whether s contains any of the given lowercase needles, case-insensitively
func ContainsAny(s string, needles ...string) bool {
	lower := strings.ToLower(s)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}
