// Package prompt assembles the todo-extraction prompt from collected source items.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/benvon/todo-digest/internal/models"
	"github.com/benvon/todo-digest/internal/services/sources"
	"github.com/benvon/todo-digest/internal/services/sources/duedate"
)

const maxContentLength = 200

// Balance instructions, chosen by how many source types have items
const (
	BalanceAllSources = "Items come from Slack, email and Notion. Include at least one todo from each of these three sources, " +
		"and never take more than half of the todos from a single source."
	BalanceTwoSources = "Items come from two sources. Include at least one todo from each of them, " +
		"and never take more than half of the todos from a single source."
	BalanceSingleSource = "Items come from a single source. Pick only its most actionable items."
)

// Options bounds the prompt
type Options struct {
	MaxTitles         int
	MaxItemsPerSource int
	MinTodos          int
	MaxTodos          int
}

// DefaultOptions mirrors config.DefaultLimits().Generation
func DefaultOptions() Options {
	return Options{MaxTitles: 20, MaxItemsPerSource: 15, MinTodos: 3, MaxTodos: 6}
}

// Input is everything the prompt is built from. Now carries the user's civil time zone.
type Input struct {
	Now            time.Time
	ExistingTitles []string
	Slack          []models.SourceItem
	Gmail          []models.SourceItem
	Notion         []models.SourceItem
}

type section struct {
	label string
	items []models.SourceItem
}

// Build renders the prompt. It is a pure function of its arguments.
func Build(in Input, opts Options) string {
	var b strings.Builder

	b.WriteString("You are an assistant that turns a user's recent Slack messages, emails and Notion pages into a short todo list.\n\n")

	b.WriteString("## Current time\n")
	fmt.Fprintf(&b, "- Date: %s (%s)\n", in.Now.Format("2006-01-02"), in.Now.Weekday())
	fmt.Fprintf(&b, "- Hour: %02d:00 (%s)\n", in.Now.Hour(), in.Now.Location())
	b.WriteString("- Interpret \"today\" and \"tomorrow\" relative to this date.\n\n")

	titles := capTitles(in.ExistingTitles, opts.MaxTitles)
	b.WriteString("## Existing todos (do not create these again)\n")
	if len(titles) == 0 {
		b.WriteString("(none)\n")
	}
	for _, t := range titles {
		fmt.Fprintf(&b, "- %s\n", t)
	}
	b.WriteString("\n")

	sections := []section{
		{"Slack messages", in.Slack},
		{"Emails", in.Gmail},
		{"Notion pages", in.Notion},
	}
	present := 0
	for _, s := range sections {
		if len(s.items) == 0 {
			continue
		}
		present++
		fmt.Fprintf(&b, "## %s\n", s.label)
		for i, item := range capItems(s.items, opts.MaxItemsPerSource) {
			writeItem(&b, i+1, item, in.Now.Location())
		}
	}

	b.WriteString("## What counts as a todo\n")
	b.WriteString("- Only explicit requests to the user, meetings to attend or prepare, imminent deadlines, messages that need a reply, and documents to review.\n")
	b.WriteString("- Exclude newsletters, advertisements, threads that are already resolved, conversations between other people, and anything close to an existing todo.\n\n")

	b.WriteString("## Balance\n")
	b.WriteString(BalanceInstruction(present))
	b.WriteString("\n\n")

	b.WriteString("## Output format\n")
	fmt.Fprintf(&b, "- Respond with a JSON array only, containing %d to %d objects. No commentary, no code fences.\n", opts.MinTodos, opts.MaxTodos)
	b.WriteString("- Each object has: title (at most 40 characters), description, dueDate (free text), priority (\"high\", \"medium\" or \"low\"), emoji, tag, tagColor, sources.\n")
	b.WriteString("- sources is an array of {\"type\", \"id\", \"link\", \"title\"}. Copy id and link exactly from the items above.\n")
	b.WriteString("- Never invent an id or link. Skip any todo you cannot tie to a real item.\n")

	return b.String()
}

// BalanceInstruction returns the balance rule for the number of source types that have items
func BalanceInstruction(presentSources int) string {
	switch {
	case presentSources >= 3:
		return BalanceAllSources
	case presentSources == 2:
		return BalanceTwoSources
	default:
		return BalanceSingleSource
	}
}

// writeItem renders one item as a fixed-field block. The link is always the last line.
func writeItem(b *strings.Builder, index int, item models.SourceItem, loc *time.Location) {
	fmt.Fprintf(b, "[%d]\n", index)
	fmt.Fprintf(b, "id: %s\n", item.ID)
	fmt.Fprintf(b, "type: %s\n", item.Type)
	fmt.Fprintf(b, "title: %s\n", oneLine(item.Title))
	if content := oneLine(item.Content); content != "" && content != oneLine(item.Title) {
		if len([]rune(content)) > maxContentLength {
			content = sources.Truncate(content, maxContentLength) + "..."
		}
		fmt.Fprintf(b, "content: %s\n", content)
	}
	if item.Author != "" {
		fmt.Fprintf(b, "author: %s\n", item.Author)
	}
	if item.Channel != "" {
		fmt.Fprintf(b, "channel: #%s\n", item.Channel)
	}
	if item.Timestamp != nil {
		fmt.Fprintf(b, "timestamp: %s\n", item.Timestamp.In(loc).Format("2006-01-02 15:04"))
	}
	if item.DueDate != nil {
		due := item.DueDate.In(loc)
		fmt.Fprintf(b, "due: %s (%s)\n", due.Format("2006-01-02"), due.Weekday())
	} else if hint := item.MetadataString("dueHint"); hint != "" {
		fmt.Fprintf(b, "due: %s\n", hintText(hint))
	}
	if status := item.MetadataString("status"); status != "" {
		fmt.Fprintf(b, "status: %s\n", status)
	}
	fmt.Fprintf(b, "link: %s\n\n", item.Link)
}

func hintText(hint string) string {
	switch hint {
	case duedate.HintThisWeek:
		return "this week"
	case duedate.HintNextWeek:
		return "next week"
	default:
		return hint
	}
}

func capTitles(titles []string, n int) []string {
	if n > 0 && len(titles) > n {
		return titles[:n]
	}
	return titles
}

func capItems(items []models.SourceItem, n int) []models.SourceItem {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
