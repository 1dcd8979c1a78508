// Package duedate infers due dates from free text with an ordered list of pattern rules.
package duedate

import (
	"regexp"
	"strconv"
	"time"
)

// Hints recorded when a relative week is mentioned without a resolvable date
const (
	HintThisWeek = "this_week"
	HintNextWeek = "next_week"
)

// Rule maps a text pattern to a date. Resolve returns false when the match is not a real date.
// A rule with a Hint and no Resolve only tags the item.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	Resolve func(match []string, now time.Time) (time.Time, bool)
	Hint    string
}

// Result is the outcome of a scan. Date is nil when only a hint matched.
type Result struct {
	Rule string
	Date *time.Time
	Hint string
}

var (
	monthDayKorean = regexp.MustCompile(`(\d{1,2})월\s*(\d{1,2})일`)
	isoDate        = regexp.MustCompile(`(\d{4})[-/.](\d{1,2})[-/.](\d{1,2})`)
	monthDay       = regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})\b`)
	today          = regexp.MustCompile(`오늘|금일`)
	tomorrow       = regexp.MustCompile(`내일`)
	dayAfter       = regexp.MustCompile(`모레`)
	thisWeek       = regexp.MustCompile(`이번\s*주`)
	nextWeek       = regexp.MustCompile(`다음\s*주`)
)

// AbsoluteRules are the calendar-date rules, in precedence order
func AbsoluteRules() []Rule {
	return []Rule{
		{Name: "month_day_korean", Pattern: monthDayKorean, Resolve: resolveMonthDay(1, 2)},
		{Name: "iso_date", Pattern: isoDate, Resolve: resolveYearMonthDay},
		{Name: "month_day", Pattern: monthDay, Resolve: resolveMonthDay(1, 2)},
	}
}

// Rules is the full rule list used for chat text, in precedence order
func Rules() []Rule {
	return append(AbsoluteRules(),
		Rule{Name: "today", Pattern: today, Resolve: offsetDays(0)},
		Rule{Name: "tomorrow", Pattern: tomorrow, Resolve: offsetDays(1)},
		Rule{Name: "day_after_tomorrow", Pattern: dayAfter, Resolve: offsetDays(2)},
		Rule{Name: "this_week", Pattern: thisWeek, Hint: HintThisWeek},
		Rule{Name: "next_week", Pattern: nextWeek, Hint: HintNextWeek},
	)
}

// Scan applies rules in order and returns the first match. A pattern match whose
// resolver rejects the date (e.g. "13/45") does not stop the scan.
func Scan(text string, now time.Time, rules []Rule) (Result, bool) {
	for _, rule := range rules {
		match := rule.Pattern.FindStringSubmatch(text)
		if match == nil {
			continue
		}
		if rule.Resolve == nil {
			return Result{Rule: rule.Name, Hint: rule.Hint}, true
		}
		date, ok := rule.Resolve(match, now)
		if !ok {
			continue
		}
		return Result{Rule: rule.Name, Date: &date}, true
	}
	return Result{}, false
}

// StartOfDay returns local midnight of t's day in t's location
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// IsPast reports whether due falls strictly before the start of now's local day
func IsPast(due *time.Time, now time.Time) bool {
	if due == nil {
		return false
	}
	return due.Before(StartOfDay(now))
}

// Month/day expressions carry no year; they are placed in the current year.
func resolveMonthDay(monthIdx, dayIdx int) func([]string, time.Time) (time.Time, bool) {
	return func(match []string, now time.Time) (time.Time, bool) {
		month, _ := strconv.Atoi(match[monthIdx])
		day, _ := strconv.Atoi(match[dayIdx])
		return civilDate(now.Year(), month, day, now.Location())
	}
}

func resolveYearMonthDay(match []string, now time.Time) (time.Time, bool) {
	year, _ := strconv.Atoi(match[1])
	month, _ := strconv.Atoi(match[2])
	day, _ := strconv.Atoi(match[3])
	return civilDate(year, month, day, now.Location())
}

func offsetDays(n int) func([]string, time.Time) (time.Time, bool) {
	return func(_ []string, now time.Time) (time.Time, bool) {
		return StartOfDay(now).AddDate(0, 0, n), true
	}
}

// civilDate rejects dates time.Date would normalize, like February 30
func civilDate(year, month, day int, loc *time.Location) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
	if t.Month() != time.Month(month) || t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}
