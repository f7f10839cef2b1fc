// Package temporal resolves natural-language date expressions
// ("last Tuesday", "in March 2024") into the (resolved_date,
// precision, original_expression) triples that feed
// graphstore.AddTemporalFact (spec.md §3, §4.8 supplement).
package temporal

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/model"
)

// Resolution is one resolved date expression.
type Resolution struct {
	OriginalExpression string
	ResolvedDate       string // ISO 8601, precision-dependent
	Precision          model.DatePrecision
	Confidence         float64
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday,
	"friday": time.Friday, "saturday": time.Saturday,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June, "july": time.July,
	"august": time.August, "september": time.September, "october": time.October,
	"november": time.November, "december": time.December,
}

var (
	relativeDayPattern     = regexp.MustCompile(`(?i)\b(today|yesterday|tomorrow)\b`)
	lastNextWeekdayPattern = regexp.MustCompile(`(?i)\b(last|next|this)\s+(sunday|monday|tuesday|wednesday|thursday|friday|saturday)\b`)
	monthYearPattern       = regexp.MustCompile(`(?i)\b(?:in\s+)?(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{4})\b`)
	fullDatePattern        = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december)\s+(\d{1,2}),?\s+(\d{4})\b`)
	isoDatePattern         = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	yearOnlyPattern        = regexp.MustCompile(`(?i)\bin\s+(\d{4})\b`)
	daysAgoPattern         = regexp.MustCompile(`(?i)\b(\d+)\s+days?\s+ago\b`)
	weeksAgoPattern        = regexp.MustCompile(`(?i)\b(\d+)\s+weeks?\s+ago\b`)
)

// Resolve scans text for date expressions, resolving each relative to
// now. The same text may yield multiple resolutions.
func Resolve(text string, now time.Time) []Resolution {
	var out []Resolution

	if m := relativeDayPattern.FindStringSubmatch(text); m != nil {
		var d time.Time
		switch strings.ToLower(m[1]) {
		case "today":
			d = now
		case "yesterday":
			d = now.AddDate(0, 0, -1)
		case "tomorrow":
			d = now.AddDate(0, 0, 1)
		}
		out = append(out, Resolution{
			OriginalExpression: m[0], ResolvedDate: d.Format("2006-01-02"),
			Precision: model.PrecisionDay, Confidence: 1.0,
		})
	}

	if m := lastNextWeekdayPattern.FindStringSubmatch(text); m != nil {
		d := resolveRelativeWeekday(now, strings.ToLower(m[1]), weekdays[strings.ToLower(m[2])])
		out = append(out, Resolution{
			OriginalExpression: m[0], ResolvedDate: d.Format("2006-01-02"),
			Precision: model.PrecisionDay, Confidence: 0.9,
		})
	}

	if m := fullDatePattern.FindStringSubmatch(text); m != nil {
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		d := time.Date(year, months[strings.ToLower(m[1])], day, 0, 0, 0, 0, time.UTC)
		out = append(out, Resolution{
			OriginalExpression: m[0], ResolvedDate: d.Format("2006-01-02"),
			Precision: model.PrecisionDay, Confidence: 1.0,
		})
	} else if m := monthYearPattern.FindStringSubmatch(text); m != nil {
		year, _ := strconv.Atoi(m[2])
		month := months[strings.ToLower(m[1])]
		out = append(out, Resolution{
			OriginalExpression: m[0],
			ResolvedDate:       fmt.Sprintf("%04d-%02d", year, int(month)),
			Precision:          model.PrecisionMonth, Confidence: 0.95,
		})
	}

	if m := isoDatePattern.FindStringSubmatch(text); m != nil {
		out = append(out, Resolution{
			OriginalExpression: m[0], ResolvedDate: m[0],
			Precision: model.PrecisionDay, Confidence: 1.0,
		})
	}

	if m := yearOnlyPattern.FindStringSubmatch(text); m != nil && !monthYearPattern.MatchString(text) {
		out = append(out, Resolution{
			OriginalExpression: m[0], ResolvedDate: m[1],
			Precision: model.PrecisionYear, Confidence: 0.8,
		})
	}

	if m := daysAgoPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		d := now.AddDate(0, 0, -n)
		out = append(out, Resolution{
			OriginalExpression: m[0], ResolvedDate: d.Format("2006-01-02"),
			Precision: model.PrecisionDay, Confidence: 0.95,
		})
	}

	if m := weeksAgoPattern.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		d := now.AddDate(0, 0, -7*n)
		out = append(out, Resolution{
			OriginalExpression: m[0], ResolvedDate: d.Format("2006-01-02"),
			Precision: model.PrecisionDay, Confidence: 0.85,
		})
	}

	return out
}

// resolveRelativeWeekday finds the last/next/this occurrence of
// weekday relative to now.
func resolveRelativeWeekday(now time.Time, modifier string, weekday time.Weekday) time.Time {
	delta := int(weekday) - int(now.Weekday())

	switch modifier {
	case "last":
		if delta >= 0 {
			delta -= 7
		}
	case "next":
		if delta <= 0 {
			delta += 7
		}
	case "this":
		// nearest occurrence, possibly today
	}

	return now.AddDate(0, 0, delta)
}

// ToFact converts a resolution into a model.TemporalFact for the
// given memory and subject.
func ToFact(memoryID, subject string, relation model.TemporalRelation, r Resolution) model.TemporalFact {
	f := model.TemporalFact{
		MemoryID: memoryID, Subject: subject, Relation: relation,
		ResolvedDate: r.ResolvedDate, OriginalExpression: r.OriginalExpression,
		Precision: r.Precision, Confidence: r.Confidence,
	}
	f.Clamp()
	return f
}
