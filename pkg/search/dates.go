package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// timestamp is a parsed date value together with the span it covers.
// A bare date covers the whole day; a bare year the whole year; an
// explicit date-time is a single point (From == To).
type timestamp struct {
	From time.Time
	To   time.Time
}

func (t timestamp) point() bool { return t.From.Equal(t.To) }

// Layouts carrying an explicit time of day. Matching one of these means
// the user typed a date-time, so no day expansion happens. This lexical
// split replaces probing the parser with a sentinel default time.
var dateTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// Date-only layouts, strict ones first, then the lenient human formats.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02.01.2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"January 2, 2006",
	"2 Jan 2006",
}

var yearRe = regexp.MustCompile(`^\d{4}$`)

// parseTimestamp converts a raw date token into a timestamp. A four
// digit year expands to [Jan 1 00:00:00, Dec 31 23:59:59.999999] and a
// bare date to [00:00:00, 23:59:59.999999] of that day.
func parseTimestamp(text string) (timestamp, error) {
	text = strings.TrimSpace(text)

	if yearRe.MatchString(text) {
		year, _ := strconv.Atoi(text)
		from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to := time.Date(year, time.December, 31, 23, 59, 59, 999999000, time.UTC)
		return timestamp{From: from, To: to}, nil
	}

	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			t = t.UTC()
			return timestamp{From: t, To: t}, nil
		}
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, text); err == nil {
			return dayRange(t.UTC()), nil
		}
	}

	return timestamp{}, queryErrorf("invalid date %q", text)
}

func dayRange(t time.Time) timestamp {
	from := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	to := time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, 999999000, time.UTC)
	return timestamp{From: from, To: to}
}

// parseRange converts a bracketed [from to to] token. Both ends expand
// to the start of the first day and the end of the last day.
func parseRange(r *Range) (timestamp, error) {
	from, err := parseTimestamp(r.From)
	if err != nil {
		return timestamp{}, err
	}
	to, err := parseTimestamp(r.To)
	if err != nil {
		return timestamp{}, err
	}
	if to.To.Before(from.From) {
		return timestamp{}, queryErrorf("invalid range: %q is after %q", r.From, r.To)
	}
	return timestamp{From: from.From, To: to.To}, nil
}

// dateQuery builds the predicate for a date field given the term
// operator and the parsed span.
func dateQuery(field, op string, ts timestamp) (Query, error) {
	if ts.point() {
		switch op {
		case ":", ":=":
			return Cond{Field: field, Op: OpEq, Value: ts.From}, nil
		case ":<":
			return Cond{Field: field, Op: OpLt, Value: ts.From}, nil
		case ":<=":
			return Cond{Field: field, Op: OpLte, Value: ts.From}, nil
		case ":>":
			return Cond{Field: field, Op: OpGt, Value: ts.From}, nil
		case ":>=":
			return Cond{Field: field, Op: OpGte, Value: ts.From}, nil
		}
		return nil, queryErrorf("unsupported operator %q for field %q", op, field)
	}

	switch op {
	case ":", ":=":
		return And{
			Cond{Field: field, Op: OpGte, Value: ts.From},
			Cond{Field: field, Op: OpLte, Value: ts.To},
		}, nil
	case ":<":
		return Cond{Field: field, Op: OpLt, Value: ts.From}, nil
	case ":<=":
		return Cond{Field: field, Op: OpLte, Value: ts.To}, nil
	case ":>":
		return Cond{Field: field, Op: OpGt, Value: ts.To}, nil
	case ":>=":
		return Cond{Field: field, Op: OpGte, Value: ts.From}, nil
	}
	return nil, queryErrorf("unsupported operator %q for field %q", op, field)
}
