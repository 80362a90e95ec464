package view

import (
	"sort"
	"time"

	"github.com/pe2pia/chatsync/internal/store"
)

// Entry is one row of the rendered timeline: a message plus its date
// header, shown only when the day changes.
type Entry struct {
	Message        store.Message
	ShowDateHeader bool
	DateLabel      string
}

// Project derives the renderable timeline from a message snapshot: a stable
// chronological sort with day-granularity headers. It is a pure function
// and must be recomputed whenever the message store changes.
func Project(messages []store.Message, now time.Time) []Entry {
	msgs := make([]store.Message, len(messages))
	copy(msgs, messages)
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})

	entries := make([]Entry, 0, len(msgs))
	prev := ""
	for _, m := range msgs {
		label := DateLabel(m.CreatedAt, now)
		entries = append(entries, Entry{
			Message:        m,
			ShowDateHeader: label != prev,
			DateLabel:      label,
		})
		prev = label
	}
	return entries
}

// DateLabel renders a day-granularity label for a timestamp: "Today",
// "Yesterday", the weekday name inside the last week, the date beyond it.
func DateLabel(t, now time.Time) string {
	switch days := daysBetween(t, now); {
	case days <= 0:
		return "Today"
	case days == 1:
		return "Yesterday"
	case days < 7:
		return t.Weekday().String()
	default:
		return t.Format("Jan 2, 2006")
	}
}

// daysBetween counts whole calendar days from t up to now.
func daysBetween(t, now time.Time) int {
	a := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	b := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return int(b.Sub(a).Hours() / 24)
}
