package view

import (
	"testing"
	"time"

	"github.com/pe2pia/chatsync/internal/status"
	"github.com/pe2pia/chatsync/internal/store"
)

var now = time.Date(2025, time.March, 20, 15, 0, 0, 0, time.UTC) // a Thursday

func at(t time.Time) store.Message {
	return store.Message{ID: "m", ConversationID: "c1", CreatedAt: t, Status: status.Sent}
}

func TestProjectSortsAscending(t *testing.T) {
	a := at(now.Add(-10 * time.Minute))
	a.ID = "a"
	b := at(now.Add(-50 * time.Minute))
	b.ID = "b"

	entries := Project([]store.Message{a, b}, now)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Message.ID != "b" || entries[1].Message.ID != "a" {
		t.Errorf("order = [%s %s], want [b a]", entries[0].Message.ID, entries[1].Message.ID)
	}
}

func TestProjectSortIsStable(t *testing.T) {
	ts := now.Add(-time.Hour)
	first := at(ts)
	first.ID = "first"
	second := at(ts)
	second.ID = "second"

	entries := Project([]store.Message{first, second}, now)
	if entries[0].Message.ID != "first" || entries[1].Message.ID != "second" {
		t.Errorf("equal timestamps reordered: [%s %s]", entries[0].Message.ID, entries[1].Message.ID)
	}
}

func TestProjectSameDayOneHeader(t *testing.T) {
	m1 := at(time.Date(2025, time.March, 20, 9, 0, 0, 0, time.UTC))
	m2 := at(time.Date(2025, time.March, 20, 10, 0, 0, 0, time.UTC))

	entries := Project([]store.Message{m1, m2}, now)
	if !entries[0].ShowDateHeader {
		t.Error("first message must always show its date header")
	}
	if entries[1].ShowDateHeader {
		t.Error("second message of the same day must not repeat the header")
	}
	if entries[0].DateLabel != "Today" {
		t.Errorf("label = %q, want Today", entries[0].DateLabel)
	}
}

func TestProjectTwoDaysTwoHeaders(t *testing.T) {
	m1 := at(time.Date(2025, time.March, 19, 23, 0, 0, 0, time.UTC))
	m2 := at(time.Date(2025, time.March, 20, 0, 30, 0, 0, time.UTC))

	entries := Project([]store.Message{m1, m2}, now)
	if !entries[0].ShowDateHeader || !entries[1].ShowDateHeader {
		t.Error("messages on different days must both show headers")
	}
	if entries[0].DateLabel != "Yesterday" || entries[1].DateLabel != "Today" {
		t.Errorf("labels = [%q %q], want [Yesterday Today]", entries[0].DateLabel, entries[1].DateLabel)
	}
}

func TestDateLabelRanges(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want string
	}{
		{"same day", now.Add(-2 * time.Hour), "Today"},
		{"future clamps to today", now.Add(3 * time.Hour), "Today"},
		{"one day back", now.AddDate(0, 0, -1), "Yesterday"},
		{"two days back", now.AddDate(0, 0, -2), "Tuesday"},
		{"six days back", now.AddDate(0, 0, -6), "Friday"},
		{"seven days back", now.AddDate(0, 0, -7), "Mar 13, 2025"},
		{"far back", time.Date(2024, time.December, 31, 12, 0, 0, 0, time.UTC), "Dec 31, 2024"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DateLabel(tt.at, now); got != tt.want {
				t.Errorf("DateLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestProjectEmpty(t *testing.T) {
	if entries := Project(nil, now); len(entries) != 0 {
		t.Errorf("Project(nil) = %d entries, want 0", len(entries))
	}
}

func TestProjectDoesNotMutateInput(t *testing.T) {
	a := at(now.Add(-10 * time.Minute))
	a.ID = "a"
	b := at(now.Add(-50 * time.Minute))
	b.ID = "b"
	input := []store.Message{a, b}

	_ = Project(input, now)
	if input[0].ID != "a" || input[1].ID != "b" {
		t.Error("Project reordered its input slice")
	}
}
