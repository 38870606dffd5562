package chat

import (
	"reflect"
	"testing"
)

func msg(sender, body string, ts float64) Message {
	return Message{Sender: sender, Body: body, Timestamp: ts}
}

func TestLoadHistoryReversesNewestFirst(t *testing.T) {
	tl := NewTimeline()

	// The store delivers newest-first.
	tl.LoadHistory([]Message{
		msg("bob", "three", 3),
		msg("alice", "two", 2),
		msg("alice", "one", 1),
	}, 100)

	got := tl.Messages()
	want := []Message{
		msg("alice", "one", 1),
		msg("alice", "two", 2),
		msg("bob", "three", 3),
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("timeline order wrong:\ngot  %+v\nwant %+v", got, want)
	}
	if tl.HighWater() != 3 {
		t.Fatalf("high-water = %v, want 3", tl.HighWater())
	}
}

func TestLoadHistoryEmptyUsesLocalClockForHighWater(t *testing.T) {
	tl := NewTimeline()
	tl.LoadHistory(nil, 42.5)

	if tl.Len() != 0 {
		t.Fatalf("expected empty timeline, got %d entries", tl.Len())
	}
	if tl.HighWater() != 42.5 {
		t.Fatalf("high-water = %v, want 42.5", tl.HighWater())
	}
}

func TestMergePollDeduplicatesRedeliveries(t *testing.T) {
	tl := NewTimeline()
	tl.LoadHistory([]Message{msg("alice", "hi", 1)}, 0)

	// The same message arrives twice across poll windows.
	added := tl.MergePoll([]Message{msg("bob", "hey", 2)})
	if len(added) != 1 {
		t.Fatalf("first merge added %d, want 1", len(added))
	}
	added = tl.MergePoll([]Message{msg("bob", "hey", 2)})
	if len(added) != 0 {
		t.Fatalf("redelivery added %d, want 0", len(added))
	}

	if tl.Len() != 2 {
		t.Fatalf("timeline has %d entries, want 2", tl.Len())
	}
}

func TestMergePollInterleavedDeliveryIsExactlyOnce(t *testing.T) {
	a := msg("alice", "a", 1)
	b := msg("bob", "b", 2)
	c := msg("alice", "c", 3)

	// Every interleaving of the same three messages across two channels
	// must produce the same timeline.
	batches := [][]Message{
		{b, a},
		{c, b},
		{c, b, a},
		{c},
	}

	tl := NewTimeline()
	for _, batch := range batches {
		tl.MergePoll(batch)
	}

	want := []Message{a, b, c}
	if got := tl.Messages(); !reflect.DeepEqual(got, want) {
		t.Fatalf("timeline:\ngot  %+v\nwant %+v", got, want)
	}
}

func TestHighWaterNeverRegresses(t *testing.T) {
	tl := NewTimeline()
	tl.MergePoll([]Message{msg("bob", "late", 10)})
	if tl.HighWater() != 10 {
		t.Fatalf("high-water = %v, want 10", tl.HighWater())
	}

	// An out-of-order older message is still merged but must not pull the
	// cursor back.
	tl.MergePoll([]Message{msg("alice", "early", 4)})
	if tl.HighWater() != 10 {
		t.Fatalf("high-water regressed to %v", tl.HighWater())
	}
}

func TestAppendSystemDoesNotAdvanceHighWater(t *testing.T) {
	tl := NewTimeline()
	tl.LoadHistory([]Message{msg("alice", "hi", 5)}, 0)

	notice := tl.AppendSystem("bob joined the room", 9999)
	if notice.Sender != SystemSender {
		t.Fatalf("notice sender = %q", notice.Sender)
	}
	if tl.HighWater() != 5 {
		t.Fatalf("system notice moved high-water to %v", tl.HighWater())
	}
	if tl.Len() != 2 {
		t.Fatalf("timeline has %d entries, want 2", tl.Len())
	}
}

func TestEqualTimestampsKeepArrivalOrder(t *testing.T) {
	tl := NewTimeline()
	first := msg("alice", "first", 7)
	second := msg("bob", "second", 7)

	tl.MergePoll([]Message{first})
	tl.MergePoll([]Message{second})

	got := tl.Messages()
	if got[0] != first || got[1] != second {
		t.Fatalf("tie-break broke arrival order: %+v", got)
	}
}
