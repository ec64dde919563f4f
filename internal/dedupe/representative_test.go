package dedupe

import (
	"testing"
	"time"
)

func ts(value string) *time.Time {
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return &parsed
}

func TestChooseRepresentative_PrefersURL(t *testing.T) {
	t.Parallel()

	members := []memberItem{
		{ItemID: 1, Title: "a much longer title with plenty of text", Body: "and a long body too", HasURL: false},
		{ItemID: 2, Title: "short", HasURL: true},
	}
	repID, ok := chooseRepresentative(members)
	if !ok || repID != 2 {
		t.Fatalf("expected member with url to win, got %d (ok=%v)", repID, ok)
	}
}

func TestChooseRepresentative_LongerContentWins(t *testing.T) {
	t.Parallel()

	members := []memberItem{
		{ItemID: 1, Title: "headline", Body: "short", HasURL: true},
		{ItemID: 2, Title: "headline", Body: "a substantially longer body text", HasURL: true},
	}
	repID, _ := chooseRepresentative(members)
	if repID != 2 {
		t.Fatalf("expected longer content to win, got %d", repID)
	}
}

func TestChooseRepresentative_EarlierPublishWins(t *testing.T) {
	t.Parallel()

	members := []memberItem{
		{ItemID: 1, Title: "same", Body: "same", HasURL: true, PublishedAt: ts("2026-08-20T10:00:00Z")},
		{ItemID: 2, Title: "same", Body: "same", HasURL: true, PublishedAt: ts("2026-08-20T08:00:00Z")},
		{ItemID: 3, Title: "same", Body: "same", HasURL: true},
	}
	repID, _ := chooseRepresentative(members)
	if repID != 2 {
		t.Fatalf("expected earliest published member to win, got %d", repID)
	}
}

func TestChooseRepresentative_LowestIDBreaksTies(t *testing.T) {
	t.Parallel()

	members := []memberItem{
		{ItemID: 9, Title: "same", Body: "same"},
		{ItemID: 4, Title: "same", Body: "same"},
		{ItemID: 7, Title: "same", Body: "same"},
	}
	repID, _ := chooseRepresentative(members)
	if repID != 4 {
		t.Fatalf("expected lowest item id, got %d", repID)
	}
}

func TestChooseRepresentative_DeterministicAcrossOrderings(t *testing.T) {
	t.Parallel()

	members := []memberItem{
		{ItemID: 1, Title: "aaa", Body: "bbbb", HasURL: true, PublishedAt: ts("2026-08-19T00:00:00Z")},
		{ItemID: 2, Title: "aaa", Body: "bbbb", HasURL: true, PublishedAt: ts("2026-08-19T00:00:00Z")},
		{ItemID: 3, Title: "aaa bbb ccc", Body: "", HasURL: false},
	}
	first, _ := chooseRepresentative(members)

	reversed := []memberItem{members[2], members[1], members[0]}
	second, _ := chooseRepresentative(reversed)
	if first != second {
		t.Fatalf("representative depends on input order: %d vs %d", first, second)
	}
	if first != 1 {
		t.Fatalf("unexpected representative: %d", first)
	}
}

func TestChooseRepresentative_Empty(t *testing.T) {
	t.Parallel()

	if _, ok := chooseRepresentative(nil); ok {
		t.Fatalf("expected no representative for empty member set")
	}
}
