package dedupe

import (
	"sort"
	"time"
)

// memberItem carries the fields representative selection reads.
type memberItem struct {
	ItemID      int64
	Title       string
	Body        string
	HasURL      bool
	PublishedAt *time.Time
}

// chooseRepresentative picks a cluster's representative deterministically:
// prefer members with a canonical URL, then the longest title+body, then the
// earliest published_at (missing timestamps sort last), then the lowest item
// id. The same member set always yields the same pick.
func chooseRepresentative(members []memberItem) (int64, bool) {
	if len(members) == 0 {
		return 0, false
	}

	ranked := make([]memberItem, len(members))
	copy(ranked, members)
	sort.Slice(ranked, func(i, j int) bool {
		return memberLess(ranked[i], ranked[j])
	})
	return ranked[0].ItemID, true
}

func memberLess(a, b memberItem) bool {
	if a.HasURL != b.HasURL {
		return a.HasURL
	}
	aLen := len(a.Title) + len(a.Body)
	bLen := len(b.Title) + len(b.Body)
	if aLen != bLen {
		return aLen > bLen
	}
	switch {
	case a.PublishedAt != nil && b.PublishedAt == nil:
		return true
	case a.PublishedAt == nil && b.PublishedAt != nil:
		return false
	case a.PublishedAt != nil && b.PublishedAt != nil && !a.PublishedAt.Equal(*b.PublishedAt):
		return a.PublishedAt.Before(*b.PublishedAt)
	}
	return a.ItemID < b.ItemID
}
