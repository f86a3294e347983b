package feed

import "time"

// MergeResult is what a sync should persist and how many of those items were
// never seen before.
type MergeResult struct {
	Items    []Item
	NewCount int
}

// Merge combines the currently stored items with a freshly fetched remote list.
//
// Every remote item is returned for upsert with FetchedAt set. An item whose id
// is stored as read keeps IsRead=true; every other remote item is unread,
// whatever the remote payload claims. NewCount is the number of distinct remote
// ids absent from existing. Stored items missing from remote are not returned,
// so an empty remote list produces nothing to write.
//
// Merge performs no I/O.
func Merge(existing, remote []Item, fetchedAt time.Time) MergeResult {
	if len(remote) == 0 {
		return MergeResult{Items: []Item{}}
	}

	known := make(map[string]bool, len(existing))
	for _, item := range existing {
		// true when read, false when stored but unread
		known[item.ID] = known[item.ID] || item.IsRead
	}

	items := make([]Item, 0, len(remote))
	index := make(map[string]int, len(remote))
	newCount := 0

	for _, item := range remote {
		read, stored := known[item.ID]
		item.IsRead = stored && read
		item.FetchedAt = fetchedAt

		// A feed repeating an id keeps the last occurrence, counted once
		if i, dup := index[item.ID]; dup {
			items[i] = item
			continue
		}
		if !stored {
			newCount++
		}
		index[item.ID] = len(items)
		items = append(items, item)
	}

	return MergeResult{Items: items, NewCount: newCount}
}
