package chat

import (
	"sort"

	"github.com/kbforge/kbforge/pkg/models"
)

// Reconstruct rebuilds conversation threads from a flat batch of posts.
//
// roots identifies the threads to build; related is the union of the
// roots and every reply referencing one of them. Each related post is
// routed by its RootID into the matching bucket, and a root post is
// pinned to the head of its own bucket regardless of arrival order.
// Replies are ordered by creation time ascending with stable ties.
//
// Input messages are never mutated, and a bucket is returned for every
// requested root even when it stays empty.
func Reconstruct(roots, related []models.Message) map[string]models.Thread {
	buckets := make(map[string][]models.Message, len(roots))
	for _, r := range roots {
		buckets[r.ID] = nil
	}

	for _, m := range related {
		if !m.IsRoot() {
			if _, ok := buckets[m.RootID]; ok {
				buckets[m.RootID] = append(buckets[m.RootID], m)
			}
		} else if _, ok := buckets[m.ID]; ok {
			buckets[m.ID] = append([]models.Message{m}, buckets[m.ID]...)
		}
	}

	threads := make(map[string]models.Thread, len(buckets))
	for id, posts := range buckets {
		// The root stays first; only replies are sorted by time.
		replies := posts
		if len(posts) > 0 && posts[0].ID == id {
			replies = posts[1:]
		}
		sort.SliceStable(replies, func(i, j int) bool {
			return replies[i].CreateAt < replies[j].CreateAt
		})

		threads[id] = models.Thread{RootID: id, Posts: posts}
	}

	return threads
}
