package wiki

import (
	"github.com/kbforge/kbforge/pkg/models"
)

// Grouper classifies wiki items into top-level groups by ancestry and
// drops anything touching the excluded set.
type Grouper struct {
	excluded map[string]struct{}
}

// NewGrouper creates a grouper over the given excluded id set.
func NewGrouper(excluded map[string]struct{}) *Grouper {
	if excluded == nil {
		excluded = map[string]struct{}{}
	}
	return &Grouper{excluded: excluded}
}

// Ancestry resolves an item's full ancestor id chain: breadcrumb
// entries plus the explicit parent reference, deduplicated in order.
func Ancestry(detail models.WikiDetail) []string {
	seen := make(map[string]struct{}, len(detail.Breadcrumbs)+1)
	var chain []string

	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		chain = append(chain, id)
	}

	for _, crumb := range detail.Breadcrumbs {
		add(crumb.ID)
	}
	add(detail.ParentID)

	return chain
}

// IsExcluded reports whether the item itself, or any ancestor in its
// resolved chain, belongs to the excluded set. Exclusion of a node
// therefore silently removes its whole subtree.
func (g *Grouper) IsExcluded(id string, ancestry []string) bool {
	if _, ok := g.excluded[id]; ok {
		return true
	}
	for _, ancestor := range ancestry {
		if _, ok := g.excluded[ancestor]; ok {
			return true
		}
	}
	return false
}

// Group buckets items by the id of the second breadcrumb entry, one
// level below the space root. Items with fewer than two breadcrumb
// entries are unrouted and omitted; excluded items are dropped before
// any bucket assignment. Bucket membership preserves input order.
func (g *Grouper) Group(items []models.WikiItem, details map[string]models.WikiDetail) map[string][]string {
	groups := make(map[string][]string)

	for _, item := range items {
		detail, ok := details[item.ID]
		if !ok {
			continue
		}
		if g.IsExcluded(item.ID, Ancestry(detail)) {
			continue
		}
		if len(detail.Breadcrumbs) < 2 {
			continue
		}

		key := detail.Breadcrumbs[1].ID
		groups[key] = append(groups[key], item.ID)
	}

	return groups
}
