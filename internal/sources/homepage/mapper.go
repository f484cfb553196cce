package homepage

import (
	"errors"
	"sort"
	"strings"

	"github.com/MrSnakeDoc/shelf/internal/domain"
)

// ErrNoBookmarks is returned when a file holds no usable entry.
var ErrNoBookmarks = errors.New("no valid bookmarks found in config")

// Skipped describes an entry that could not become a draft.
type Skipped struct {
	Category string `json:"category"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// MapDrafts converts config into drafts owned by owner, in file order.
// Entries without href, entries that fail validation and repeated URLs are
// reported in skipped instead.
func MapDrafts(owner string, config BookmarksConfig) (drafts []domain.Draft, skipped []Skipped, err error) {
	seen := make(map[string]bool)

	for _, category := range config {
		for _, categoryName := range sortedKeys(category) {
			for _, bookmarkMap := range category[categoryName] {
				for _, name := range sortedKeys(bookmarkMap) {
					entries := bookmarkMap[name]
					if len(entries) == 0 {
						continue
					}
					entry := entries[0]

					href := strings.TrimSpace(entry.Href)
					if href == "" {
						skipped = append(skipped, Skipped{categoryName, name, "no href"})
						continue
					}
					if seen[href] {
						skipped = append(skipped, Skipped{categoryName, name, "duplicate url"})
						continue
					}

					d, verr := domain.NewDraft(owner, name, href)
					if verr != nil {
						skipped = append(skipped, Skipped{categoryName, name, verr.Error()})
						continue
					}
					seen[href] = true
					drafts = append(drafts, d)
				}
			}
		}
	}

	if len(drafts) == 0 {
		return nil, skipped, ErrNoBookmarks
	}
	return drafts, skipped, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
