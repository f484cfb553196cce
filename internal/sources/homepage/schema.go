package homepage

// BookmarkEntry is one bookmark in a Homepage bookmarks.yaml.
type BookmarkEntry struct {
	Icon        string `yaml:"icon"`
	Abbr        string `yaml:"abbr"`
	Href        string `yaml:"href"`
	Description string `yaml:"description"`
}

// BookmarkCategory maps a category name to its bookmarks. The YAML shape is
// - Category: [ - Name: [ {icon, abbr, href} ] ]
// where each bookmark name maps to a list holding a single entry.
type BookmarkCategory map[string][]map[string][]BookmarkEntry

// BookmarksConfig is the root of bookmarks.yaml.
type BookmarksConfig []BookmarkCategory
