package homepage

import (
	"context"
	"fmt"

	"github.com/MrSnakeDoc/shelf/internal/domain"
	"github.com/MrSnakeDoc/shelf/internal/logger"
)

// Result summarizes an import.
type Result struct {
	Created  int
	Existing int
	Skipped  []Skipped
}

// Importer inserts drafts through a gateway, skipping URLs the owner
// already has. Inserts go through the gateway so open sessions receive them
// as ordinary change events.
type Importer struct {
	gateway domain.Gateway
	logger  logger.Logger
}

// NewImporter creates an importer.
func NewImporter(gateway domain.Gateway, log logger.Logger) *Importer {
	if log == nil {
		log = logger.Nop()
	}
	return &Importer{gateway: gateway, logger: log}
}

// Import maps config for owner and inserts what is new. It stops at the first
// gateway failure; bookmarks created before it stay.
func (im *Importer) Import(ctx context.Context, owner string, config BookmarksConfig) (Result, error) {
	drafts, skipped, err := MapDrafts(owner, config)
	res := Result{Skipped: skipped}
	if err != nil {
		return res, err
	}

	current, err := im.gateway.List(ctx, owner)
	if err != nil {
		return res, fmt.Errorf("failed to list existing bookmarks: %w", err)
	}
	have := make(map[string]bool, len(current))
	for _, b := range current {
		have[b.Target] = true
	}

	// Insert oldest first so the file's first entry ends up on top.
	for i := len(drafts) - 1; i >= 0; i-- {
		d := drafts[i]
		if have[d.Target] {
			res.Existing++
			continue
		}
		if _, err := im.gateway.Insert(ctx, d); err != nil {
			return res, fmt.Errorf("failed to import %q: %w", d.Title, err)
		}
		res.Created++
	}

	im.logger.Info("homepage bookmarks imported",
		logger.String("owner", owner),
		logger.Int("created", res.Created),
		logger.Int("existing", res.Existing),
		logger.Int("skipped", len(res.Skipped)))
	return res, nil
}
