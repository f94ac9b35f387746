// internal/api/totals.go
package api

import (
	"context"
	"sync"
	"time"

	"repo-browser/internal/github"
)

// totalsCache holds the total-count metadata for the live-proxy path. The
// counts require an extra round trip to GitHub (fetching the last page), so
// they are computed once and reused until explicitly invalidated.
type totalsCache struct {
	mu         sync.Mutex
	computed   bool
	computedAt time.Time
	totalItems int
	totalPages int
}

func (c *totalsCache) get() (items, pages int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalItems, c.totalPages, c.computed
}

func (c *totalsCache) set(items, pages int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computed = true
	c.computedAt = time.Now()
	c.totalItems = items
	c.totalPages = pages
}

// Invalidate drops the cached totals so the next live request recomputes
// them. Called after a completed sync sweep, when the upstream counts most
// likely moved.
func (c *totalsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.computed = false
	c.computedAt = time.Time{}
	c.totalItems = 0
	c.totalPages = 0
}

// InvalidateTotals drops the cached live-path totals.
func (h *Handler) InvalidateTotals() {
	h.totals.Invalidate()
}

// liveTotals returns the total item and page counts for the live-proxy path.
// On the first call it derives the last page number from the Link header and
// fetches that page to count its items; later calls serve from memory. A
// listing that fits on one page is counted directly. When the counts cannot
// be derived (mid-listing request with no rel="last" entry, or the extra
// fetch fails) zeros are returned and nothing is cached.
func (h *Handler) liveTotals(ctx context.Context, page, perPage int, p *github.Page) (int, int) {
	if items, pages, ok := h.totals.get(); ok {
		return items, pages
	}

	lastPage, ok := github.ParseLastPage(p.LinkHeader)
	if !ok {
		if _, hasNext := github.ParseNextPage(p.LinkHeader); !hasNext && page == 1 {
			// The whole listing fits on this page.
			items := len(p.Repos)
			pages := 0
			if items > 0 {
				pages = 1
			}
			h.totals.set(items, pages)
			return items, pages
		}
		return 0, 0
	}

	lp, err := h.remote.ListPage(ctx, lastPage, perPage)
	if err != nil {
		h.logger.Error("Failed to fetch last page for total counts", "last_page", lastPage, "error", err)
		return 0, 0
	}

	items := perPage*(lastPage-1) + len(lp.Repos)
	h.totals.set(items, lastPage)
	return items, lastPage
}
