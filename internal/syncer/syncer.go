// internal/syncer/syncer.go
package syncer

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"repo-browser/internal/apperrors"
	"repo-browser/internal/github"
	"repo-browser/internal/store"
)

const (
	// How long a rate-limited page fetch keeps retrying before the sweep
	// gives up on it.
	rateLimitRetryBudget = 2 * time.Minute

	// Budget for clearing the status flag after the sweep context is dead.
	flagClearTimeout = 10 * time.Second
)

// Remote is the slice of the GitHub client the syncer needs.
type Remote interface {
	ListPage(ctx context.Context, page, perPage int) (*github.Page, error)
}

// Result reports the outcome of one sync sweep.
type Result struct {
	Pages int
	Repos int
	Err   error
}

// Completed reports whether the sweep ran to the last page.
func (r Result) Completed() bool { return r.Err == nil }

// Syncer drives full pagination sweeps from the GitHub API into the local
// store, gated by the persisted sync state flag.
type Syncer struct {
	store    store.Store
	remote   Remote
	logger   *slog.Logger
	pageSize int
	timeout  time.Duration
}

// New creates a new Syncer instance.
func New(st store.Store, remote Remote, logger *slog.Logger, pageSize int, timeout time.Duration) *Syncer {
	return &Syncer{
		store:    st,
		remote:   remote,
		logger:   logger,
		pageSize: pageSize,
		timeout:  timeout,
	}
}

// Run starts a sweep on its own goroutine and returns a channel that yields
// the single Result. The sweep is detached from the caller's cancellation
// (a closed HTTP request must not kill it) but runs under the configured
// timeout. When another sweep already holds the flag, the result carries
// apperrors.ErrSyncInProgress and nothing is touched.
func (s *Syncer) Run(ctx context.Context) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		out <- s.sweep(ctx)
	}()
	return out
}

func (s *Syncer) sweep(parent context.Context) Result {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), s.timeout)
	defer cancel()

	prev, ok, err := s.store.BeginSync(ctx)
	if err != nil {
		return Result{Err: err}
	}
	if !ok {
		s.logger.Info("Sync already in progress, refusing to start another sweep")
		return Result{Err: apperrors.ErrSyncInProgress}
	}

	s.logger.Info("Starting sync sweep", "page_size", s.pageSize, "timeout", s.timeout.String())
	pages, repos, sweepErr := s.runSweep(ctx)

	// The flag must never stay Running, so it is cleared on a fresh context:
	// the deadline that may have killed the sweep must not also block the
	// clear. A sweep that committed nothing before failing drops back to the
	// prior state, so a store that has never synced is not mistaken for one
	// holding data.
	final := store.StateIdle
	if sweepErr != nil && pages == 0 {
		final = prev
	}
	clearCtx, clearCancel := context.WithTimeout(context.Background(), flagClearTimeout)
	defer clearCancel()
	if err := s.store.SetSyncState(clearCtx, final); err != nil {
		s.logger.Error("Failed to clear sync state flag", "error", err)
		if sweepErr == nil {
			sweepErr = err
		}
	}

	if sweepErr != nil {
		s.logger.Error("Sync sweep aborted", "pages_committed", pages, "repos_committed", repos, "error", sweepErr)
		return Result{Pages: pages, Repos: repos, Err: sweepErr}
	}
	s.logger.Info("Sync sweep completed", "pages", pages, "repos", repos)
	return Result{Pages: pages, Repos: repos}
}

// runSweep fetches and applies pages in increasing page-number order until
// the Link header carries no rel="next" entry. Each page commits in its own
// transaction; a mid-sweep failure keeps the pages already applied.
func (s *Syncer) runSweep(ctx context.Context) (pages, repos int, err error) {
	page := 1
	for {
		p, err := s.fetchPage(ctx, page)
		if err != nil {
			return pages, repos, err
		}

		if err := s.store.UpsertBatch(ctx, p.Repos); err != nil {
			return pages, repos, err
		}
		pages++
		repos += len(p.Repos)
		s.logger.Info("Synced page", "page", page, "rows", len(p.Repos))

		next, ok := github.ParseNextPage(p.LinkHeader)
		if !ok {
			return pages, repos, nil
		}
		page = next
	}
}

// fetchPage fetches one page, retrying with exponential backoff while the
// upstream is rate limiting. Any other error aborts immediately.
func (s *Syncer) fetchPage(ctx context.Context, page int) (*github.Page, error) {
	var result *github.Page

	op := func() error {
		p, err := s.remote.ListPage(ctx, page, s.pageSize)
		if err != nil {
			if apperrors.IsRateLimited(err) {
				s.logger.Warn("Rate limited by GitHub, backing off", "page", page, "error", err)
				return err
			}
			return backoff.Permanent(err)
		}
		result = p
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = rateLimitRetryBudget
	if err := backoff.Retry(op, backoff.WithContext(policy, ctx)); err != nil {
		return nil, err
	}
	return result, nil
}
