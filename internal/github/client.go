// internal/github/client.go
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"github.com/gregjones/httpcache"

	"repo-browser/internal/apperrors"
	"repo-browser/internal/model"
)

// MaxPageSize is the largest per_page value the GitHub API accepts.
const MaxPageSize = 100

// Page is one page of an organization's repository listing. LinkHeader is the
// raw pagination Link header, to be fed to ParseNextPage/ParseLastPage.
type Page struct {
	Repos      []model.Repository
	LinkHeader string
}

// Client is a wrapper around the go-github client for listing the public
// repositories of a single organization.
type Client struct {
	gh     *github.Client
	org    string
	sort   string
	logger *slog.Logger
}

// NewClient creates and configures a new Client instance. Requests are
// unauthenticated; the transport stacks an in-memory ETag cache (conditional
// requests do not count against the rate limit) under the secondary
// rate-limit middleware, which sleeps through abuse-detection pauses.
func NewClient(org, sort string, logger *slog.Logger) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	httpClient := github_ratelimit.NewClient(cacheTransport)

	return &Client{
		gh:     github.NewClient(httpClient),
		org:    org,
		sort:   sort,
		logger: logger,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and
// base URL. This constructor is intended for testing, allowing injection of
// an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, org, sort string, logger *slog.Logger) (*Client, error) {
	ghc := github.NewClient(httpClient)
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	ghc.BaseURL = u

	return &Client{
		gh:     ghc,
		org:    org,
		sort:   sort,
		logger: logger,
	}, nil
}

// ListPage fetches one page of the organization's public repositories and
// translates the entries to our internal model. The raw Link header is
// returned alongside so the caller can follow pagination.
func (c *Client) ListPage(ctx context.Context, page, perPage int) (*Page, error) {
	if page < 1 {
		return nil, fmt.Errorf("page must be >= 1, got %d", page)
	}
	if perPage < 1 || perPage > MaxPageSize {
		return nil, fmt.Errorf("perPage must be between 1 and %d, got %d", MaxPageSize, perPage)
	}

	c.logger.Debug("Fetching repository page", "org", c.org, "page", page, "per_page", perPage)

	opts := &github.RepositoryListByOrgOptions{
		Type: "public",
		Sort: c.sort,
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: perPage,
		},
	}

	repos, resp, err := c.gh.Repositories.ListByOrg(ctx, c.org, opts)
	if err != nil {
		return nil, asRemoteError(err)
	}

	records := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		records = append(records, toInternalRepository(r))
	}

	return &Page{
		Repos:      records,
		LinkHeader: resp.Header.Get("Link"),
	}, nil
}

// asRemoteError wraps go-github errors into the application's error taxonomy,
// flagging rate limits so the sync loop can back off instead of aborting.
func asRemoteError(err error) *apperrors.RemoteError {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &apperrors.RemoteError{
			StatusCode:  statusCode(rateErr.Response),
			RateLimited: true,
			Err:         err,
		}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &apperrors.RemoteError{
			StatusCode:  statusCode(abuseErr.Response),
			RateLimited: true,
			Err:         err,
		}
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		code := statusCode(respErr.Response)
		return &apperrors.RemoteError{
			StatusCode:  code,
			RateLimited: code == http.StatusForbidden || code == http.StatusTooManyRequests,
			Err:         err,
		}
	}

	// Network failure or malformed response; there is no status to carry.
	return &apperrors.RemoteError{Err: err}
}

func statusCode(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// toInternalRepository translates a github.Repository object to our internal
// model.Repository.
func toInternalRepository(r *github.Repository) model.Repository {
	return model.Repository{
		Name:      r.GetName(),
		Language:  r.Language,
		StarCount: r.GetStargazersCount(),
		UpdatedAt: r.GetUpdatedAt().Time,
	}
}
