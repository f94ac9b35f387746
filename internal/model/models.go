// internal/model/models.go
package model

import "time"

// Repository is the cached metadata of one GitHub repository.
// Identity is Name; upserts are keyed on it.
type Repository struct {
	ID        int64
	Name      string
	Language  *string
	StarCount int
	UpdatedAt time.Time
}

// RepositoryPage is one window of a repository listing plus the totals a
// client needs to build its pagination controls.
type RepositoryPage struct {
	Repos      []Repository
	TotalItems int
	TotalPages int
}
