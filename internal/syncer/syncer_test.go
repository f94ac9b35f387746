// internal/syncer/syncer_test.go
package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"repo-browser/internal/apperrors"
	"repo-browser/internal/github"
	"repo-browser/internal/model"
	"repo-browser/internal/store"
)

// MockStore is a mock of the store.Store interface.
type MockStore struct {
	mock.Mock
}

func (m *MockStore) CountRepositories(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
func (m *MockStore) ListRepositories(ctx context.Context, page, perPage int) ([]model.Repository, error) {
	args := m.Called(ctx, page, perPage)
	return args.Get(0).([]model.Repository), args.Error(1)
}
func (m *MockStore) UpsertBatch(ctx context.Context, repos []model.Repository) error {
	args := m.Called(ctx, repos)
	return args.Error(0)
}
func (m *MockStore) ReadSyncState(ctx context.Context) (store.SyncState, error) {
	args := m.Called(ctx)
	return args.Get(0).(store.SyncState), args.Error(1)
}
func (m *MockStore) SetSyncState(ctx context.Context, state store.SyncState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}
func (m *MockStore) BeginSync(ctx context.Context) (store.SyncState, bool, error) {
	args := m.Called(ctx)
	return args.Get(0).(store.SyncState), args.Bool(1), args.Error(2)
}

// stubRemote serves canned pages and records the order they were requested
// in. Entries in failures are consumed before the page succeeds.
type stubRemote struct {
	pages     map[int]*github.Page
	failures  map[int][]error
	requested []int
}

func (s *stubRemote) ListPage(ctx context.Context, page, perPage int) (*github.Page, error) {
	s.requested = append(s.requested, page)
	if errs := s.failures[page]; len(errs) > 0 {
		err := errs[0]
		s.failures[page] = errs[1:]
		return nil, err
	}
	p, ok := s.pages[page]
	if !ok {
		return nil, &apperrors.RemoteError{StatusCode: 404, Err: fmt.Errorf("no such page %d", page)}
	}
	return p, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func genRepos(n int, prefix string) []model.Repository {
	repos := make([]model.Repository, n)
	for i := range repos {
		lang := "Go"
		repos[i] = model.Repository{
			Name:      fmt.Sprintf("%s-%03d", prefix, i),
			Language:  &lang,
			StarCount: i,
			UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		}
	}
	return repos
}

func linkWithNext(next, last int) string {
	return fmt.Sprintf(`<https://api.github.com/orgs/test/repos?page=%d>; rel="next", <https://api.github.com/orgs/test/repos?page=%d>; rel="last"`, next, last)
}

func TestSyncer_Run(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses to start while another sweep is running", func(t *testing.T) {
		mockSt := new(MockStore)
		remote := &stubRemote{}
		s := New(mockSt, remote, testLogger(), 100, time.Minute)

		mockSt.On("BeginSync", mock.Anything).Return(store.StateRunning, false, nil).Once()

		res := <-s.Run(ctx)

		require.ErrorIs(t, res.Err, apperrors.ErrSyncInProgress)
		assert.Empty(t, remote.requested, "no pages should be fetched")
		mockSt.AssertNotCalled(t, "UpsertBatch")
		mockSt.AssertNotCalled(t, "SetSyncState")
		mockSt.AssertExpectations(t)
	})

	t.Run("sweeps all pages in order and ends idle", func(t *testing.T) {
		mockSt := new(MockStore)
		pageOne := genRepos(100, "one")
		pageTwo := genRepos(40, "two")
		remote := &stubRemote{pages: map[int]*github.Page{
			1: {Repos: pageOne, LinkHeader: linkWithNext(2, 2)},
			2: {Repos: pageTwo, LinkHeader: `<https://api.github.com/orgs/test/repos?page=1>; rel="prev"`},
		}}
		s := New(mockSt, remote, testLogger(), 100, time.Minute)

		mockSt.On("BeginSync", mock.Anything).Return(store.StateNeverSynced, true, nil).Once()
		mockSt.On("UpsertBatch", mock.Anything, pageOne).Return(nil).Once()
		mockSt.On("UpsertBatch", mock.Anything, pageTwo).Return(nil).Once()
		mockSt.On("SetSyncState", mock.Anything, store.StateIdle).Return(nil).Once()

		res := <-s.Run(ctx)

		require.NoError(t, res.Err)
		assert.True(t, res.Completed())
		assert.Equal(t, 2, res.Pages)
		assert.Equal(t, 140, res.Repos)
		assert.Equal(t, []int{1, 2}, remote.requested)
		mockSt.AssertExpectations(t)
	})

	t.Run("failure mid-sweep keeps committed pages and still clears the flag", func(t *testing.T) {
		mockSt := new(MockStore)
		pageOne := genRepos(100, "one")
		remote := &stubRemote{
			pages: map[int]*github.Page{
				1: {Repos: pageOne, LinkHeader: linkWithNext(2, 3)},
			},
			failures: map[int][]error{
				2: {&apperrors.RemoteError{StatusCode: 500, Err: fmt.Errorf("upstream exploded")}},
			},
		}
		s := New(mockSt, remote, testLogger(), 100, time.Minute)

		mockSt.On("BeginSync", mock.Anything).Return(store.StateIdle, true, nil).Once()
		mockSt.On("UpsertBatch", mock.Anything, pageOne).Return(nil).Once()
		mockSt.On("SetSyncState", mock.Anything, store.StateIdle).Return(nil).Once()

		res := <-s.Run(ctx)

		require.Error(t, res.Err)
		assert.False(t, res.Completed())
		assert.Equal(t, 1, res.Pages)
		assert.Equal(t, 100, res.Repos)
		mockSt.AssertExpectations(t)
	})

	t.Run("failure before any commit restores never-synced", func(t *testing.T) {
		mockSt := new(MockStore)
		remote := &stubRemote{
			failures: map[int][]error{
				1: {&apperrors.RemoteError{StatusCode: 503, Err: fmt.Errorf("unavailable")}},
			},
		}
		s := New(mockSt, remote, testLogger(), 100, time.Minute)

		mockSt.On("BeginSync", mock.Anything).Return(store.StateNeverSynced, true, nil).Once()
		mockSt.On("SetSyncState", mock.Anything, store.StateNeverSynced).Return(nil).Once()

		res := <-s.Run(ctx)

		require.Error(t, res.Err)
		mockSt.AssertNotCalled(t, "UpsertBatch")
		mockSt.AssertExpectations(t)
	})

	t.Run("store failure during upsert aborts the sweep", func(t *testing.T) {
		mockSt := new(MockStore)
		pageOne := genRepos(10, "one")
		remote := &stubRemote{pages: map[int]*github.Page{
			1: {Repos: pageOne},
		}}
		s := New(mockSt, remote, testLogger(), 100, time.Minute)

		storeErr := &apperrors.StoreError{Op: "UpsertBatch", Err: fmt.Errorf("connection reset")}
		mockSt.On("BeginSync", mock.Anything).Return(store.StateNeverSynced, true, nil).Once()
		mockSt.On("UpsertBatch", mock.Anything, pageOne).Return(storeErr).Once()
		mockSt.On("SetSyncState", mock.Anything, store.StateNeverSynced).Return(nil).Once()

		res := <-s.Run(ctx)

		require.Error(t, res.Err)
		var se *apperrors.StoreError
		assert.ErrorAs(t, res.Err, &se)
		mockSt.AssertExpectations(t)
	})

	t.Run("retries rate-limited fetches and completes", func(t *testing.T) {
		mockSt := new(MockStore)
		pageOne := genRepos(5, "one")
		remote := &stubRemote{
			pages: map[int]*github.Page{
				1: {Repos: pageOne},
			},
			failures: map[int][]error{
				1: {&apperrors.RemoteError{StatusCode: 403, RateLimited: true, Err: fmt.Errorf("rate limit exceeded")}},
			},
		}
		s := New(mockSt, remote, testLogger(), 100, time.Minute)

		mockSt.On("BeginSync", mock.Anything).Return(store.StateNeverSynced, true, nil).Once()
		mockSt.On("UpsertBatch", mock.Anything, pageOne).Return(nil).Once()
		mockSt.On("SetSyncState", mock.Anything, store.StateIdle).Return(nil).Once()

		res := <-s.Run(ctx)

		require.NoError(t, res.Err)
		assert.GreaterOrEqual(t, len(remote.requested), 2, "the rate-limited fetch should have been retried")
		mockSt.AssertExpectations(t)
	})
}
