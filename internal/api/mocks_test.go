package api_test

import (
	"context"

	"github.com/persistorai/kpfed/internal/directory"
	"github.com/persistorai/kpfed/internal/models"
)

// mockExpander implements domain.Expander for testing.
type mockExpander struct {
	expandFn func(ctx context.Context, req *models.ExpandRequest) (*models.ExpandResponse, error)
}

func (m *mockExpander) Expand(ctx context.Context, req *models.ExpandRequest) (*models.ExpandResponse, error) {
	return m.expandFn(ctx, req)
}

// mockDirectory implements domain.Directory for testing.
type mockDirectory struct {
	current    *directory.Snapshot
	snapshotFn func(ctx context.Context) (*directory.Snapshot, error)
	refreshFn  func(ctx context.Context) (*directory.Snapshot, error)
}

func (m *mockDirectory) Snapshot(ctx context.Context) (*directory.Snapshot, error) {
	if m.snapshotFn == nil {
		return m.current, nil
	}

	return m.snapshotFn(ctx)
}

func (m *mockDirectory) Current() *directory.Snapshot { return m.current }

func (m *mockDirectory) TryRefresh(ctx context.Context) (*directory.Snapshot, error) {
	return m.refreshFn(ctx)
}

// mockDB implements api.HealthChecker for testing.
type mockDB struct{ err error }

func (m mockDB) HealthCheck(context.Context) error { return m.err }
