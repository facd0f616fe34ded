// Package domain defines the service interfaces shared between the
// expansion engine, the HTTP API and the wiring in cmd. Consumers should
// depend on these rather than re-declaring equivalent ones.
package domain

import (
	"context"

	"github.com/persistorai/kpfed/internal/directory"
	"github.com/persistorai/kpfed/internal/models"
)

// ProviderSelector answers capability questions about knowledge providers.
type ProviderSelector interface {
	KPAcceptsSingleHopQG(ctx context.Context, qg *models.QueryGraph, provider string, enforceDirectionality bool) (bool, error)
	MakeQGUseSupportedPrefixes(ctx context.Context, qg *models.QueryGraph, provider string) (*models.QueryGraph, error)
	EndpointURL(ctx context.Context, provider string) (string, error)
	ProvidersFor(ctx context.Context, qg *models.QueryGraph, enforceDirectionality bool) ([]string, error)
}

// ProviderClient sends one TRAPI query to a provider.
type ProviderClient interface {
	Query(ctx context.Context, provider, baseURL string, q *models.Query) (*models.Response, error)
}

// Expander runs a query graph expansion.
type Expander interface {
	Expand(ctx context.Context, req *models.ExpandRequest) (*models.ExpandResponse, error)
}

// Directory exposes the provider snapshot to the API.
type Directory interface {
	Snapshot(ctx context.Context) (*directory.Snapshot, error)
	Current() *directory.Snapshot
	TryRefresh(ctx context.Context) (*directory.Snapshot, error)
}
