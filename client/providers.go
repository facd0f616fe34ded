package client

import (
	"context"
	"net/http"
)

// ProviderService reads and refreshes the server's provider directory.
type ProviderService struct {
	c *Client
}

// List returns the providers in the current directory snapshot.
func (s *ProviderService) List(ctx context.Context) (*ProvidersResponse, error) {
	var resp ProvidersResponse
	if err := s.c.do(ctx, http.MethodGet, "/api/v1/providers", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Refresh asks the server to rebuild its directory now. It fails with a
// conflict error when a refresh is already running.
func (s *ProviderService) Refresh(ctx context.Context) (*ProvidersResponse, error) {
	var resp ProvidersResponse
	if err := s.c.do(ctx, http.MethodPost, "/api/v1/providers/refresh", nil, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}
