package api

import "context"

// HealthChecker is satisfied by *dbpool.Pool.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ClientCounter reports how many WebSocket subscribers are connected.
type ClientCounter interface {
	ClientCount() int
}
