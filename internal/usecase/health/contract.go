package health

import "context"

// Pinger checks storage availability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ProviderChecker checks a model provider.
type ProviderChecker interface {
	HealthCheck(ctx context.Context) error
}

// Counter reports how many items a component holds.
type Counter interface {
	Len() int
}
