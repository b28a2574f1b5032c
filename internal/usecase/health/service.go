package health

import (
	"context"
	"time"
)

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates an optional component is failing.
	Degraded Status = "degraded"
	// Unhealthy indicates a critical component is failing.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// DefaultCheckTimeout bounds each component check.
const DefaultCheckTimeout = 2 * time.Second

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

type component struct {
	name     string
	critical bool
	check    func(ctx context.Context) error
}

// Service coordinates health checks.
type Service struct {
	components []component
	timeout    time.Duration
}

// New creates a Service with no components.
func New() *Service {
	return &Service{timeout: DefaultCheckTimeout}
}

// WithTimeout sets the per-component deadline.
func (s *Service) WithTimeout(d time.Duration) *Service {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// WithCheck registers a component. A failing critical component makes the
// service unhealthy, any other only degrades it.
func (s *Service) WithCheck(name string, critical bool, check func(ctx context.Context) error) *Service {
	s.components = append(s.components, component{name: name, critical: critical, check: check})
	return s
}

// WithPinger registers a storage component.
func (s *Service) WithPinger(name string, p Pinger, critical bool) *Service {
	return s.WithCheck(name, critical, p.Ping)
}

// WithProvider registers a model provider as an optional component.
func (s *Service) WithProvider(name string, p ProviderChecker) *Service {
	return s.WithCheck(name, false, p.HealthCheck)
}

// WithNonEmpty registers a component that fails with empty while c holds
// nothing.
func (s *Service) WithNonEmpty(name string, critical bool, c Counter, empty error) *Service {
	return s.WithCheck(name, critical, func(context.Context) error {
		if c.Len() == 0 {
			return empty
		}
		return nil
	})
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult, len(s.components))
	status := Healthy

	for _, c := range s.components {
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := c.check(cctx)
		cancel()

		if err == nil {
			checks[c.name] = CheckOK
			continue
		}
		checks[c.name] = CheckError
		switch {
		case c.critical:
			status = Unhealthy
		case status == Healthy:
			status = Degraded
		}
	}

	return Report{Status: status, Checks: checks}
}
