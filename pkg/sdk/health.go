package docdex

import (
	"context"
	"sort"
)

// HealthStatus is the outcome of Client.Health.
//
// Status is "ok" when every component passes, "degraded" when only
// optional ones fail (the catalogue before the first load, the rules
// index before IndexRules) and "error" when the ledger is unreachable.
type HealthStatus struct {
	Status string
	Checks map[string]string // component -> "ok" or "error"
}

// Failing lists the failing components in name order.
func (h HealthStatus) Failing() []string {
	var out []string
	for name, res := range h.Checks {
		if res != "ok" {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Health runs every component check.
func (c *Client) Health(ctx context.Context) HealthStatus {
	report := c.healthSvc.Check(ctx)
	h := HealthStatus{Status: string(report.Status), Checks: make(map[string]string, len(report.Checks))}
	for name, res := range report.Checks {
		h.Checks[name] = string(res)
	}
	return h
}
