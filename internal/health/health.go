// Package health implements the health gate: bounded-retry HTTP probes
// against one team slot. A failed probe is a normal verdict, not an
// error — the gate raises an error only for an unresolvable target
// address (a configuration defect rather than unhealthiness) or a
// cancelled caller context, which is no verdict at all.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// Policy is the retry envelope of one gate run. It is a plain value so
// tests can exercise the gate without touching the network defaults.
type Policy struct {
	Attempts int
	Delay    time.Duration
	Timeout  time.Duration
}

// DefaultPolicy matches the documented gate behavior: three attempts,
// five seconds apart, ten seconds each.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Delay: 5 * time.Second, Timeout: 10 * time.Second}
}

// Gate probes team slots for readiness.
type Gate struct {
	Policy Policy

	// SlotHost is the address slot containers publish their ports on.
	SlotHost string

	client *http.Client
	log    *logrus.Entry
}

// NewGate creates a gate with the given policy. An empty host defaults
// to the local daemon's published ports.
func NewGate(policy Policy, slotHost string) *Gate {
	if slotHost == "" {
		slotHost = "127.0.0.1"
	}
	return &Gate{
		Policy:   policy,
		SlotHost: slotHost,
		client:   &http.Client{},
		log:      logger.WithComponent("health"),
	}
}

// slotURL is the Jenkins readiness endpoint for a slot. /login answers
// as soon as the web UI is up, even behind mandatory authentication.
func (g *Gate) slotURL(team models.Team, slot models.Slot) string {
	return fmt.Sprintf("http://%s:%d/login", g.SlotHost, team.Env(slot).Ports.Web)
}

// Probe runs the gate against the target slot directly on its published
// port. The first success short-circuits remaining attempts; exhausting
// them yields a false verdict with the last failure attached.
func (g *Gate) Probe(ctx context.Context, team models.Team, slot models.Slot) (models.HealthCheckResult, error) {
	return g.ProbeURL(ctx, team, slot, g.slotURL(team, slot), "")
}

// ProbeURL runs the gate against an explicit URL, optionally overriding
// the Host header. The verifying step of a switch uses this to probe
// through the public routing path instead of the container port, to
// catch routing misconfiguration.
func (g *Gate) ProbeURL(ctx context.Context, team models.Team, slot models.Slot, url, host string) (models.HealthCheckResult, error) {
	result := models.HealthCheckResult{
		Team: team.Name,
		Slot: slot,
	}

	var lastDetail string
	for attempt := 1; attempt <= g.Policy.Attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				// Cancellation is not a verdict: the slot was never proven
				// unhealthy, so surface the context error to the caller.
				result.Attempts = attempt - 1
				result.Timestamp = time.Now()
				return result, ctx.Err()
			case <-time.After(g.Policy.Delay):
			}
		}

		start := time.Now()
		ok, detail, err := g.attempt(ctx, url, host)
		latency := time.Since(start)

		result.Attempts = attempt
		result.Latency = latency
		result.Timestamp = time.Now()

		if err != nil {
			// Unresolvable address or cancellation: not a verdict.
			return result, err
		}

		g.log.WithFields(logrus.Fields{
			"team":    team.Name,
			"slot":    string(slot),
			"attempt": attempt,
			"healthy": ok,
			"latency": latency.String(),
		}).Debug("Health probe attempt")

		if ok {
			result.Healthy = true
			result.Detail = detail
			return result, nil
		}
		lastDetail = detail
	}

	result.Healthy = false
	result.Detail = lastDetail
	return result, nil
}

// attempt performs one bounded probe. The bool is the verdict; the
// error is non-nil for a name-resolution failure or a cancelled caller
// context.
func (g *Gate) attempt(ctx context.Context, url, host string) (bool, string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.Policy.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, url, nil)
	if err != nil {
		return false, "", fmt.Errorf("%w: build probe request: %v", models.ErrConfig, err)
	}
	if host != "" {
		req.Host = host
	}

	resp, err := g.client.Do(req)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) {
			return false, "", fmt.Errorf("%w: resolve probe target %s: %v", models.ErrConfig, url, err)
		}
		// The per-attempt timeout ending is a failed attempt; the caller's
		// context ending is a cancellation.
		if ctx.Err() != nil {
			return false, "", ctx.Err()
		}
		return false, err.Error(), nil
	}
	defer resp.Body.Close()

	// Jenkins answers /login with 200 once up; 403 means the instance is
	// up but enforcing authentication. Anything else is unhealthy.
	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusForbidden {
		return true, fmt.Sprintf("HTTP %d", resp.StatusCode), nil
	}
	return false, fmt.Sprintf("HTTP %d", resp.StatusCode), nil
}
