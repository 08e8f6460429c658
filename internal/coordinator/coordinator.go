// Package coordinator drives the blue-green switch state machine. One
// lightweight task runs per selected team with no shared mutable state
// between tasks except the registry; teams outside the selection are
// never touched.
package coordinator

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/devops-ind/jenkins-ha-sub004/internal/config"
	"github.com/devops-ind/jenkins-ha-sub004/internal/database"
	"github.com/devops-ind/jenkins-ha-sub004/internal/health"
	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/metrics"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
	"github.com/devops-ind/jenkins-ha-sub004/internal/newrelic"
	"github.com/devops-ind/jenkins-ha-sub004/internal/placement"
	"github.com/devops-ind/jenkins-ha-sub004/internal/registry"
	"github.com/devops-ind/jenkins-ha-sub004/internal/routing"
	"github.com/devops-ind/jenkins-ha-sub004/internal/runtime"
	"github.com/devops-ind/jenkins-ha-sub004/internal/selector"
)

// Coordinator wires the collaborators together and owns transaction
// serialization per team.
type Coordinator struct {
	Registry  *registry.Registry
	Placement *placement.Resolver
	Runtime   runtime.Runtime
	Gate      *health.Gate
	Publisher *routing.Publisher
	Quiescer  Quiescer
	Sink      metrics.Sink
	AuditDB   *sql.DB

	FrontendURL        string
	Domain             string
	VerifyProbeTimeout time.Duration
	ProvisionRetries   int
	PublishRetries     int
	QuiesceGracePeriod time.Duration
	ConflictPolicy     config.ConflictPolicy

	mu        sync.Mutex
	teamLocks map[string]*sync.Mutex

	// cutoverMu serializes every publish-verify-commit section (and every
	// rollback republish) fleet-wide. Desired routing state is computed
	// from the registry's committed slots, so another team's flip must
	// never sit published-but-uncommitted while this team computes its
	// own full desired state.
	cutoverMu sync.Mutex
}

// New builds a coordinator with policy values taken from config. The
// collaborator fields are exported so tests can swap in fakes.
func New(cfg *config.Config, reg *registry.Registry, resolver *placement.Resolver, rt runtime.Runtime,
	gate *health.Gate, publisher *routing.Publisher, quiescer Quiescer, sink metrics.Sink, auditDB *sql.DB) *Coordinator {
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Coordinator{
		Registry:           reg,
		Placement:          resolver,
		Runtime:            rt,
		Gate:               gate,
		Publisher:          publisher,
		Quiescer:           quiescer,
		Sink:               sink,
		AuditDB:            auditDB,
		FrontendURL:        cfg.FrontendURL,
		Domain:             cfg.JenkinsDomain,
		VerifyProbeTimeout: cfg.VerifyProbeTimeout,
		ProvisionRetries:   cfg.ProvisionRetries,
		PublishRetries:     cfg.PublishRetries,
		QuiesceGracePeriod: cfg.QuiesceGracePeriod,
		ConflictPolicy:     cfg.ConflictPolicy,
		teamLocks:          make(map[string]*sync.Mutex),
	}
}

// Run executes one deployment request end to end and returns the
// per-team result set. Validation and selection errors abort the whole
// operation before any side effect; per-team failures are contained to
// that team's result.
func (c *Coordinator) Run(ctx context.Context, req *models.DeploymentRequest) ([]models.TeamResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	teams, err := selector.Resolve(c.Registry.Snapshot(), req.Include, req.Exclude)
	if err != nil {
		return nil, err
	}

	if req.DryRun {
		return c.plan(teams, req), nil
	}

	// One task per team, concurrent, unordered. Each writes only its own
	// slot of the result set.
	results := make([]models.TeamResult, len(teams))
	var wg sync.WaitGroup
	for i, team := range teams {
		wg.Add(1)
		go func(i int, team models.Team) {
			defer wg.Done()
			results[i] = c.runTeam(ctx, team, req)
		}(i, team)
	}
	wg.Wait()

	return results, nil
}

// plan reports what the operation would do, with zero collaborator calls.
func (c *Coordinator) plan(teams []models.Team, req *models.DeploymentRequest) []models.TeamResult {
	results := make([]models.TeamResult, 0, len(teams))
	for _, team := range teams {
		target := c.targetSlot(team, req)
		results = append(results, models.TeamResult{
			Team:     team.Name,
			Outcome:  models.OutcomePlanned,
			FromSlot: team.Active,
			ToSlot:   target,
			Reason:   fmt.Sprintf("dry run: %s would target slot %s", req.Operation, target),
		})
	}
	return results
}

func (c *Coordinator) targetSlot(team models.Team, req *models.DeploymentRequest) models.Slot {
	if req.Operation == models.OperationRollback {
		// Rollback is a compensating switch back onto the standby slot.
		return team.Standby()
	}
	if req.Target != "" {
		return req.Target
	}
	return team.Standby()
}

func (c *Coordinator) runTeam(ctx context.Context, team models.Team, req *models.DeploymentRequest) models.TeamResult {
	if req.Operation == models.OperationHealthCheck {
		return c.healthCheck(ctx, team)
	}

	release, err := c.acquireTeam(team.Name)
	if err != nil {
		return models.TeamResult{
			Team:    team.Name,
			Outcome: models.OutcomeAborted,
			Reason:  err.Error(),
		}
	}
	defer release()

	// Re-read the team under the lock: a queued request must observe the
	// committed result of the transaction it waited on.
	current, err := c.Registry.Get(team.Name)
	if err == nil {
		team = current
	}

	return c.runSwitch(ctx, team, req.Operation, c.targetSlot(team, req), req.Force)
}

// acquireTeam serializes transactions per team. Concurrent requests for
// different teams proceed fully in parallel; for the same team the
// second request is rejected or queued depending on policy.
func (c *Coordinator) acquireTeam(team string) (func(), error) {
	c.mu.Lock()
	lock, ok := c.teamLocks[team]
	if !ok {
		lock = &sync.Mutex{}
		c.teamLocks[team] = lock
	}
	c.mu.Unlock()

	if c.ConflictPolicy == config.ConflictQueue {
		lock.Lock()
		return lock.Unlock, nil
	}

	if !lock.TryLock() {
		return nil, fmt.Errorf("%w: team %s", models.ErrConflict, team)
	}
	return lock.Unlock, nil
}

// healthCheck probes both slots and reports without changing any state.
func (c *Coordinator) healthCheck(ctx context.Context, team models.Team) models.TeamResult {
	result := models.TeamResult{
		Team:     team.Name,
		FromSlot: team.Active,
		ToSlot:   team.Active,
	}
	started := time.Now()

	verdicts := make(map[models.Slot]models.HealthCheckResult, 2)
	for _, slot := range []models.Slot{models.SlotBlue, models.SlotGreen} {
		verdict, err := c.Gate.Probe(ctx, team, slot)
		if err != nil {
			result.Outcome = models.OutcomeAborted
			result.Reason = err.Error()
			result.Duration = time.Since(started).Milliseconds()
			return result
		}
		verdicts[slot] = verdict
		c.Sink.Record(team.Name, slot, slot == team.Active, verdict.Healthy)
	}

	result.Reason = fmt.Sprintf("blue healthy=%t, green healthy=%t, active=%s",
		verdicts[models.SlotBlue].Healthy, verdicts[models.SlotGreen].Healthy, team.Active)
	result.Duration = time.Since(started).Milliseconds()

	if verdicts[team.Active].Healthy {
		result.Outcome = models.OutcomeCommitted
	} else {
		result.Outcome = models.OutcomeAborted
	}
	return result
}

// teamHost is the Host header a team's traffic arrives under at the
// load balancer frontend.
func (c *Coordinator) teamHost(team models.Team) string {
	return team.Name + "." + c.Domain
}

// record summarizes a terminal transaction into the audit log and the
// observability layer. Both are best effort and never change the
// transaction's outcome.
func (c *Coordinator) record(s *switchTx) {
	if s.tx.Outcome == "" {
		return
	}
	if c.AuditDB != nil {
		if err := database.AppendTransaction(c.AuditDB, s.tx); err != nil {
			logger.WithComponent("coordinator").WithError(err).Error("Failed to append audit record")
		}
	}
	newrelic.RecordSwitchOutcome(s.tx)
}
