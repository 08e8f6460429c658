package coordinator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/devops-ind/jenkins-ha-sub004/internal/health"
	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
	"github.com/devops-ind/jenkins-ha-sub004/internal/runtime"
)

// State names one step of the switch state machine. Within a team the
// edges are strictly sequential; failure edges lead from any
// non-terminal state to ROLLING_BACK.
type State string

const (
	StateIdle           State = "IDLE"
	StateValidating     State = "VALIDATING"
	StateProvisioning   State = "PROVISIONING"
	StateHealthChecking State = "HEALTH_CHECKING"
	StateCuttingOver    State = "CUTTING_OVER"
	StateVerifying      State = "VERIFYING"
	StateCommitted      State = "COMMITTED"
	StateRollingBack    State = "ROLLING_BACK"
	StateRolledBack     State = "ROLLED_BACK"
	StateAborted        State = "ABORTED"
)

const provisionBackoffBase = time.Second

// switchTx tracks one team's in-flight transaction.
type switchTx struct {
	tx      *models.SwitchTransaction
	state   State
	started time.Time
}

func beginTx(team models.Team, op models.Operation, target models.Slot) *switchTx {
	now := time.Now()
	return &switchTx{
		tx: &models.SwitchTransaction{
			ID:        uuid.NewString(),
			Team:      team.Name,
			Operation: op,
			FromSlot:  team.Active,
			ToSlot:    target,
			StartedAt: now,
		},
		state:   StateIdle,
		started: now,
	}
}

func (s *switchTx) step(state State, format string, args ...interface{}) {
	s.state = state
	s.tx.Steps = append(s.tx.Steps, models.StepRecord{
		State:     string(state),
		Detail:    fmt.Sprintf(format, args...),
		Timestamp: time.Now(),
	})
}

func (s *switchTx) finish(outcome models.Outcome, reason string) models.TeamResult {
	s.tx.Outcome = outcome
	s.tx.Reason = reason
	s.tx.Duration = time.Since(s.started)
	return models.TeamResult{
		Team:     s.tx.Team,
		Outcome:  outcome,
		FromSlot: s.tx.FromSlot,
		ToSlot:   s.tx.ToSlot,
		Reason:   reason,
		Duration: s.tx.Duration.Milliseconds(),
	}
}

// runSwitch drives one team through the full blue-green state machine.
// The team value is a registry snapshot copy; nothing here can touch
// another team's record.
func (c *Coordinator) runSwitch(ctx context.Context, team models.Team, op models.Operation, target models.Slot, force bool) models.TeamResult {
	s := beginTx(team, op, target)
	log := logger.WithTransaction("coordinator", team.Name, s.tx.ID)
	defer c.record(s)

	outgoing := team.Active

	// VALIDATING
	s.step(StateValidating, "target=%s active=%s force=%t", target, team.Active, force)

	if target == team.Active {
		// No-op short-circuit: success without side effects.
		return s.finish(models.OutcomeCommitted, fmt.Sprintf("slot %s already active", target))
	}
	if team.Env(target).State == models.SlotStateFailed && !force {
		s.step(StateAborted, "target slot requires manual clear")
		return s.finish(models.OutcomeAborted, fmt.Sprintf("%v: slot %s", models.ErrSlotFailed, target))
	}
	if err := ctx.Err(); err != nil {
		s.step(StateAborted, "cancelled before provisioning")
		return s.finish(models.OutcomeAborted, "operation cancelled")
	}

	// PROVISIONING
	s.step(StateProvisioning, "bringing up slot %s", target)
	if err := c.provision(ctx, team, target, s); err != nil {
		log.WithError(err).Error("Provisioning failed")
		return c.rollback(ctx, team, target, s, false, fmt.Errorf("%w: %v", models.ErrProvision, err))
	}

	if err := ctx.Err(); err != nil {
		s.step(StateAborted, "cancelled after provisioning")
		return s.finish(models.OutcomeAborted, "operation cancelled")
	}

	// HEALTH_CHECKING — target slot only; the active slot is never probed
	// or touched here.
	s.step(StateHealthChecking, "probing slot %s", target)
	verdict, err := c.Gate.Probe(ctx, team, target)
	c.Sink.Record(team.Name, target, false, verdict.Healthy)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.step(StateAborted, "cancelled during health check")
			return s.finish(models.OutcomeAborted, "operation cancelled")
		}
		log.WithError(err).Error("Health probe target unresolvable")
		return c.rollback(ctx, team, target, s, false, err)
	}
	if !verdict.Healthy {
		s.step(StateHealthChecking, "verdict=false after %d attempts: %s", verdict.Attempts, verdict.Detail)
		log.WithField("attempts", verdict.Attempts).Warn("Health gate failed for target slot")
		return c.rollback(ctx, team, target, s, false, fmt.Errorf("%w: %s after %d attempts", models.ErrHealthCheck, verdict.Detail, verdict.Attempts))
	}
	s.step(StateHealthChecking, "verdict=true after %d attempts", verdict.Attempts)

	if op == models.OperationDeploy {
		// Deploy stops short of cutover: the target slot is provisioned,
		// healthy, and left standing by.
		s.step(StateCommitted, "deploy complete, slot %s standing by", target)
		return s.finish(models.OutcomeCommitted, fmt.Sprintf("slot %s provisioned and healthy", target))
	}

	// Past this point the transaction must reach a safe terminal state
	// even if the operation is cancelled: an abandoned cutover leaves
	// the routing layer pointing at a slot nobody tracks as active.
	detached := context.WithoutCancel(ctx)

	// CUTTING_OVER
	s.step(StateCuttingOver, "quiescing writers on %d shared paths", len(c.Placement.SharedPaths(team)))
	c.quiesce(detached, team, outgoing, s, log)

	if err := c.cutOver(detached, team, target, s, log); err != nil {
		return c.rollback(detached, team, target, s, true, err)
	}
	if err := c.Quiescer.CancelQuietDown(detached, team, outgoing); err != nil {
		log.WithError(err).Warn("Could not cancel quiet-down on standby slot")
	}

	s.step(StateCommitted, "traffic on %s, %s standing by", target, outgoing)
	c.Sink.Record(team.Name, target, true, true)
	c.Sink.Record(team.Name, outgoing, false, true)
	log.WithField("from", string(outgoing)).WithField("to", string(target)).Info("Switch committed")
	return s.finish(models.OutcomeCommitted, fmt.Sprintf("%s→%s", outgoing, target))
}

// cutOver publishes the new desired routing state, verifies it through
// the public routing path, and commits the registry. All three run
// under a single fleet-wide lock: desired state is computed from the
// registry's committed slots, so a concurrent team's cutover must see
// this team's flip either committed or not yet published. A
// published-but-uncommitted slot would be read back as its stale
// registry value and the flip silently undone.
func (c *Coordinator) cutOver(ctx context.Context, team models.Team, target models.Slot, s *switchTx, log *logrus.Entry) error {
	c.cutoverMu.Lock()
	defer c.cutoverMu.Unlock()

	desired := c.Registry.ActiveSlots()
	desired[team.Name] = target
	if err := c.publishWithRetry(ctx, desired, s); err != nil {
		log.WithError(err).Error("Routing publish failed")
		return err
	}

	// VERIFYING — lighter probe through the public routing path, not the
	// container port, to catch routing misconfiguration.
	s.step(StateVerifying, "probing through frontend")
	verifyGate := *c.Gate
	verifyGate.Policy = health.Policy{Attempts: 1, Delay: 0, Timeout: c.VerifyProbeTimeout}
	verify, err := verifyGate.ProbeURL(ctx, team, target, c.FrontendURL+"/login", c.teamHost(team))
	if err != nil || !verify.Healthy {
		detail := verify.Detail
		if err != nil {
			detail = err.Error()
		}
		log.WithField("detail", detail).Error("Post-cutover verification failed, reverting traffic")
		return fmt.Errorf("%w: routing verification: %s", models.ErrHealthCheck, detail)
	}

	// COMMITTED — the registry's active field is updated exactly once,
	// for this team only. The outgoing slot stays running as standby:
	// instant reversibility is the whole point of blue-green.
	if err := c.Registry.CommitActive(team.Name, target); err != nil {
		log.WithError(err).Error("Commit failed, reverting traffic")
		return err
	}
	return nil
}

// provision ensures isolated volumes exist and brings the target slot
// up. Transient runtime errors are retried with exponential backoff; an
// application-level crash after a successful start fails immediately.
func (c *Coordinator) provision(ctx context.Context, team models.Team, target models.Slot, s *switchTx) error {
	if err := c.Placement.EnsureIsolated(team, target); err != nil {
		return err
	}
	handles := c.Placement.ResolveAll(team, target)

	var lastErr error
	for attempt := 1; attempt <= c.ProvisionRetries; attempt++ {
		if attempt > 1 {
			backoff := provisionBackoffBase << (attempt - 2)
			s.step(StateProvisioning, "retry %d after %s", attempt, backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if _, err := c.Runtime.Start(ctx, team, target, handles); err != nil {
			lastErr = err
			continue
		}

		status, err := c.Runtime.Status(ctx, team, target)
		if err != nil {
			lastErr = err
			continue
		}
		if status == runtime.StatusCrashed {
			// The workload came up and died: retrying the start will not
			// change an application-level failure.
			return fmt.Errorf("slot %s workload crashed on start", target)
		}
		return nil
	}
	return fmt.Errorf("after %d attempts: %w", c.ProvisionRetries, lastErr)
}

// quiesce asks the outgoing slot to stop accepting new builds and waits
// a bounded grace period for in-flight work. On expiry the cutover
// proceeds anyway: the slot is quiet-down and the routing flip at the
// load balancer is atomic.
func (c *Coordinator) quiesce(ctx context.Context, team models.Team, outgoing models.Slot, s *switchTx, log *logrus.Entry) {
	if err := c.Quiescer.QuietDown(ctx, team, outgoing); err != nil {
		log.Warnf("Quiet-down request failed, proceeding with grace wait: %v", err)
	}

	deadline := time.Now().Add(c.QuiesceGracePeriod)
	for time.Now().Before(deadline) {
		busy, err := c.Quiescer.ActiveBuilds(ctx, team, outgoing)
		if err != nil {
			log.Warnf("Could not query in-flight builds: %v", err)
			break
		}
		if busy == 0 {
			s.step(StateCuttingOver, "outgoing slot quiesced")
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
	s.step(StateCuttingOver, "grace period expired with builds in flight")
}

// publishWithRetry retries both transport failures and verification
// mismatches a bounded number of times. A partial acknowledgement shows
// up as a verification mismatch on read-back; the remedy is re-publish,
// never re-provisioning.
func (c *Coordinator) publishWithRetry(ctx context.Context, desired map[string]models.Slot, s *switchTx) error {
	var lastErr error
	for attempt := 1; attempt <= c.PublishRetries; attempt++ {
		if attempt > 1 {
			s.step(StateCuttingOver, "publish retry %d", attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
		if err := c.Publisher.Publish(ctx, desired); err != nil {
			lastErr = err
			continue
		}
		s.step(StateCuttingOver, "routing published and verified")
		return nil
	}
	return lastErr
}

// rollback is the compensating path. It never touches the previously
// active slot's workload; at most it re-publishes the routing state
// that slot already serves. Best-effort and idempotent: if compensation
// itself fails, the target slot is left FAILED for operator attention
// rather than oscillating between environments.
func (c *Coordinator) rollback(ctx context.Context, team models.Team, target models.Slot, s *switchTx, routingChanged bool, cause error) models.TeamResult {
	s.step(StateRollingBack, "cause: %v", cause)
	log := logger.WithTransaction("coordinator", team.Name, s.tx.ID)

	if routingChanged {
		// Same fleet-wide section as cutOver: the revert carries the full
		// desired state, so it must not race a sibling team's flip.
		c.cutoverMu.Lock()
		desired := c.Registry.ActiveSlots()
		desired[team.Name] = team.Active
		err := c.publishWithRetry(ctx, desired, s)
		c.cutoverMu.Unlock()
		if err != nil {
			log.WithError(err).Error("Rollback republish failed, slot needs operator intervention")
			if markErr := c.Registry.MarkSlotState(team.Name, target, models.SlotStateFailed); markErr != nil {
				log.WithError(markErr).Error("Could not mark slot failed")
			}
			s.step(StateRolledBack, "routing revert failed: %v", err)
			return s.finish(models.OutcomeRolledBack, fmt.Sprintf("rollback incomplete: %v (cause: %v)", err, cause))
		}
		s.step(StateRollingBack, "traffic reverted to %s", team.Active)
	}

	if err := c.Quiescer.CancelQuietDown(ctx, team, team.Active); err != nil {
		log.WithError(err).Debug("Cancel quiet-down during rollback failed")
	}

	// A false health verdict marks the target slot FAILED so the next
	// switch refuses it until an operator clears it.
	if errors.Is(cause, models.ErrHealthCheck) {
		if err := c.Registry.MarkSlotState(team.Name, target, models.SlotStateFailed); err != nil {
			log.WithError(err).Error("Could not mark slot failed")
		}
	}

	c.Sink.Record(team.Name, team.Active, true, true)
	c.Sink.Record(team.Name, target, false, false)

	s.step(StateRolledBack, "active slot %s unchanged", team.Active)
	log.WithError(cause).Info("Transaction rolled back")
	return s.finish(models.OutcomeRolledBack, cause.Error())
}
