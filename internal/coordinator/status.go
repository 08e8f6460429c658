package coordinator

import (
	"context"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
	"github.com/devops-ind/jenkins-ha-sub004/internal/runtime"
)

// SlotStatus is one slot's view in a team status report.
type SlotStatus struct {
	State    models.SlotState `json:"state"`
	Workload runtime.Status   `json:"workload"`
	Healthy  bool             `json:"healthy"`
}

// TeamStatus is the operator-facing status of one team.
type TeamStatus struct {
	Team   string                     `json:"team"`
	Active models.Slot                `json:"active"`
	Slots  map[models.Slot]SlotStatus `json:"slots"`
}

// Status reports a team's active slot, both workload states, and the
// load balancer's health view of each backend server.
func (c *Coordinator) Status(ctx context.Context, name string) (*TeamStatus, error) {
	team, err := c.Registry.Get(name)
	if err != nil {
		return nil, err
	}

	lbHealth, err := c.Publisher.ControlPlane.BackendHealth(ctx)
	if err != nil {
		// Status should still report workload state when the control
		// plane is unreachable.
		lbHealth = nil
	}

	status := &TeamStatus{
		Team:   team.Name,
		Active: team.Active,
		Slots:  make(map[models.Slot]SlotStatus, 2),
	}

	for _, slot := range []models.Slot{models.SlotBlue, models.SlotGreen} {
		workload, err := c.Runtime.Status(ctx, team, slot)
		if err != nil {
			workload = runtime.StatusStopped
		}
		healthy := false
		if lbHealth != nil {
			healthy = lbHealth[team.Name][slot]
		}
		status.Slots[slot] = SlotStatus{
			State:    team.Env(slot).State,
			Workload: workload,
			Healthy:  healthy,
		}
	}
	return status, nil
}
