// Package runtime adapts the orchestrator to the container engine that
// actually runs the Jenkins workloads. The coordinator only ever talks
// to the Runtime interface; the Docker implementation lives next to it.
package runtime

import (
	"context"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
	"github.com/devops-ind/jenkins-ha-sub004/internal/placement"
)

// Status is the coarse workload state the coordinator branches on.
type Status string

const (
	StatusRunning  Status = "running"
	StatusStarting Status = "starting"
	StatusStopped  Status = "stopped"
	StatusCrashed  Status = "crashed"
)

// Runtime starts, stops and inspects one team slot's workload.
type Runtime interface {
	// Start brings the slot's workload up with the given storage handles
	// mounted, returning an opaque workload handle. Starting an already
	// running slot is a no-op.
	Start(ctx context.Context, team models.Team, slot models.Slot, handles []placement.Handle) (string, error)

	// Stop stops the slot's workload. Stopping a stopped slot is a no-op.
	Stop(ctx context.Context, team models.Team, slot models.Slot) error

	// Status reports the slot's workload state.
	Status(ctx context.Context, team models.Team, slot models.Slot) (Status, error)
}
