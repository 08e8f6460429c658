package routing

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// Publisher pushes the full desired backend state to the control plane
// and verifies it took effect. Publishing is always computed from the
// registry's committed active slots, never as a diff, so replaying the
// same publish is idempotent and self-healing.
type Publisher struct {
	ControlPlane ControlPlane
	log          *logrus.Entry
}

func NewPublisher(cp ControlPlane) *Publisher {
	return &Publisher{
		ControlPlane: cp,
		log:          logger.WithComponent("routing"),
	}
}

// Publish applies the desired state and read-back verifies it. A state
// the control plane accepted but does not reflect is a verification
// error, distinct from a transport failure — the coordinator retries
// the publish rather than re-provisioning.
func (p *Publisher) Publish(ctx context.Context, desired map[string]models.Slot) error {
	if err := p.ControlPlane.SetBackendWeights(ctx, desired); err != nil {
		return err
	}

	applied, err := p.ControlPlane.ActiveBackends(ctx)
	if err != nil {
		return err
	}

	for team, want := range desired {
		got, ok := applied[team]
		if !ok {
			return fmt.Errorf("%w: backend %s missing from read-back", models.ErrPublishVerification, BackendName(team))
		}
		if got != want {
			return fmt.Errorf("%w: backend %s routes to %s, want %s", models.ErrPublishVerification, BackendName(team), got, want)
		}
	}

	p.log.WithField("teams", len(desired)).Info("Backend state published and verified")
	return nil
}
