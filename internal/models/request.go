package models

import "fmt"

// Operation names the action a deployment request performs.
type Operation string

const (
	OperationDeploy      Operation = "deploy"
	OperationSwitch      Operation = "switch"
	OperationRollback    Operation = "rollback"
	OperationHealthCheck Operation = "health-check"
)

// DeploymentRequest is the caller's description of one operation.
// Validated once and immutable afterwards.
type DeploymentRequest struct {
	Operation Operation `json:"operation"`
	Include   []string  `json:"include,omitempty"`
	Exclude   []string  `json:"exclude,omitempty"`
	Target    Slot      `json:"target,omitempty"`
	DryRun    bool      `json:"dry_run,omitempty"`
	Force     bool      `json:"force,omitempty"`
}

// Validate checks the request shape. It does not consult the registry;
// unknown team names are caught later by the selector.
func (r *DeploymentRequest) Validate() error {
	switch r.Operation {
	case OperationDeploy, OperationSwitch, OperationRollback, OperationHealthCheck:
	default:
		return fmt.Errorf("%w: unknown operation %q", ErrValidation, r.Operation)
	}

	if len(r.Include) > 0 && len(r.Exclude) > 0 {
		return fmt.Errorf("%w: include and exclude are mutually exclusive", ErrValidation)
	}

	if r.Target != "" {
		if _, err := ParseSlot(string(r.Target)); err != nil {
			return err
		}
	}

	return nil
}
