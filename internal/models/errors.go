package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrConfig indicates the team registry itself is invalid. Fatal:
	// no operation may proceed against a broken registry.
	ErrConfig = errors.New("config error")

	// ErrValidation indicates a malformed deployment request. Rejected
	// before any side effect.
	ErrValidation = errors.New("validation error")

	// ErrEmptySelection indicates a request resolved to zero teams.
	ErrEmptySelection = errors.New("selection matched no teams")

	// ErrNotFound indicates a requested team does not exist.
	ErrNotFound = errors.New("not found")

	// ErrProvision indicates the container runtime could not bring the
	// target slot up. Triggers rollback of the team's transaction.
	ErrProvision = errors.New("provision error")

	// ErrHealthCheck indicates the health gate exhausted its attempts
	// with a false verdict. Not a crash; triggers rollback.
	ErrHealthCheck = errors.New("health check failed")

	// ErrPublish indicates the load balancer did not accept the desired
	// backend state.
	ErrPublish = errors.New("publish error")

	// ErrPublishVerification indicates the load balancer accepted a
	// publish but its read-back state does not reflect it.
	ErrPublishVerification = errors.New("publish verification failed")

	// ErrConflict indicates a switch is already in flight for the team.
	ErrConflict = errors.New("conflicting operation in progress")

	// ErrSlotFailed indicates the target slot is marked FAILED from a
	// prior unresolved transaction and needs a manual clear.
	ErrSlotFailed = errors.New("target slot marked failed")
)

// UnknownTeamError is returned when a selection expression names a team
// that does not exist in the registry. It is fatal for the whole
// operation and carries the valid names so the caller can self-correct.
type UnknownTeamError struct {
	Name  string
	Valid []string
}

func (e *UnknownTeamError) Error() string {
	return fmt.Sprintf("unknown team %q, valid teams: %s", e.Name, strings.Join(e.Valid, ", "))
}
