package models

import "fmt"

// Slot identifies one of a team's two environments.
type Slot string

const (
	SlotBlue  Slot = "blue"
	SlotGreen Slot = "green"
)

// ParseSlot validates an environment name supplied by a caller.
func ParseSlot(s string) (Slot, error) {
	switch Slot(s) {
	case SlotBlue, SlotGreen:
		return Slot(s), nil
	}
	return "", fmt.Errorf("%w: invalid environment %q, must be %q or %q", ErrValidation, s, SlotBlue, SlotGreen)
}

// Other returns the opposite slot.
func (s Slot) Other() Slot {
	if s == SlotBlue {
		return SlotGreen
	}
	return SlotBlue
}

// SlotState is the lifecycle state of one environment slot.
type SlotState string

const (
	SlotStateActive   SlotState = "ACTIVE"
	SlotStateStandby  SlotState = "STANDBY"
	SlotStateStarting SlotState = "STARTING"
	SlotStateDraining SlotState = "DRAINING"
	SlotStateFailed   SlotState = "FAILED"
)

// PortPair holds the host ports one slot publishes.
type PortPair struct {
	Web   int `json:"web" yaml:"web"`
	Agent int `json:"agent" yaml:"agent"`
}

// Environment is one deployable slot of a team.
type Environment struct {
	Ports PortPair  `json:"ports"`
	State SlotState `json:"state"`
	Image string    `json:"image"`
}

// Placement classifies where a data category's storage lives.
type Placement string

const (
	PlacementShared   Placement = "shared"
	PlacementIsolated Placement = "isolated"
)

// DataCategory is a named logical dataset with a fixed placement policy.
type DataCategory struct {
	Name      string    `json:"name" yaml:"name"`
	Placement Placement `json:"placement" yaml:"placement"`
}

// DefaultDataCategories is the fixed placement policy for a Jenkins team.
// Plugins and logs stay isolated per slot so an upgrade cannot poison the
// standby environment; everything else is shared so state survives the switch.
func DefaultDataCategories() []DataCategory {
	return []DataCategory{
		{Name: "jobs", Placement: PlacementShared},
		{Name: "workspace", Placement: PlacementShared},
		{Name: "builds", Placement: PlacementShared},
		{Name: "user-content", Placement: PlacementShared},
		{Name: "secrets", Placement: PlacementShared},
		{Name: "plugins", Placement: PlacementIsolated},
		{Name: "logs", Placement: PlacementIsolated},
	}
}

// Team is one isolated tenant: two environment slots behind a shared
// virtual IP, with exactly one slot active at any committed point in time.
// The record is immutable for the duration of an operation; only Active
// changes, and only at commit.
type Team struct {
	Name        string         `json:"name"`
	Blue        Environment    `json:"blue"`
	Green       Environment    `json:"green"`
	Active      Slot           `json:"active"`
	DataClasses []DataCategory `json:"data_classes"`
}

// Env returns the named slot's environment record.
func (t *Team) Env(slot Slot) *Environment {
	if slot == SlotBlue {
		return &t.Blue
	}
	return &t.Green
}

// Standby returns the slot that is not currently active.
func (t *Team) Standby() Slot {
	return t.Active.Other()
}
