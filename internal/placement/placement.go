// Package placement maps each data category to its storage location.
// Shared categories resolve to one path per team regardless of slot;
// isolated categories resolve to one path per (team, slot) pair. The
// resolver is deterministic and side-effect-free to call repeatedly —
// only EnsureIsolated touches the filesystem.
package placement

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// Handle is one resolved storage location for a data category.
type Handle struct {
	Category models.DataCategory
	Path     string
	// RequiresQuiescence marks shared paths that must have no in-flight
	// writers on the outgoing slot before the incoming slot goes active.
	// The underlying distributed filesystem replicates writes but does
	// not arbitrate between concurrent writers, so two active slots
	// writing the same shared path can split-brain it.
	RequiresQuiescence bool
}

// Resolver computes storage paths under a single configured mount root.
type Resolver struct {
	Root string
}

// Resolve returns the storage handle for one category on one slot.
func (r *Resolver) Resolve(team models.Team, category models.DataCategory, slot models.Slot) Handle {
	h := Handle{Category: category}
	switch category.Placement {
	case models.PlacementIsolated:
		h.Path = filepath.Join(r.Root, team.Name, string(slot), category.Name)
	default:
		h.Path = filepath.Join(r.Root, team.Name, category.Name)
		h.RequiresQuiescence = true
	}
	return h
}

// ResolveAll returns handles for every category in the team's manifest.
func (r *Resolver) ResolveAll(team models.Team, slot models.Slot) []Handle {
	handles := make([]Handle, 0, len(team.DataClasses))
	for _, category := range team.DataClasses {
		handles = append(handles, r.Resolve(team, category, slot))
	}
	return handles
}

// SharedPaths returns the team's paths that require write quiescence
// before a cutover.
func (r *Resolver) SharedPaths(team models.Team) []string {
	var paths []string
	for _, category := range team.DataClasses {
		h := r.Resolve(team, category, team.Active)
		if h.RequiresQuiescence {
			paths = append(paths, h.Path)
		}
	}
	return paths
}

// EnsureIsolated creates the target slot's isolated volumes if absent.
// It never copies from the other slot: containing upgrade risk is the
// whole point of isolation, so a fresh slot starts empty.
func (r *Resolver) EnsureIsolated(team models.Team, slot models.Slot) error {
	for _, category := range team.DataClasses {
		if category.Placement != models.PlacementIsolated {
			continue
		}
		h := r.Resolve(team, category, slot)
		if err := os.MkdirAll(h.Path, 0755); err != nil {
			return fmt.Errorf("create isolated volume %s: %w", h.Path, err)
		}
	}
	return nil
}
