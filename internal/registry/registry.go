// Package registry is the source of truth for team configuration. It
// loads the YAML team inventory once per operation, validates it, and
// hands out value-copy snapshots so no component can mutate another
// team's record. The only write path is CommitActive, invoked exactly
// once per committed switch transaction.
package registry

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// teamEntry is the on-disk shape of one team in the inventory file.
type teamEntry struct {
	TeamName          string                `yaml:"team_name"`
	ActiveEnvironment string                `yaml:"active_environment"`
	Image             string                `yaml:"image"`
	Blue              models.PortPair       `yaml:"blue"`
	Green             models.PortPair       `yaml:"green"`
	DataClasses       []models.DataCategory `yaml:"data_classes,omitempty"`
}

// inventoryFile is the root of the team inventory document.
type inventoryFile struct {
	Teams []teamEntry `yaml:"jenkins_teams"`
}

const defaultImage = "jenkins/jenkins:lts"

// Registry holds the loaded team set for one operation.
type Registry struct {
	mu    sync.Mutex
	path  string
	teams map[string]*models.Team
}

// Load reads and validates the team inventory at path. Duplicate team
// names or reused ports are config errors that block every operation.
func Load(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open registry %s: %v", models.ErrConfig, path, err)
	}
	defer f.Close()

	r, err := parse(f)
	if err != nil {
		return nil, err
	}
	r.path = path

	logger.WithComponent("registry").WithField("teams", len(r.teams)).Info("Team registry loaded")
	return r, nil
}

func parse(src io.Reader) (*Registry, error) {
	var file inventoryFile
	dec := yaml.NewDecoder(src)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: parse registry: %v", models.ErrConfig, err)
	}
	if len(file.Teams) == 0 {
		return nil, fmt.Errorf("%w: registry defines no teams", models.ErrConfig)
	}

	teams := make(map[string]*models.Team, len(file.Teams))
	usedPorts := make(map[int]string)

	for _, entry := range file.Teams {
		if entry.TeamName == "" {
			return nil, fmt.Errorf("%w: team with empty name", models.ErrConfig)
		}
		if _, dup := teams[entry.TeamName]; dup {
			return nil, fmt.Errorf("%w: duplicate team name %q", models.ErrConfig, entry.TeamName)
		}

		active, err := models.ParseSlot(entry.ActiveEnvironment)
		if err != nil {
			return nil, fmt.Errorf("%w: team %q: invalid active_environment %q", models.ErrConfig, entry.TeamName, entry.ActiveEnvironment)
		}

		for _, port := range []int{entry.Blue.Web, entry.Blue.Agent, entry.Green.Web, entry.Green.Agent} {
			if port <= 0 {
				return nil, fmt.Errorf("%w: team %q: missing or invalid port %d", models.ErrConfig, entry.TeamName, port)
			}
			if owner, taken := usedPorts[port]; taken {
				return nil, fmt.Errorf("%w: team %q: port %d already assigned to %s", models.ErrConfig, entry.TeamName, port, owner)
			}
			usedPorts[port] = entry.TeamName
		}

		image := entry.Image
		if image == "" {
			image = defaultImage
		}

		classes := entry.DataClasses
		if len(classes) == 0 {
			classes = models.DefaultDataCategories()
		}
		for _, c := range classes {
			if c.Placement != models.PlacementShared && c.Placement != models.PlacementIsolated {
				return nil, fmt.Errorf("%w: team %q: category %q has invalid placement %q", models.ErrConfig, entry.TeamName, c.Name, c.Placement)
			}
		}

		team := &models.Team{
			Name:        entry.TeamName,
			Blue:        models.Environment{Ports: entry.Blue, State: models.SlotStateStandby, Image: image},
			Green:       models.Environment{Ports: entry.Green, State: models.SlotStateStandby, Image: image},
			Active:      active,
			DataClasses: classes,
		}
		team.Env(active).State = models.SlotStateActive
		teams[entry.TeamName] = team
	}

	return &Registry{teams: teams}, nil
}

// Get returns a value copy of the named team.
func (r *Registry) Get(name string) (models.Team, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	team, ok := r.teams[name]
	if !ok {
		return models.Team{}, fmt.Errorf("%w: team %q", models.ErrNotFound, name)
	}
	return *team, nil
}

// Snapshot returns value copies of every team, sorted by name.
func (r *Registry) Snapshot() []models.Team {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Team, 0, len(r.teams))
	for _, t := range r.teams {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Names returns every team name, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.teams))
	for name := range r.teams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ActiveSlots returns the committed active slot of every team. This is
// the input the routing publisher computes its full desired state from.
func (r *Registry) ActiveSlots() map[string]models.Slot {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]models.Slot, len(r.teams))
	for name, t := range r.teams {
		out[name] = t.Active
	}
	return out
}

// MarkSlotState records a slot state change, e.g. marking a slot FAILED
// after an unrecoverable rollback so the next operation refuses it.
func (r *Registry) MarkSlotState(team string, slot models.Slot, state models.SlotState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.teams[team]
	if !ok {
		return fmt.Errorf("%w: team %q", models.ErrNotFound, team)
	}
	t.Env(slot).State = state
	return nil
}

// CommitActive flips the team's active slot and persists the inventory
// file, taking a timestamped backup first. Only the committing team's
// entry changes; the rest of the file is rewritten as loaded.
func (r *Registry) CommitActive(team string, slot models.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.teams[team]
	if !ok {
		return fmt.Errorf("%w: team %q", models.ErrNotFound, team)
	}

	previous := t.Active
	t.Active = slot
	t.Env(slot).State = models.SlotStateActive
	t.Env(previous).State = models.SlotStateStandby

	if r.path == "" {
		return nil
	}

	if err := r.persist(); err != nil {
		// Revert the in-memory flip so state never diverges from disk.
		t.Active = previous
		t.Env(previous).State = models.SlotStateActive
		t.Env(slot).State = models.SlotStateStandby
		return err
	}

	logger.WithComponent("registry").WithField("team", team).WithField("active", string(slot)).Info("Active environment committed")
	return nil
}

func (r *Registry) persist() error {
	if current, err := os.ReadFile(r.path); err == nil {
		backup := fmt.Sprintf("%s.backup_%s", r.path, time.Now().Format("20060102_150405"))
		if err := os.WriteFile(backup, current, 0644); err != nil {
			return fmt.Errorf("backup registry: %w", err)
		}
	}

	file := inventoryFile{Teams: make([]teamEntry, 0, len(r.teams))}
	for _, name := range sortedNames(r.teams) {
		t := r.teams[name]
		file.Teams = append(file.Teams, teamEntry{
			TeamName:          t.Name,
			ActiveEnvironment: string(t.Active),
			Image:             t.Blue.Image,
			Blue:              t.Blue.Ports,
			Green:             t.Green.Ports,
			DataClasses:       t.DataClasses,
		})
	}

	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	return os.Rename(tmp, r.path)
}

func sortedNames(teams map[string]*models.Team) []string {
	names := make([]string, 0, len(teams))
	for name := range teams {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
