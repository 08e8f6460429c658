package placement

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

func testTeam() models.Team {
	return models.Team{
		Name:        "devops",
		Active:      models.SlotBlue,
		DataClasses: models.DefaultDataCategories(),
	}
}

func TestResolveSharedIsSlotIndependent(t *testing.T) {
	r := &Resolver{Root: "/srv/jenkins"}
	team := testTeam()
	category := models.DataCategory{Name: "jobs", Placement: models.PlacementShared}

	bluePath := r.Resolve(team, category, models.SlotBlue)
	greenPath := r.Resolve(team, category, models.SlotGreen)

	if bluePath.Path != greenPath.Path {
		t.Errorf("shared path differs per slot: %q vs %q", bluePath.Path, greenPath.Path)
	}
	if bluePath.Path != filepath.Join("/srv/jenkins", "devops", "jobs") {
		t.Errorf("unexpected shared path %q", bluePath.Path)
	}
	if !bluePath.RequiresQuiescence {
		t.Error("shared path should require quiescence")
	}
}

func TestResolveIsolatedIsPerSlot(t *testing.T) {
	r := &Resolver{Root: "/srv/jenkins"}
	team := testTeam()
	category := models.DataCategory{Name: "plugins", Placement: models.PlacementIsolated}

	bluePath := r.Resolve(team, category, models.SlotBlue)
	greenPath := r.Resolve(team, category, models.SlotGreen)

	if bluePath.Path == greenPath.Path {
		t.Errorf("isolated paths must differ per slot, both are %q", bluePath.Path)
	}
	if bluePath.Path != filepath.Join("/srv/jenkins", "devops", "blue", "plugins") {
		t.Errorf("unexpected isolated path %q", bluePath.Path)
	}
	if bluePath.RequiresQuiescence {
		t.Error("isolated path must not require quiescence")
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	r := &Resolver{Root: "/srv/jenkins"}
	team := testTeam()

	for _, category := range team.DataClasses {
		first := r.Resolve(team, category, models.SlotGreen)
		second := r.Resolve(team, category, models.SlotGreen)
		if first != second {
			t.Errorf("category %s: repeated resolve differs: %+v vs %+v", category.Name, first, second)
		}
	}
}

func TestSharedPaths(t *testing.T) {
	r := &Resolver{Root: "/srv/jenkins"}
	team := testTeam()

	paths := r.SharedPaths(team)

	// Default policy: jobs, workspace, builds, user-content, secrets are
	// shared; plugins and logs are not.
	if len(paths) != 5 {
		t.Fatalf("got %d shared paths, want 5: %v", len(paths), paths)
	}
	for _, p := range paths {
		if filepath.Base(p) == "plugins" || filepath.Base(p) == "logs" {
			t.Errorf("isolated category leaked into shared paths: %s", p)
		}
	}
}

func TestEnsureIsolatedCreatesOnlyIsolatedVolumes(t *testing.T) {
	root := t.TempDir()
	r := &Resolver{Root: root}
	team := testTeam()

	if err := r.EnsureIsolated(team, models.SlotGreen); err != nil {
		t.Fatalf("EnsureIsolated failed: %v", err)
	}

	for _, name := range []string{"plugins", "logs"} {
		path := filepath.Join(root, "devops", "green", name)
		if _, err := os.Stat(path); err != nil {
			t.Errorf("isolated volume %s not created: %v", path, err)
		}
	}

	// Shared categories are never created here.
	if _, err := os.Stat(filepath.Join(root, "devops", "jobs")); !os.IsNotExist(err) {
		t.Error("shared volume should not be created by EnsureIsolated")
	}

	// The blue slot is untouched: no copying between slots.
	if _, err := os.Stat(filepath.Join(root, "devops", "blue")); !os.IsNotExist(err) {
		t.Error("other slot's volumes should not be touched")
	}
}
