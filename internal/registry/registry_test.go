package registry

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

const validInventory = `
jenkins_teams:
  - team_name: devops
    active_environment: blue
    image: jenkins/jenkins:lts
    blue:
      web: 8081
      agent: 50001
    green:
      web: 8082
      agent: 50002
  - team_name: ma
    active_environment: blue
    blue:
      web: 8091
      agent: 50011
    green:
      web: 8092
      agent: 50012
`

func writeInventory(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "teams.yml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write inventory: %v", err)
	}
	return path
}

func TestLoadValidInventory(t *testing.T) {
	reg, err := Load(writeInventory(t, validInventory))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := reg.Names(); len(got) != 2 || got[0] != "devops" || got[1] != "ma" {
		t.Errorf("Names() = %v, want [devops ma]", got)
	}

	team, err := reg.Get("devops")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if team.Active != models.SlotBlue {
		t.Errorf("active = %s, want blue", team.Active)
	}
	if team.Blue.Ports.Web != 8081 || team.Green.Ports.Web != 8082 {
		t.Errorf("ports = %+v / %+v", team.Blue.Ports, team.Green.Ports)
	}
	if team.Blue.State != models.SlotStateActive {
		t.Errorf("blue state = %s, want ACTIVE", team.Blue.State)
	}
	if team.Green.State != models.SlotStateStandby {
		t.Errorf("green state = %s, want STANDBY", team.Green.State)
	}
	if len(team.DataClasses) != len(models.DefaultDataCategories()) {
		t.Errorf("data classes = %d, want default manifest", len(team.DataClasses))
	}
	if team.Green.Image != "jenkins/jenkins:lts" {
		t.Errorf("image = %q", team.Green.Image)
	}
}

func TestLoadRejectsDuplicateTeamName(t *testing.T) {
	inventory := `
jenkins_teams:
  - team_name: devops
    active_environment: blue
    blue: {web: 8081, agent: 50001}
    green: {web: 8082, agent: 50002}
  - team_name: devops
    active_environment: green
    blue: {web: 8091, agent: 50011}
    green: {web: 8092, agent: 50012}
`
	_, err := Load(writeInventory(t, inventory))
	if !errors.Is(err, models.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate team name") {
		t.Errorf("error %q should name the duplicate", err)
	}
}

func TestLoadRejectsReusedPorts(t *testing.T) {
	inventory := `
jenkins_teams:
  - team_name: devops
    active_environment: blue
    blue: {web: 8081, agent: 50001}
    green: {web: 8082, agent: 50002}
  - team_name: ma
    active_environment: blue
    blue: {web: 8081, agent: 50011}
    green: {web: 8092, agent: 50012}
`
	_, err := Load(writeInventory(t, inventory))
	if !errors.Is(err, models.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
	if !strings.Contains(err.Error(), "8081") {
		t.Errorf("error %q should name the reused port", err)
	}
}

func TestLoadRejectsInvalidActiveEnvironment(t *testing.T) {
	inventory := `
jenkins_teams:
  - team_name: devops
    active_environment: purple
    blue: {web: 8081, agent: 50001}
    green: {web: 8082, agent: 50002}
`
	_, err := Load(writeInventory(t, inventory))
	if !errors.Is(err, models.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestLoadRejectsEmptyRegistry(t *testing.T) {
	_, err := Load(writeInventory(t, "jenkins_teams: []\n"))
	if !errors.Is(err, models.ErrConfig) {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestSnapshotReturnsValueCopies(t *testing.T) {
	reg, err := Load(writeInventory(t, validInventory))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	snapshot := reg.Snapshot()
	snapshot[0].Active = models.SlotGreen
	snapshot[0].Blue.State = models.SlotStateFailed

	team, _ := reg.Get("devops")
	if team.Active != models.SlotBlue {
		t.Error("mutating a snapshot changed the registry")
	}
	if team.Blue.State != models.SlotStateActive {
		t.Error("mutating a snapshot changed slot state")
	}
}

func TestCommitActivePersistsAndBacksUp(t *testing.T) {
	path := writeInventory(t, validInventory)
	reg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if err := reg.CommitActive("devops", models.SlotGreen); err != nil {
		t.Fatalf("CommitActive failed: %v", err)
	}

	// In-memory flip for this team only.
	devops, _ := reg.Get("devops")
	if devops.Active != models.SlotGreen {
		t.Errorf("devops active = %s, want green", devops.Active)
	}
	if devops.Blue.State != models.SlotStateStandby {
		t.Errorf("outgoing slot state = %s, want STANDBY", devops.Blue.State)
	}
	ma, _ := reg.Get("ma")
	if ma.Active != models.SlotBlue {
		t.Errorf("ma active = %s, sibling team must be untouched", ma.Active)
	}

	// Reloading from disk observes the committed state.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	devops, _ = reloaded.Get("devops")
	if devops.Active != models.SlotGreen {
		t.Errorf("persisted devops active = %s, want green", devops.Active)
	}

	// A timestamped backup exists next to the file.
	matches, err := filepath.Glob(path + ".backup_*")
	if err != nil || len(matches) == 0 {
		t.Errorf("expected a backup file, found %v", matches)
	}
}

func TestCommitActiveUnknownTeam(t *testing.T) {
	reg, err := Load(writeInventory(t, validInventory))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := reg.CommitActive("nosuch", models.SlotGreen); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestActiveSlots(t *testing.T) {
	reg, err := Load(writeInventory(t, validInventory))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	slots := reg.ActiveSlots()
	if slots["devops"] != models.SlotBlue || slots["ma"] != models.SlotBlue {
		t.Errorf("ActiveSlots() = %v", slots)
	}
}
