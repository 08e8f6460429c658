package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/devops-ind/jenkins-ha-sub004/internal/config"
	"github.com/devops-ind/jenkins-ha-sub004/internal/coordinator"
	"github.com/devops-ind/jenkins-ha-sub004/internal/database"
	"github.com/devops-ind/jenkins-ha-sub004/internal/health"
	"github.com/devops-ind/jenkins-ha-sub004/internal/metrics"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
	"github.com/devops-ind/jenkins-ha-sub004/internal/placement"
	"github.com/devops-ind/jenkins-ha-sub004/internal/registry"
	"github.com/devops-ind/jenkins-ha-sub004/internal/routing"
	"github.com/devops-ind/jenkins-ha-sub004/internal/runtime"
	"github.com/devops-ind/jenkins-ha-sub004/internal/server"
)

// fakeRuntime, fakeQuiescer and fakeControlPlane stand in for Docker,
// Jenkins and HAProxy so the full request path can run end to end.
type fakeRuntime struct {
	mu     sync.Mutex
	starts []string
}

func (f *fakeRuntime) Start(_ context.Context, team models.Team, slot models.Slot, _ []placement.Handle) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, team.Name+"/"+string(slot))
	return "workload-" + team.Name, nil
}

func (f *fakeRuntime) Stop(context.Context, models.Team, models.Slot) error { return nil }

func (f *fakeRuntime) Status(context.Context, models.Team, models.Slot) (runtime.Status, error) {
	return runtime.StatusRunning, nil
}

type fakeQuiescer struct{}

func (fakeQuiescer) QuietDown(context.Context, models.Team, models.Slot) error       { return nil }
func (fakeQuiescer) CancelQuietDown(context.Context, models.Team, models.Slot) error { return nil }
func (fakeQuiescer) ActiveBuilds(context.Context, models.Team, models.Slot) (int, error) {
	return 0, nil
}

type fakeControlPlane struct {
	mu       sync.Mutex
	backends map[string]models.Slot
}

func (f *fakeControlPlane) SetBackendWeights(_ context.Context, desired map[string]models.Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.backends == nil {
		f.backends = make(map[string]models.Slot)
	}
	for team, slot := range desired {
		f.backends[team] = slot
	}
	return nil
}

func (f *fakeControlPlane) ActiveBackends(context.Context) (map[string]models.Slot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]models.Slot, len(f.backends))
	for team, slot := range f.backends {
		out[team] = slot
	}
	return out, nil
}

func (f *fakeControlPlane) BackendHealth(context.Context) (map[string]map[models.Slot]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	view := make(map[string]map[models.Slot]bool)
	for team, active := range f.backends {
		view[team] = map[models.Slot]bool{active: true}
	}
	return view, nil
}

func listenerPort(t *testing.T, srv *httptest.Server) int {
	t.Helper()
	_, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return port
}

// setupStack builds the whole service against fake infrastructure and
// one live HTTP listener playing the target Jenkins slot.
func setupStack(t *testing.T) (*server.Server, *registry.Registry, *fakeControlPlane) {
	t.Helper()

	jenkins := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(jenkins.Close)
	frontend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(frontend.Close)

	inventory := fmt.Sprintf(`jenkins_teams:
  - team_name: devops
    active_environment: blue
    image: jenkins/jenkins:2.426.1-lts
    blue:
      web: 18081
      agent: 50001
    green:
      web: %d
      agent: 50002
  - team_name: qa
    active_environment: blue
    image: jenkins/jenkins:2.426.1-lts
    blue:
      web: 18083
      agent: 50003
    green:
      web: 18084
      agent: 50004
`, listenerPort(t, jenkins))

	inventoryPath := filepath.Join(t.TempDir(), "jenkins_teams.yml")
	if err := os.WriteFile(inventoryPath, []byte(inventory), 0644); err != nil {
		t.Fatalf("write inventory: %v", err)
	}
	reg, err := registry.Load(inventoryPath)
	if err != nil {
		t.Fatalf("load registry: %v", err)
	}

	db := database.InitDB(filepath.Join(t.TempDir(), "audit.db"))
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{
		ValidSecret:        testSecret,
		Port:               "16266",
		FrontendURL:        frontend.URL,
		JenkinsDomain:      "jenkins.example.com",
		VerifyProbeTimeout: 2 * time.Second,
		ProvisionRetries:   2,
		PublishRetries:     2,
		QuiesceGracePeriod: 5 * time.Second,
		ConflictPolicy:     config.ConflictReject,
	}

	cp := &fakeControlPlane{}
	gate := health.NewGate(health.Policy{Attempts: 2, Delay: 10 * time.Millisecond, Timeout: 2 * time.Second}, "127.0.0.1")
	resolver := &placement.Resolver{Root: t.TempDir()}

	coord := coordinator.New(cfg, reg, resolver, &fakeRuntime{}, gate,
		routing.NewPublisher(cp), fakeQuiescer{}, metrics.NopSink{}, db)

	return server.NewServer(cfg, db, coord, reg, metrics.NewPrometheusSink(), nil), reg, cp
}

func TestSwitchOverHTTP(t *testing.T) {
	srv, reg, cp := setupStack(t)

	body, _ := json.Marshal(models.DeploymentRequest{
		Operation: models.OperationSwitch,
		Include:   []string{"devops"},
	})
	req := httptest.NewRequest("POST", "/api/v1/operations", bytes.NewBuffer(body))
	req.Header.Set("X-Secret-Key", testSecret)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("operations returned %d: %s", rr.Code, rr.Body.String())
	}

	var response struct {
		Results []models.TeamResult `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(response.Results) != 1 {
		t.Fatalf("got %d results, want 1", len(response.Results))
	}
	if response.Results[0].Outcome != models.OutcomeCommitted {
		t.Fatalf("outcome = %s (%s), want COMMITTED",
			response.Results[0].Outcome, response.Results[0].Reason)
	}

	// Registry committed, routing flipped, untouched team untouched.
	devops, _ := reg.Get("devops")
	if devops.Active != models.SlotGreen {
		t.Errorf("devops active = %s, want green", devops.Active)
	}
	qa, _ := reg.Get("qa")
	if qa.Active != models.SlotBlue {
		t.Errorf("qa active = %s, want blue", qa.Active)
	}
	applied, _ := cp.ActiveBackends(context.Background())
	if applied["devops"] != models.SlotGreen {
		t.Errorf("devops routed to %s, want green", applied["devops"])
	}

	// The transaction is in the audit log.
	auditReq := httptest.NewRequest("GET", "/api/v1/audit?team=devops", nil)
	auditReq.Header.Set("X-Secret-Key", testSecret)
	auditRR := httptest.NewRecorder()
	srv.Router().ServeHTTP(auditRR, auditReq)

	if auditRR.Code != http.StatusOK {
		t.Fatalf("audit returned %d", auditRR.Code)
	}
	var records []models.SwitchTransaction
	if err := json.Unmarshal(auditRR.Body.Bytes(), &records); err != nil {
		t.Fatalf("unmarshal audit: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("got %d audit records, want 1", len(records))
	}
	if records[0].Outcome != models.OutcomeCommitted || records[0].ToSlot != models.SlotGreen {
		t.Errorf("audit record = %+v", records[0])
	}
	if len(records[0].Steps) == 0 {
		t.Error("audit record has no step history")
	}
}

func TestDryRunOverHTTP(t *testing.T) {
	srv, reg, cp := setupStack(t)

	body, _ := json.Marshal(models.DeploymentRequest{
		Operation: models.OperationSwitch,
		Include:   []string{"devops"},
		DryRun:    true,
	})
	req := httptest.NewRequest("POST", "/api/v1/operations", bytes.NewBuffer(body))
	req.Header.Set("X-Secret-Key", testSecret)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("operations returned %d: %s", rr.Code, rr.Body.String())
	}

	var response struct {
		Results []models.TeamResult `json:"results"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &response); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if response.Results[0].Outcome != models.OutcomePlanned {
		t.Errorf("outcome = %s, want PLANNED", response.Results[0].Outcome)
	}

	devops, _ := reg.Get("devops")
	if devops.Active != models.SlotBlue {
		t.Error("dry run changed the registry")
	}
	applied, _ := cp.ActiveBackends(context.Background())
	if len(applied) != 0 {
		t.Error("dry run touched the control plane")
	}
}

func TestUnknownTeamOverHTTP(t *testing.T) {
	srv, _, _ := setupStack(t)

	body, _ := json.Marshal(models.DeploymentRequest{
		Operation: models.OperationSwitch,
		Include:   []string{"web"},
	})
	req := httptest.NewRequest("POST", "/api/v1/operations", bytes.NewBuffer(body))
	req.Header.Set("X-Secret-Key", testSecret)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("valid teams")) {
		t.Errorf("error should list valid teams: %s", rr.Body.String())
	}
}

func TestTeamStatusOverHTTP(t *testing.T) {
	srv, _, cp := setupStack(t)

	// Seed the control plane so backend health has something to report.
	if err := cp.SetBackendWeights(context.Background(), map[string]models.Slot{"devops": models.SlotBlue}); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/v1/teams/devops/status", nil)
	req.Header.Set("X-Secret-Key", testSecret)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status returned %d: %s", rr.Code, rr.Body.String())
	}

	var status coordinator.TeamStatus
	if err := json.Unmarshal(rr.Body.Bytes(), &status); err != nil {
		t.Fatalf("unmarshal status: %v", err)
	}
	if status.Team != "devops" || status.Active != models.SlotBlue {
		t.Errorf("status = %s/%s", status.Team, status.Active)
	}
	if !status.Slots[models.SlotBlue].Healthy {
		t.Error("blue backend should report healthy")
	}
	if status.Slots[models.SlotBlue].Workload != runtime.StatusRunning {
		t.Errorf("blue workload = %s", status.Slots[models.SlotBlue].Workload)
	}
}
