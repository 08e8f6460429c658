// Package routing computes and publishes the load balancer's desired
// backend state. Each team maps to one HAProxy backend with a blue and
// a green server; the active slot is "ready" and the standby "maint",
// so cutover is a pure admin-state flip with both slots still running.
package routing

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// ControlPlane is the narrow surface the publisher needs from the load
// balancer: apply a full desired state, read it back, report health.
type ControlPlane interface {
	SetBackendWeights(ctx context.Context, desired map[string]models.Slot) error
	ActiveBackends(ctx context.Context) (map[string]models.Slot, error)
	BackendHealth(ctx context.Context) (map[string]map[models.Slot]bool, error)
}

// BackendName returns the HAProxy backend for a team.
func BackendName(team string) string {
	return "jenkins-" + team
}

// HAProxyClient talks to the HAProxy Dataplane API for admin-state
// changes and to the stats endpoint for health read-back.
type HAProxyClient struct {
	DataplaneURL string
	StatsURL     string
	Username     string
	Password     string
	client       *http.Client
}

func NewHAProxyClient(dataplaneURL, statsURL, username, password string) *HAProxyClient {
	return &HAProxyClient{
		DataplaneURL: dataplaneURL,
		StatsURL:     statsURL,
		Username:     username,
		Password:     password,
		client:       &http.Client{Timeout: 30 * time.Second},
	}
}

// runtimeServer is the subset of the Dataplane API server object the
// orchestrator reads and writes.
type runtimeServer struct {
	Name       string `json:"name"`
	AdminState string `json:"admin_state"`
}

func (c *HAProxyClient) serverURL(team string, slot models.Slot) string {
	return fmt.Sprintf("%s/v2/services/haproxy/runtime/backends/%s/servers/%s",
		c.DataplaneURL, BackendName(team), slot)
}

// SetBackendWeights applies the full desired state: for every team the
// active slot's server goes ready and the other goes maint. The standby
// flips to maint first so there is no window with both servers ready.
func (c *HAProxyClient) SetBackendWeights(ctx context.Context, desired map[string]models.Slot) error {
	for team, active := range desired {
		if err := c.setServerState(ctx, team, active.Other(), "maint"); err != nil {
			return err
		}
		if err := c.setServerState(ctx, team, active, "ready"); err != nil {
			return err
		}
	}
	return nil
}

func (c *HAProxyClient) setServerState(ctx context.Context, team string, slot models.Slot, state string) error {
	body, err := json.Marshal(runtimeServer{Name: string(slot), AdminState: state})
	if err != nil {
		return fmt.Errorf("%w: marshal server state: %v", models.ErrPublish, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL(team, slot), strings.NewReader(string(body)))
	if err != nil {
		return fmt.Errorf("%w: build request: %v", models.ErrPublish, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: set %s/%s to %s: %v", models.ErrPublish, BackendName(team), slot, state, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("%w: set %s/%s to %s: dataplane returned %d", models.ErrPublish, BackendName(team), slot, state, resp.StatusCode)
	}
	return nil
}

// ActiveBackends reads back which server is ready in each team backend.
func (c *HAProxyClient) ActiveBackends(ctx context.Context) (map[string]models.Slot, error) {
	active := make(map[string]models.Slot)

	rows, err := c.statsRows(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		team, slot, ok := parseBackendRow(row.pxname, row.svname)
		if !ok {
			continue
		}
		// A server in MAINT is the standby; anything else counts as the
		// routable server for its backend.
		if !strings.HasPrefix(row.status, "MAINT") {
			active[team] = slot
		}
	}
	return active, nil
}

// BackendHealth reports every known (team, slot) server's health from
// the stats endpoint.
func (c *HAProxyClient) BackendHealth(ctx context.Context) (map[string]map[models.Slot]bool, error) {
	health := make(map[string]map[models.Slot]bool)

	rows, err := c.statsRows(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		team, slot, ok := parseBackendRow(row.pxname, row.svname)
		if !ok {
			continue
		}
		if health[team] == nil {
			health[team] = make(map[models.Slot]bool)
		}
		health[team][slot] = strings.HasPrefix(row.status, "UP")
	}
	return health, nil
}

type statsRow struct {
	pxname string
	svname string
	status string
}

// statsRows fetches and parses the HAProxy stats CSV. Column layout:
// pxname,svname,...,status at index 17.
func (c *HAProxyClient) statsRows(ctx context.Context) ([]statsRow, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.StatsURL+";csv", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build stats request: %v", models.ErrPublish, err)
	}
	req.SetBasicAuth(c.Username, c.Password)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch stats: %v", models.ErrPublish, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: stats returned %d", models.ErrPublish, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read stats: %v", models.ErrPublish, err)
	}

	reader := csv.NewReader(strings.NewReader(strings.TrimPrefix(string(data), "# ")))
	reader.FieldsPerRecord = -1

	var rows []statsRow
	first := true
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: parse stats csv: %v", models.ErrPublish, err)
		}
		if first {
			first = false
			continue
		}
		if len(record) < 18 {
			continue
		}
		rows = append(rows, statsRow{pxname: record[0], svname: record[1], status: record[17]})
	}
	return rows, nil
}

// parseBackendRow extracts (team, slot) from a stats row, skipping
// frontend rows, backend aggregates and non-jenkins proxies.
func parseBackendRow(pxname, svname string) (string, models.Slot, bool) {
	if !strings.HasPrefix(pxname, "jenkins-") {
		return "", "", false
	}
	if svname == "FRONTEND" || svname == "BACKEND" {
		return "", "", false
	}
	slot, err := models.ParseSlot(svname)
	if err != nil {
		return "", "", false
	}
	return strings.TrimPrefix(pxname, "jenkins-"), slot, true
}
