package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
)

// Quiescer drains write activity from the outgoing slot before a
// shared-data cutover. Jenkins implements this natively: quietDown
// stops new builds from being scheduled while in-flight builds finish.
type Quiescer interface {
	QuietDown(ctx context.Context, team models.Team, slot models.Slot) error
	CancelQuietDown(ctx context.Context, team models.Team, slot models.Slot) error
	// ActiveBuilds reports the slot's number of in-flight builds.
	ActiveBuilds(ctx context.Context, team models.Team, slot models.Slot) (int, error)
}

// JenkinsQuiescer drives quiescence through the Jenkins HTTP API of the
// slot's published web port.
type JenkinsQuiescer struct {
	SlotHost string
	Username string
	APIToken string
	client   *http.Client
}

func NewJenkinsQuiescer(slotHost, username, apiToken string) *JenkinsQuiescer {
	if slotHost == "" {
		slotHost = "127.0.0.1"
	}
	return &JenkinsQuiescer{
		SlotHost: slotHost,
		Username: username,
		APIToken: apiToken,
		client:   &http.Client{Timeout: 15 * time.Second},
	}
}

func (q *JenkinsQuiescer) baseURL(team models.Team, slot models.Slot) string {
	return fmt.Sprintf("http://%s:%d", q.SlotHost, team.Env(slot).Ports.Web)
}

func (q *JenkinsQuiescer) QuietDown(ctx context.Context, team models.Team, slot models.Slot) error {
	return q.post(ctx, q.baseURL(team, slot)+"/quietDown")
}

func (q *JenkinsQuiescer) CancelQuietDown(ctx context.Context, team models.Team, slot models.Slot) error {
	return q.post(ctx, q.baseURL(team, slot)+"/cancelQuietDown")
}

func (q *JenkinsQuiescer) ActiveBuilds(ctx context.Context, team models.Team, slot models.Slot) (int, error) {
	url := q.baseURL(team, slot) + "/computer/api/json?tree=busyExecutors"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build busy executors request: %w", err)
	}
	q.auth(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("query busy executors: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("busy executors query returned %d", resp.StatusCode)
	}

	var payload struct {
		BusyExecutors int `json:"busyExecutors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode busy executors: %w", err)
	}
	return payload.BusyExecutors, nil
}

func (q *JenkinsQuiescer) post(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	q.auth(req)

	resp, err := q.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	// Jenkins redirects quietDown to the dashboard on success.
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("post %s returned %d", url, resp.StatusCode)
	}
	return nil
}

func (q *JenkinsQuiescer) auth(req *http.Request) {
	if q.Username != "" && q.APIToken != "" {
		req.SetBasicAuth(q.Username, q.APIToken)
	}
}
