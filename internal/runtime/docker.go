package runtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/sirupsen/logrus"

	"github.com/devops-ind/jenkins-ha-sub004/internal/logger"
	"github.com/devops-ind/jenkins-ha-sub004/internal/models"
	"github.com/devops-ind/jenkins-ha-sub004/internal/placement"
)

const (
	// Ports inside the Jenkins container. The per-slot host ports from
	// the team registry map onto these.
	containerWebPort   = "8080/tcp"
	containerAgentPort = "50000/tcp"

	// jenkinsHome is the mount point data categories bind into.
	jenkinsHome = "/var/jenkins_home"

	stopTimeoutSeconds = 30
)

// ContainerName returns the workload name for a team slot.
func ContainerName(team string, slot models.Slot) string {
	return fmt.Sprintf("jenkins-%s-%s", team, slot)
}

// DockerRuntime implements Runtime against the local Docker daemon.
type DockerRuntime struct {
	cli *client.Client
	log *logrus.Entry
}

// NewDockerRuntime creates a runtime from the environment (DOCKER_HOST
// etc.), negotiating the API version with the daemon.
func NewDockerRuntime() (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return &DockerRuntime{
		cli: cli,
		log: logger.WithComponent("runtime"),
	}, nil
}

func (d *DockerRuntime) Start(ctx context.Context, team models.Team, slot models.Slot, handles []placement.Handle) (string, error) {
	name := ContainerName(team.Name, slot)

	// Reuse an existing container for the slot when one is present:
	// blue-green keeps the standby container around for instant reverts.
	inspect, err := d.cli.ContainerInspect(ctx, name)
	if err == nil {
		if inspect.State != nil && inspect.State.Running {
			return inspect.ID, nil
		}
		if err := d.cli.ContainerStart(ctx, inspect.ID, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("start container %s: %w", name, err)
		}
		d.log.WithField("container", name).Info("Restarted existing slot container")
		return inspect.ID, nil
	}
	if !client.IsErrNotFound(err) {
		return "", fmt.Errorf("inspect container %s: %w", name, err)
	}

	env := team.Env(slot)

	mounts := make([]mount.Mount, 0, len(handles))
	for _, h := range handles {
		mounts = append(mounts, mount.Mount{
			Type:   mount.TypeBind,
			Source: h.Path,
			Target: jenkinsHome + "/" + h.Category.Name,
		})
	}

	config := &container.Config{
		Image: env.Image,
		ExposedPorts: nat.PortSet{
			containerWebPort:   struct{}{},
			containerAgentPort: struct{}{},
		},
		Labels: map[string]string{
			"jenkins-ha.team": team.Name,
			"jenkins-ha.slot": string(slot),
		},
	}

	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{
			containerWebPort:   []nat.PortBinding{{HostPort: strconv.Itoa(env.Ports.Web)}},
			containerAgentPort: []nat.PortBinding{{HostPort: strconv.Itoa(env.Ports.Agent)}},
		},
		Mounts: mounts,
		RestartPolicy: container.RestartPolicy{
			Name: container.RestartPolicyUnlessStopped,
		},
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("create container %s: %w", name, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("start container %s: %w", name, err)
	}

	d.log.WithFields(logrus.Fields{
		"container": name,
		"image":     env.Image,
		"web_port":  env.Ports.Web,
	}).Info("Slot container started")
	return resp.ID, nil
}

func (d *DockerRuntime) Stop(ctx context.Context, team models.Team, slot models.Slot) error {
	name := ContainerName(team.Name, slot)
	timeout := stopTimeoutSeconds
	err := d.cli.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("stop container %s: %w", name, err)
	}
	return nil
}

func (d *DockerRuntime) Status(ctx context.Context, team models.Team, slot models.Slot) (Status, error) {
	name := ContainerName(team.Name, slot)
	inspect, err := d.cli.ContainerInspect(ctx, name)
	if err != nil {
		if client.IsErrNotFound(err) {
			return StatusStopped, nil
		}
		return "", fmt.Errorf("inspect container %s: %w", name, err)
	}
	if inspect.State == nil {
		return StatusStopped, nil
	}

	switch {
	case inspect.State.Running && inspect.State.Health != nil && inspect.State.Health.Status == "starting":
		return StatusStarting, nil
	case inspect.State.Running:
		return StatusRunning, nil
	case inspect.State.ExitCode != 0:
		return StatusCrashed, nil
	default:
		return StatusStopped, nil
	}
}
