// Package docker implements the backend's view of the local Docker daemon:
// container and compose-project inventory, lifecycle actions and log
// streaming.
package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

const (
	labelComposeProject = "com.docker.compose.project"
	labelComposeService = "com.docker.compose.service"
	labelComposeWorkdir = "com.docker.compose.project.working_dir"

	// StandaloneProject buckets containers that carry no compose labels.
	StandaloneProject = "_standalone"

	containerStopTimeout = 10 * time.Second
	composeTimeout       = 2 * time.Minute
)

// ContainerInfo is the wire-level description of a single container.
type ContainerInfo struct {
	ID             string            `json:"id"`
	FullID         string            `json:"full_id"`
	Name           string            `json:"name"`
	Image          string            `json:"image"`
	Status         string            `json:"status"`
	State          string            `json:"state"`
	Ports          map[string]string `json:"ports"`
	ComposeProject string            `json:"compose_project"`
	ComposeService string            `json:"compose_service"`
	ComposeWorkdir string            `json:"compose_workdir"`
}

// Project groups containers that belong to the same compose project.
type Project struct {
	Name       string          `json:"name"`
	Workdir    string          `json:"workdir"`
	Containers []ContainerInfo `json:"containers"`
	Status     string          `json:"status"`
}

// Health summarizes daemon reachability.
type Health struct {
	Containers    int    `json:"containers"`
	Images        int    `json:"images"`
	ServerVersion string `json:"server_version"`
}

// Manager wraps a Docker API client. The client is created lazily from the
// environment so construction never fails even when the daemon is down.
type Manager struct {
	clientOnce sync.Once
	cli        *client.Client
	clientErr  error
}

// NewManager constructs a manager backed by the environment-configured Docker
// daemon.
func NewManager() *Manager {
	return &Manager{}
}

func (m *Manager) getClient() (*client.Client, error) {
	m.clientOnce.Do(func() {
		cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
		if err != nil {
			m.clientErr = err
			return
		}
		m.cli = cli
	})
	return m.cli, m.clientErr
}

// Close releases the underlying client.
func (m *Manager) Close() error {
	if m.cli == nil {
		return nil
	}
	return m.cli.Close()
}

// IsNotFound reports whether err denotes a missing container.
func IsNotFound(err error) bool {
	return client.IsErrNotFound(err)
}

// Ping verifies daemon reachability and returns basic inventory counts.
func (m *Manager) Ping(ctx context.Context) (Health, error) {
	cli, err := m.getClient()
	if err != nil {
		return Health{}, fmt.Errorf("create docker client: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		return Health{}, fmt.Errorf("ping daemon: %w", err)
	}
	info, err := cli.Info(ctx)
	if err != nil {
		return Health{}, fmt.Errorf("daemon info: %w", err)
	}
	return Health{
		Containers:    info.Containers,
		Images:        info.Images,
		ServerVersion: info.ServerVersion,
	}, nil
}

// ListContainers returns all containers, running or not.
func (m *Manager) ListContainers(ctx context.Context) ([]ContainerInfo, error) {
	cli, err := m.getClient()
	if err != nil {
		return nil, fmt.Errorf("create docker client: %w", err)
	}
	containers, err := cli.ContainerList(ctx, types.ContainerListOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("list containers: %w", err)
	}
	infos := make([]ContainerInfo, 0, len(containers))
	for _, c := range containers {
		infos = append(infos, describeContainer(c))
	}
	return infos, nil
}

// ListProjects groups all containers into compose projects. Containers
// without compose labels land in the standalone bucket, which sorts last.
func (m *Manager) ListProjects(ctx context.Context) ([]Project, error) {
	containers, err := m.ListContainers(ctx)
	if err != nil {
		return nil, err
	}
	return GroupProjects(containers), nil
}

// GroupProjects aggregates container descriptions into projects with a
// derived running/partial/stopped status.
func GroupProjects(containers []ContainerInfo) []Project {
	byName := make(map[string]*Project)
	for _, c := range containers {
		name := c.ComposeProject
		if name == "" {
			name = StandaloneProject
		}
		p, ok := byName[name]
		if !ok {
			p = &Project{Name: name, Workdir: c.ComposeWorkdir}
			byName[name] = p
		}
		p.Containers = append(p.Containers, c)
	}

	projects := make([]Project, 0, len(byName))
	for _, p := range byName {
		p.Status = deriveStatus(p.Containers)
		projects = append(projects, *p)
	}
	sort.Slice(projects, func(i, j int) bool {
		if (projects[i].Name == StandaloneProject) != (projects[j].Name == StandaloneProject) {
			return projects[j].Name == StandaloneProject
		}
		return projects[i].Name < projects[j].Name
	})
	return projects
}

func deriveStatus(containers []ContainerInfo) string {
	running := 0
	for _, c := range containers {
		if c.State == "running" {
			running++
		}
	}
	switch {
	case len(containers) > 0 && running == len(containers):
		return "running"
	case running > 0:
		return "partial"
	default:
		return "stopped"
	}
}

// ContainerAction applies a lifecycle action to a single container.
func (m *Manager) ContainerAction(ctx context.Context, id, action string) error {
	cli, err := m.getClient()
	if err != nil {
		return fmt.Errorf("create docker client: %w", err)
	}
	sec := int(containerStopTimeout.Seconds())
	opts := container.StopOptions{Timeout: &sec}
	switch action {
	case "start":
		err = cli.ContainerStart(ctx, id, types.ContainerStartOptions{})
	case "stop":
		err = cli.ContainerStop(ctx, id, opts)
	case "restart":
		err = cli.ContainerRestart(ctx, id, opts)
	case "remove":
		err = cli.ContainerRemove(ctx, id, types.ContainerRemoveOptions{Force: true})
	default:
		return fmt.Errorf("unknown action %q", action)
	}
	if err != nil {
		return fmt.Errorf("container %s %s: %w", action, id, err)
	}
	return nil
}

// ComposeCommand builds the docker compose invocation for an action.
func ComposeCommand(action string) []string {
	args := []string{"compose", action}
	if action == "up" {
		args = append(args, "-d")
	}
	return args
}

// ComposeAction runs `docker compose <action>` in the project's working
// directory, resolved from compose labels.
func (m *Manager) ComposeAction(ctx context.Context, project, action string) (string, error) {
	projects, err := m.ListProjects(ctx)
	if err != nil {
		return "", err
	}
	workdir, err := resolveProjectWorkdir(projects, project)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, composeTimeout)
	defer cancel()
	return runComposeCommand(ctx, workdir, ComposeCommand(action))
}

func resolveProjectWorkdir(projects []Project, name string) (string, error) {
	for _, p := range projects {
		if p.Name != name {
			continue
		}
		if p.Workdir == "" {
			return "", fmt.Errorf("no workdir recorded for project %q", name)
		}
		return p.Workdir, nil
	}
	return "", fmt.Errorf("project %q not found", name)
}

func runComposeCommand(ctx context.Context, workdir string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, "docker", args...)
	cmd.Dir = workdir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = strings.TrimSpace(stdout.String())
		}
		if detail == "" {
			return "", fmt.Errorf("docker %s: %w", strings.Join(args, " "), err)
		}
		return "", fmt.Errorf("docker %s: %s", strings.Join(args, " "), detail)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// ContainerLogs follows a container's log stream, writing demultiplexed
// output to w until the stream ends or ctx is cancelled.
func (m *Manager) ContainerLogs(ctx context.Context, id string, tail int, w io.Writer) error {
	cli, err := m.getClient()
	if err != nil {
		return fmt.Errorf("create docker client: %w", err)
	}
	inspect, err := cli.ContainerInspect(ctx, id)
	if err != nil {
		return err
	}
	reader, err := cli.ContainerLogs(ctx, id, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Follow:     true,
		Tail:       strconv.Itoa(tail),
	})
	if err != nil {
		return err
	}
	defer reader.Close()

	if inspect.Config != nil && inspect.Config.Tty {
		_, err = io.Copy(w, reader)
	} else {
		_, err = stdcopy.StdCopy(w, w, reader)
	}
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

func describeContainer(c types.Container) ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	shortID := c.ID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}

	ports := make(map[string]string)
	for _, p := range c.Ports {
		if p.PublicPort == 0 {
			continue
		}
		key, err := nat.NewPort(p.Type, strconv.Itoa(int(p.PrivatePort)))
		if err != nil {
			continue
		}
		if _, ok := ports[string(key)]; !ok {
			ports[string(key)] = strconv.Itoa(int(p.PublicPort))
		}
	}

	labels := c.Labels
	if labels == nil {
		labels = map[string]string{}
	}

	return ContainerInfo{
		ID:             shortID,
		FullID:         c.ID,
		Name:           name,
		Image:          c.Image,
		Status:         c.Status,
		State:          c.State,
		Ports:          ports,
		ComposeProject: labels[labelComposeProject],
		ComposeService: labels[labelComposeService],
		ComposeWorkdir: labels[labelComposeWorkdir],
	}
}
