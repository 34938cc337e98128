// Package dockersandbox creates resource-limited, read-only-rootfs Docker
// containers for untrusted shell execution, and pools them for reuse keyed
// by a config hash.
package dockersandbox

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	dockerclient "github.com/docker/docker/client"

	"github.com/openfang/openfang/internal/openfang/guard"
	"github.com/openfang/openfang/internal/openfang/procguard"
)

// Config describes a sandbox container's resource profile. Hash is stable
// over exactly the fields that define container identity (image, network
// mode, memory, workdir) and ignores tuning knobs like CPUShares.
type Config struct {
	Image       string
	NetworkMode string // "none" by default
	MemoryBytes int64
	CPUShares   int64
	PidsLimit   int64
	Workdir     string
	WorkspaceHostPath string // bind-mounted read-only at Workdir
}

// Hash returns a stable hash over {image, network, memory_limit, workdir}.
func (c Config) Hash() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d|%s", c.Image, c.NetworkMode, c.MemoryBytes, c.Workdir)))
	return hex.EncodeToString(sum[:])
}

// Container is a live sandbox container handle.
type Container struct {
	ContainerID string
	AgentID     string
	CreatedAt   time.Time
	ConfigHash  string
}

// Sandbox wraps a Docker Engine client for creating/destroying and exec-ing
// inside hardened sandbox containers.
type Sandbox struct {
	client          *dockerclient.Client
	allowedCommands []string
	bindMountDeny   []string
}

// New creates a Sandbox using DOCKER_HOST / the default socket.
func New(allowedCommands []string, bindMountDeny []string) (*Sandbox, error) {
	cli, err := dockerclient.NewClientWithOpts(
		dockerclient.FromEnv,
		dockerclient.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: docker client: %w", err)
	}
	return &Sandbox{client: cli, allowedCommands: allowedCommands, bindMountDeny: bindMountDeny}, nil
}

// Create spins up a new hardened sandbox container for agentID per cfg:
// all capabilities dropped, no-new-privileges, resource caps applied,
// rootfs read-only, /tmp as tmpfs, workspace bind-mounted read-only, then
// "sleep infinity" so later ExecInSandbox calls have a live target.
func (s *Sandbox) Create(ctx context.Context, agentID string, cfg Config) (*Container, error) {
	name := "openfang-sandbox-" + agentID + "-" + cfg.Hash()[:12]
	if err := guard.ValidateContainerName(name); err != nil {
		return nil, err
	}
	if err := guard.ValidateContainerName(cfg.Image); err != nil {
		return nil, err
	}

	netMode := cfg.NetworkMode
	if netMode == "" {
		netMode = "none"
	}

	var mounts []mount.Mount
	if cfg.WorkspaceHostPath != "" {
		if err := guard.ValidateBindMount(cfg.WorkspaceHostPath, s.bindMountDeny); err != nil {
			return nil, fmt.Errorf("dockersandbox: %w", err)
		}
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   cfg.WorkspaceHostPath,
			Target:   cfg.Workdir,
			ReadOnly: true,
		})
	}
	mounts = append(mounts, mount.Mount{
		Type:   mount.TypeTmpfs,
		Target: "/tmp",
	})

	containerCfg := &container.Config{
		Image:      cfg.Image,
		Cmd:        []string{"sleep", "infinity"},
		Labels:     map[string]string{"openfang.managed-by": "openfang", "openfang.agent-id": agentID},
		WorkingDir: cfg.Workdir,
	}

	hostCfg := &container.HostConfig{
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		ReadonlyRootfs: true,
		Mounts:         mounts,
		NetworkMode:    container.NetworkMode(netMode),
		Resources: container.Resources{
			Memory:    cfg.MemoryBytes,
			CPUShares: cfg.CPUShares,
			PidsLimit: &cfg.PidsLimit,
		},
	}

	resp, err := s.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: create container: %w", err)
	}
	if err := s.client.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = s.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return nil, fmt.Errorf("dockersandbox: start container: %w", err)
	}

	return &Container{
		ContainerID: resp.ID,
		AgentID:     agentID,
		CreatedAt:   time.Now(),
		ConfigHash:  cfg.Hash(),
	}, nil
}

// Destroy force-removes the container.
func (s *Sandbox) Destroy(ctx context.Context, c *Container) error {
	if err := s.client.ContainerRemove(ctx, c.ContainerID, container.RemoveOptions{Force: true}); err != nil {
		if !dockerclient.IsErrNotFound(err) {
			return fmt.Errorf("dockersandbox: remove container: %w", err)
		}
	}
	return nil
}

// ExecResult is the outcome of ExecInSandbox.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Reason   procguard.WaitReason
}

const maxExecOutput = 50_000

// ExecInSandbox runs command inside c via `docker exec sh -c <command>`,
// after validating command against the allow-list, applies the absolute
// timeout (there is no idle timeout), and truncates each stream
// independently at 50,000 bytes.
func (s *Sandbox) ExecInSandbox(ctx context.Context, c *Container, command string, timeout time.Duration) (*ExecResult, error) {
	if err := guard.ValidateCommandAllowlist(command, s.allowedCommands, guard.PolicyEnforced); err != nil {
		return nil, fmt.Errorf("dockersandbox: %w", err)
	}

	execCfg := container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
	}
	execID, err := s.client.ContainerExecCreate(ctx, c.ContainerID, execCfg)
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: exec create: %w", err)
	}

	attach, err := s.client.ContainerExecAttach(ctx, execID.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("dockersandbox: exec attach: %w", err)
	}
	defer attach.Close()

	stdout, stderr, reason, err := demuxWithTimeout(ctx, attach.Reader, timeout)
	if err != nil && reason != procguard.ReasonExited {
		// Timeout fired: destroy the container itself, not just the exec, since
		// its "sleep infinity" process may now share a pid namespace with a
		// runaway child.
		_ = s.Destroy(context.Background(), c)
	}

	inspect, inspectErr := s.client.ContainerExecInspect(ctx, execID.ID)
	exitCode := -1
	if inspectErr == nil {
		exitCode = inspect.ExitCode
	}

	return &ExecResult{
		ExitCode: exitCode,
		Stdout:   procguard.TruncateOutput(stdout, maxExecOutput),
		Stderr:   procguard.TruncateOutput(stderr, maxExecOutput),
		Reason:   reason,
	}, err
}
