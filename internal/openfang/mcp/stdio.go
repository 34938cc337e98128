package mcp

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/openfang/openfang/internal/openfang/envsandbox"
)

// stdioTransport launches the MCP server as a subprocess and speaks
// newline-delimited JSON over its stdin/stdout.
type stdioTransport struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	mu sync.Mutex
}

// StdioServerConfig describes how to launch a local MCP server.
type StdioServerConfig struct {
	Name     string
	Command  string
	Args     []string
	PassEnv  []string // names of parent env vars the child may see
	ExtraEnv map[string]string
	Workdir  string
}

// NewStdioClient spawns cfg.Command and performs the MCP handshake over its
// stdio pipes. The child's environment is built through envsandbox rather
// than inherited wholesale, so a misconfigured MCP server cannot read
// unrelated secrets out of the parent process's environment.
func NewStdioClient(ctx context.Context, cfg StdioServerConfig) (*Client, error) {
	if err := envsandbox.ValidateExecutablePath(cfg.Command); err != nil {
		return nil, fmt.Errorf("mcp: stdio server %q: %w", cfg.Name, err)
	}

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Workdir
	cmd.Env = envsandbox.BuildChildEnv(cfg.PassEnv, cfg.ExtraEnv)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("mcp: stdout pipe: %w", err)
	}
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("mcp: start %q: %w", cfg.Command, err)
	}

	tr := &stdioTransport{cmd: cmd, stdin: stdin, reader: bufio.NewReader(stdout)}
	c, err := connect(ctx, cfg.Name, tr)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}
	return c, nil
}

func (t *stdioTransport) RoundTrip(ctx context.Context, reqLine []byte) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.writeLine(reqLine); err != nil {
		return nil, err
	}
	return t.readLine()
}

func (t *stdioTransport) SendNotification(ctx context.Context, line []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.writeLine(line)
}

func (t *stdioTransport) writeLine(line []byte) error {
	if _, err := t.stdin.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("mcp: write to child stdin: %w", err)
	}
	return nil
}

func (t *stdioTransport) readLine() ([]byte, error) {
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		if len(line) == 0 {
			return nil, fmt.Errorf("mcp: child stdout closed: %w", err)
		}
	}
	return line, nil
}

func (t *stdioTransport) Close() error {
	t.stdin.Close()
	if t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}
