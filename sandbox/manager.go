package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/calebmoss/invoiceflow/obs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ManagerOptions configure sandbox manager construction.
type ManagerOptions struct {
	// BaseDir is where session workspaces are created. Defaults to the
	// system temp directory.
	BaseDir       string
	DefaultLimits ResourceLimits
	Env           map[string]string
	Shell         string
}

// Manager provisions and tracks sandbox sessions.
type Manager struct {
	opts     ManagerOptions
	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
}

func NewManager(opts ManagerOptions) (*Manager, error) {
	if opts.BaseDir == "" {
		opts.BaseDir = os.TempDir()
	}
	if err := os.MkdirAll(opts.BaseDir, 0o755); err != nil {
		return nil, fmt.Errorf("sandbox: create base dir: %w", err)
	}
	if opts.Shell == "" {
		opts.Shell = "/bin/sh"
	}
	return &Manager{opts: opts, sessions: make(map[string]*Session)}, nil
}

// CreateSession provisions a workspace directory and stages the spec's
// templates into it.
func (m *Manager) CreateSession(ctx context.Context, spec SessionSpec) (*Session, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	prefix := "sbx-"
	if spec.Name != "" {
		prefix += spec.Name + "-"
	}
	workspace, err := os.MkdirTemp(m.opts.BaseDir, prefix)
	if err != nil {
		return nil, fmt.Errorf("sandbox: create workspace: %w", err)
	}

	session := &Session{
		ID:        filepath.Base(workspace),
		manager:   m,
		workspace: workspace,
		limits:    m.opts.DefaultLimits.Merge(spec.Limits),
		env:       mergeEnv(m.opts.Env, spec.Env),
	}
	if err := session.stage(spec.Templates); err != nil {
		os.RemoveAll(workspace)
		return nil, err
	}
	m.sessions[session.ID] = session
	return session, nil
}

// Destroy tears down a session by identifier.
func (m *Manager) Destroy(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if session, ok := m.sessions[id]; ok {
		_ = session.close()
		delete(m.sessions, id)
	}
}

// Sessions returns the currently tracked sessions.
func (m *Manager) Sessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, session := range m.sessions {
		out = append(out, session)
	}
	return out
}

// Close tears down the manager and every active session.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	for id, session := range m.sessions {
		_ = session.close()
		delete(m.sessions, id)
	}
	m.closed = true
	return nil
}

// Session is one isolated workspace. Commands run with the workspace as the
// working directory and a minimal environment.
type Session struct {
	ID        string
	manager   *Manager
	workspace string
	limits    ResourceLimits
	env       map[string]string

	mu     sync.Mutex
	closed bool
}

// Workspace returns the session's working directory.
func (s *Session) Workspace() string { return s.workspace }

// Limits returns the session's base resource limits.
func (s *Session) Limits() ResourceLimits { return s.limits }

// WriteFile stages an additional file into the workspace.
func (s *Session) WriteFile(tmpl FileTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	return s.stage([]FileTemplate{tmpl})
}

// ReadFile reads a file from the workspace.
func (s *Session) ReadFile(path string) ([]byte, error) {
	tmpl := FileTemplate{Path: path}
	if err := tmpl.Validate(); err != nil {
		return nil, err
	}
	return os.ReadFile(filepath.Join(s.workspace, path))
}

// Exec runs a command inside the workspace. The command is wrapped in a
// shell applying ulimits when CPU, memory or disk limits are set. A non-zero
// exit code yields a populated result and a nil error; an error means the
// command could not be run at all.
func (s *Session) Exec(ctx context.Context, opts ExecOptions) (ExecResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ExecResult{}, ErrSessionClosed
	}
	if len(opts.Command) == 0 {
		return ExecResult{}, ErrCommandEmpty
	}

	limits := s.limits
	if opts.Timeout > 0 {
		limits.Timeout = opts.Timeout
	}
	execCtx := ctx
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		execCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	_, span := obs.Tracer().Start(execCtx, "sandbox.exec")
	span.SetAttributes(
		attribute.String("sandbox.session", s.ID),
		attribute.String("sandbox.command", strings.Join(opts.Command, " ")),
	)
	defer span.End()

	command := s.decorateCommand(opts.Command, limits)
	cmd := exec.CommandContext(execCtx, command[0], command[1:]...)
	cmd.Dir = s.workspace
	cmd.Env = s.commandEnv(opts.Env)
	if len(opts.Stdin) > 0 {
		cmd.Stdin = bytes.NewReader(opts.Stdin)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := ExecResult{
		Command:       opts.Command,
		Duration:      duration,
		Stdout:        stdout.String(),
		Stderr:        stderr.String(),
		AppliedLimits: limits,
	}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitCode()
		case execCtx.Err() != nil:
			result.TimedOut = true
			result.ExitCode = -1
			span.SetStatus(codes.Error, "timeout")
			return result, nil
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return ExecResult{}, err
		}
	}

	span.SetAttributes(
		attribute.Int("sandbox.exit_code", result.ExitCode),
		attribute.Int64("sandbox.duration_ms", duration.Milliseconds()),
	)
	if result.ExitCode != 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("exit code %d", result.ExitCode))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result, nil
}

// Close removes the workspace and everything in it.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.close()
}

func (s *Session) close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return os.RemoveAll(s.workspace)
}

func (s *Session) stage(templates []FileTemplate) error {
	for _, tmpl := range templates {
		if err := tmpl.Validate(); err != nil {
			return err
		}
		path := filepath.Join(s.workspace, tmpl.Path)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("sandbox: mkdir for template: %w", err)
		}
		mode := tmpl.Mode
		if mode == 0 {
			mode = 0o644
		}
		if err := os.WriteFile(path, tmpl.Contents, mode); err != nil {
			return fmt.Errorf("sandbox: write template: %w", err)
		}
	}
	return nil
}

func (s *Session) decorateCommand(command []string, limits ResourceLimits) []string {
	var script strings.Builder
	if limits.CPUSeconds > 0 {
		script.WriteString("ulimit -t " + strconv.Itoa(limits.CPUSeconds) + ";")
	}
	if limits.MemoryBytes > 0 {
		kb := limits.MemoryBytes / 1024
		if kb < 1 {
			kb = 1
		}
		script.WriteString("ulimit -v " + strconv.FormatInt(kb, 10) + ";")
	}
	if limits.DiskBytes > 0 {
		blocks := limits.DiskBytes / 512
		if blocks < 1 {
			blocks = 1
		}
		script.WriteString("ulimit -f " + strconv.FormatInt(blocks, 10) + ";")
	}
	if script.Len() == 0 {
		return command
	}
	script.WriteString(strings.Join(quoteArgs(command), " "))
	return []string{s.manager.opts.Shell, "-c", script.String()}
}

// commandEnv builds a minimal environment: PATH and HOME from the host, the
// session env, then per-exec overrides.
func (s *Session) commandEnv(extra map[string]string) []string {
	env := []string{
		"PATH=" + os.Getenv("PATH"),
		"HOME=" + s.workspace,
	}
	for k, v := range s.env {
		env = append(env, k+"="+v)
	}
	for k, v := range extra {
		env = append(env, k+"="+v)
	}
	return env
}

func quoteArgs(args []string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if arg == "" {
			out[i] = "''"
			continue
		}
		if strings.ContainsAny(arg, " \t\"'`$&|<>") {
			out[i] = strconv.Quote(arg)
		} else {
			out[i] = arg
		}
	}
	return out
}

func mergeEnv(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	out := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
