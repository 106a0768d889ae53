// Package sandbox runs untrusted analysis scripts in throwaway working
// directories with per-command resource limits.
package sandbox

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"
)

// ResourceLimits captures soft execution limits enforced per command.
type ResourceLimits struct {
	Timeout     time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CPUSeconds  int           `json:"cpu_seconds,omitempty" yaml:"cpu_seconds,omitempty"`
	MemoryBytes int64         `json:"memory_bytes,omitempty" yaml:"memory_bytes,omitempty"`
	DiskBytes   int64         `json:"disk_bytes,omitempty" yaml:"disk_bytes,omitempty"`
}

// Merge applies non-zero overrides onto the receiver.
func (r ResourceLimits) Merge(override ResourceLimits) ResourceLimits {
	out := r
	if override.Timeout != 0 {
		out.Timeout = override.Timeout
	}
	if override.CPUSeconds != 0 {
		out.CPUSeconds = override.CPUSeconds
	}
	if override.MemoryBytes != 0 {
		out.MemoryBytes = override.MemoryBytes
	}
	if override.DiskBytes != 0 {
		out.DiskBytes = override.DiskBytes
	}
	return out
}

// FileTemplate stages a file into the session workspace. Paths are relative
// to the workspace root.
type FileTemplate struct {
	Path     string      `json:"path" yaml:"path"`
	Contents []byte      `json:"contents" yaml:"contents"`
	Mode     fs.FileMode `json:"mode,omitempty" yaml:"mode,omitempty"`
}

// Validate rejects templates that would escape the workspace.
func (t FileTemplate) Validate() error {
	if t.Path == "" {
		return fmt.Errorf("template path is required")
	}
	if filepath.IsAbs(t.Path) {
		return fmt.Errorf("template path must be relative: %s", t.Path)
	}
	clean := filepath.Clean(t.Path)
	if clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return fmt.Errorf("template path escapes workspace: %s", t.Path)
	}
	return nil
}

// SessionSpec describes a sandbox session to create.
type SessionSpec struct {
	Name      string            `json:"name,omitempty" yaml:"name,omitempty"`
	Templates []FileTemplate    `json:"templates,omitempty" yaml:"templates,omitempty"`
	Limits    ResourceLimits    `json:"limits,omitempty" yaml:"limits,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Validate ensures the session spec is well formed.
func (s SessionSpec) Validate() error {
	for i, t := range s.Templates {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("template %d: %w", i, err)
		}
	}
	return nil
}

// ExecOptions parameterises one command run.
type ExecOptions struct {
	Command []string
	Env     map[string]string
	Stdin   []byte
	Timeout time.Duration
}

// ExecResult captures execution output and metadata. A non-zero exit code is
// reported here, not as an error.
type ExecResult struct {
	Command       []string
	ExitCode      int
	Duration      time.Duration
	Stdout        string
	Stderr        string
	TimedOut      bool
	AppliedLimits ResourceLimits
}
