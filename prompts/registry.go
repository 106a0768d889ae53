package prompts

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"
)

// Registry holds versioned prompt templates loaded from a filesystem.
// Filenames follow the name@version.tmpl convention; an optional override
// directory lets operators swap prompt text without a rebuild.
type Registry struct {
	fs          fs.FS
	overrideDir string
	helpers     template.FuncMap

	mu      sync.RWMutex
	entries map[string]*entry
	byName  map[string][]string
}

type entry struct {
	tmpl        *template.Template
	fingerprint string
}

// PromptID identifies the exact template text used for a render.
type PromptID struct {
	Name        string
	Version     string
	Fingerprint string
}

type Option func(*Registry)

// WithOverrideDir loads *.tmpl files from dir on top of the base filesystem.
func WithOverrideDir(dir string) Option {
	return func(r *Registry) { r.overrideDir = dir }
}

// WithHelpers registers template helper functions.
func WithHelpers(funcs template.FuncMap) Option {
	return func(r *Registry) {
		for k, v := range funcs {
			r.helpers[k] = v
		}
	}
}

// NewRegistry loads all templates from promptFS.
func NewRegistry(promptFS fs.FS, opts ...Option) (*Registry, error) {
	r := &Registry{fs: promptFS, helpers: template.FuncMap{}}
	for _, opt := range opts {
		opt(r)
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-parses every template from the base filesystem and overrides.
func (r *Registry) Reload() error {
	entries := map[string]*entry{}
	byName := map[string][]string{}

	add := func(path string, data []byte) error {
		name, version, err := splitFilename(path)
		if err != nil {
			return err
		}
		tmpl, err := template.New(name).Funcs(r.helpers).Parse(string(data))
		if err != nil {
			return fmt.Errorf("parse prompt %s@%s: %w", name, version, err)
		}
		sum := sha256.Sum256(data)
		key := name + "@" + version
		if _, exists := entries[key]; !exists {
			byName[name] = append(byName[name], version)
		}
		entries[key] = &entry{tmpl: tmpl, fingerprint: hex.EncodeToString(sum[:])}
		return nil
	}

	err := fs.WalkDir(r.fs, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".tmpl") {
			return err
		}
		data, err := fs.ReadFile(r.fs, path)
		if err != nil {
			return err
		}
		return add(path, data)
	})
	if err != nil {
		return err
	}

	if r.overrideDir != "" {
		matches, err := filepath.Glob(filepath.Join(r.overrideDir, "*.tmpl"))
		if err != nil {
			return err
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			if err := add(path, data); err != nil {
				return err
			}
		}
	}

	for _, versions := range byName {
		sort.Strings(versions)
	}

	r.mu.Lock()
	r.entries = entries
	r.byName = byName
	r.mu.Unlock()
	return nil
}

// Render executes the named template. An empty version selects the latest.
func (r *Registry) Render(name, version string, data any) (string, PromptID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if version == "" {
		versions := r.byName[name]
		if len(versions) == 0 {
			return "", PromptID{}, fmt.Errorf("prompt %s not found", name)
		}
		version = versions[len(versions)-1]
	}
	e, ok := r.entries[name+"@"+version]
	if !ok {
		return "", PromptID{}, fmt.Errorf("prompt %s@%s not found", name, version)
	}

	buf := &bytes.Buffer{}
	if err := e.tmpl.Execute(buf, data); err != nil {
		return "", PromptID{}, fmt.Errorf("render prompt %s@%s: %w", name, version, err)
	}
	return buf.String(), PromptID{Name: name, Version: version, Fingerprint: e.fingerprint}, nil
}

// Versions returns the sorted versions known for a prompt name.
func (r *Registry) Versions(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.byName[name]...)
}

func splitFilename(path string) (name, version string, err error) {
	base := strings.TrimSuffix(filepath.Base(path), ".tmpl")
	at := strings.LastIndex(base, "@")
	if at <= 0 || at == len(base)-1 {
		return "", "", fmt.Errorf("invalid prompt filename: %s", path)
	}
	return base[:at], base[at+1:], nil
}
