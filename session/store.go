// Package session implements per-session filesystem storage. Every session
// owns an isolated directory holding its uploads and derived artifacts.
package session

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/calebmoss/invoiceflow/core"
)

const (
	uploadsDir   = "uploads"
	dataFile     = "invoice_data.csv"
	reportFile   = "report.md"
	metadataFile = "metadata.json"
	chatFile     = "chat_history.json"
	chartFile    = "chart.html"
)

// Store manages session directories under a single root.
type Store struct {
	root string
}

// Info summarises a session for listing endpoints.
type Info struct {
	SessionID        string `json:"session_id"`
	FilesCount       int    `json:"files_count"`
	HasProcessedData bool   `json:"has_processed_data"`
	HasReport        bool   `json:"has_report"`
	CreatedAt        string `json:"created_at,omitempty"`
}

// ChatMessage is one persisted turn of the analyst conversation.
type ChatMessage struct {
	Role          string    `json:"role"`
	Text          string    `json:"text"`
	Code          string    `json:"code,omitempty"`
	Visualization bool      `json:"visualization,omitempty"`
	Data          string    `json:"data,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewStore opens (creating if needed) a store rooted at dir.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, core.NewError(core.ErrBadInput, "session: storage root required")
	}
	root := filepath.Join(dir, "sessions")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, core.WrapError(fmt.Errorf("create storage root: %w", err), core.ErrStorage)
	}
	return &Store{root: root}, nil
}

// Create allocates a new session directory and returns its id.
func (s *Store) Create() (string, error) {
	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Join(s.root, id, uploadsDir), 0o755); err != nil {
		return "", core.WrapError(fmt.Errorf("create session dir: %w", err), core.ErrStorage)
	}
	if err := s.SaveMetadata(id, map[string]any{"status": "created"}); err != nil {
		return "", err
	}
	return id, nil
}

// Exists reports whether the session directory is present.
func (s *Store) Exists(id string) bool {
	if !validID(id) {
		return false
	}
	info, err := os.Stat(filepath.Join(s.root, id))
	return err == nil && info.IsDir()
}

// Dir returns the session directory path.
func (s *Store) Dir(id string) string {
	return filepath.Join(s.root, id)
}

// UploadDir returns the uploads directory for the session.
func (s *Store) UploadDir(id string) string {
	return filepath.Join(s.root, id, uploadsDir)
}

// DataPath returns the extracted table path for the session.
func (s *Store) DataPath(id string) string {
	return filepath.Join(s.root, id, dataFile)
}

// ChartPath returns the analyst chart artifact path for the session.
func (s *Store) ChartPath(id string) string {
	return filepath.Join(s.root, id, chartFile)
}

func (s *Store) require(id string) error {
	if !s.Exists(id) {
		return core.NewError(core.ErrNotFound, fmt.Sprintf("session %s not found", id))
	}
	return nil
}

// SaveUpload writes an uploaded file into the session uploads directory,
// sanitizing the filename against path traversal.
func (s *Store) SaveUpload(id, filename string, content []byte) (string, error) {
	if err := s.require(id); err != nil {
		return "", err
	}
	safe := sanitizeFilename(filename)
	if safe == "" {
		return "", core.NewError(core.ErrBadInput, fmt.Sprintf("invalid filename %q", filename))
	}
	path := filepath.Join(s.UploadDir(id), safe)
	if err := atomicWrite(path, content); err != nil {
		return "", core.WrapError(fmt.Errorf("save upload %s: %w", safe, err), core.ErrStorage)
	}
	return safe, nil
}

// ListUploads returns the filenames stored in the session uploads directory.
func (s *Store) ListUploads(id string) ([]string, error) {
	if err := s.require(id); err != nil {
		return nil, err
	}
	dirEntries, err := os.ReadDir(s.UploadDir(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.WrapError(err, core.ErrStorage)
	}
	names := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// UploadsByExt filters the uploads for the given lowercase extensions
// (without dots).
func (s *Store) UploadsByExt(id string, exts ...string) ([]string, error) {
	names, err := s.ListUploads(id)
	if err != nil {
		return nil, err
	}
	allowed := map[string]bool{}
	for _, ext := range exts {
		allowed[ext] = true
	}
	var out []string
	for _, name := range names {
		ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
		if allowed[ext] {
			out = append(out, filepath.Join(s.UploadDir(id), name))
		}
	}
	return out, nil
}

// SaveCSV replaces the session table with the given records. The first
// record is the header.
func (s *Store) SaveCSV(id string, records [][]string) error {
	if err := s.require(id); err != nil {
		return err
	}
	buf := &strings.Builder{}
	w := csv.NewWriter(buf)
	if err := w.WriteAll(records); err != nil {
		return core.WrapError(err, core.ErrStorage)
	}
	if err := atomicWrite(s.DataPath(id), []byte(buf.String())); err != nil {
		return core.WrapError(fmt.Errorf("save table: %w", err), core.ErrStorage)
	}
	return nil
}

// LoadCSV reads the session table. A missing table yields a not-found error.
func (s *Store) LoadCSV(id string) ([][]string, error) {
	if err := s.require(id); err != nil {
		return nil, err
	}
	f, err := os.Open(s.DataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewError(core.ErrNotFound, "no processed data for session")
		}
		return nil, core.WrapError(err, core.ErrStorage)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, core.WrapError(fmt.Errorf("read table: %w", err), core.ErrStorage)
	}
	return records, nil
}

// HasData reports whether the extracted table exists.
func (s *Store) HasData(id string) bool {
	_, err := os.Stat(s.DataPath(id))
	return err == nil
}

// SaveReport persists the markdown report.
func (s *Store) SaveReport(id, text string) error {
	if err := s.require(id); err != nil {
		return err
	}
	if err := atomicWrite(filepath.Join(s.root, id, reportFile), []byte(text)); err != nil {
		return core.WrapError(fmt.Errorf("save report: %w", err), core.ErrStorage)
	}
	return nil
}

// LoadReport returns the saved report or a not-found error.
func (s *Store) LoadReport(id string) (string, error) {
	if err := s.require(id); err != nil {
		return "", err
	}
	data, err := os.ReadFile(filepath.Join(s.root, id, reportFile))
	if err != nil {
		if os.IsNotExist(err) {
			return "", core.NewError(core.ErrNotFound, "no report for session")
		}
		return "", core.WrapError(err, core.ErrStorage)
	}
	return string(data), nil
}

// HasReport reports whether a report has been generated.
func (s *Store) HasReport(id string) bool {
	_, err := os.Stat(filepath.Join(s.root, id, reportFile))
	return err == nil
}

// SaveMetadata merges the given fields into the session metadata. created_at
// is set once, updated_at on every write.
func (s *Store) SaveMetadata(id string, fields map[string]any) error {
	current, err := s.LoadMetadata(id)
	if err != nil && !core.IsNotFound(err) {
		return err
	}
	if current == nil {
		current = map[string]any{}
	}
	for k, v := range fields {
		current[k] = v
	}
	now := time.Now().UTC().Format(time.RFC3339)
	current["updated_at"] = now
	if _, ok := current["created_at"]; !ok {
		current["created_at"] = now
	}
	data, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return core.WrapError(err, core.ErrInternal)
	}
	if err := atomicWrite(filepath.Join(s.root, id, metadataFile), data); err != nil {
		return core.WrapError(fmt.Errorf("save metadata: %w", err), core.ErrStorage)
	}
	return nil
}

// LoadMetadata reads the session metadata map.
func (s *Store) LoadMetadata(id string) (map[string]any, error) {
	data, err := os.ReadFile(filepath.Join(s.root, id, metadataFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, core.NewError(core.ErrNotFound, "no metadata for session")
		}
		return nil, core.WrapError(err, core.ErrStorage)
	}
	out := map[string]any{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, core.WrapError(fmt.Errorf("parse metadata: %w", err), core.ErrStorage)
	}
	return out, nil
}

// LoadChat returns the persisted analyst conversation, oldest first.
func (s *Store) LoadChat(id string) ([]ChatMessage, error) {
	if err := s.require(id); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, id, chatFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, core.WrapError(err, core.ErrStorage)
	}
	var msgs []ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, core.WrapError(fmt.Errorf("parse chat history: %w", err), core.ErrStorage)
	}
	return msgs, nil
}

// AppendChat appends turns to the conversation log.
func (s *Store) AppendChat(id string, msgs ...ChatMessage) error {
	history, err := s.LoadChat(id)
	if err != nil {
		return err
	}
	history = append(history, msgs...)
	data, err := json.MarshalIndent(history, "", "  ")
	if err != nil {
		return core.WrapError(err, core.ErrInternal)
	}
	if err := atomicWrite(filepath.Join(s.root, id, chatFile), data); err != nil {
		return core.WrapError(fmt.Errorf("save chat history: %w", err), core.ErrStorage)
	}
	return nil
}

// Info assembles the listing view of a session.
func (s *Store) Info(id string) (Info, error) {
	if err := s.require(id); err != nil {
		return Info{}, err
	}
	uploads, err := s.ListUploads(id)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		SessionID:        id,
		FilesCount:       len(uploads),
		HasProcessedData: s.HasData(id),
		HasReport:        s.HasReport(id),
	}
	if meta, err := s.LoadMetadata(id); err == nil {
		if created, ok := meta["created_at"].(string); ok {
			info.CreatedAt = created
		}
	}
	return info, nil
}

// List returns all session ids, sorted.
func (s *Store) List() ([]string, error) {
	dirEntries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, core.WrapError(err, core.ErrStorage)
	}
	ids := make([]string, 0, len(dirEntries))
	for _, e := range dirEntries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the session directory and everything in it.
func (s *Store) Delete(id string) error {
	if err := s.require(id); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, id)); err != nil {
		return core.WrapError(fmt.Errorf("delete session: %w", err), core.ErrStorage)
	}
	return nil
}

// CreatedAt returns the session creation time, falling back to the
// directory mtime when metadata is missing.
func (s *Store) CreatedAt(id string) (time.Time, error) {
	if meta, err := s.LoadMetadata(id); err == nil {
		if created, ok := meta["created_at"].(string); ok {
			if t, err := time.Parse(time.RFC3339, created); err == nil {
				return t, nil
			}
		}
	}
	info, err := os.Stat(filepath.Join(s.root, id))
	if err != nil {
		return time.Time{}, core.NewError(core.ErrNotFound, fmt.Sprintf("session %s not found", id))
	}
	return info.ModTime(), nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(name)
	replacer := strings.NewReplacer("..", "_", "/", "_", "\\", "_", "\x00", "_")
	name = replacer.Replace(name)
	if name == "." || name == string(filepath.Separator) {
		return ""
	}
	return name
}

func validID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\\") && id != "." && id != ".."
}

func atomicWrite(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
