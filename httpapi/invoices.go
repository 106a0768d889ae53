package httpapi

import (
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/calebmoss/invoiceflow/core"
)

func (s *Server) handleInvoiceUpload(w http.ResponseWriter, r *http.Request) {
	files, err := s.multipartFiles(r)
	if err != nil {
		writeError(w, err)
		return
	}
	id, err := s.store.Create()
	if err != nil {
		writeError(w, err)
		return
	}
	saved := make([]string, 0, len(files))
	for _, fh := range files {
		content, err := s.readUpload(fh, s.opts.AllowedExtensions...)
		if err != nil {
			writeError(w, err)
			return
		}
		name, err := s.store.SaveUpload(id, fh.Filename, content)
		if err != nil {
			writeError(w, err)
			return
		}
		saved = append(saved, name)
	}
	if err := s.store.SaveMetadata(id, map[string]any{"status": "uploaded", "file_count": len(saved)}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":     id,
		"uploaded_files": saved,
		"message":        fmt.Sprintf("%d file(s) uploaded", len(saved)),
	})
}

func (s *Server) handleInvoiceProcess(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	if !s.store.Exists(id) {
		writeError(w, core.NewError(core.ErrNotFound, "session not found"))
		return
	}
	items, err := s.invoices.Process(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    id,
		"invoice_count": len(items),
		"message":       "invoices processed",
	})
}

func (s *Server) handleInvoiceGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("session")
	items, err := s.invoices.Processed(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"count":      len(items),
		"invoices":   items,
	})
}

// multipartFiles parses the request form and returns the uploaded file
// headers under the "files" field, falling back to "file" for single
// uploads.
func (s *Server) multipartFiles(r *http.Request) ([]*multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		return nil, core.NewError(core.ErrBadInput, "invalid multipart form", core.WithWrapped(err))
	}
	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		files = r.MultipartForm.File["file"]
	}
	if len(files) == 0 {
		return nil, core.NewError(core.ErrBadInput, "no files in request")
	}
	return files, nil
}

func (s *Server) readUpload(fh *multipart.FileHeader, allowed ...string) ([]byte, error) {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	if !extensionAllowed(ext, allowed) {
		return nil, core.NewError(core.ErrBadInput,
			fmt.Sprintf("unsupported file type %q, allowed: %s", ext, strings.Join(allowed, ", ")))
	}
	if s.opts.MaxUploadBytes > 0 && fh.Size > s.opts.MaxUploadBytes {
		return nil, core.NewError(core.ErrBadInput,
			fmt.Sprintf("file %q exceeds the %d byte upload limit", fh.Filename, s.opts.MaxUploadBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return nil, core.WrapError(err, core.ErrBadInput)
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, core.WrapError(err, core.ErrBadInput)
	}
	return content, nil
}

func extensionAllowed(ext string, allowed []string) bool {
	for _, a := range allowed {
		if ext == strings.ToLower(strings.TrimPrefix(a, ".")) {
			return true
		}
	}
	return false
}
