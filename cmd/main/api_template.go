package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/sdxstore/pkg/store"
	"github.com/CTAG07/sdxstore/pkg/templating"
	"github.com/natefinch/atomic"
)

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	tm     *templating.TemplateManager
	store  *store.Store
	logger *slog.Logger
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(tm *templating.TemplateManager, st *store.Store, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		tm:     tm,
		store:  st,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("/api/templates/test", t.handleTest)
	mux.HandleFunc("/api/templates/preview", t.handlePreview)
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/", t.handleFile)
}

// handleRefresh triggers a manual refresh of templates from disk.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !requireScope(w, r, scopeTemplatesWrite) {
		return
	}
	if err := t.tm.Refresh(); err != nil {
		t.logger.Error("API triggered refresh failed", "error", err)
		respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to refresh templates: %v", err))
		return
	}
	t.logger.Info("Templates refreshed via API")
	w.WriteHeader(http.StatusNoContent)
}

// handleList returns a list of all available template names.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !requireScope(w, r, scopeTemplatesRead) {
		return
	}
	respondWithJSON(w, http.StatusOK, t.tm.GetTemplateNames())
}

// loadDocument returns the stored response named by the id query parameter,
// or an empty object when there is none. It writes the error response
// itself and reports ok == false on failure.
func (t *TemplateAPI) loadDocument(w http.ResponseWriter, r *http.Request) (any, bool) {
	id := r.URL.Query().Get("id")
	if id == "" {
		return map[string]any{}, true
	}
	rec, err := t.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Response '%s' not found", id))
			return nil, false
		}
		t.logger.Error("Failed to load response for template", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load response")
		return nil, false
	}
	doc, err := rec.Document()
	if err != nil {
		t.logger.Error("Stored response is not valid JSON", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to decode response")
		return nil, false
	}
	return doc, true
}

// handleTest renders the request body as a template without saving it,
// against a stored response when "id" is given.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !requireScope(w, r, scopeTemplatesRead) {
		return
	}

	format, err := templating.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	limit := t.tm.GetConfig().MaxTemplateBytes
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit+1))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	doc, ok := t.loadDocument(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err = t.tm.ExecuteTemplateString(&buf, string(body), format, doc); err != nil {
		respondWithError(w, renderErrorStatus(err), fmt.Sprintf("Template execution failed: %v", err))
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	_, _ = w.Write(buf.Bytes())
}

// handlePreview renders a saved template against a stored response.
func (t *TemplateAPI) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !requireScope(w, r, scopeTemplatesRead) {
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return
	}
	tmpl, ok := t.tm.Lookup(name)
	if !ok {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", name))
		return
	}

	doc, ok := t.loadDocument(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := t.tm.Execute(&buf, name, doc); err != nil {
		respondWithError(w, renderErrorStatus(err), fmt.Sprintf("Failed to render preview: %v", err))
		return
	}

	w.Header().Set("Content-Type", tmpl.Format.ContentType())
	_, _ = w.Write(buf.Bytes())
}

// handleFile manages CRUD operations for a single template file.
func (t *TemplateAPI) handleFile(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/api/templates/")
	if name == "" || strings.HasSuffix(name, "/") {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}

	if _, ok := templating.FormatFromName(name); !ok || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		respondWithError(w, http.StatusBadRequest, "Invalid template name format")
		return
	}

	templateDir, err := filepath.Abs(t.tm.GetTemplateDir())
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Failed to resolve template directory")
		return
	}

	path := filepath.Join(templateDir, name)
	if filepath.Dir(path) != templateDir {
		respondWithError(w, http.StatusForbidden, "Access denied: Path outside template directory")
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !requireScope(w, r, scopeTemplatesRead) {
			return
		}
		content, err := os.ReadFile(path)
		if err != nil {
			respondWithError(w, http.StatusNotFound, "Template not found")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(content)

	case http.MethodPut:
		if !requireScope(w, r, scopeTemplatesWrite) {
			return
		}
		limit := t.tm.GetConfig().MaxTemplateBytes
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
		if err != nil {
			respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Failed to read request body: %v", err))
			return
		}
		// Reject templates that cannot render before they replace a working one.
		if _, err = templating.RenderString(string(body), map[string]any{}); errors.Is(err, templating.ErrUnterminatedLoop) {
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		if err = atomic.WriteFile(path, bytes.NewReader(body)); err != nil {
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to write template file: %v", err))
			return
		}
		_ = t.tm.Refresh()
		t.logger.Info("Template saved via API", "name", name, "size", len(body))
		w.WriteHeader(http.StatusNoContent)

	case http.MethodDelete:
		if !requireScope(w, r, scopeTemplatesWrite) {
			return
		}
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				respondWithError(w, http.StatusNotFound, "Template not found")
				return
			}
			respondWithError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to delete template file: %v", err))
			return
		}
		_ = t.tm.Refresh()
		t.logger.Info("Template deleted via API", "name", name)
		w.WriteHeader(http.StatusNoContent)

	default:
		w.Header().Set("Allow", "GET, PUT, DELETE")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
