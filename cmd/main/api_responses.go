package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/CTAG07/sdxstore/pkg/store"
	"github.com/CTAG07/sdxstore/pkg/templating"
)

// ResponseAPI holds the dependencies for the /api/responses handlers.
type ResponseAPI struct {
	store  *store.Store
	tm     *templating.TemplateManager
	cm     *ConfigManager
	logger *slog.Logger
}

// NewResponseAPI creates a new instance of the ResponseAPI.
func NewResponseAPI(st *store.Store, tm *templating.TemplateManager, cm *ConfigManager, logger *slog.Logger) *ResponseAPI {
	return &ResponseAPI{
		store:  st,
		tm:     tm,
		cm:     cm,
		logger: logger,
	}
}

// RegisterRoutes sets up the routing for all /api/responses endpoints.
func (a *ResponseAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/responses/export", a.handleExport)
	mux.HandleFunc("/api/responses/import", a.handleImport)
	mux.HandleFunc("/api/responses", a.handleCollection)
	mux.HandleFunc("/api/responses/", a.handleResponse)
}

// renderErrorStatus maps a template execution error to an HTTP status.
func renderErrorStatus(err error) int {
	switch {
	case errors.Is(err, templating.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, templating.ErrTemplateTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, templating.ErrUnterminatedLoop), errors.Is(err, templating.ErrStepLimit):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// parseFilter reads a store.Filter from the query string.
func parseFilter(r *http.Request) (store.Filter, error) {
	q := r.URL.Query()
	f := store.Filter{
		SurveyID: q.Get("survey_id"),
		FormType: q.Get("form_type"),
		RuRef:    q.Get("ru_ref"),
		Period:   q.Get("period"),
		Query:    q.Get("q"),
	}

	var err error
	if v := q.Get("added_ms"); v != "" {
		if f.AddedSince, err = strconv.ParseInt(v, 10, 64); err != nil {
			return f, fmt.Errorf("invalid added_ms %q", v)
		}
	}
	if v := q.Get("invalid"); v != "" {
		invalid, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("invalid value for invalid %q", v)
		}
		f.Invalid = &invalid
	}
	if v := q.Get("page"); v != "" {
		if f.Page, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("invalid page %q", v)
		}
	}
	if v := q.Get("per_page"); v != "" {
		if f.PerPage, err = strconv.Atoi(v); err != nil {
			return f, fmt.Errorf("invalid per_page %q", v)
		}
	}
	return f, nil
}

// handleCollection stores a new response or searches the stored ones.
func (a *ResponseAPI) handleCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		a.search(w, r)
	case http.MethodPost:
		a.add(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (a *ResponseAPI) add(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeResponsesWrite) {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.cm.Get().Store.MaxResponseBytes))
	if err != nil {
		respondWithError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}

	rec, err := a.store.Add(r.Context(), body)
	switch {
	case errors.Is(err, store.ErrInvalidResponse):
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, store.ErrDuplicate):
		respondWithError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		a.logger.Error("Failed to store response", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to store response")
		return
	}

	a.logger.Info("Response stored", "id", rec.ID, "survey_id", rec.SurveyID, "ru_ref", rec.RuRef, "invalid", rec.Invalid)
	rec.Response = nil
	w.Header().Set("Location", "/api/responses/"+url.PathEscape(rec.ID))
	respondWithJSON(w, http.StatusCreated, rec)
}

func (a *ResponseAPI) search(w http.ResponseWriter, r *http.Request) {
	if !requireScope(w, r, scopeResponsesRead) {
		return
	}

	f, err := parseFilter(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	list, err := a.store.Search(r.Context(), f)
	if err != nil {
		if errors.Is(err, store.ErrInvalidFilter) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		a.logger.Error("Failed to search responses", "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to search responses")
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

// handleResponse serves /api/responses/{id} and its /paths and /render
// sub-resources.
func (a *ResponseAPI) handleResponse(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/responses/"), "/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		respondWithError(w, http.StatusNotFound, "Not Found")
		return
	}

	switch action {
	case "":
		switch r.Method {
		case http.MethodGet:
			a.get(w, r, id)
		case http.MethodDelete:
			a.delete(w, r, id)
		default:
			w.Header().Set("Allow", "GET, DELETE")
			respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	case "paths":
		if requireMethod(w, r, http.MethodGet) {
			a.paths(w, r, id)
		}
	case "render":
		if requireMethod(w, r, http.MethodGet) {
			a.render(w, r, id)
		}
	default:
		respondWithError(w, http.StatusNotFound, "Not Found")
	}
}

// load fetches a response, writing the error response itself when it
// cannot.
func (a *ResponseAPI) load(w http.ResponseWriter, r *http.Request, id string) (store.Record, bool) {
	rec, err := a.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Response '%s' not found", id))
			return rec, false
		}
		a.logger.Error("Failed to load response", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to load response")
		return rec, false
	}
	return rec, true
}

func (a *ResponseAPI) get(w http.ResponseWriter, r *http.Request, id string) {
	if !requireScope(w, r, scopeResponsesRead) {
		return
	}
	rec, ok := a.load(w, r, id)
	if !ok {
		return
	}

	etag := `"` + rec.Digest + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	respondWithJSON(w, http.StatusOK, rec)
}

func (a *ResponseAPI) delete(w http.ResponseWriter, r *http.Request, id string) {
	if !requireScope(w, r, scopeResponsesWrite) {
		return
	}
	if err := a.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondWithError(w, http.StatusNotFound, fmt.Sprintf("Response '%s' not found", id))
			return
		}
		a.logger.Error("Failed to delete response", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to delete response")
		return
	}
	a.logger.Info("Response deleted via API", "id", id)
	w.WriteHeader(http.StatusNoContent)
}

// paths lists every value path in a response with its JSON kind.
func (a *ResponseAPI) paths(w http.ResponseWriter, r *http.Request, id string) {
	if !requireScope(w, r, scopeResponsesRead) {
		return
	}
	rec, ok := a.load(w, r, id)
	if !ok {
		return
	}
	doc, err := rec.Document()
	if err != nil {
		a.logger.Error("Stored response is not valid JSON", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to decode response")
		return
	}
	respondWithJSON(w, http.StatusOK, templating.Paths(doc))
}

// render executes a saved template against a response.
func (a *ResponseAPI) render(w http.ResponseWriter, r *http.Request, id string) {
	if !requireScope(w, r, scopeResponsesRead) || !requireScope(w, r, scopeTemplatesRead) {
		return
	}
	name := r.URL.Query().Get("template")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'template' is required")
		return
	}
	tmpl, ok := a.tm.Lookup(name)
	if !ok {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", name))
		return
	}

	rec, ok := a.load(w, r, id)
	if !ok {
		return
	}
	doc, err := rec.Document()
	if err != nil {
		a.logger.Error("Stored response is not valid JSON", "id", id, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Failed to decode response")
		return
	}

	var buf bytes.Buffer
	if err = a.tm.Execute(&buf, name, doc); err != nil {
		status := renderErrorStatus(err)
		if status == http.StatusInternalServerError {
			a.logger.Error("Failed to render response", "id", id, "template", name, "error", err)
		}
		respondWithError(w, status, err.Error())
		return
	}

	w.Header().Set("Content-Type", tmpl.Format.ContentType())
	_, _ = buf.WriteTo(w)
}

// handleExport streams matching responses as a CBOR sequence.
func (a *ResponseAPI) handleExport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodGet) {
		return
	}
	if !requireScope(w, r, scopeResponsesRead) {
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	w.Header().Set("Content-Disposition", `attachment; filename="responses.cbor"`)
	w.Header().Set("Trailer", "X-Record-Count")

	cw := &countingWriter{w: w}
	n, err := a.store.Export(r.Context(), cw, f)
	if err != nil {
		a.logger.Error("Failed to export responses", "error", err, "written", n)
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			w.Header().Del("Trailer")
			respondWithError(w, http.StatusInternalServerError, "Failed to export responses")
			return
		}
		// Headers are already sent.
		panic(http.ErrAbortHandler)
	}
	w.Header().Set("X-Record-Count", strconv.Itoa(n))
}

// countingWriter counts the bytes written through it.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// handleImport loads a CBOR sequence produced by the export endpoint.
func (a *ResponseAPI) handleImport(w http.ResponseWriter, r *http.Request) {
	if !requireMethod(w, r, http.MethodPost) {
		return
	}
	if !requireScope(w, r, scopeResponsesWrite) {
		return
	}

	body := http.MaxBytesReader(w, r.Body, a.cm.Get().Store.MaxImportBytes)
	added, err := a.store.Import(r.Context(), body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxBytesErr):
			respondWithError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, store.ErrDigestMismatch), errors.Is(err, store.ErrInvalidResponse):
			respondWithError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			respondWithError(w, http.StatusBadRequest, err.Error())
		}
		a.logger.Warn("Import stopped early", "added", added, "error", err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"added": added})
}
