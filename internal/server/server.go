// Package server exposes host records and their attachments over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	middleware "github.com/oapi-codegen/chi-middleware"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"upload-column/api"
	"upload-column/internal/column"
	"upload-column/internal/netfetch"
	"upload-column/internal/recorddb"
	"upload-column/internal/sanitized"
	"upload-column/internal/upload"
)

const maxMultipartMemory = 32 << 20

// Store persists host records.
type Store interface {
	Insert(ctx context.Context, r *recorddb.Record) error
	Get(ctx context.Context, id string) (*recorddb.Record, error)
	Update(ctx context.Context, r *recorddb.Record) error
	Delete(ctx context.Context, id string) error
}

type Server struct {
	store  Store
	kinds  map[string]*column.Registry
	logger *slog.Logger
}

// New serves records of the given kinds; each kind has its own registry of
// upload columns.
func New(store Store, kinds map[string]*column.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, kinds: kinds, logger: logger.With("component", "server")}
}

// Routes mounts the record endpoints behind OpenAPI request validation.
func (s *Server) Routes(doc *openapi3.T) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.OapiRequestValidator(doc))
	r.Post("/records", s.createRecord)
	r.Get("/records/{id}", s.getRecord)
	r.Delete("/records/{id}", s.deleteRecord)
	r.Post("/records/{id}/save", s.saveRecord)
	r.Post("/records/{id}/attachments/{attr}", s.uploadAttachment)
	r.Delete("/records/{id}/attachments/{attr}", s.clearAttachment)
	r.Post("/records/{id}/attachments/{attr}/fetch", s.fetchAttachment)
	return r
}

func (s *Server) createRecord(w http.ResponseWriter, r *http.Request) {
	var req api.CreateRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	reg, ok := s.kinds[req.Kind]
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown kind "+req.Kind)
		return
	}
	rec := recorddb.NewRecord(req.Kind, reg.HostColumns())
	if err := s.store.Insert(r.Context(), rec); err != nil {
		s.logger.Error("insert record failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create record")
		return
	}
	writeJSON(w, s.view(rec, reg.Attach(rec)), http.StatusCreated)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, reg, ok := s.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, s.view(rec, reg.Attach(rec)), http.StatusOK)
}

func (s *Server) deleteRecord(w http.ResponseWriter, r *http.Request) {
	rec, reg, ok := s.load(w, r)
	if !ok {
		return
	}
	att := reg.Attach(rec)
	if err := s.store.Delete(r.Context(), rec.ID); err != nil {
		s.fail(w, err)
		return
	}
	if err := att.AfterDestroy(r.Context()); err != nil {
		s.logger.Error("remove attachments failed", "record", rec.ID, "err", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// saveRecord re-attaches staged uploads from their temp tokens, moves them
// into place and persists the record.
func (s *Server) saveRecord(w http.ResponseWriter, r *http.Request) {
	rec, reg, ok := s.load(w, r)
	if !ok {
		return
	}
	var req api.SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	att := reg.Attach(rec)
	for attr, token := range req.Temp {
		h, err := att.Column(attr)
		if err != nil {
			s.fail(w, err)
			return
		}
		if err := h.SetTemp(r.Context(), token); err != nil {
			s.fail(w, err)
			return
		}
	}
	if !s.persist(w, r.Context(), rec, att) {
		return
	}
	writeJSON(w, s.view(rec, att), http.StatusOK)
}

// uploadAttachment stages the multipart "file" part. With ?save=true the
// record is saved in the same request.
func (s *Server) uploadAttachment(w http.ResponseWriter, r *http.Request) {
	rec, reg, ok := s.load(w, r)
	if !ok {
		return
	}
	att := reg.Attach(rec)
	h, err := att.Column(chi.URLParam(r, "attr"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()
	parts := r.MultipartForm.File["file"]
	if len(parts) == 0 {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	if err := h.Assign(r.Context(), parts[0]); err != nil {
		s.fail(w, err)
		return
	}
	s.finishAttachment(w, r, rec, att, h)
}

func (s *Server) fetchAttachment(w http.ResponseWriter, r *http.Request) {
	rec, reg, ok := s.load(w, r)
	if !ok {
		return
	}
	var req api.FetchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	att := reg.Attach(rec)
	h, err := att.Column(chi.URLParam(r, "attr"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := h.AssignURL(r.Context(), req.URL); err != nil {
		s.fail(w, err)
		return
	}
	s.finishAttachment(w, r, rec, att, h)
}

func (s *Server) clearAttachment(w http.ResponseWriter, r *http.Request) {
	rec, reg, ok := s.load(w, r)
	if !ok {
		return
	}
	att := reg.Attach(rec)
	h, err := att.Column(chi.URLParam(r, "attr"))
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := h.Clear(); err != nil {
		s.fail(w, err)
		return
	}
	if !s.persist(w, r.Context(), rec, att) {
		return
	}
	writeJSON(w, s.view(rec, att), http.StatusOK)
}

func (s *Server) finishAttachment(w http.ResponseWriter, r *http.Request, rec *recorddb.Record, att *column.Attachments, h *column.Handle) {
	if save, _ := strconv.ParseBool(r.URL.Query().Get("save")); save {
		if !s.persist(w, r.Context(), rec, att) {
			return
		}
	}
	f, _ := h.File()
	writeJSON(w, attachmentView(h.Attribute(), f), http.StatusOK)
}

// persist moves staged uploads into place and writes the record with its
// refreshed magic columns.
func (s *Server) persist(w http.ResponseWriter, ctx context.Context, rec *recorddb.Record, att *column.Attachments) bool {
	if err := att.Validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return false
	}
	if err := att.AfterSave(ctx); err != nil {
		s.fail(w, err)
		return false
	}
	if err := s.store.Update(ctx, rec); err != nil {
		s.fail(w, err)
		return false
	}
	return true
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*recorddb.Record, *column.Registry, bool) {
	id, err := bindRecordID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	rec, err := s.store.Get(r.Context(), id.String())
	if err != nil {
		s.fail(w, err)
		return nil, nil, false
	}
	reg, ok := s.kinds[rec.Kind]
	if !ok {
		s.logger.Error("record of unknown kind", "record", rec.ID, "kind", rec.Kind)
		writeError(w, http.StatusInternalServerError, "unknown record kind")
		return nil, nil, false
	}
	return rec, reg, true
}

// bindRecordID decodes the {id} path parameter as a UUID.
func bindRecordID(r *http.Request) (openapi_types.UUID, error) {
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", chi.URLParam(r, "id"), &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return openapi_types.UUID{}, fmt.Errorf("invalid format for parameter id: %w", err)
	}
	return id, nil
}

func (s *Server) view(rec *recorddb.Record, att *column.Attachments) api.Record {
	out := api.Record{
		ID:          rec.ID,
		Kind:        rec.Kind,
		Revision:    rec.Revision,
		Fields:      rec.Fields(),
		Attachments: map[string]api.Attachment{},
		CreatedAt:   rec.CreatedAt,
		UpdatedAt:   rec.UpdatedAt,
	}
	for _, attr := range s.kinds[rec.Kind].Columns() {
		h, err := att.Column(attr)
		if err != nil {
			continue
		}
		f, err := h.File()
		if err != nil || f == nil {
			continue
		}
		out.Attachments[attr] = attachmentView(attr, f)
	}
	return out
}

func attachmentView(attr string, f *upload.File) api.Attachment {
	a := api.Attachment{Attribute: attr}
	if f == nil {
		return a
	}
	a.URL = f.URL()
	a.Path = f.RelativePath()
	a.Temp = f.TempValue()
	a.ContentType = f.ContentType()
	a.Size = f.Size()
	if vs := f.Versions(); len(vs) > 0 {
		a.Versions = make(map[string]string, len(vs))
		for _, v := range vs {
			a.Versions[v.Suffix()] = v.URL()
		}
	}
	return a
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, recorddb.ErrNotFound), errors.Is(err, column.ErrUnknownColumn):
		return http.StatusNotFound
	case errors.Is(err, column.ErrTempExpired):
		return http.StatusGone
	case errors.Is(err, upload.ErrIntegrity),
		errors.Is(err, upload.ErrTemporaryPathMalformed),
		errors.Is(err, upload.ErrManipulation),
		errors.Is(err, sanitized.ErrUnsupportedSource):
		return http.StatusUnprocessableEntity
	case errors.Is(err, netfetch.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, netfetch.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, netfetch.ErrDownloadFailed), errors.Is(err, netfetch.ErrTooManyRedirects):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, api.ErrorResponse{Message: message}, status)
}
