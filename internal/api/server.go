package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"pdfa-converter/internal/admission"
	"pdfa-converter/internal/compression"
	"pdfa-converter/internal/config"
	"pdfa-converter/internal/format"
	"pdfa-converter/internal/jobs"
	"pdfa-converter/internal/models"
	"pdfa-converter/internal/telemetry"
)

// Server wires HTTP handlers for the conversion API.
type Server struct {
	cfg     config.Config
	manager *jobs.Manager
	limiter *admission.Limiter
}

// New constructs the API server.
func New(cfg config.Config, m *jobs.Manager, limiter *admission.Limiter) *Server {
	return &Server{
		cfg:     cfg,
		manager: m,
		limiter: limiter,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Post("/jobs", s.handleSubmit)
	r.Get("/jobs/{id}", s.handleGetJob)
	r.Post("/jobs/{id}/cancel", s.handleCancel)
	return r
}

type submitRequest struct {
	Inputs     []string           `json:"inputs"`
	PageOrder  []int              `json:"page_order"`
	Languages  []string           `json:"languages"`
	PDFALevel  int                `json:"pdfa_level"`
	OCR        bool               `json:"ocr"`
	SkipTagged bool               `json:"skip_tagged"`
	Compress   compression.Params `json:"compression"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	owner := ownerFromRequest(r)
	if s.limiter != nil {
		allowed, _, err := s.limiter.Allow(r.Context(), owner)
		if err != nil {
			http.Error(w, "admission error", http.StatusInternalServerError)
			return
		}
		if !allowed {
			telemetry.AdmissionRejects.Inc()
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
	}

	job, err := s.manager.Submit(r.Context(), jobs.SubmitParams{
		Inputs:      req.Inputs,
		PageOrder:   req.PageOrder,
		Languages:   req.Languages,
		PDFALevel:   req.PDFALevel,
		OCR:         req.OCR,
		SkipTagged:  req.SkipTagged,
		Compression: req.Compress,
		Owner:       owner,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	telemetry.SubmittedCounter.Inc()

	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.manager.Lookup(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.Cancel(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func ownerFromRequest(r *http.Request) string {
	if v := r.Header.Get("X-User-ID"); v != "" {
		return v
	}
	return "default"
}

// writeError maps domain errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var (
		verr *models.ValidationError
		uerr *format.UnsupportedError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &uerr):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, jobs.ErrJobNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, jobs.ErrInvalidTransition):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
