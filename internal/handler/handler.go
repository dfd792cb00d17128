package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/casesim/internal/export"
	"github.com/pavelanni/casesim/internal/generate"
	appI18n "github.com/pavelanni/casesim/internal/i18n"
	"github.com/pavelanni/casesim/internal/model"
	"github.com/pavelanni/casesim/internal/review"
	"github.com/pavelanni/casesim/internal/search"
	"github.com/pavelanni/casesim/internal/store"
	"github.com/pavelanni/casesim/internal/validate"
)

const maxBodyBytes = 1 << 20

// CaseGenerator produces a validated case directly from a language model.
type CaseGenerator interface {
	GenerateCase(ctx context.Context, specialty string, difficulty model.Difficulty) (model.Case, error)
}

// Deps are the services behind the API. Only Saves is required; nil
// services fall back to their offline behavior.
type Deps struct {
	Saves   store.Saves
	Cases   *generate.Service
	CaseGen CaseGenerator
	Reviews *review.Reconciler
	Search  *search.Service
	Config  model.ServerConfig
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	saves   store.Saves
	cases   *generate.Service
	caseGen CaseGenerator
	reviews *review.Reconciler
	search  *search.Service
	now     func() time.Time
	newID   func() string
}

// New creates a new Handler.
func New(d Deps) *Handler {
	h := &Handler{
		saves:   d.Saves,
		cases:   d.Cases,
		caseGen: d.CaseGen,
		reviews: d.Reviews,
		search:  d.Search,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	if h.cases == nil {
		h.cases = generate.NewService(nil, 0)
	}
	if h.reviews == nil {
		h.reviews = review.NewReconciler(nil, 0, d.Config.MaxFeedback)
	}
	if h.search == nil {
		h.search = search.NewService(nil, nil, 0)
	}
	return h
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/case-gen", h.handleCaseGen)
		r.Post("/cases", h.handleObtainCase)
		r.Post("/score", h.handleScore)
		r.Post("/grade", h.handleGrade)
		r.Get("/search", h.handleSearch)
		r.Post("/search", h.handleSearch)
		r.Post("/summarize", h.handleSummarize)
		r.Get("/saves", h.handleListSaves)
		r.Post("/saves", h.handleCreateSave)
		r.Delete("/saves/{id}", h.handleDeleteSave)
		r.Get("/saves/{id}/export", h.handleExport)
	})
}

type caseRequest struct {
	Specialty  string           `json:"specialty"`
	Difficulty model.Difficulty `json:"difficulty"`
}

// attemptRequest is the grading body. "case" is accepted as an alias of
// "caseJson".
type attemptRequest struct {
	CaseJSON   json.RawMessage       `json:"caseJson"`
	Case       json.RawMessage       `json:"case"`
	Submission model.Submission      `json:"submission"`
	Score      *model.ScoreBreakdown `json:"score,omitempty"`
}

type obtainResponse struct {
	Case     model.Case `json:"case"`
	Fallback bool       `json:"fallback"`
	Warning  string     `json:"warning,omitempty"`
}

type gradeResponse struct {
	model.ScoreBreakdown
	Degraded bool   `json:"degraded"`
	Warning  string `json:"warning,omitempty"`
}

type searchRequest struct {
	Q string `json:"q"`
	N int    `json:"n"`
}

type summarizeRequest struct {
	Q        string          `json:"q"`
	Snippets []model.Snippet `json:"snippets"`
}

type errorResponse struct {
	Error string `json:"error"`
	Path  string `json:"path,omitempty"`
	Rule  string `json:"rule,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": model.AppVersion})
}

func (h *Handler) handleCaseGen(w http.ResponseWriter, r *http.Request) {
	if h.caseGen == nil {
		writeError(w, http.StatusServiceUnavailable, errors.New("no language model configured"))
		return
	}
	req, ok := h.decodeCaseRequest(w, r)
	if !ok {
		return
	}
	c, err := h.caseGen.GenerateCase(r.Context(), req.Specialty, req.Difficulty)
	if err != nil {
		slog.Error("case generation failed", "specialty", req.Specialty, "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *Handler) handleObtainCase(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeCaseRequest(w, r)
	if !ok {
		return
	}
	res := h.cases.Obtain(r.Context(), req.Specialty, req.Difficulty)
	resp := obtainResponse{Case: res.Case, Fallback: res.Fallback}
	if res.Fallback {
		resp.Warning = appI18n.Td(r.Context(), "GenerationFallback", map[string]any{
			"Specialty": res.Case.Specialty,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleScore(w http.ResponseWriter, r *http.Request) {
	c, sub, _, ok := h.decodeAttempt(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, review.LocalOnly(c, sub))
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	c, sub, _, ok := h.decodeAttempt(w, r)
	if !ok {
		return
	}
	out := h.reviews.Reconcile(r.Context(), c, sub)
	resp := gradeResponse{ScoreBreakdown: out.Score, Degraded: out.Degraded}
	if out.Degraded {
		resp.Warning = appI18n.T(r.Context(), "ReviewUnavailable")
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if r.Method == http.MethodPost {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	} else {
		req.Q = r.URL.Query().Get("q")
		if n := r.URL.Query().Get("n"); n != "" {
			v, err := strconv.Atoi(n)
			if err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid n %q", n))
				return
			}
			req.N = v
		}
	}
	writeJSON(w, http.StatusOK, h.search.Search(r.Context(), req.Q, req.N))
}

func (h *Handler) handleSummarize(w http.ResponseWriter, r *http.Request) {
	var req summarizeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, h.search.Summarize(r.Context(), req.Q, req.Snippets))
}

func (h *Handler) handleListSaves(w http.ResponseWriter, r *http.Request) {
	all, err := h.saves.LoadAll(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if all == nil {
		all = []model.SaveEntry{}
	}
	writeJSON(w, http.StatusOK, all)
}

func (h *Handler) handleCreateSave(w http.ResponseWriter, r *http.Request) {
	c, sub, prior, ok := h.decodeAttempt(w, r)
	if !ok {
		return
	}
	sub.Mgmt = sub.ClampedMgmt()
	if sub.Mgmt == nil {
		sub.Mgmt = []string{}
	}
	if sub.Picks == nil {
		sub.Picks = []string{}
	}
	score := h.reviews.Rescore(c, sub, prior)

	entry := model.SaveEntry{
		ID:         h.newID(),
		CreatedAt:  h.now().UnixMilli(),
		Specialty:  c.Specialty,
		Difficulty: c.Difficulty,
		Case:       c,
		Submission: sub,
		Score:      score,
		Version:    model.AppVersion,
	}
	if err := h.saves.Save(r.Context(), entry); err != nil {
		slog.Error("save attempt failed", "case_id", c.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	slog.Info("attempt saved", "id", entry.ID, "case_id", c.ID, "total", entry.Score.Total)
	writeJSON(w, http.StatusCreated, entry)
}

func (h *Handler) handleDeleteSave(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.saves.Delete(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	id := chi.URLParam(r, "id")
	entry, err := store.Find(r.Context(), h.saves, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entry == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("save %q not found", id))
		return
	}
	body, err := export.Render(*entry, format)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.Filename(*entry, format)))
	if _, err := w.Write(body); err != nil {
		slog.Error("write export", "id", id, "error", err)
	}
}

func (h *Handler) decodeCaseRequest(w http.ResponseWriter, r *http.Request) (caseRequest, bool) {
	var req caseRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return req, false
	}
	if req.Difficulty == 0 {
		req.Difficulty = model.DifficultyMedium
	}
	if !req.Difficulty.Valid() {
		writeError(w, http.StatusBadRequest, &validate.Error{
			Path: "difficulty",
			Rule: validate.RuleEnum,
			Msg:  fmt.Sprintf("must be 1, 2 or 3, got %d", req.Difficulty),
		})
		return req, false
	}
	req.Specialty = strings.TrimSpace(req.Specialty)
	return req, true
}

// decodeAttempt reads {caseJson, submission, score?}. The case is validated
// the same way as any case entering the application.
func (h *Handler) decodeAttempt(w http.ResponseWriter, r *http.Request) (model.Case, model.Submission, *model.ScoreBreakdown, bool) {
	var req attemptRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return model.Case{}, model.Submission{}, nil, false
	}
	raw := req.CaseJSON
	if len(raw) == 0 || string(raw) == "null" {
		raw = req.Case
	}
	if len(raw) == 0 || string(raw) == "null" {
		writeError(w, http.StatusBadRequest, &validate.Error{
			Path: "caseJson",
			Rule: validate.RuleRequired,
			Msg:  "is required",
		})
		return model.Case{}, model.Submission{}, nil, false
	}
	c, err := validate.Parse(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return model.Case{}, model.Submission{}, nil, false
	}
	return c, req.Submission, req.Score, true
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var verr *validate.Error
	if errors.As(err, &verr) {
		resp.Path = verr.Path
		resp.Rule = string(verr.Rule)
	}
	writeJSON(w, status, resp)
}
