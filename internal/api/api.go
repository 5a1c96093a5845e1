// Package api serves the fluency assessment over plain HTTP/JSON.
//
// Endpoints:
//
//	POST /v1/assessments       run an assessment; 200 with the report or error JSON
//	POST /v1/compare           score a known transcript without transcription
//	GET  /v1/assessments       list recent stored assessments (store only)
//	GET  /v1/assessments/{id}  fetch a stored assessment (store only)
//
// An assessment that fails for a reason the caller can fix (silence, wrong
// sample rate, timeout) is still a 200: the body carries {"error": ...}
// exactly as the MCP tool returns it. Only a request that cannot be decoded
// is rejected with 400.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/MrWong99/fluency/internal/fluency"
	"github.com/MrWong99/fluency/internal/observe"
	"github.com/MrWong99/fluency/internal/reportstore"
)

// maxBodyBytes caps request bodies. Passages are short texts.
const maxBodyBytes = 1 << 20

// HeaderAssessmentID carries the ID of the assessment that produced a response.
const HeaderAssessmentID = "X-Assessment-ID"

// Assessor runs an assessment end to end. *fluency.Assessor satisfies it.
type Assessor interface {
	Assess(ctx context.Context, in fluency.Input) fluency.Outcome
}

// Store reads stored assessments. *reportstore.PostgresStore satisfies it.
type Store interface {
	Get(ctx context.Context, id string) (*reportstore.Entry, error)
	ListRecent(ctx context.Context, limit int) ([]reportstore.Entry, error)
}

// Handler serves the assessment endpoints.
type Handler struct {
	assessor Assessor
	store    Store
}

// New returns a [Handler]. store may be nil, in which case the read
// endpoints are not registered.
func New(a Assessor, store Store) *Handler {
	return &Handler{assessor: a, store: store}
}

// Register adds the routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/assessments", h.handleAssess)
	mux.HandleFunc("POST /v1/compare", h.handleCompare)
	if h.store != nil {
		mux.HandleFunc("GET /v1/assessments", h.handleList)
		mux.HandleFunc("GET /v1/assessments/{id}", h.handleGet)
	}
}

// handleAssess handles POST /v1/assessments.
func (h *Handler) handleAssess(w http.ResponseWriter, r *http.Request) {
	var in fluency.Input
	if !decodeBody(w, r, &in) {
		return
	}
	out := h.assessor.Assess(r.Context(), in)
	if out.ID != "" {
		w.Header().Set(HeaderAssessmentID, out.ID)
	}
	writeRaw(w, http.StatusOK, []byte(out.JSON()))
}

type compareRequest struct {
	OriginalText string `json:"original_text"`
	Transcript   string `json:"transcript"`
}

// handleCompare handles POST /v1/compare.
func (h *Handler) handleCompare(w http.ResponseWriter, r *http.Request) {
	var req compareRequest
	if !decodeBody(w, r, &req) {
		return
	}
	out := fluency.Evaluate(req.OriginalText, req.Transcript, nil)
	writeRaw(w, http.StatusOK, []byte(out.JSON()))
}

// handleGet handles GET /v1/assessments/{id}.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	e, err := h.store.Get(r.Context(), id)
	if err != nil {
		observe.Logger(r.Context()).Error("api: get assessment", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to load assessment")
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "assessment not found")
		return
	}
	w.Header().Set(HeaderAssessmentID, e.ID)
	writeRaw(w, http.StatusOK, e.Outcome)
}

// summary is one element of the list response.
type summary struct {
	ID           string          `json:"id"`
	AudioURI     string          `json:"audio_uri"`
	LanguageCode string          `json:"language_code"`
	Failed       bool            `json:"failed"`
	CreatedAt    time.Time       `json:"created_at"`
	Outcome      json.RawMessage `json:"outcome"`
}

// handleList handles GET /v1/assessments?limit=N.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		observe.Logger(r.Context()).Error("api: list assessments", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}
	out := make([]summary, len(entries))
	for i, e := range entries {
		out[i] = summary{
			ID:           e.ID,
			AudioURI:     e.AudioURI,
			LanguageCode: e.LanguageCode,
			Failed:       e.Failed,
			CreatedAt:    e.CreatedAt,
			Outcome:      e.Outcome,
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}
	writeRaw(w, http.StatusOK, data)
}

// decodeBody decodes the JSON request body into v. On failure it writes a
// 400 response and returns false.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		observe.Logger(r.Context()).Debug("api: invalid request body", "err", err)
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, msg string) {
	data, _ := json.Marshal(map[string]string{"error": msg})
	writeRaw(w, status, data)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
