// Package health serves the liveness and readiness probes of the fluency
// server.
//
// GET /healthz answers 200 as long as the process serves HTTP. GET /readyz
// runs every registered [Checker] concurrently and answers 200 only when all
// of them pass, 503 otherwise. Both answer with
//
//	{"status":"ok"|"fail","checks":{"<name>":"ok"|"fail: <reason>"}}
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// checkTimeout bounds each readiness check.
const checkTimeout = 5 * time.Second

const (
	statusOK   = "ok"
	statusFail = "fail"
)

// Checker probes one dependency. Check returns nil when it is usable and
// must honour ctx.
type Checker struct {
	Name  string
	Check func(ctx context.Context) error
}

type result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probes. The checker list is fixed by [New].
type Handler struct {
	checkers []Checker
}

// New returns a [Handler] evaluating checkers on every readiness probe.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Register mounts both probes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, result{Status: statusOK})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	res := result{Status: statusOK, Checks: h.run(r.Context())}
	code := http.StatusOK
	for _, v := range res.Checks {
		if v != statusOK {
			res.Status = statusFail
			code = http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, res)
}

// run evaluates all checkers in parallel, each under its own timeout.
func (h *Handler) run(ctx context.Context) map[string]string {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make(map[string]string, len(h.checkers))
	)
	for _, c := range h.checkers {
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()

			v := statusOK
			if err := c.Check(cctx); err != nil {
				v = statusFail + ": " + err.Error()
			}
			mu.Lock()
			out[c.Name] = v
			mu.Unlock()
		})
	}
	wg.Wait()
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}
