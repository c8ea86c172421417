// Package httpapi exposes the accountability daemon over HTTP: trace
// submission and read access to the ledger.
package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	json "github.com/nikkolasg/hexjson"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eureka-network/proof-experiments/commit"
	"github.com/eureka-network/proof-experiments/common/log"
	"github.com/eureka-network/proof-experiments/core"
	"github.com/eureka-network/proof-experiments/ledger"
	lerrors "github.com/eureka-network/proof-experiments/ledger/errors"
	"github.com/eureka-network/proof-experiments/metrics"
	"github.com/eureka-network/proof-experiments/trace"
)

// maxTraceBody bounds a submitted trace. Witnesses are already capped per
// record so anything past this is garbage.
const maxTraceBody = 8 << 20

// New returns the HTTP handler serving the public API of the given daemon.
func New(d *core.Daemon, l log.Logger) http.Handler {
	h := &handler{daemon: d, log: l.Named("http")}

	r := chi.NewRouter()
	r.Use(callMetrics)
	r.Post("/submit", h.Submit)
	r.Get("/ledger/latest", h.Latest)
	r.Get("/ledger/{node}", h.NodeEntries)
	r.Get("/ledger/{node}/{stage}", h.NodeStageEntries)
	r.Get("/health", h.Health)
	r.Handle("/metrics", metrics.Handler())
	return r
}

func callMetrics(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(metrics.HTTPCallCounter, next)
}

type handler struct {
	daemon *core.Daemon
	log    log.Logger
}

// Submit decodes a canonical trace from the request body, runs it through
// the daemon and returns the resulting ledger entries.
func (h *handler) Submit(w http.ResponseWriter, r *http.Request) {
	buf, err := io.ReadAll(io.LimitReader(r.Body, maxTraceBody+1))
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	if len(buf) > maxTraceBody {
		h.fail(w, r, http.StatusRequestEntityTooLarge, errors.New("trace body too large"))
		return
	}

	var tr trace.ExecutionTrace
	if err := tr.Unmarshal(buf); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	entries, err := h.daemon.Submit(r.Context(), &tr)
	switch {
	case err == nil:
	case errors.Is(err, trace.ErrIncomplete), errors.Is(err, commit.ErrMalformedTrace):
		h.fail(w, r, http.StatusBadRequest, err)
		return
	case errors.Is(err, lerrors.ErrWriteConflict):
		h.fail(w, r, http.StatusConflict, err)
		return
	default:
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, entries)
}

// Latest returns the most recently keyed ledger entry.
func (h *handler) Latest(w http.ResponseWriter, r *http.Request) {
	e, err := h.daemon.Store().Last(r.Context())
	if errors.Is(err, lerrors.ErrNoEntry) {
		h.fail(w, r, http.StatusNotFound, err)
		return
	}
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, e)
}

// NodeEntries returns all entries recorded for a node, optionally bounded
// by ?from= and ?to= RFC 3339 timestamps.
func (h *handler) NodeEntries(w http.ResponseWriter, r *http.Request) {
	h.selectEntries(w, r, ledger.Filter{NodeID: chi.URLParam(r, "node")})
}

// NodeStageEntries narrows NodeEntries down to a single pipeline stage.
func (h *handler) NodeStageEntries(w http.ResponseWriter, r *http.Request) {
	stage := trace.StageID(chi.URLParam(r, "stage"))
	if !stage.Valid() {
		h.fail(w, r, http.StatusBadRequest, errors.New("unknown stage"))
		return
	}
	h.selectEntries(w, r, ledger.Filter{NodeID: chi.URLParam(r, "node"), Stage: stage})
}

func (h *handler) selectEntries(w http.ResponseWriter, r *http.Request, f ledger.Filter) {
	var err error
	if f.After, f.Before, err = timeRange(r); err != nil {
		h.fail(w, r, http.StatusBadRequest, err)
		return
	}

	entries := []*ledger.Entry{}
	err = ledger.Select(r.Context(), h.daemon.Store(), f, func(e *ledger.Entry) bool {
		entries = append(entries, e)
		return true
	})
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, entries)
}

// Health reports liveness and the current ledger size.
func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	n, err := h.daemon.Store().Len(r.Context())
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, r, map[string]interface{}{"status": "ok", "entries": n})
}

func timeRange(r *http.Request) (after, before time.Time, err error) {
	if from := r.URL.Query().Get("from"); from != "" {
		if after, err = time.Parse(time.RFC3339, from); err != nil {
			return
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		before, err = time.Parse(time.RFC3339, to)
	}
	return
}

func (h *handler) writeJSON(w http.ResponseWriter, r *http.Request, body interface{}) {
	data, err := json.Marshal(body)
	if err != nil {
		h.fail(w, r, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
	h.log.Infow("served", "remote", r.RemoteAddr, "path", r.URL.Path, "status", http.StatusOK)
}

func (h *handler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(map[string]string{"error": err.Error()})
	w.Write(data)
	h.log.Warnw("request failed", "remote", r.RemoteAddr, "path", r.URL.Path, "status", status, "err", err)
}
