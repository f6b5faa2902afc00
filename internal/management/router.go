// Package management serves the management HTTP API: JSON operations, the subsystem document and
// the metrics endpoint.
package management

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/infinispan/infinispan-subsystem/internal/model"
)

const maxOperationBytes = 1 << 20

// Backend executes operations and renders the model as a document.
type Backend interface {
	Execute(ctx context.Context, op model.Operation) model.Result
	WriteXML(w io.Writer) error
}

type handler struct {
	backend Backend
	logger  zerolog.Logger
}

// NewRouter routes POST /management, GET /subsystem.xml and GET /healthz; metrics is served on
// GET /metrics when not nil.
func NewRouter(backend Backend, metrics http.Handler, logger zerolog.Logger) chi.Router {
	h := &handler{backend: backend, logger: logger.With().Str("component", "management").Logger()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Post("/management", h.execute)
	r.Get("/subsystem.xml", h.document)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}
	return r
}

func (h *handler) execute(w http.ResponseWriter, r *http.Request) {
	var op model.Operation
	if err := json.NewDecoder(io.LimitReader(r.Body, maxOperationBytes)).Decode(&op); err != nil {
		h.writeResult(w, r, http.StatusBadRequest, model.Failure("invalid operation: %v", err))
		return
	}
	res := h.backend.Execute(r.Context(), op)
	status := http.StatusOK
	if res.Failed() {
		status = http.StatusInternalServerError
	}
	h.logger.Debug().
		Str("request_id", middleware.GetReqID(r.Context())).
		Str("operation", op.String()).
		Str("outcome", res.Outcome).
		Msg("operation executed")
	h.writeResult(w, r, status, res)
}

func (h *handler) writeResult(w http.ResponseWriter, r *http.Request, status int, res model.Result) {
	b, err := json.Marshal(res)
	if err != nil {
		h.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("marshal result")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

func (h *handler) document(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.backend.WriteXML(&buf); err != nil {
		h.logger.Error().Err(err).Str("request_id", middleware.GetReqID(r.Context())).Msg("write subsystem document")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	_, _ = w.Write(buf.Bytes())
}
