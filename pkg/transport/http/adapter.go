package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/kikaiken/kikaiken/pkg/api"
	"github.com/kikaiken/kikaiken/pkg/observability"
	"github.com/kikaiken/kikaiken/pkg/storage"
	"github.com/kikaiken/kikaiken/pkg/transport"
)

// Adapter serves the kikaiken API over HTTP.
type Adapter struct {
	creator  transport.ReplyCreator
	backends Backends
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Backends are the optional collaborators behind the non-talk endpoints.
// A nil backend makes its endpoints answer 501.
type Backends struct {
	Keys     transport.KeyManager
	Records  transport.RecordReader
	Commands transport.CommandRunner
	Health   transport.HealthChecker
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64

	// Admin wraps the key administration and command endpoints, typically
	// with a scope check. Nil leaves them unguarded.
	Admin func(http.Handler) http.Handler

	// ReadyTimeout bounds the backend health check of /readyz.
	ReadyTimeout time.Duration
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize:  1 << 20,
		ReadyTimeout: 2 * time.Second,
	}
}

// NewAdapter creates an HTTP adapter. Middleware is applied to the
// ReplyCreator in the given order.
func NewAdapter(creator transport.ReplyCreator, backends Backends, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = DefaultConfig().MaxBodySize
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = DefaultConfig().ReadyTimeout
	}

	a := &Adapter{
		creator:  creator,
		backends: backends,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/talk", a.handleTalk(false))
	a.mux.HandleFunc("POST /v1/talk/stream", a.handleTalk(true))
	a.mux.HandleFunc("DELETE /v1/talk/{id}", a.handleCancelTalk)

	a.mux.Handle("GET /v1/apikeys", a.admin(a.handleListKeys))
	a.mux.Handle("POST /v1/apikeys", a.admin(a.handleAddKey))
	a.mux.Handle("DELETE /v1/apikeys/{id}", a.admin(a.handleDeleteKey))
	a.mux.Handle("POST /v1/commands", a.admin(a.handleCommand))

	a.mux.HandleFunc("GET /v1/users/{uid}/records", a.handleListRecords)

	a.mux.HandleFunc("GET /healthz", a.handleHealthz)
	a.mux.HandleFunc("GET /readyz", a.handleReadyz)

	return a
}

// Handler returns the http.Handler for this adapter, including X-Request-ID
// propagation and request metrics.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// InFlight returns the registry of running streamed talks.
func (a *Adapter) InFlight() *transport.InFlightRegistry {
	return a.inflight
}

func (a *Adapter) admin(h http.HandlerFunc) http.Handler {
	if a.config.Admin == nil {
		return h
	}
	return a.config.Admin(h)
}

// httpRequestIDMiddleware moves a client supplied X-Request-ID into the
// context, or generates one, and echoes it on the response.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = transport.NewRequestID()
		}
		r = r.WithContext(transport.ContextWithRequestID(r.Context(), id))
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

// isJSONContentType accepts an absent header or application/json with any
// parameters, such as charset=utf-8.
func isJSONContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	return err == nil && mt == "application/json"
}

// decodeJSON reads a JSON body into v and validates it. It writes the error
// response itself and reports whether decoding succeeded.
func (a *Adapter) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if !isJSONContentType(r.Header.Get("Content-Type")) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("content_type", "Content-Type must be application/json"),
			http.StatusUnsupportedMediaType,
		)
		return false
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.config.MaxBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			transport.WriteErrorResponse(w,
				api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", a.config.MaxBodySize)),
				http.StatusRequestEntityTooLarge,
			)
			return false
		}
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()),
			http.StatusBadRequest,
		)
		return false
	}

	if apiErr := api.Validate(v); apiErr != nil {
		transport.WriteAPIError(w, apiErr)
		return false
	}
	return true
}

// handleTalk handles POST /v1/talk and POST /v1/talk/stream.
func (a *Adapter) handleTalk(forceStream bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req api.TalkRequest
		if !a.decodeJSON(w, r, &req) {
			return
		}
		if forceStream {
			req.Stream = true
		}

		if req.Stream {
			a.handleStreamingTalk(w, r, &req)
			return
		}

		rw := newSSEReplyWriter(w, nil)
		if err := a.creator.CreateReply(r.Context(), &req, rw); err != nil {
			a.writeHandlerError(w, rw, err)
		}
	}
}

func (a *Adapter) handleStreamingTalk(w http.ResponseWriter, r *http.Request, req *api.TalkRequest) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var registeredID string
	rw := newSSEReplyWriter(w, func(id string) {
		registeredID = id
		a.inflight.Register(id, cancel)
	})

	err := a.creator.CreateReply(ctx, req, rw)

	if registeredID != "" {
		a.inflight.Remove(registeredID)
	}
	if err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleCancelTalk handles DELETE /v1/talk/{id}.
func (a *Adapter) handleCancelTalk(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !api.ValidateTalkID(id) {
		transport.WriteErrorResponse(w,
			api.NewInvalidRequestError("id", "malformed talk ID"),
			http.StatusBadRequest,
		)
		return
	}
	if !a.inflight.Cancel(id) {
		transport.WriteAPIError(w, api.NewNotFoundError("talk "+id+" is not running"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListKeys handles GET /v1/apikeys?show=&page=.
func (a *Adapter) handleListKeys(w http.ResponseWriter, r *http.Request) {
	if a.backends.Keys == nil {
		writeNotImplemented(w, "api key management")
		return
	}

	q := r.URL.Query()
	show := false
	if s := q.Get("show"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			transport.WriteAPIError(w, api.NewInvalidRequestError("show", "show must be a boolean"))
			return
		}
		show = v
	}
	page := 1
	if s := q.Get("page"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("page", "page must be a positive integer"))
			return
		}
		page = v
	}

	list, err := a.backends.Keys.ListKeys(r.Context(), show, page)
	if err != nil {
		writeBackendError(w, err, "api keys")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// handleAddKey handles POST /v1/apikeys.
func (a *Adapter) handleAddKey(w http.ResponseWriter, r *http.Request) {
	if a.backends.Keys == nil {
		writeNotImplemented(w, "api key management")
		return
	}

	var req api.APIKeyRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}

	key, err := a.backends.Keys.AddKey(r.Context(), &req)
	if err != nil {
		writeBackendError(w, err, "api key")
		return
	}
	writeJSON(w, http.StatusCreated, key)
}

// handleDeleteKey handles DELETE /v1/apikeys/{id}.
func (a *Adapter) handleDeleteKey(w http.ResponseWriter, r *http.Request) {
	if a.backends.Keys == nil {
		writeNotImplemented(w, "api key management")
		return
	}

	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		transport.WriteAPIError(w, api.NewInvalidRequestError("id", "id must be a positive integer"))
		return
	}

	if err := a.backends.Keys.DeleteKey(r.Context(), id); err != nil {
		writeBackendError(w, err, fmt.Sprintf("api key %d", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCommand handles POST /v1/commands.
func (a *Adapter) handleCommand(w http.ResponseWriter, r *http.Request) {
	if a.backends.Commands == nil {
		writeNotImplemented(w, "bot commands")
		return
	}

	var req api.CommandRequest
	if !a.decodeJSON(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, api.CommandResponse{Text: a.backends.Commands.Command(r.Context(), req.Command)})
}

// handleListRecords handles GET /v1/users/{uid}/records?limit=.
func (a *Adapter) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if a.backends.Records == nil {
		writeNotImplemented(w, "record listing")
		return
	}

	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 1 {
			transport.WriteAPIError(w, api.NewInvalidRequestError("limit", "limit must be a positive integer"))
			return
		}
		limit = v
	}

	list, err := a.backends.Records.ListRecords(r.Context(), r.PathValue("uid"), limit)
	if err != nil {
		writeBackendError(w, err, "records")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (a *Adapter) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok\n"))
}

// handleReadyz reports ready when the health backend answers.
func (a *Adapter) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if a.backends.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), a.config.ReadyTimeout)
		defer cancel()
		if err := a.backends.Health.HealthCheck(ctx); err != nil {
			transport.WriteErrorResponse(w, api.NewServerError("not ready: "+err.Error()), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready\n"))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeNotImplemented(w http.ResponseWriter, what string) {
	transport.WriteErrorResponse(w,
		api.NewInvalidRequestError("", what+" is not available"),
		http.StatusNotImplemented,
	)
}

// writeBackendError maps storage sentinels and API errors to responses.
func writeBackendError(w http.ResponseWriter, err error, what string) {
	var apiErr *api.APIError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		transport.WriteAPIError(w, api.NewNotFoundError(what+" not found"))
	case errors.Is(err, storage.ErrConflict):
		transport.WriteAPIError(w, api.NewConflictError(what+" already exists"))
	case errors.As(err, &apiErr):
		transport.WriteAPIError(w, apiErr)
	default:
		transport.WriteAPIError(w, api.NewServerError(err.Error()))
	}
}

// writeHandlerError writes an error from the ReplyCreator. Once streaming
// has begun it is sent as a talk.error event instead of a JSON document.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseReplyWriter, err error) {
	var apiErr *api.APIError
	if !errors.As(err, &apiErr) {
		apiErr = api.NewServerError(err.Error())
	}

	if rw.hasStartedStreaming() {
		if !rw.isCompleted() {
			rw.WriteEvent(context.Background(), api.TalkStreamEvent{Type: api.TalkEventError, Error: apiErr})
		}
		return
	}
	transport.WriteAPIError(w, apiErr)
}
