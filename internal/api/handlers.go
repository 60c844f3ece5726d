package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/abmgate/abmgate/internal/abm"
	"github.com/abmgate/abmgate/internal/record"
	"github.com/abmgate/abmgate/internal/schema"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Operator runs one generic operation.
type Operator interface {
	Operate(ctx context.Context, req abm.Request) (*abm.Result, error)
}

// ReferenceResolver resolves a foreign key down to one referenced row.
type ReferenceResolver interface {
	ReferencedRows(ctx context.Context, table, column string, key record.Value) (*schema.ForeignKey, error)
}

// Pinger checks that the store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options tunes the HTTP surface.
type Options struct {
	CORSOrigins  []string
	RateLimit    float64 // requests per minute per client; 0 disables
	MaxBodyBytes int64
	TrustProxy   bool // take the client address from X-Forwarded-For / X-Real-IP
}

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	operator    Operator
	references  ReferenceResolver
	pinger      Pinger
	logger      *slog.Logger
	opts        Options
	rateLimiter *RateLimiter
}

// NewHandler creates a new API handler.
func NewHandler(operator Operator, references ReferenceResolver, pinger Pinger, logger *slog.Logger, opts Options) *Handler {
	h := &Handler{
		operator:   operator,
		references: references,
		pinger:     pinger,
		logger:     logger,
		opts:       opts,
	}
	if opts.RateLimit > 0 {
		h.rateLimiter = NewRateLimiter(opts.RateLimit, logger)
	}
	return h
}

// Routes builds the router.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if h.opts.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(requestLogger(h.logger))
	r.Use(chimw.Recoverer)

	r.Get("/", h.handleRoot)
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)

	r.Route("/api/abm", func(api chi.Router) {
		if len(h.opts.CORSOrigins) > 0 {
			api.Use(cors.Handler(cors.Options{
				AllowedOrigins: h.opts.CORSOrigins,
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
				MaxAge:         300,
			}))
		}
		if h.rateLimiter != nil {
			api.Use(h.rateLimiter.Wrap)
		}
		if h.opts.MaxBodyBytes > 0 {
			api.Use(func(next http.Handler) http.Handler {
				return LimitBodySize(next, h.opts.MaxBodyBytes)
			})
		}

		api.Get("/{table}/references/{column}/{key}", h.handleReferences)
		api.Post("/{table}/{method}", h.handleOperate)
		api.Post("/{table}/{method}/*", h.handleOperate)
	})
	return r
}

// Stop stops background goroutines. Should be called on graceful shutdown.
func (h *Handler) Stop() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

// API Response types for consistent format
type apiResponse[T any] struct {
	Success bool      `json:"success"`
	Data    T         `json:"data"`
	Error   *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes for API responses
const (
	ErrInvalidRequest    = "INVALID_REQUEST"
	ErrMissingField      = "MISSING_FIELD"
	ErrMissingPredicate  = "MISSING_PREDICATE"
	ErrUnknownMethod     = "UNKNOWN_METHOD"
	ErrMalformedBatch    = "MALFORMED_BATCH"
	ErrInvalidIdentifier = "INVALID_IDENTIFIER"
	ErrRequestTooLarge   = "REQUEST_TOO_LARGE"
	ErrNotFound          = "NOT_FOUND"
	ErrDatabaseError     = "DATABASE_ERROR"
	ErrUnavailable       = "UNAVAILABLE"
)

// respondJSON sends a successful JSON response with type-safe data
func (h *Handler) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	resp := apiResponse[any]{Success: true, Data: data}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// errorResponse is the response type for errors (no data field)
type errorResponse struct {
	Success bool      `json:"success"`
	Error   *apiError `json:"error,omitempty"`
}

// respondError sends an error JSON response (logs details server-side, sends safe message to client)
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, code string, clientMessage string, status int, internalErr error) {
	attrs := []any{
		slog.String("code", code),
		slog.String("message", clientMessage),
		slog.String("request_id", chimw.GetReqID(r.Context())),
	}
	if internalErr != nil {
		attrs = append(attrs, slog.String("error", internalErr.Error()))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Debug("request rejected", attrs...)
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	resp := errorResponse{
		Success: false,
		Error:   &apiError{Code: code, Message: clientMessage},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("failed to encode error response", slog.String("error", err.Error()))
	}
}

// readBody reads the request body, which may be empty but must otherwise be
// JSON. Returns false if reading fails (error response already sent).
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(w, r, ErrRequestTooLarge, "Request body too large", http.StatusRequestEntityTooLarge, err)
			return nil, false
		}
		h.respondError(w, r, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest, err)
		return nil, false
	}
	if len(bytes.TrimSpace(body)) > 0 && !json.Valid(body) {
		h.respondError(w, r, ErrInvalidRequest, "Invalid request body", http.StatusBadRequest, nil)
		return nil, false
	}
	return body, true
}

func (h *Handler) handleOperate(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	// Base64 may carry '/', so the predicate is the whole path tail.
	where := chi.URLParam(r, "*")
	if unescaped, err := url.PathUnescape(where); err == nil {
		where = unescaped
	}

	res, err := h.operator.Operate(r.Context(), abm.Request{
		Table:  chi.URLParam(r, "table"),
		Method: chi.URLParam(r, "method"),
		Where:  where,
		Body:   body,
	})
	if err != nil {
		h.respondOperationError(w, r, err)
		return
	}
	h.respondJSON(w, res.Data())
}

// respondOperationError maps the dispatcher's taxonomy onto status codes.
// Validation messages describe the caller's input and are returned as is;
// store failures are logged and replaced by a generic message.
func (h *Handler) respondOperationError(w http.ResponseWriter, r *http.Request, err error) {
	var code string
	switch {
	case errors.Is(err, abm.ErrMissingRequiredField):
		code = ErrMissingField
	case errors.Is(err, abm.ErrMissingPredicate):
		code = ErrMissingPredicate
	case errors.Is(err, abm.ErrUnknownMethod):
		code = ErrUnknownMethod
	case errors.Is(err, abm.ErrMalformedBatch):
		code = ErrMalformedBatch
	case errors.Is(err, abm.ErrIdentifierRejected):
		code = ErrInvalidIdentifier
	case errors.Is(err, abm.ErrMalformedBody):
		code = ErrInvalidRequest
	default:
		h.respondError(w, r, ErrDatabaseError, "Database operation failed", http.StatusInternalServerError, err)
		return
	}
	h.respondError(w, r, code, err.Error(), http.StatusBadRequest, err)
}

func (h *Handler) handleReferences(w http.ResponseWriter, r *http.Request) {
	table, column := chi.URLParam(r, "table"), chi.URLParam(r, "column")
	for _, id := range []struct{ kind, name string }{{"table", table}, {"column", column}} {
		if err := schema.CheckIdentifier(id.kind, id.name); err != nil {
			h.respondError(w, r, ErrInvalidIdentifier, err.Error(), http.StatusBadRequest, nil)
			return
		}
	}

	fk, err := h.references.ReferencedRows(r.Context(), table, column, record.String(chi.URLParam(r, "key")))
	if err != nil {
		h.respondError(w, r, ErrDatabaseError, "Failed to resolve reference", http.StatusInternalServerError, err)
		return
	}
	if fk == nil {
		h.respondError(w, r, ErrNotFound, "Column is not a resolvable foreign key", http.StatusNotFound, nil)
		return
	}
	h.respondJSON(w, fk)
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("API running"))
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := h.pinger.Ping(r.Context()); err != nil {
		h.respondError(w, r, ErrUnavailable, "Database unreachable", http.StatusServiceUnavailable, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
