// Package httpapi exposes the controller mappings over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/glimte/aopdemo/aop"
	"github.com/glimte/aopdemo/contracts"
	"github.com/glimte/aopdemo/controller"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/text/language"
)

// HeaderRequestID carries the request ID on requests and responses
const HeaderRequestID = "X-Request-Id"

// Invoker calls an operation by name; *aop.Proxy implements it
type Invoker interface {
	Invoke(ctx context.Context, name string, args ...any) (any, error)
}

type handler struct {
	invoker       Invoker
	basePath      string
	defaultLocale language.Tag
	logger        *slog.Logger
	extra         map[string]http.Handler
}

// Option configures the handler
type Option func(*handler)

// WithBasePath mounts the mappings under basePath
func WithBasePath(basePath string) Option {
	return func(h *handler) {
		h.basePath = strings.TrimRight(basePath, "/")
	}
}

// WithDefaultLocale sets the locale used when Accept-Language is missing
func WithDefaultLocale(locale language.Tag) Option {
	return func(h *handler) {
		h.defaultLocale = locale
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(h *handler) {
		h.logger = logger
	}
}

// WithHandler mounts an additional handler at path, outside the base path
func WithHandler(path string, next http.Handler) Option {
	return func(h *handler) {
		h.extra[path] = next
	}
}

// NewHandler creates the router serving every controller mapping. Every
// response, including 404 and 405 replies, carries a request ID and is logged.
func NewHandler(invoker Invoker, options ...Option) http.Handler {
	h := &handler{
		invoker:       invoker,
		defaultLocale: language.AmericanEnglish,
		logger:        slog.Default(),
		extra:         make(map[string]http.Handler),
	}

	for _, opt := range options {
		opt(h)
	}

	router := mux.NewRouter()

	for path, next := range h.extra {
		router.Handle(path, next)
	}
	for _, m := range controller.Mappings() {
		router.HandleFunc(h.basePath+"/"+m.Path, h.invoke(m)).Methods(http.MethodGet, http.MethodPost)
	}
	router.NotFoundHandler = http.HandlerFunc(h.notFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.methodNotAllowed)

	// mux skips Use middleware for unmatched requests
	return h.requestID(h.logRequests(h.recoverPanics(router)))
}

func (h *handler) invoke(m controller.Mapping) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		locale := controller.ResolveLocale(r.Header.Get("Accept-Language"), h.defaultLocale)
		request := &controller.WebRequest{
			URI:    r.URL.Path,
			Client: clientAddr(r.RemoteAddr),
			Method: r.Method,
		}

		result, err := h.invoker.Invoke(r.Context(), m.Operation, m.Args(locale, request)...)
		if err != nil {
			h.writeError(w, r, err)
			return
		}

		switch v := result.(type) {
		case nil:
			w.WriteHeader(http.StatusOK)
		case string:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(v))
		default:
			writeJSON(w, http.StatusOK, v)
		}
	}
}

func (h *handler) notFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, contracts.NewErrorReply(r.URL.Path,
		fmt.Errorf("%w: %s", aop.ErrNoSuchOperation, r.URL.Path)))
}

func (h *handler) methodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", strings.Join([]string{http.MethodGet, http.MethodPost}, ", "))
	writeJSON(w, http.StatusMethodNotAllowed, contracts.NewErrorReply(r.URL.Path,
		fmt.Errorf("%w: %s %s", contracts.ErrMethodNotAllowed, r.Method, r.URL.Path)))
}

func (h *handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	reply := contracts.NewErrorReply(r.URL.Path, err)
	writeJSON(w, statusFor(reply.ErrorCode), reply)
}

func statusFor(code string) int {
	switch code {
	case contracts.CodeNoSuchOperation:
		return http.StatusNotFound
	case contracts.CodeThrottled:
		return http.StatusTooManyRequests
	case contracts.CodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func clientAddr(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func (h *handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		next.ServeHTTP(rec, r)

		h.logger.Info("request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
			"requestId", w.Header().Get(HeaderRequestID),
		)
	})
}

func (h *handler) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				if v == http.ErrAbortHandler {
					panic(v)
				}
				h.logger.Error("handler panicked", "path", r.URL.Path, "panic", v)
				writeJSON(w, http.StatusInternalServerError,
					contracts.NewErrorReply(r.URL.Path, errors.New("internal error")))
			}
		}()
		next.ServeHTTP(w, r)
	})
}
