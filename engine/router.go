package engine

import (
	"context"
	"embed"
	"encoding/json"
	"io/fs"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
)

//go:embed assets/*
var assetFS embed.FS

// Handler is the signature used by module routes.
type Handler func(r *http.Request, ps httprouter.Params) Response

type Router struct {
	router *httprouter.Router
}

func NewRouter() *Router {
	r := &Router{router: httprouter.New()}
	r.router.HandleMethodNotAllowed = true
	r.router.HandleOPTIONS = false
	r.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		r.serve(w, req, func(w http.ResponseWriter, req *http.Request) {
			Message(http.StatusMethodNotAllowed, "Method not allowed.").Write(w, req)
		})
	})

	assets, err := fs.Sub(assetFS, "assets")
	if err != nil {
		panic(err)
	}
	r.router.ServeFiles("/assets/*filepath", http.FS(assets))
	return r
}

// Serve wires up the stdlib http server to the engine.
func (r *Router) Serve(addr string) Proc {
	return func(ctx context.Context) error {
		svr := &http.Server{Handler: r, Addr: addr}
		go func() {
			<-ctx.Done()
			slog.Warn("gracefully shutting down http server...")
			svr.Shutdown(context.Background())
		}()
		if err := svr.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		slog.Info("the http server has shut down")
		return nil
	}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, rr *http.Request) { r.router.ServeHTTP(w, rr) }

// Handle registers a route that returns a Response.
func (r *Router) Handle(method, path string, fn Handler) {
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		r.serve(w, req, func(w http.ResponseWriter, req *http.Request) {
			resp := fn(req, ps)
			if resp == nil {
				resp = Empty()
			}
			resp.Write(w, req)
		})
	})
}

// HandleFunc registers a plain http.HandlerFunc.
func (r *Router) HandleFunc(method, path string, fn http.HandlerFunc) {
	r.router.Handle(method, path, func(w http.ResponseWriter, req *http.Request, _ httprouter.Params) {
		r.serve(w, req, fn)
	})
}

func (r *Router) serve(w http.ResponseWriter, req *http.Request, fn http.HandlerFunc) {
	start := time.Now()

	id := uuid.NewString()
	w.Header().Set("X-Request-Id", id)
	req = req.WithContext(withRequestID(req.Context(), id))

	ww := &responseWrapper{ResponseWriter: w, status: 200}
	fn(ww, req)
	slog.Info("http request", "url", req.URL.Path, "method", req.Method, "userAgent", req.UserAgent(), "latencyMS", time.Since(start).Milliseconds(), "status", ww.status, "requestID", id)
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id assigned to the current request by the router, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// SystemError logs the given message+args while returning a generic 500 error.
func SystemError(w http.ResponseWriter, msg string, args ...any) {
	http.Error(w, "Internal error - please try again later", 500)
	slog.Error(msg, args...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("error while encoding json response", "error", err)
	}
}

type responseWrapper struct {
	http.ResponseWriter
	status int
}

func (w *responseWrapper) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
