package engine

import (
	"log/slog"
	"net/http"

	"github.com/TheLab-ms/tipjar/internal/templates"
)

// Response is returned by Handlers and written to the client by the router.
type Response interface {
	Write(w http.ResponseWriter, r *http.Request)
}

type responseFunc func(w http.ResponseWriter, r *http.Request)

func (f responseFunc) Write(w http.ResponseWriter, r *http.Request) { f(w, r) }

// JSON responds 200 with v encoded as json.
func JSON(v any) Response { return JSONStatus(http.StatusOK, v) }

func JSONStatus(status int, v any) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, v)
	})
}

// Message responds with {"message": msg}.
func Message(status int, msg string) Response {
	return JSONStatus(status, map[string]string{"message": msg})
}

// Error logs err and returns a generic 500 error.
func Error(err error) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		SystemError(w, err.Error(), "url", r.URL.Path, "requestID", RequestID(r.Context()))
	})
}

// Component renders an html component with the given status.
func Component(status int, c templates.Component) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		if err := c.Render(r.Context(), w); err != nil {
			slog.Error("error while rendering component", "error", err, "url", r.URL.Path)
		}
	})
}

func Bytes(contentType string, b []byte) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		w.Write(b)
	})
}

// Redirect sends a 303 to the given url.
func Redirect(url string) Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, url, http.StatusSeeOther)
	})
}

func Empty() Response {
	return responseFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}
