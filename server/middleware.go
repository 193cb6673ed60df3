package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// handle registers fn under pattern with logging and metrics labelled by the
// route pattern rather than the raw path.
func (s *Server) handle(mux *http.ServeMux, pattern string, fn http.HandlerFunc) {
	mux.Handle(pattern, s.instrument(pattern, fn))
}

func (s *Server) instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		dur := time.Since(start)
		if s.opts.Metrics != nil {
			s.opts.Metrics.RecordHTTPRequest(r.Method, route, strconv.Itoa(sw.status), dur)
		}
		args := []any{"method", r.Method, "path", r.URL.Path, "route", route, "status", sw.status, "duration_ms", dur.Milliseconds()}
		if sw.status >= http.StatusInternalServerError {
			s.logger.Error("http.request", args...)
			return
		}
		s.logger.Info("http.request", args...)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("http.panic", "path", r.URL.Path, "panic", fmt.Sprintf("%v", rec))
				writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
