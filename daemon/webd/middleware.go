package webd

import (
	"io"
	"log/slog"
	"net/http"
	"strings"

	ghandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// tokenAuthenticationMiddleware requires validToken as a Bearer token
// in the Authorization header, or as the api_token query parameter.
// An empty validToken allows all requests.
func tokenAuthenticationMiddleware(validToken string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validToken == "" {
				slog.Warn("No backfill token set, allowing all requests", "url", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token == "" {
				// eg. /backfill?api_token=asdfasdfb
				token = r.URL.Query().Get("api_token")
			}

			if token != validToken {
				slog.Warn("Invalid token",
					"method", r.Method, "url", r.URL.Path,
					"remote", r.RemoteAddr, "user-agent", r.UserAgent())
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func permissiveCorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Add("Access-Control-Allow-Headers", "Origin, X-Requested-With, Content-Type, Accept, Authorization")
		next.ServeHTTP(w, r)
	})
}

func contentTypeMiddlewareFunc(contentType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", contentType)
			next.ServeHTTP(w, r)
		})
	}
}

// https://github.com/gorilla/mux#middleware

// loggingMiddleware writes one access log record per request to the daemon logger.
func (s *WebDaemon) loggingMiddleware(next http.Handler) http.Handler {
	return ghandlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, p ghandlers.LogFormatterParams) {
		remote := p.Request.RemoteAddr
		for _, v := range p.Request.Header.Values("X-Forwarded-For") {
			remote += "->" + v
		}
		level := slog.LevelInfo
		if p.StatusCode >= 500 {
			level = slog.LevelWarn
		}
		s.logger.Log(p.Request.Context(), level, "HTTP",
			"remote", remote,
			"method", p.Request.Method,
			"uri", p.URL.RequestURI(),
			"proto", p.Request.Proto,
			"status", p.StatusCode,
			"size", p.Size,
		)
	})
}
