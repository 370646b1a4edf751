package http

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// statusResponseWriter запоминает статус ответа для журнала
type statusResponseWriter struct {
	http.ResponseWriter
	status int
}

// WriteHeader сохраняет статус и вызывает оригинальный WriteHeader
func (w *statusResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// LoggingMiddleware пишет в журнал каждый запрос и панику; панику пробрасывает дальше
func LoggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			srw := &statusResponseWriter{ResponseWriter: w, status: http.StatusOK}
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic while serving request",
						"method", r.Method, "path", r.URL.Path, "status", http.StatusInternalServerError,
						"duration_ms", time.Since(start).Milliseconds(), "panic", rec)
					panic(rec)
				}
			}()
			next.ServeHTTP(srw, r)
			level := slog.LevelInfo
			if srw.status >= http.StatusInternalServerError {
				level = slog.LevelError
			}
			logger.Log(r.Context(), level, "request",
				"method", r.Method, "path", r.URL.Path, "status", srw.status,
				"duration_ms", time.Since(start).Milliseconds())
		})
	}
}

// AllowedHostsMiddleware отклоняет запросы, чей Host не входит в список.
// "*" разрешает всё, запись с точкой в начале (".example.com") разрешает домен и поддомены
func AllowedHostsMiddleware(allowed []string) mux.MiddlewareFunc {
	patterns := make([]string, 0, len(allowed))
	for _, h := range allowed {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			patterns = append(patterns, h)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !hostAllowed(r.Host, patterns) {
				slog.Warn("invalid host header", "host", r.Host)
				writeError(w, http.StatusBadRequest, ErrorResponse{codeBadRequest, "invalid host header", nil})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func hostAllowed(hostport string, patterns []string) bool {
	host := hostport
	if h, _, err := net.SplitHostPort(hostport); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	for _, p := range patterns {
		switch {
		case p == "*":
			return true
		case strings.HasPrefix(p, "."):
			if host == p[1:] || strings.HasSuffix(host, p) {
				return true
			}
		case host == p:
			return true
		}
	}
	return false
}

// RouterConfig задаёт параметры сборки HTTP-обработчика
type RouterConfig struct {
	AllowedHosts []string
	CORSOrigins  []string
	Debug        bool
}

// NewRouter собирает маршруты и middleware: восстановление после паники, CORS, проверка Host, журнал
func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, ErrorResponse{codeNotFound, "Not found.", nil})
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorResponse{codeBadRequest,
			`Method "` + req.Method + `" not allowed.`, nil})
	})
	r.Use(LoggingMiddleware(slog.Default()))
	r.Use(AllowedHostsMiddleware(cfg.AllowedHosts))
	h.RegisterRoutes(r)

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.CORSOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Requested-With"}),
		handlers.ExposedHeaders([]string{"Content-Disposition"}),
	)
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(cfg.Debug),
	)
	return recovery(cors(r))
}
