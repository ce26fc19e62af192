// logging.go — журнал HTTP-запросов tempshare через slog.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// tokenRoutePrefix — путь погашения одноразового токена. Сам токен в журнал не пишется.
const tokenRoutePrefix = "/api/download/token/"

// responseWriter перехватывает статус и число отправленных байт.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int64
	wroteHeader bool
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController.
func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// RequestLogger пишет одну строку на запрос.
//
// Уровень: ERROR для 5xx, WARN для 4xx, DEBUG для успешных health-проб
// и метрик, иначе INFO. Для загрузок добавляются uploadId, номер части
// и заявленный размер тела.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "http"))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", logPath(r.URL.Path)),
				slog.Int("status", wrapped.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes_out", wrapped.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if r.Method == http.MethodPost && r.ContentLength > 0 {
				attrs = append(attrs, slog.Int64("bytes_in", r.ContentLength))
			}
			attrs = append(attrs, uploadAttrs(r)...)
			if reqID := chimw.GetReqID(r.Context()); reqID != "" {
				attrs = append(attrs, slog.String("request_id", reqID))
			}

			logger.LogAttrs(r.Context(), requestLevel(r.URL.Path, wrapped.statusCode), "HTTP запрос", attrs...)
		})
	}
}

func requestLevel(path string, status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	case strings.HasPrefix(path, "/health/") || path == "/metrics":
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// logPath скрывает одноразовый токен скачивания.
func logPath(path string) string {
	if hasSingleSegment(path, tokenRoutePrefix) {
		return tokenRoutePrefix + "***"
	}
	return path
}

// uploadAttrs извлекает параметры chunked- и direct-загрузок из query.
func uploadAttrs(r *http.Request) []slog.Attr {
	if !strings.HasPrefix(r.URL.Path, "/api/upload/") || r.URL.RawQuery == "" {
		return nil
	}
	q := r.URL.Query()
	var attrs []slog.Attr
	if id := q.Get("uploadId"); id != "" {
		attrs = append(attrs, slog.String("upload_id", id))
	}
	if idx := q.Get("chunkIndex"); idx != "" {
		attrs = append(attrs, slog.String("chunk_index", idx))
	}
	if name := q.Get("filename"); name != "" {
		attrs = append(attrs, slog.String("filename", name))
	}
	return attrs
}
