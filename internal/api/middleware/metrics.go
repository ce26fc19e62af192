// metrics.go — Prometheus HTTP метрики сервиса.
// Регистрирует ts_http_requests_total и ts_http_request_duration_seconds.
// Бизнес-метрики загрузок и очистки регистрируются в пакете service.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// httpRequestsTotal — общее количество HTTP-запросов.
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ts_http_requests_total",
			Help: "Общее количество HTTP-запросов",
		},
		[]string{"method", "path", "status"},
	)

	// httpRequestDuration — гистограмма длительности HTTP-запросов.
	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ts_http_request_duration_seconds",
			Help:    "Длительность HTTP-запросов в секундах",
			Buckets: []float64{.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"method", "path"},
	)
)

// MetricsMiddleware возвращает HTTP middleware для сбора Prometheus метрик.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			path := normalizePath(r.URL.Path)

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r)

			status := strconv.Itoa(wrapped.statusCode)
			httpRequestsTotal.WithLabelValues(r.Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
		})
	}
}

// normalizePath заменяет slug и токены в пути на плейсхолдеры,
// чтобы кардинальность метрик не росла с числом файлов.
// /api/download/aB3_x9 → /api/download/{slug}
func normalizePath(path string) string {
	switch path {
	case "/health/live", "/health/ready", "/metrics",
		"/api/upload/start", "/api/upload/chunk", "/api/upload/complete",
		"/api/upload/cancel", "/api/upload/direct",
		"/api/download/token", "/api/domains", "/api/cron/clear":
		return path
	}

	switch {
	case hasSingleSegment(path, "/api/download/token/"):
		return "/api/download/token/{token}"
	case hasSingleSegment(path, "/api/download/"):
		return "/api/download/{slug}"
	case hasSingleSegment(path, "/api/upload/"):
		return "/api/upload/{slug}"
	case strings.HasPrefix(path, "/api/"):
		return "/api/other"
	case strings.Count(path, "/") == 3 && strings.Contains(path[1:], "/thumbnail/"):
		return "/{slug}/thumbnail/{name}"
	case strings.Count(path, "/") == 2 && !strings.HasSuffix(path, "/"):
		return "/{slug}/{filename}"
	}
	return "other"
}

// hasSingleSegment проверяет, что после prefix идёт ровно один непустой сегмент пути.
func hasSingleSegment(path, prefix string) bool {
	rest, ok := strings.CutPrefix(path, prefix)
	return ok && rest != "" && !strings.Contains(rest, "/")
}
