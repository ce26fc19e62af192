// maintenance.go — ручной запуск очистки просроченных файлов.
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
	"github.com/bigkaa/tempshare/internal/api/middleware"
	"github.com/bigkaa/tempshare/internal/service"
)

// SweepRunner — запуск одного прохода очистки без ожидания.
type SweepRunner interface {
	// TryRunOnce возвращает false, если проход уже выполняется.
	TryRunOnce(ctx context.Context) (*service.SweepResult, bool)
}

type clearResponse struct {
	Success         bool   `json:"success"`
	Message         string `json:"message"`
	Total           int    `json:"total"`
	Succeeded       int    `json:"succeeded"`
	Failed          int    `json:"failed"`
	SessionsAborted int    `json:"sessionsAborted"`
}

// MaintenanceHandler — обработчик /api/cron/clear.
type MaintenanceHandler struct {
	sweeper SweepRunner
	logger  *slog.Logger
}

// NewMaintenanceHandler создаёт обработчик служебных endpoints.
func NewMaintenanceHandler(sweeper SweepRunner, logger *slog.Logger) *MaintenanceHandler {
	return &MaintenanceHandler{
		sweeper: sweeper,
		logger:  logger.With(slog.String("component", "maintenance_handler")),
	}
}

// ClearExpired запускает очистку. Авторизация — на уровне middleware.
func (h *MaintenanceHandler) ClearExpired(w http.ResponseWriter, r *http.Request) {
	res, ok := h.sweeper.TryRunOnce(r.Context())
	if !ok {
		apierrors.SweepInProgress(w, "Cleanup is already running")
		return
	}

	h.logger.Info("Очистка запущена вручную",
		slog.String("subject", middleware.SubjectFromContext(r.Context())),
		slog.Int("total", res.Total),
		slog.Int("failed", res.Failed),
	)

	msg := "Cleanup completed"
	if res.Total == 0 {
		msg = "No expired files found"
	}
	writeJSON(w, http.StatusOK, clearResponse{
		Success:         true,
		Message:         msg,
		Total:           res.Total,
		Succeeded:       res.Succeeded,
		Failed:          res.Failed,
		SessionsAborted: res.SessionsAborted,
	})
}
