// sweeper.go — фоновая очистка.
//
// Один запуск выполняет две задачи:
//  1. Удаляет просроченные файлы: объект, превью, временные объекты, затем запись.
//  2. Отменяет брошенные chunked-загрузки, сессии которых старше TTL.
//
// Запускается по тикеру (TS_SWEEP_INTERVAL) и вручную через /api/cron/clear.
// Запуски не пересекаются.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/repository"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
	"github.com/bigkaa/tempshare/internal/storage/session"
)

// Просроченные записи выбираются страницами по sweepBatchSize.
// За один запуск обрабатывается не более sweepMaxPerRun записей,
// остаток достаётся следующему запуску.
const (
	sweepBatchSize = 1000
	sweepMaxPerRun = 10 * sweepBatchSize
)

// Prometheus метрики очистки
var (
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_sweep_runs_total",
		Help: "Общее количество запусков очистки",
	})

	sweepRecordsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_sweep_records_deleted_total",
		Help: "Общее количество удалённых просроченных файлов",
	})

	sweepSessionsAbortedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_sweep_sessions_aborted_total",
		Help: "Общее количество отменённых брошенных загрузок",
	})

	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ts_sweep_duration_seconds",
		Help:    "Длительность очистки в секундах",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

// SweepResult — результат одного запуска очистки.
type SweepResult struct {
	// Total — просроченных записей в обработке
	Total int
	// Succeeded — удалено полностью
	Succeeded int
	// Failed — не удалось удалить, запись останется до следующего запуска
	Failed int
	// SessionsAborted — отменено брошенных загрузок
	SessionsAborted int
	// Duration — длительность выполнения
	Duration time.Duration
}

// SweepService — сервис фоновой очистки.
type SweepService struct {
	uploads     repository.UploadRepository
	objects     objectstore.Store
	sessions    *session.Store
	interval    time.Duration
	concurrency int
	sessionTTL  time.Duration
	logger      *slog.Logger

	batchSize int
	maxPerRun int
	now       func() time.Time

	mu     sync.Mutex // один запуск за раз
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSweepService создаёт сервис очистки.
func NewSweepService(
	uploads repository.UploadRepository,
	objects objectstore.Store,
	sessions *session.Store,
	interval time.Duration,
	concurrency int,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *SweepService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &SweepService{
		uploads:     uploads,
		objects:     objects,
		sessions:    sessions,
		interval:    interval,
		concurrency: concurrency,
		sessionTTL:  sessionTTL,
		logger:      logger.With(slog.String("component", "sweeper")),
		batchSize:   sweepBatchSize,
		maxPerRun:   sweepMaxPerRun,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Start запускает фоновую горутину с периодическим тикером.
func (s *SweepService) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(runCtx)

	s.logger.Info("Очистка запущена",
		slog.String("interval", s.interval.String()),
		slog.String("session_ttl", s.sessionTTL.String()),
	)
}

// Stop останавливает фоновый процесс и дожидается текущего запуска.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.logger.Info("Очистка остановлена")
}

func (s *SweepService) run(ctx context.Context) {
	defer close(s.done)

	// Первый запуск — сразу после старта
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет один цикл очистки, дожидаясь окончания текущего.
func (s *SweepService) RunOnce(ctx context.Context) *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep(ctx)
}

// TryRunOnce выполняет цикл очистки, если другой цикл сейчас не идёт.
// Второе значение false — очистка уже выполняется.
func (s *SweepService) TryRunOnce(ctx context.Context) (*SweepResult, bool) {
	if !s.mu.TryLock() {
		return nil, false
	}
	defer s.mu.Unlock()
	return s.sweep(ctx), true
}

func (s *SweepService) sweep(ctx context.Context) *SweepResult {
	start := time.Now()
	result := &SweepResult{}
	now := s.now()

	s.logger.Debug("Очистка начата")

	s.sweepExpired(ctx, now, result)
	s.sweepSessions(ctx, now, result)

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepRecordsDeletedTotal.Add(float64(result.Succeeded))
	sweepSessionsAbortedTotal.Add(float64(result.SessionsAborted))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	s.logger.Info("Очистка завершена",
		slog.Int("total", result.Total),
		slog.Int("succeeded", result.Succeeded),
		slog.Int("failed", result.Failed),
		slog.Int("sessions_aborted", result.SessionsAborted),
		slog.Duration("duration", result.Duration),
	)
	return result
}

// sweepExpired удаляет просроченные файлы параллельно.
// Сбой одной записи не мешает остальным. Страницы идут по курсору,
// поэтому записи, которые не удаётся удалить, не закрывают доступ к остальным.
func (s *SweepService) sweepExpired(ctx context.Context, now time.Time, result *SweepResult) {
	var (
		cursor            repository.ExpiredCursor
		succeeded, failed atomic.Int64
	)
	for result.Total < s.maxPerRun {
		limit := min(s.batchSize, s.maxPerRun-result.Total)
		records, err := s.uploads.ListExpired(ctx, now, cursor, limit)
		if err != nil {
			s.logger.Error("Ошибка выборки просроченных файлов", slog.String("error", err.Error()))
			break
		}
		if len(records) == 0 {
			break
		}
		result.Total += len(records)
		cursor = repository.CursorAfter(records[len(records)-1])

		var g errgroup.Group
		g.SetLimit(s.concurrency)
		for _, rec := range records {
			g.Go(func() error {
				if err := s.deleteRecord(ctx, rec); err != nil {
					failed.Add(1)
					s.logger.Error("Ошибка удаления просроченного файла",
						slog.String("id", rec.ID),
						slog.String("slug", rec.Slug),
						slog.String("error", err.Error()),
					)
					return nil
				}
				succeeded.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		if len(records) < limit || ctx.Err() != nil {
			break
		}
	}

	result.Succeeded = int(succeeded.Load())
	result.Failed = int(failed.Load())
}

// deleteRecord удаляет объекты записи, затем саму запись.
// Запись удаляется последней, чтобы при сбое следующий запуск повторил попытку.
func (s *SweepService) deleteRecord(ctx context.Context, rec *model.UploadRecord) error {
	if err := s.objects.Delete(ctx, rec.ObjectKey()); err != nil {
		return err
	}
	if rec.Thumbnail != nil {
		if err := s.objects.Delete(ctx, *rec.Thumbnail); err != nil {
			return err
		}
	}
	for _, prefix := range []string{model.TempPrefix(rec.Slug), model.ThumbnailPrefix(rec.Slug)} {
		if _, err := s.objects.DeletePrefix(ctx, prefix); err != nil {
			return err
		}
	}
	if err := s.uploads.Delete(ctx, rec.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return err
	}

	s.logger.Debug("Просроченный файл удалён",
		slog.String("slug", rec.Slug),
		slog.String("filename", rec.Filename),
	)
	return nil
}

// sweepSessions отменяет загрузки, брошенные дольше sessionTTL.
func (s *SweepService) sweepSessions(ctx context.Context, now time.Time, result *SweepResult) {
	ids, foreign, err := s.sessions.List(ctx)
	if err != nil {
		s.logger.Error("Ошибка получения списка сессий", slog.String("error", err.Error()))
		return
	}
	for _, key := range foreign {
		s.logger.Warn("Удаление постороннего объекта под префиксом сессий", slog.String("key", key))
		if err := s.objects.Delete(ctx, key); err != nil {
			s.logger.Error("Ошибка удаления постороннего объекта",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}

	var aborted atomic.Int64
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if s.sweepSession(ctx, id, now) {
				aborted.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	result.SessionsAborted = int(aborted.Load())
}

// sweepSession возвращает true, если брошенная загрузка отменена.
func (s *SweepService) sweepSession(ctx context.Context, id string, now time.Time) bool {
	sess, err := s.sessions.Load(ctx, id)
	switch {
	case errors.Is(err, session.ErrNotFound):
		// Загрузку завершили или отменили между List и Load
		return false
	case errors.Is(err, session.ErrCorrupted):
		s.logger.Warn("Удаление повреждённой сессии",
			slog.String("upload_id", id),
			slog.String("error", err.Error()),
		)
		if err := s.sessions.Delete(ctx, id); err != nil {
			s.logger.Error("Ошибка удаления повреждённой сессии",
				slog.String("upload_id", id),
				slog.String("error", err.Error()),
			)
		}
		return false
	case err != nil:
		s.logger.Error("Ошибка чтения сессии",
			slog.String("upload_id", id),
			slog.String("error", err.Error()),
		)
		return false
	}

	if !sess.IsStale(now, s.sessionTTL) {
		return false
	}

	mu := s.objects.ResumeMultipartUpload(sess.Key, sess.MultipartUploadID)
	if err := mu.Abort(ctx); err != nil {
		// Сессию оставляем, чтобы повторить отмену в следующий раз
		s.logger.Error("Ошибка отмены брошенной загрузки",
			slog.String("upload_id", id),
			slog.String("key", sess.Key),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.Error("Ошибка удаления брошенной сессии",
			slog.String("upload_id", id),
			slog.String("error", err.Error()),
		)
		return false
	}

	s.logger.Info("Брошенная загрузка отменена",
		slog.String("upload_id", id),
		slog.String("key", sess.Key),
		slog.Time("created_at", sess.CreatedAt),
	)
	return true
}
