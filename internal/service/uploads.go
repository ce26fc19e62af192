// uploads.go — координатор загрузок: start → (direct | chunk×N) → complete | cancel.
//
// Состояние между запросами хранится только в сессии multipart-state/{uploadId},
// поэтому любой экземпляр сервиса может обслужить любой запрос загрузки.
package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
	"github.com/bigkaa/tempshare/internal/domain/ident"
	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/domain/policy"
	"github.com/bigkaa/tempshare/internal/media"
	"github.com/bigkaa/tempshare/internal/notify"
	"github.com/bigkaa/tempshare/internal/repository"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
	"github.com/bigkaa/tempshare/internal/storage/session"
)

// MaxSlugAttempts — сколько раз пробуется новый slug до отказа.
const MaxSlugAttempts = 10

// Prometheus метрики загрузок
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ts_uploads_total",
		Help: "Загрузки по типу (direct, chunked) и результату",
	}, []string{"kind", "result"})

	uploadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_upload_bytes_total",
		Help: "Суммарный размер успешно загруженных файлов",
	})

	chunksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ts_chunks_total",
		Help: "Загруженные части multipart-загрузок по результату",
	}, []string{"result"})
)

// Enricher дополняет запись размерами и превью.
type Enricher interface {
	Enrich(ctx context.Context, slug, filename, mimeType string, size int64) media.Result
}

// StartParams — параметры начала загрузки.
type StartParams struct {
	Filename string
	Filesize int64
	MimeType string
	Domain   string
	Expires  string
}

// StartResult — ответ на начало загрузки.
type StartResult struct {
	UploadID       string `json:"uploadId"`
	Slug           string `json:"slug"`
	TotalChunks    int    `json:"totalChunks"`
	ChunkSize      int64  `json:"chunkSize"`
	IsDirectUpload bool   `json:"isDirectUpload"`
}

// ChunkParams — параметры загрузки одной части.
type ChunkParams struct {
	UploadID    string
	ChunkIndex  int
	TotalChunks int
	// Length — заявленный размер части (Content-Length)
	Length int64
	Body   io.Reader
}

// ChunkResult — ответ на загрузку части.
type ChunkResult struct {
	Success      bool               `json:"success"`
	ChunkIndex   int                `json:"chunkIndex"`
	Uploaded     int                `json:"uploaded"`
	Total        int                `json:"total"`
	UploadedPart model.UploadedPart `json:"uploadedPart"`
}

// CompleteParams — параметры завершения chunked-загрузки.
type CompleteParams struct {
	UploadID      string
	Slug          string
	Filename      string
	Filesize      int64
	MimeType      string
	Domain        string
	Expires       string
	TotalChunks   int
	UploadedParts []model.UploadedPart
}

// DirectParams — параметры загрузки одним запросом.
type DirectParams struct {
	Filename string
	Filesize int64
	MimeType string
	Domain   string
	Expires  string
	Body     io.Reader
}

// UploadResult — ответ на успешную загрузку (direct или complete).
type UploadResult struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Width     *int      `json:"width,omitempty"`
	Height    *int      `json:"height,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
}

// UploadService — координатор загрузок.
type UploadService struct {
	policy    policy.Policy
	objects   objectstore.Store
	sessions  *session.Store
	uploads   repository.UploadRepository
	enricher  Enricher
	notifier  notify.Notifier
	publicURL string
	logger    *slog.Logger

	newSlug func() (string, error)
	now     func() time.Time
}

// NewUploadService создаёт координатор загрузок.
// enricher и notifier могут быть nil.
func NewUploadService(
	pol policy.Policy,
	objects objectstore.Store,
	sessions *session.Store,
	uploads repository.UploadRepository,
	enricher Enricher,
	notifier notify.Notifier,
	publicBaseURL string,
	logger *slog.Logger,
) *UploadService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &UploadService{
		policy:    pol,
		objects:   objects,
		sessions:  sessions,
		uploads:   uploads,
		enricher:  enricher,
		notifier:  notifier,
		publicURL: strings.TrimRight(publicBaseURL, "/"),
		logger:    logger.With(slog.String("component", "upload_service")),
		newSlug:   ident.NewSlug,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start проверяет параметры, выбирает slug и, если файл больше порога
// прямой загрузки, открывает multipart-загрузку и сохраняет сессию.
func (s *UploadService) Start(ctx context.Context, p StartParams) (*StartResult, error) {
	if p.Filename == "" || p.Filesize == 0 || p.MimeType == "" || p.Expires == "" {
		return nil, validationErr("Missing required fields")
	}
	if err := s.checkFile(p.Filesize, p.MimeType, p.Expires); err != nil {
		return nil, err
	}

	filename := policy.SanitizeFilename(p.Filename)
	slug, err := s.allocateSlug(ctx)
	if err != nil {
		return nil, err
	}

	result := &StartResult{
		UploadID:       ident.NewUploadID(),
		Slug:           slug,
		TotalChunks:    s.policy.TotalChunks(p.Filesize),
		ChunkSize:      s.policy.ChunkSize,
		IsDirectUpload: s.policy.IsDirect(p.Filesize),
	}
	if result.IsDirectUpload {
		return result, nil
	}

	key := model.ObjectKey(slug, filename)
	mu, err := s.objects.CreateMultipartUpload(ctx, key, p.MimeType)
	if err != nil {
		s.logger.Error("Ошибка открытия multipart-загрузки",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, upstreamErr("Failed to start upload", err)
	}

	sess := &model.UploadSession{
		UploadID:          result.UploadID,
		Key:               key,
		MultipartUploadID: mu.UploadID(),
		ContentType:       policy.NormalizeMimeType(p.MimeType),
		Filesize:          p.Filesize,
		CreatedAt:         s.now(),
	}
	if err := s.sessions.Save(ctx, sess); err != nil {
		// Без сессии загрузку уже никто не найдёт
		s.abortQuietly(ctx, mu)
		s.logger.Error("Ошибка сохранения сессии",
			slog.String("upload_id", result.UploadID),
			slog.String("error", err.Error()),
		)
		return nil, upstreamErr("Failed to start upload", err)
	}

	s.logger.Info("Chunked-загрузка начата",
		slog.String("upload_id", result.UploadID),
		slog.String("key", key),
		slog.Int64("size", p.Filesize),
		slog.Int("total_chunks", result.TotalChunks),
	)
	return result, nil
}

// UploadChunk передаёт часть chunkIndex потоком в multipart-загрузку
// как часть номер chunkIndex+1.
func (s *UploadService) UploadChunk(ctx context.Context, p ChunkParams) (*ChunkResult, error) {
	if p.ChunkIndex < 0 || p.ChunkIndex >= p.TotalChunks || p.TotalChunks > objectstore.MaxPartNumber {
		return nil, validationErr("Invalid chunk parameters")
	}
	if p.Length <= 0 {
		return nil, validationErr("Empty chunk")
	}
	if p.Length > s.policy.ChunkSize {
		return nil, validationErr("Chunk too large")
	}

	sess, err := s.loadSession(ctx, p.UploadID)
	if err != nil {
		return nil, err
	}
	mu := s.objects.ResumeMultipartUpload(sess.Key, sess.MultipartUploadID)
	partNumber := p.ChunkIndex + 1

	var part model.UploadedPart
	err = boundedPipe(ctx, p.Body, p.Length, func(r io.Reader) error {
		var uerr error
		part, uerr = mu.UploadPart(ctx, partNumber, r, p.Length)
		return uerr
	})
	if err != nil {
		chunksTotal.WithLabelValues("error").Inc()
		return nil, s.chunkError(p, err)
	}

	chunksTotal.WithLabelValues("success").Inc()
	s.logger.Debug("Часть загружена",
		slog.String("upload_id", p.UploadID),
		slog.Int("part_number", part.PartNumber),
		slog.Int64("size", p.Length),
	)
	return &ChunkResult{
		Success:      true,
		ChunkIndex:   p.ChunkIndex,
		Uploaded:     p.ChunkIndex + 1,
		Total:        p.TotalChunks,
		UploadedPart: part,
	}, nil
}

func (s *UploadService) chunkError(p ChunkParams, err error) error {
	switch {
	case errors.Is(err, errBodyTooShort), errors.Is(err, errBodyTooLong):
		return validationErr("Chunk size mismatch")
	case errors.Is(err, objectstore.ErrNoSuchUpload):
		return notFoundErr("Upload not found")
	}
	s.logger.Error("Ошибка загрузки части",
		slog.String("upload_id", p.UploadID),
		slog.Int("chunk_index", p.ChunkIndex),
		slog.String("error", err.Error()),
	)
	return upstreamErr("Failed to upload chunk", err)
}

// Complete проверяет список частей, собирает объект, удаляет сессию
// и создаёт запись загрузки.
//
// Ошибки в параметрах и списке частей оставляют сессию нетронутой. Любой сбой
// после проверки частей приводит к отмене multipart-загрузки и удалению сессии.
// Размер и MIME-тип должны совпадать с заявленными при start.
func (s *UploadService) Complete(ctx context.Context, p CompleteParams) (*UploadResult, error) {
	if p.UploadID == "" || p.Slug == "" || p.Filename == "" || p.Filesize == 0 ||
		p.MimeType == "" || p.Expires == "" {
		return nil, validationErr("Missing required fields")
	}
	if err := s.checkFile(p.Filesize, p.MimeType, p.Expires); err != nil {
		return nil, err
	}
	ttl, _ := s.policy.CheckExpires(p.Expires)
	mimeType := policy.NormalizeMimeType(p.MimeType)

	filename := policy.SanitizeFilename(p.Filename)
	key := model.ObjectKey(p.Slug, filename)

	sess, err := s.loadSession(ctx, p.UploadID)
	if err != nil {
		return nil, err
	}
	if !sessionMatches(sess, key, p.Filesize, mimeType) {
		return nil, validationErr("Upload does not match session")
	}
	if sess.Filesize > 0 && p.TotalChunks != s.policy.TotalChunks(sess.Filesize) {
		return nil, partsErr(apierrors.CodeMissingChunks, "Missing chunks")
	}

	parts, perr := verifyParts(p.UploadedParts, p.TotalChunks)
	if perr != nil {
		return nil, perr
	}

	mu := s.objects.ResumeMultipartUpload(sess.Key, sess.MultipartUploadID)
	if err := mu.Complete(ctx, parts); err != nil {
		s.cleanupFailed(ctx, sess)
		uploadsTotal.WithLabelValues("chunked", "error").Inc()
		if errors.Is(err, objectstore.ErrNoSuchUpload) {
			return nil, notFoundErr("Upload not found")
		}
		s.logger.Error("Ошибка сборки multipart-загрузки",
			slog.String("upload_id", p.UploadID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		if errors.Is(err, objectstore.ErrInvalidParts) {
			return nil, partsErr(apierrors.CodeInvalidPartNumbers, "Invalid part numbers")
		}
		return nil, upstreamErr("Failed to complete upload", err)
	}

	if err := s.sessions.Delete(ctx, p.UploadID); err != nil {
		s.logger.Warn("Не удалось удалить сессию после сборки",
			slog.String("upload_id", p.UploadID),
			slog.String("error", err.Error()),
		)
	}

	rec, err := s.finish(ctx, p.Slug, filename, p.Filesize, mimeType, p.Domain, ttl)
	if err != nil {
		uploadsTotal.WithLabelValues("chunked", "error").Inc()
		return nil, err
	}
	uploadsTotal.WithLabelValues("chunked", "success").Inc()
	return s.result(rec), nil
}

// sessionMatches сравнивает параметры завершения с сессией.
// Сессии без размера и типа проверяются только по ключу.
func sessionMatches(sess *model.UploadSession, key string, size int64, mimeType string) bool {
	if sess.Key != key {
		return false
	}
	if sess.Filesize > 0 && sess.Filesize != size {
		return false
	}
	if sess.ContentType != "" && policy.NormalizeMimeType(sess.ContentType) != mimeType {
		return false
	}
	return true
}

// verifyParts проверяет, что после сортировки номера частей равны 1..total.
func verifyParts(parts []model.UploadedPart, total int) ([]model.UploadedPart, *UploadError) {
	if total <= 0 || len(parts) != total {
		return nil, partsErr(apierrors.CodeMissingChunks, "Missing chunks")
	}
	sorted := make([]model.UploadedPart, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	for i, part := range sorted {
		if part.PartNumber != i+1 || part.ETag == "" {
			return nil, partsErr(apierrors.CodeInvalidPartNumbers, "Invalid part numbers")
		}
	}
	return sorted, nil
}

// Cancel отменяет chunked-загрузку. Повторная отмена и отмена неизвестной
// загрузки завершаются успешно.
func (s *UploadService) Cancel(ctx context.Context, uploadID string) error {
	if uploadID == "" {
		return validationErr("Missing uploadId")
	}

	sess, err := s.sessions.Load(ctx, uploadID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil
	case errors.Is(err, session.ErrCorrupted):
		// Дескриптор восстановить нельзя, удаляем хотя бы состояние
		s.deleteSessionQuietly(ctx, uploadID)
		return nil
	case err != nil:
		return upstreamErr("Failed to cancel upload", err)
	}

	s.cleanupFailed(ctx, sess)
	uploadsTotal.WithLabelValues("chunked", "cancelled").Inc()
	s.logger.Info("Загрузка отменена",
		slog.String("upload_id", uploadID),
		slog.String("key", sess.Key),
	)
	return nil
}

// Direct загружает файл одним запросом и сразу создаёт запись.
func (s *UploadService) Direct(ctx context.Context, p DirectParams) (*UploadResult, error) {
	if p.Filename == "" || p.MimeType == "" || p.Expires == "" {
		return nil, validationErr("Missing required fields")
	}
	if p.Filesize > s.policy.DirectUploadLimit {
		return nil, validationErr("File too large for direct upload")
	}
	if err := s.checkFile(p.Filesize, p.MimeType, p.Expires); err != nil {
		return nil, err
	}
	ttl, _ := s.policy.CheckExpires(p.Expires)

	filename := policy.SanitizeFilename(p.Filename)
	slug, err := s.allocateSlug(ctx)
	if err != nil {
		return nil, err
	}
	key := model.ObjectKey(slug, filename)

	err = boundedPipe(ctx, p.Body, p.Filesize, func(r io.Reader) error {
		return s.objects.Put(ctx, key, r, p.Filesize, p.MimeType)
	})
	if err != nil {
		uploadsTotal.WithLabelValues("direct", "error").Inc()
		// Лишние байты обнаруживаются уже после записи объекта
		s.deleteObjectQuietly(ctx, key)
		if errors.Is(err, errBodyTooShort) || errors.Is(err, errBodyTooLong) ||
			errors.Is(err, objectstore.ErrSizeMismatch) {
			return nil, validationErr("File size mismatch")
		}
		s.logger.Error("Ошибка записи файла",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, upstreamErr("Failed to upload file", err)
	}

	rec, err := s.finish(ctx, slug, filename, p.Filesize, p.MimeType, p.Domain, ttl)
	if err != nil {
		uploadsTotal.WithLabelValues("direct", "error").Inc()
		return nil, err
	}
	uploadsTotal.WithLabelValues("direct", "success").Inc()
	return s.result(rec), nil
}

// finish выполняется, когда байты уже лежат в {slug}/{filename}:
// обогащение, создание записи, уведомление.
func (s *UploadService) finish(
	ctx context.Context,
	slug, filename string,
	size int64,
	mimeType, domain string,
	ttl time.Duration,
) (*model.UploadRecord, error) {
	var extra media.Result
	if s.enricher != nil {
		extra = s.enricher.Enrich(ctx, slug, filename, mimeType, size)
	}

	uploadAt := s.now()
	rec := &model.UploadRecord{
		ID:        uuid.New().String(),
		Slug:      slug,
		Filename:  filename,
		Filesize:  size,
		MimeType:  mimeType,
		Domain:    strings.ToLower(strings.TrimSpace(domain)),
		Width:     extra.Width,
		Height:    extra.Height,
		Thumbnail: extra.Thumbnail,
		UploadAt:  uploadAt,
		ExpiresAt: uploadAt.Add(ttl),
	}

	if err := s.uploads.Create(ctx, rec); err != nil {
		s.logger.Error("Ошибка создания записи загрузки",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
		// При конфликте slug объект может принадлежать другой записи
		if !errors.Is(err, repository.ErrConflict) {
			s.deleteObjectQuietly(ctx, rec.ObjectKey())
			if rec.Thumbnail != nil {
				s.deleteObjectQuietly(ctx, *rec.Thumbnail)
			}
		}
		return nil, upstreamErr("Failed to save upload", err)
	}

	uploadBytesTotal.Add(float64(size))
	s.logger.Info("Файл загружен",
		slog.String("id", rec.ID),
		slog.String("slug", slug),
		slog.String("filename", filename),
		slog.Int64("size", size),
		slog.Time("expires_at", rec.ExpiresAt),
	)

	s.notify(ctx, rec)
	return rec, nil
}

func (s *UploadService) notify(ctx context.Context, rec *model.UploadRecord) {
	ev := notify.Event{
		ID:        rec.ID,
		Slug:      rec.Slug,
		Filename:  rec.Filename,
		Filesize:  rec.Filesize,
		MimeType:  rec.MimeType,
		URL:       s.FileURL(rec.Slug, rec.Filename),
		UploadAt:  rec.UploadAt,
		ExpiresAt: rec.ExpiresAt,
	}
	if rec.Thumbnail != nil {
		ev.ThumbnailURL = s.ObjectURL(*rec.Thumbnail)
	}
	if err := s.notifier.Notify(ctx, ev); err != nil {
		s.logger.Warn("Не удалось отправить уведомление",
			slog.String("slug", rec.Slug),
			slog.String("error", err.Error()),
		)
	}
}

func (s *UploadService) result(rec *model.UploadRecord) *UploadResult {
	res := &UploadResult{
		ID:        rec.ID,
		Slug:      rec.Slug,
		URL:       s.FileURL(rec.Slug, rec.Filename),
		ExpiresAt: rec.ExpiresAt,
		Width:     rec.Width,
		Height:    rec.Height,
	}
	if rec.Thumbnail != nil {
		res.Thumbnail = s.ObjectURL(*rec.Thumbnail)
	}
	return res
}

// FileURL — публичный URL файла: {base}/{slug}/{filename}.
func (s *UploadService) FileURL(slug, filename string) string {
	return s.publicURL + "/" + slug + "/" + url.PathEscape(filename)
}

// ObjectURL — публичный URL произвольного ключа.
func (s *UploadService) ObjectURL(key string) string {
	return s.publicURL + "/" + key
}

// checkFile проверяет размер, MIME-тип и вариант срока хранения.
func (s *UploadService) checkFile(size int64, mimeType, expires string) error {
	if err := s.policy.CheckSize(size); err != nil {
		return validationErr(err.Error())
	}
	if err := s.policy.CheckMimeType(mimeType); err != nil {
		return validationErr(err.Error())
	}
	if _, err := s.policy.CheckExpires(expires); err != nil {
		return validationErr(err.Error())
	}
	return nil
}

// allocateSlug генерирует slug, пока не найдётся свободный,
// но не более MaxSlugAttempts раз.
func (s *UploadService) allocateSlug(ctx context.Context) (string, error) {
	for attempt := 1; attempt <= MaxSlugAttempts; attempt++ {
		slug, err := s.newSlug()
		if err != nil {
			return "", internalErr("Failed to generate unique slug", err)
		}
		exists, err := s.uploads.SlugExists(ctx, slug)
		if err != nil {
			return "", upstreamErr("Failed to generate unique slug", err)
		}
		if !exists {
			return slug, nil
		}
		s.logger.Debug("Коллизия slug", slog.String("slug", slug), slog.Int("attempt", attempt))
	}
	s.logger.Error("Исчерпаны попытки выбора slug", slog.Int("attempts", MaxSlugAttempts))
	return "", slugExhaustedErr()
}

// loadSession читает сессию; отсутствующая и повреждённая сессия — 404.
func (s *UploadService) loadSession(ctx context.Context, uploadID string) (*model.UploadSession, error) {
	if uploadID == "" {
		return nil, validationErr("Missing uploadId")
	}
	sess, err := s.sessions.Load(ctx, uploadID)
	if err == nil {
		return sess, nil
	}
	if errors.Is(err, session.ErrNotFound) || errors.Is(err, session.ErrCorrupted) {
		return nil, notFoundErr("Upload not found")
	}
	return nil, upstreamErr("Failed to read upload state", err)
}

// cleanupFailed отменяет multipart-загрузку и удаляет сессию.
// Ошибки только логируются.
func (s *UploadService) cleanupFailed(ctx context.Context, sess *model.UploadSession) {
	s.abortQuietly(ctx, s.objects.ResumeMultipartUpload(sess.Key, sess.MultipartUploadID))
	s.deleteSessionQuietly(ctx, sess.UploadID)
}

func (s *UploadService) abortQuietly(ctx context.Context, mu objectstore.MultipartUpload) {
	if err := mu.Abort(ctx); err != nil {
		s.logger.Warn("Не удалось отменить multipart-загрузку",
			slog.String("key", mu.Key()),
			slog.String("error", err.Error()),
		)
	}
}

func (s *UploadService) deleteSessionQuietly(ctx context.Context, uploadID string) {
	if err := s.sessions.Delete(ctx, uploadID); err != nil {
		s.logger.Warn("Не удалось удалить сессию",
			slog.String("upload_id", uploadID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *UploadService) deleteObjectQuietly(ctx context.Context, key string) {
	if err := s.objects.Delete(ctx, key); err != nil {
		s.logger.Warn("Не удалось удалить объект",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
