// download.go — сведения о файле, скачивание и одноразовые токены скачивания.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/tempshare/internal/domain/ident"
	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/repository"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
	"github.com/bigkaa/tempshare/internal/tokens"
)

// Сообщения для клиента.
const (
	msgNotExistOrExpired = "This file does not exist or has expired."
	msgFileNotFound      = "File not found"
	msgFileExpired       = "File expired"
)

// DownloadToken — выданный токен скачивания.
type DownloadToken struct {
	Success   bool      `json:"success"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Download — открытый для чтения файл вместе с записью.
// Object.Body закрывает вызывающий код.
type Download struct {
	Record *model.UploadRecord
	Object *objectstore.Object
}

// DownloadService — раздача загруженных файлов.
type DownloadService struct {
	uploads  repository.UploadRepository
	objects  objectstore.Store
	tokens   tokens.Store
	tokenTTL time.Duration
	logger   *slog.Logger

	now func() time.Time
}

// NewDownloadService создаёт сервис раздачи файлов.
func NewDownloadService(
	uploads repository.UploadRepository,
	objects objectstore.Store,
	tokenStore tokens.Store,
	tokenTTL time.Duration,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		uploads:  uploads,
		objects:  objects,
		tokens:   tokenStore,
		tokenTTL: tokenTTL,
		logger:   logger.With(slog.String("component", "download_service")),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Info возвращает запись по slug для страницы файла.
// Просроченные записи и записи, привязанные к другому домену, не раскрываются.
func (s *DownloadService) Info(ctx context.Context, slug, host string) (*model.UploadRecord, error) {
	if !ident.IsSlug(slug) {
		return nil, validationErr("Invalid slug")
	}
	rec, err := s.uploads.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(msgNotExistOrExpired)
		}
		return nil, upstreamErr("Failed to load upload", err)
	}
	if rec.IsExpired(s.now()) || !rec.ServableOn(stripPort(host)) {
		return nil, notFoundErr(msgNotExistOrExpired)
	}
	return rec, nil
}

// Open открывает файл по slug: 404 — нет записи, 410 — срок истёк.
func (s *DownloadService) Open(ctx context.Context, slug string) (*Download, error) {
	if !ident.IsSlug(slug) {
		return nil, notFoundErr(msgFileNotFound)
	}
	rec, err := s.uploads.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(msgFileNotFound)
		}
		return nil, upstreamErr("Failed to load upload", err)
	}
	return s.openRecord(ctx, rec, rec.ObjectKey())
}

// OpenPublic открывает объект по публичному пути {slug}/{name}
// или {slug}/thumbnail/{name}, как его отдавало бы публичное хранилище.
func (s *DownloadService) OpenPublic(ctx context.Context, slug, name string, thumbnail bool) (*Download, error) {
	if !ident.IsSlug(slug) {
		return nil, notFoundErr(msgFileNotFound)
	}
	rec, err := s.uploads.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(msgFileNotFound)
		}
		return nil, upstreamErr("Failed to load upload", err)
	}

	key := rec.ObjectKey()
	if thumbnail {
		if rec.Thumbnail == nil || *rec.Thumbnail != model.ThumbnailPrefix(slug)+name {
			return nil, notFoundErr(msgFileNotFound)
		}
		key = *rec.Thumbnail
	} else if name != rec.Filename {
		return nil, notFoundErr(msgFileNotFound)
	}
	return s.openRecord(ctx, rec, key)
}

// CreateToken выдаёт одноразовый токен скачивания по идентификатору записи.
func (s *DownloadService) CreateToken(ctx context.Context, uploadID string) (*DownloadToken, error) {
	if uploadID == "" {
		return nil, validationErr("uploadId is required")
	}
	if !ident.IsUploadID(uploadID) {
		return nil, notFoundErr(msgFileNotFound)
	}
	rec, err := s.uploads.GetByID(ctx, uploadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(msgFileNotFound)
		}
		return nil, upstreamErr("Failed to load upload", err)
	}
	now := s.now()
	if rec.IsExpired(now) {
		return nil, expiredErr(msgFileExpired)
	}

	token, err := ident.NewToken()
	if err != nil {
		return nil, internalErr("Failed to create token", err)
	}
	// Токен не переживает сам файл
	ttl := s.tokenTTL
	if left := rec.ExpiresAt.Sub(now); left < ttl {
		ttl = left
	}
	expiresAt := now.Add(ttl)

	grant := tokens.Grant{UploadID: rec.ID, Slug: rec.Slug, ExpiresAt: expiresAt}
	if err := s.tokens.Put(ctx, token, grant, ttl); err != nil {
		s.logger.Error("Ошибка сохранения токена",
			slog.String("upload_id", rec.ID),
			slog.String("error", err.Error()),
		)
		return nil, upstreamErr("Failed to create token", err)
	}
	return &DownloadToken{Success: true, Token: token, ExpiresAt: expiresAt}, nil
}

// Redeem гасит токен и открывает файл. Повторное использование — 404.
func (s *DownloadService) Redeem(ctx context.Context, token string) (*Download, error) {
	if token == "" {
		return nil, validationErr("Token is required")
	}
	grant, err := s.tokens.TakeOnce(ctx, token)
	if err != nil {
		if errors.Is(err, tokens.ErrNotFound) {
			return nil, notFoundErr("Invalid or expired token")
		}
		return nil, upstreamErr("Failed to redeem token", err)
	}

	rec, err := s.uploads.GetByID(ctx, grant.UploadID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundErr(msgFileNotFound)
		}
		return nil, upstreamErr("Failed to load upload", err)
	}
	return s.openRecord(ctx, rec, rec.ObjectKey())
}

func (s *DownloadService) openRecord(ctx context.Context, rec *model.UploadRecord, key string) (*Download, error) {
	if rec.IsExpired(s.now()) {
		return nil, expiredErr(msgFileExpired)
	}
	obj, err := s.objects.Get(ctx, key)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			s.logger.Warn("Запись есть, объекта нет",
				slog.String("slug", rec.Slug),
				slog.String("key", key),
			)
			return nil, notFoundErr(msgFileNotFound)
		}
		s.logger.Error("Ошибка чтения объекта",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, upstreamErr("Failed to fetch file", err)
	}
	return &Download{Record: rec, Object: obj}, nil
}

// stripPort убирает порт из значения заголовка Host.
func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if i := strings.Index(host, "]"); i > 0 {
			return host[1:i]
		}
		return host
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 {
		return host[:i]
	}
	return host
}
