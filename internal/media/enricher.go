package media

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path"

	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
)

// Thumbnailer — генератор превью видео.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, src io.Reader, ext string) ([]byte, error)
}

// Result — дополнительные поля записи загрузки.
// Пустые поля означают, что определить значение не удалось.
type Result struct {
	Width     *int
	Height    *int
	Thumbnail *string
}

// Enricher дополняет загруженный файл размерами и превью в зависимости от категории.
type Enricher struct {
	objects        objectstore.Store
	thumbnailer    Thumbnailer
	maxVideoSource int64
	logger         *slog.Logger
}

// NewEnricher создаёт Enricher. thumbnailer может быть nil — превью видео тогда не создаются.
func NewEnricher(objects objectstore.Store, thumbnailer Thumbnailer, maxVideoSource int64, logger *slog.Logger) *Enricher {
	return &Enricher{
		objects:        objects,
		thumbnailer:    thumbnailer,
		maxVideoSource: maxVideoSource,
		logger:         logger.With(slog.String("component", "media")),
	}
}

// Enrich обрабатывает сохранённый объект {slug}/{filename}.
// Ошибки логируются и не возвращаются.
func (e *Enricher) Enrich(ctx context.Context, slug, filename, mimeType string, size int64) Result {
	key := model.ObjectKey(slug, filename)

	switch category := model.CategoryOf(mimeType); category {
	case model.CategoryImage:
		dims, ok := e.probeObject(ctx, key)
		if !ok {
			return Result{}
		}
		return withDimensions(Result{}, dims)

	case model.CategoryVideo:
		if e.thumbnailer == nil {
			return Result{}
		}
		if size > e.maxVideoSource {
			e.logger.Debug("Видео слишком большое для превью",
				slog.String("key", key),
				slog.Int64("size", size),
			)
			return Result{}
		}
		return e.videoThumbnail(ctx, slug, filename)

	case model.CategoryAudio, model.CategoryOther:
		return Result{}

	default:
		e.logger.Warn("Неизвестная категория файла", slog.String("category", category.String()))
		return Result{}
	}
}

func (e *Enricher) probeObject(ctx context.Context, key string) (Dimensions, bool) {
	obj, err := e.objects.Get(ctx, key)
	if err != nil {
		e.logger.Warn("Не удалось прочитать объект для определения размеров",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Dimensions{}, false
	}
	defer obj.Body.Close()

	dims, err := ProbeImage(obj.Body)
	if err != nil {
		e.logger.Warn("Не удалось определить размеры изображения",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Dimensions{}, false
	}
	return dims, true
}

func (e *Enricher) videoThumbnail(ctx context.Context, slug, filename string) Result {
	key := model.ObjectKey(slug, filename)
	obj, err := e.objects.Get(ctx, key)
	if err != nil {
		e.logger.Warn("Не удалось прочитать видео для превью",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Result{}
	}
	data, err := e.thumbnailer.Thumbnail(ctx, obj.Body, path.Ext(filename))
	obj.Body.Close()
	if err != nil {
		e.logger.Warn("Не удалось создать превью видео",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return Result{}
	}

	thumbKey := model.ThumbnailKey(slug, filename)
	if err := e.objects.Put(ctx, thumbKey, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
		e.logger.Warn("Не удалось сохранить превью",
			slog.String("key", thumbKey),
			slog.String("error", err.Error()),
		)
		return Result{}
	}

	res := Result{Thumbnail: &thumbKey}
	if dims, err := ProbeImage(bytes.NewReader(data)); err == nil {
		res = withDimensions(res, dims)
	}
	return res
}

func withDimensions(r Result, d Dimensions) Result {
	w, h := d.Width, d.Height
	r.Width, r.Height = &w, &h
	return r
}
