// Пакет objectstore — адаптер объектного хранилища.
// Два backend-а с одним контрактом: S3-совместимое хранилище (aws-sdk-go-v2)
// и файловая система через afero (локальная разработка и тесты).
//
// Контракт:
//   - Put перезаписывает объект целиком;
//   - Delete идемпотентен, удаление отсутствующего ключа не ошибка;
//   - List возвращает ключи с заданным префиксом в лексикографическом порядке;
//   - multipart-загрузка восстанавливается по (key, uploadID) без обращения к хранилищу,
//     поэтому координатору не нужно держать состояние между запросами.
package objectstore

import (
	"context"
	"errors"
	"io"

	"github.com/bigkaa/tempshare/internal/domain/model"
)

// Ошибки хранилища.
var (
	// ErrNotFound — объект не найден.
	ErrNotFound = errors.New("объект не найден")
	// ErrNoSuchUpload — multipart-загрузка не существует (завершена, отменена или не создавалась).
	ErrNoSuchUpload = errors.New("multipart-загрузка не найдена")
	// ErrInvalidParts — список частей не соответствует загруженным (номера, порядок, ETag).
	ErrInvalidParts = errors.New("некорректный список частей")
	// ErrInvalidKey — недопустимый ключ объекта.
	ErrInvalidKey = errors.New("недопустимый ключ объекта")
	// ErrSizeMismatch — число переданных байт не совпало с заявленным размером.
	ErrSizeMismatch = errors.New("размер данных не совпадает с заявленным")
)

// Object — открытый для чтения объект. Body закрывает вызывающий код.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Store — примитивы объектного хранилища.
// Реализации безопасны для конкурентного использования.
type Store interface {
	// Put записывает объект размера size. size < 0 — размер неизвестен.
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error
	// Get открывает объект; ErrNotFound, если его нет.
	Get(ctx context.Context, key string) (*Object, error)
	// Delete удаляет объект. Отсутствие объекта не ошибка.
	Delete(ctx context.Context, key string) error
	// List возвращает ключи с префиксом prefix.
	List(ctx context.Context, prefix string) ([]string, error)
	// DeletePrefix удаляет все объекты с префиксом и возвращает их число.
	DeletePrefix(ctx context.Context, prefix string) (int, error)

	// CreateMultipartUpload открывает multipart-загрузку для key.
	CreateMultipartUpload(ctx context.Context, key, contentType string) (MultipartUpload, error)
	// ResumeMultipartUpload восстанавливает дескриптор по сохранённому идентификатору.
	// Существование загрузки проверяется при первой операции с ней.
	ResumeMultipartUpload(key, uploadID string) MultipartUpload

	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// MultipartUpload — дескриптор multipart-загрузки.
// Части с разными номерами можно загружать конкурентно.
type MultipartUpload interface {
	Key() string
	UploadID() string
	// UploadPart загружает часть partNumber (1..10000) размера size.
	UploadPart(ctx context.Context, partNumber int, body io.Reader, size int64) (model.UploadedPart, error)
	// Complete собирает объект из частей; parts упорядочены по возрастанию номера.
	Complete(ctx context.Context, parts []model.UploadedPart) error
	// Abort отменяет загрузку и освобождает части. Отмена несуществующей загрузки не ошибка.
	Abort(ctx context.Context) error
}

// MaxPartNumber — максимальный номер части в протоколе S3.
const MaxPartNumber = 10000
