// Пакет session — состояние multipart-загрузок между запросами.
// Сессия хранится JSON-объектом multipart-state/{uploadId} в том же
// объектном хранилище, что и файлы. Сессия неизменяема: создаётся
// при старте загрузки и удаляется при завершении или отмене.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
)

// Prefix — зарезервированный префикс ключей состояния.
const Prefix = "multipart-state/"

// maxStateSize — верхняя граница размера JSON сессии.
const maxStateSize = 64 << 10

var (
	// ErrNotFound — сессия не найдена (завершена, отменена или не создавалась).
	ErrNotFound = errors.New("сессия загрузки не найдена")
	// ErrCorrupted — объект состояния не удалось разобрать.
	ErrCorrupted = errors.New("повреждённое состояние сессии")
)

// Store — хранилище сессий поверх объектного хранилища.
type Store struct {
	objects objectstore.Store
}

// New создаёт хранилище сессий.
func New(objects objectstore.Store) *Store {
	return &Store{objects: objects}
}

// Key возвращает ключ объекта состояния.
func Key(uploadID string) string {
	return Prefix + uploadID
}

// validID отсекает идентификаторы, которые не могли быть выданы сервисом,
// в том числе попытки выйти за пределы префикса.
func validID(uploadID string) bool {
	_, err := uuid.Parse(uploadID)
	return err == nil && len(uploadID) == 36
}

// Save записывает сессию.
func (s *Store) Save(ctx context.Context, sess *model.UploadSession) error {
	if !validID(sess.UploadID) {
		return fmt.Errorf("сохранение сессии: некорректный uploadId %q", sess.UploadID)
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("сериализация сессии: %w", err)
	}
	if err := s.objects.Put(ctx, Key(sess.UploadID), bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return fmt.Errorf("сохранение сессии %s: %w", sess.UploadID, err)
	}
	return nil
}

// Load читает сессию. ErrNotFound, если её нет или uploadID некорректен.
func (s *Store) Load(ctx context.Context, uploadID string) (*model.UploadSession, error) {
	if !validID(uploadID) {
		return nil, ErrNotFound
	}
	obj, err := s.objects.Get(ctx, Key(uploadID))
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("чтение сессии %s: %w", uploadID, err)
	}
	defer obj.Body.Close()

	data, err := io.ReadAll(io.LimitReader(obj.Body, maxStateSize+1))
	if err != nil {
		return nil, fmt.Errorf("чтение сессии %s: %w", uploadID, err)
	}
	if len(data) > maxStateSize {
		return nil, fmt.Errorf("%w: %s больше %d байт", ErrCorrupted, uploadID, maxStateSize)
	}

	var sess model.UploadSession
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, uploadID, err)
	}
	if sess.Key == "" || sess.MultipartUploadID == "" {
		return nil, fmt.Errorf("%w: %s: нет ключа или идентификатора загрузки", ErrCorrupted, uploadID)
	}
	// Идентификатор берётся из ключа, а не из содержимого
	sess.UploadID = uploadID
	return &sess, nil
}

// Delete удаляет сессию. Отсутствие сессии не ошибка.
func (s *Store) Delete(ctx context.Context, uploadID string) error {
	if !validID(uploadID) {
		return nil
	}
	if err := s.objects.Delete(ctx, Key(uploadID)); err != nil {
		return fmt.Errorf("удаление сессии %s: %w", uploadID, err)
	}
	return nil
}

// List возвращает идентификаторы всех сохранённых сессий.
// Ключи под префиксом, не похожие на uploadId, возвращаются в foreign.
func (s *Store) List(ctx context.Context) (ids []string, foreign []string, err error) {
	keys, err := s.objects.List(ctx, Prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("список сессий: %w", err)
	}
	for _, key := range keys {
		id := strings.TrimPrefix(key, Prefix)
		if validID(id) {
			ids = append(ids, id)
		} else {
			foreign = append(foreign, key)
		}
	}
	return ids, foreign, nil
}
