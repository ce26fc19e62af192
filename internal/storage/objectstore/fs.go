package objectstore

import (
	"context"
	"crypto/md5" //nolint:gosec // ETag частей совместим с S3, не для защиты
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bigkaa/tempshare/internal/domain/model"
)

// Служебные директории FS backend-а. Ключи объектов не могут начинаться с '.',
// поэтому служебные данные не пересекаются с объектами и не попадают в List.
const (
	stagingDir   = "/.staging"
	multipartDir = "/.multipart"
	uploadMeta   = "upload.json"
)

// sniffLen — сколько байт читать для определения Content-Type.
const sniffLen = 3072

// FSStore — объектное хранилище поверх afero.Fs.
// Ключ {slug}/{filename} хранится как файл /{slug}/{filename}.
// Запись атомарна: temp-файл в /.staging, затем rename.
type FSStore struct {
	fs     afero.Fs
	logger *slog.Logger
}

// NewFSStore создаёт хранилище в директории root на диске.
func NewFSStore(root string, logger *slog.Logger) (*FSStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", root, err)
	}
	return NewFSStoreWithFs(afero.NewBasePathFs(afero.NewOsFs(), root), logger)
}

// NewFSStoreWithFs создаёт хранилище поверх произвольной afero.Fs
// (в тестах — afero.NewMemMapFs()).
func NewFSStoreWithFs(fsys afero.Fs, logger *slog.Logger) (*FSStore, error) {
	for _, dir := range []string{stagingDir, multipartDir} {
		if err := fsys.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("не удалось создать служебную директорию %s: %w", dir, err)
		}
	}
	return &FSStore{
		fs:     fsys,
		logger: logger.With(slog.String("component", "fs_store")),
	}, nil
}

// objectPath проверяет ключ и возвращает путь файла.
func objectPath(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") ||
		strings.Contains(key, "\\") || strings.ContainsRune(key, 0) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for i, seg := range strings.Split(key, "/") {
		if seg == "" || seg == "." || seg == ".." || (i == 0 && strings.HasPrefix(seg, ".")) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return "/" + key, nil
}

// Put записывает объект атомарно. contentType не сохраняется:
// при чтении тип определяется по содержимому.
func (s *FSStore) Put(ctx context.Context, key string, body io.Reader, size int64, _ string) error {
	p, err := objectPath(key)
	if err != nil {
		return err
	}
	tmp, err := s.writeStaging(ctx, body, size)
	if err != nil {
		return fmt.Errorf("запись объекта %s: %w", key, err)
	}
	if err := s.commit(tmp, p); err != nil {
		return fmt.Errorf("запись объекта %s: %w", key, err)
	}
	return nil
}

// writeStaging пишет body во временный файл и возвращает его путь.
// При size >= 0 число записанных байт обязано совпасть с size.
func (s *FSStore) writeStaging(ctx context.Context, body io.Reader, size int64) (string, error) {
	tmp := path.Join(stagingDir, uuid.New().String())
	f, err := s.fs.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("ошибка создания временного файла: %w", err)
	}

	n, err := io.Copy(f, ContextReader(ctx, body))
	if err == nil && size >= 0 && n != size {
		err = fmt.Errorf("%w: ожидалось %d, записано %d", ErrSizeMismatch, size, n)
	}
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = s.fs.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// commit переносит временный файл на место объекта.
func (s *FSStore) commit(tmp, dst string) error {
	if err := s.fs.MkdirAll(path.Dir(dst), 0o750); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("ошибка создания директории: %w", err)
	}
	if err := s.fs.Rename(tmp, dst); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("ошибка атомарного переименования: %w", err)
	}
	return nil
}

// Get открывает объект. Content-Type определяется по первым байтам.
func (s *FSStore) Get(_ context.Context, key string) (*Object, error) {
	p, err := objectPath(key)
	if err != nil {
		return nil, err
	}
	f, err := s.fs.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("ошибка открытия объекта %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка получения информации об объекте %s: %w", key, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		f.Close()
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", key, err)
	}

	return &Object{
		Body:        f,
		Size:        info.Size(),
		ContentType: mimetype.Detect(head[:n]).String(),
	}, nil
}

// Delete удаляет объект. Отсутствующий объект не ошибка.
func (s *FSStore) Delete(_ context.Context, key string) error {
	p, err := objectPath(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления объекта %s: %w", key, err)
	}
	return nil
}

// List обходит дерево и возвращает ключи с префиксом prefix.
func (s *FSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := afero.Walk(s.fs, "/", func(p string, info fs.FileInfo, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		key := strings.TrimPrefix(path.Clean("/"+p), "/")
		if info.IsDir() {
			if strings.HasPrefix(key, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка обхода хранилища (prefix=%s): %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

// DeletePrefix удаляет все объекты с префиксом.
func (s *FSStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	return deleteListed(ctx, s, prefix)
}

// Ping проверяет доступность корня хранилища.
func (s *FSStore) Ping(_ context.Context) error {
	if _, err := s.fs.Stat(multipartDir); err != nil {
		return fmt.Errorf("хранилище недоступно: %w", err)
	}
	return nil
}

// fsUploadMeta — описание multipart-загрузки на диске.
type fsUploadMeta struct {
	Key         string `json:"key"`
	ContentType string `json:"contentType,omitempty"`
}

// CreateMultipartUpload создаёт директорию загрузки /.multipart/{uploadID}.
func (s *FSStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (MultipartUpload, error) {
	if _, err := objectPath(key); err != nil {
		return nil, err
	}
	u := &fsUpload{store: s, key: key, uploadID: uuid.New().String()}

	data, err := json.Marshal(fsUploadMeta{Key: key, ContentType: contentType})
	if err != nil {
		return nil, fmt.Errorf("сериализация описания загрузки: %w", err)
	}
	if err := s.fs.MkdirAll(u.dir(), 0o750); err != nil {
		return nil, fmt.Errorf("ошибка создания директории загрузки: %w", err)
	}
	tmp, err := s.writeStaging(ctx, strings.NewReader(string(data)), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("запись описания загрузки: %w", err)
	}
	if err := s.commit(tmp, path.Join(u.dir(), uploadMeta)); err != nil {
		return nil, fmt.Errorf("запись описания загрузки: %w", err)
	}

	s.logger.Debug("Multipart-загрузка создана",
		slog.String("key", key),
		slog.String("upload_id", u.uploadID),
	)
	return u, nil
}

// ResumeMultipartUpload возвращает дескриптор без обращения к диску.
func (s *FSStore) ResumeMultipartUpload(key, uploadID string) MultipartUpload {
	return &fsUpload{store: s, key: key, uploadID: uploadID}
}

// fsUpload — multipart-загрузка FS backend-а. Части хранятся файлами
// /.multipart/{uploadID}/{partNumber}, ETag — MD5 содержимого части в кавычках, как в S3.
type fsUpload struct {
	store    *FSStore
	key      string
	uploadID string
}

func (u *fsUpload) Key() string      { return u.key }
func (u *fsUpload) UploadID() string { return u.uploadID }

func (u *fsUpload) dir() string {
	return path.Join(multipartDir, u.uploadID)
}

func (u *fsUpload) partPath(n int) string {
	return path.Join(u.dir(), fmt.Sprintf("%05d", n))
}

// check убеждается, что загрузка существует и относится к тому же ключу.
func (u *fsUpload) check() error {
	if _, err := uuid.Parse(u.uploadID); err != nil {
		return ErrNoSuchUpload
	}
	data, err := afero.ReadFile(u.store.fs, path.Join(u.dir(), uploadMeta))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNoSuchUpload
		}
		return fmt.Errorf("чтение описания загрузки: %w", err)
	}
	var meta fsUploadMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("разбор описания загрузки: %w", err)
	}
	if meta.Key != u.key {
		return ErrNoSuchUpload
	}
	return nil
}

func (u *fsUpload) UploadPart(ctx context.Context, partNumber int, body io.Reader, size int64) (model.UploadedPart, error) {
	if partNumber < 1 || partNumber > MaxPartNumber {
		return model.UploadedPart{}, fmt.Errorf("%w: номер части %d", ErrInvalidParts, partNumber)
	}
	if err := u.check(); err != nil {
		return model.UploadedPart{}, err
	}

	hasher := md5.New() //nolint:gosec // совместимость ETag с S3
	tmp, err := u.store.writeStaging(ctx, io.TeeReader(body, hasher), size)
	if err != nil {
		return model.UploadedPart{}, fmt.Errorf("запись части %d: %w", partNumber, err)
	}
	if err := u.store.commit(tmp, u.partPath(partNumber)); err != nil {
		return model.UploadedPart{}, fmt.Errorf("запись части %d: %w", partNumber, err)
	}
	return model.UploadedPart{
		PartNumber: partNumber,
		ETag:       quoteETag(hex.EncodeToString(hasher.Sum(nil))),
	}, nil
}

// Complete склеивает части в порядке parts, сверяя ETag каждой части.
func (u *fsUpload) Complete(ctx context.Context, parts []model.UploadedPart) error {
	if err := u.check(); err != nil {
		return err
	}
	if len(parts) == 0 {
		return fmt.Errorf("%w: пустой список частей", ErrInvalidParts)
	}
	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return fmt.Errorf("%w: нарушен порядок частей", ErrInvalidParts)
		}
	}

	dst, err := objectPath(u.key)
	if err != nil {
		return err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(u.concat(parts, pw))
	}()
	tmp, err := u.store.writeStaging(ctx, pr, -1)
	pr.Close()
	if err != nil {
		return err
	}
	if err := u.store.commit(tmp, dst); err != nil {
		return err
	}

	if err := u.store.fs.RemoveAll(u.dir()); err != nil {
		u.store.logger.Warn("Не удалось удалить части завершённой загрузки",
			slog.String("upload_id", u.uploadID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// concat пишет части в w по порядку и сверяет MD5 с заявленным ETag.
func (u *fsUpload) concat(parts []model.UploadedPart, w io.Writer) error {
	for _, part := range parts {
		f, err := u.store.fs.Open(u.partPath(part.PartNumber))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("%w: часть %d не загружена", ErrInvalidParts, part.PartNumber)
			}
			return fmt.Errorf("открытие части %d: %w", part.PartNumber, err)
		}
		hasher := md5.New() //nolint:gosec // совместимость ETag с S3
		_, err = io.Copy(w, io.TeeReader(f, hasher))
		f.Close()
		if err != nil {
			return fmt.Errorf("копирование части %d: %w", part.PartNumber, err)
		}
		if quoteETag(hex.EncodeToString(hasher.Sum(nil))) != quoteETag(part.ETag) {
			return fmt.Errorf("%w: ETag части %d не совпадает", ErrInvalidParts, part.PartNumber)
		}
	}
	return nil
}

func (u *fsUpload) Abort(_ context.Context) error {
	if _, err := uuid.Parse(u.uploadID); err != nil {
		return nil
	}
	if err := u.store.fs.RemoveAll(u.dir()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("ошибка удаления частей загрузки %s: %w", u.uploadID, err)
	}
	return nil
}

// quoteETag приводит ETag к виду "hex".
func quoteETag(etag string) string {
	return `"` + strings.Trim(etag, `"`) + `"`
}

// ContextReader возвращает io.Reader, который прерывает чтение
// с ошибкой ctx.Err() после отмены контекста.
func ContextReader(ctx context.Context, r io.Reader) io.Reader {
	return contextReader{ctx: ctx, r: r}
}

type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// deleteListed удаляет объекты по списку ключей с префиксом.
func deleteListed(ctx context.Context, s Store, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("%w: пустой префикс", ErrInvalidKey)
	}
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, key := range keys {
		if err := s.Delete(ctx, key); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

var _ Store = (*FSStore)(nil)
