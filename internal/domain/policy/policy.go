// Пакет policy — правила приёма файлов: допустимые MIME-типы, ограничения
// размера, санитизация имени и варианты срока хранения.
// Функции пакета чистые и не выполняют ввода-вывода.
package policy

import (
	"errors"
	"strings"
	"time"
)

// Размеры по умолчанию.
const (
	// MinFileSize — минимальный размер файла, пустые файлы не принимаются.
	MinFileSize int64 = 1
	// DefaultMaxFileSize — 512 MiB.
	DefaultMaxFileSize int64 = 512 << 20
	// DefaultChunkSize — 5 MiB, минимальный размер части S3 multipart (кроме последней).
	DefaultChunkSize int64 = 5 << 20
	// MinChunkSize — нижняя граница размера части, которую принимает S3.
	MinChunkSize int64 = 5 << 20
	// DefaultDirectUploadLimit — файлы до 10 MiB загружаются одним запросом.
	DefaultDirectUploadLimit int64 = 10 << 20
	// MaxFilenameLength — максимальная длина санитизированного имени.
	MaxFilenameLength = 255
)

// Ошибки валидации. Текст ошибки отдаётся клиенту как есть.
var (
	ErrFileTooLarge    = errors.New("File too large")
	ErrFileTooSmall    = errors.New("File too small")
	ErrInvalidMimeType = errors.New("Invalid file type")
	ErrInvalidExpires  = errors.New("Invalid expiration option")
)

// expiresOptions — допустимые варианты срока хранения.
var expiresOptions = map[string]time.Duration{
	"1h":  time.Hour,
	"1d":  24 * time.Hour,
	"7d":  7 * 24 * time.Hour,
	"30d": 30 * 24 * time.Hour,
}

// ExpiresDuration возвращает длительность хранения для варианта option.
func ExpiresDuration(option string) (time.Duration, bool) {
	d, ok := expiresOptions[option]
	return d, ok
}

// ExpiresOptions возвращает список допустимых вариантов по возрастанию длительности.
func ExpiresOptions() []string {
	return []string{"1h", "1d", "7d", "30d"}
}

// Policy — параметры приёма файлов, задаваемые конфигурацией.
type Policy struct {
	MaxFileSize       int64
	ChunkSize         int64
	DirectUploadLimit int64
	// AllowWildcards разрешает совпадение по шаблону {type}/* из белого списка.
	AllowWildcards bool
}

// Default возвращает политику со значениями по умолчанию.
func Default() Policy {
	return Policy{
		MaxFileSize:       DefaultMaxFileSize,
		ChunkSize:         DefaultChunkSize,
		DirectUploadLimit: DefaultDirectUploadLimit,
	}
}

// IsDirect сообщает, загружается ли файл размера size одним запросом.
func (p Policy) IsDirect(size int64) bool {
	return size <= p.DirectUploadLimit
}

// TotalChunks возвращает число частей: 1 для прямой загрузки,
// иначе ceil(size / ChunkSize).
func (p Policy) TotalChunks(size int64) int {
	if p.IsDirect(size) || p.ChunkSize <= 0 {
		return 1
	}
	return int((size + p.ChunkSize - 1) / p.ChunkSize)
}

// CheckSize проверяет размер: MinFileSize <= size <= MaxFileSize.
func (p Policy) CheckSize(size int64) error {
	if size < MinFileSize {
		return ErrFileTooSmall
	}
	if !ValidateFileSize(size, p.MaxFileSize) {
		return ErrFileTooLarge
	}
	return nil
}

// CheckMimeType проверяет MIME-тип по спискам с учётом AllowWildcards.
func (p Policy) CheckMimeType(mime string) error {
	if !IsValidMimeType(mime, p.AllowWildcards) {
		return ErrInvalidMimeType
	}
	return nil
}

// CheckExpires проверяет вариант срока хранения и возвращает его длительность.
func (p Policy) CheckExpires(option string) (time.Duration, error) {
	d, ok := ExpiresDuration(option)
	if !ok {
		return 0, ErrInvalidExpires
	}
	return d, nil
}

// ValidateFileSize: 0 < size <= max.
func ValidateFileSize(size, max int64) bool {
	return size > 0 && size <= max
}

// SanitizeFilename заменяет каждый символ вне [A-Za-z0-9._-] на '_'
// и обрезает результат до MaxFilenameLength.
// Символ вне BMP занимает две кодовые единицы UTF-16 и даёт два '_'.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if b.Len() >= MaxFilenameLength {
			break
		}
		switch {
		case isSafeFilenameRune(r):
			b.WriteRune(r)
		case r > 0xFFFF:
			b.WriteString("__")
		default:
			b.WriteByte('_')
		}
	}
	s := b.String()
	if len(s) > MaxFilenameLength {
		s = s[:MaxFilenameLength]
	}
	return s
}

func isSafeFilenameRune(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '.' || r == '_' || r == '-'
}
