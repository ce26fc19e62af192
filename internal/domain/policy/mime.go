package policy

import "strings"

// allowedMimeTypes — белый список MIME-типов.
var allowedMimeTypes = map[string]struct{}{
	// Изображения
	"image/jpeg":    {},
	"image/jpg":     {},
	"image/png":     {},
	"image/gif":     {},
	"image/webp":    {},
	"image/svg+xml": {},
	"image/bmp":     {},
	"image/tiff":    {},
	"image/ico":     {},
	"image/x-icon":  {},

	// Видео
	"video/mp4":        {},
	"video/mpeg":       {},
	"video/ogg":        {},
	"video/webm":       {},
	"video/quicktime":  {},
	"video/x-msvideo":  {},
	"video/x-matroska": {},

	// Аудио
	"audio/mpeg": {},
	"audio/mp3":  {},
	"audio/wav":  {},
	"audio/ogg":  {},
	"audio/webm": {},
	"audio/aac":  {},
	"audio/flac": {},
	"audio/m4a":  {},

	// Документы
	"application/pdf":    {},
	"application/msword": {},
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         {},
	"application/vnd.ms-powerpoint":                                             {},
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": {},

	// Текст и код
	"text/plain":       {},
	"text/csv":         {},
	"text/html":        {},
	"text/css":         {},
	"text/javascript":  {},
	"application/json": {},
	"application/xml":  {},
	"text/xml":         {},

	// Архивы
	"application/zip":              {},
	"application/x-zip-compressed": {},
	"application/x-rar-compressed": {},
	"application/x-7z-compressed":  {},
	"application/gzip":             {},
	"application/x-tar":            {},

	"application/octet-stream": {},
}

// dangerousMimeTypes — исполняемые файлы и скрипты. Проверяются раньше белого списка.
var dangerousMimeTypes = map[string]struct{}{
	"application/x-msdownload":                      {},
	"application/x-msdos-program":                   {},
	"application/x-executable":                      {},
	"application/x-sh":                              {},
	"application/x-bat":                             {},
	"application/x-cmd":                             {},
	"text/x-sh":                                     {},
	"text/x-shellscript":                            {},
	"application/x-apple-diskimage":                 {},
	"application/vnd.microsoft.portable-executable": {},
}

// allowedWildcards — шаблоны {type}/*, действующие при allowWildcards.
var allowedWildcards = map[string]struct{}{
	"image/*": {},
	"video/*": {},
	"audio/*": {},
}

// NormalizeMimeType приводит MIME-тип к нижнему регистру без пробелов по краям.
func NormalizeMimeType(mime string) string {
	return strings.ToLower(strings.TrimSpace(mime))
}

// IsValidMimeType возвращает true, если тип не запрещён и входит в белый список.
// При allowWildcards тип также принимается по шаблону {type}/*.
// Неизвестные типы отклоняются.
func IsValidMimeType(mime string, allowWildcards bool) bool {
	m := NormalizeMimeType(mime)
	if m == "" {
		return false
	}
	if _, bad := dangerousMimeTypes[m]; bad {
		return false
	}
	if _, ok := allowedMimeTypes[m]; ok {
		return true
	}
	if !allowWildcards {
		return false
	}
	major, _, found := strings.Cut(m, "/")
	if !found || major == "" {
		return false
	}
	_, ok := allowedWildcards[major+"/*"]
	return ok
}

// IsDangerousMimeType сообщает, входит ли тип в список запрещённых.
func IsDangerousMimeType(mime string) bool {
	_, bad := dangerousMimeTypes[NormalizeMimeType(mime)]
	return bad
}
