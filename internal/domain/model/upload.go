// Пакет model — доменные модели сервиса временного обмена файлами.
// UploadRecord — постоянная запись о загруженном файле (PostgreSQL),
// UploadSession — состояние multipart-загрузки между запросами.
package model

import (
	"strings"
	"time"
)

// UploadRecord — метаданные загруженного файла.
// Создаётся только после того, как байты надёжно сохранены в объектном хранилище.
type UploadRecord struct {
	// ID — уникальный идентификатор записи (UUID v4)
	ID string `json:"id"`

	// Slug — короткий публичный идентификатор, часть URL
	Slug string `json:"slug"`

	// Filename — санитизированное имя файла
	Filename string `json:"filename"`

	// Filesize — размер файла в байтах
	Filesize int64 `json:"filesize"`

	// MimeType — MIME-тип, заявленный клиентом
	MimeType string `json:"mimeType"`

	// Domain — домен, с которого разрешена раздача файла (пустая строка — любой)
	Domain string `json:"domain,omitempty"`

	// Width, Height — размеры изображения или превью видео (если удалось определить)
	Width  *int `json:"width,omitempty"`
	Height *int `json:"height,omitempty"`

	// Thumbnail — ключ превью в объектном хранилище (только для видео)
	Thumbnail *string `json:"thumbnail,omitempty"`

	// UploadAt — время создания записи (UTC)
	UploadAt time.Time `json:"uploadAt"`

	// ExpiresAt — UploadAt + длительность выбранного варианта хранения
	ExpiresAt time.Time `json:"expiresAt"`
}

// ObjectKey возвращает ключ объекта с содержимым файла: {slug}/{filename}.
func (r *UploadRecord) ObjectKey() string {
	return ObjectKey(r.Slug, r.Filename)
}

// IsExpired проверяет, истёк ли срок хранения на момент now.
func (r *UploadRecord) IsExpired(now time.Time) bool {
	return r.ExpiresAt.Before(now)
}

// ServableOn сообщает, может ли файл раздаваться на домене host.
// Записи без привязки к домену раздаются на любом домене.
func (r *UploadRecord) ServableOn(host string) bool {
	if r.Domain == "" || host == "" {
		return true
	}
	return strings.EqualFold(r.Domain, host)
}

// ObjectKey формирует ключ объекта файла.
func ObjectKey(slug, filename string) string {
	return slug + "/" + filename
}

// TempPrefix — префикс временных объектов загрузки.
func TempPrefix(slug string) string {
	return slug + "/temp/"
}

// ThumbnailPrefix — префикс превью.
func ThumbnailPrefix(slug string) string {
	return slug + "/thumbnail/"
}

// ThumbnailKey — ключ превью: {slug}/thumbnail/{имя без расширения}.jpg
func ThumbnailKey(slug, filename string) string {
	base := filename
	if i := strings.LastIndexByte(base, '.'); i > 0 && i < len(base)-1 {
		base = base[:i]
	}
	return ThumbnailPrefix(slug) + base + ".jpg"
}

// Domain — домен, на котором может раздаваться файл.
type Domain struct {
	ID        string    `json:"id"`
	Domain    string    `json:"domain"`
	Subdomain *string   `json:"subdomain,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Host возвращает полное имя хоста: subdomain.domain или domain.
func (d *Domain) Host() string {
	if d.Subdomain != nil && *d.Subdomain != "" {
		return *d.Subdomain + "." + d.Domain
	}
	return d.Domain
}
