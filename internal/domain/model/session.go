package model

import "time"

// UploadSession — состояние chunked-загрузки, сохраняемое между запросами.
// Создаётся при start, неизменяемо, удаляется при complete или cancel.
// Хранится JSON-объектом в самом объектном хранилище: multipart-state/{uploadId}.
type UploadSession struct {
	// UploadID — непрозрачный идентификатор сессии (UUID v4)
	UploadID string `json:"uploadId"`
	// Key — итоговый ключ объекта {slug}/{filename}
	Key string `json:"key"`
	// MultipartUploadID — идентификатор multipart-загрузки в объектном хранилище
	MultipartUploadID string `json:"multipartUploadId"`
	// ContentType — MIME-тип итогового объекта
	ContentType string `json:"contentType,omitempty"`
	// Filesize — заявленный при start размер файла
	Filesize int64 `json:"filesize,omitempty"`
	// CreatedAt — время открытия сессии, используется для очистки брошенных загрузок
	CreatedAt time.Time `json:"createdAt"`
}

// IsStale сообщает, что сессия старше ttl на момент now.
func (s *UploadSession) IsStale(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// UploadedPart — подтверждённая часть multipart-загрузки.
type UploadedPart struct {
	// PartNumber — номер части, начиная с 1
	PartNumber int `json:"partNumber"`
	// ETag — токен целостности, возвращённый хранилищем
	ETag string `json:"etag"`
}
