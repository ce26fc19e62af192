// Пакет notify — уведомления о новых загрузках (webhook, Kafka).
// Ошибки уведомлений не влияют на результат загрузки.
package notify

import (
	"context"
	"errors"
	"time"
)

// Event — сведения о созданной записи загрузки.
type Event struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Filename     string    `json:"filename"`
	Filesize     int64     `json:"filesize"`
	MimeType     string    `json:"mimeType"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnailUrl,omitempty"`
	UploadAt     time.Time `json:"uploadAt"`
	ExpiresAt    time.Time `json:"expiresAt"`
}

// Notifier доставляет событие о загрузке.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Multi рассылает событие всем получателям; ошибки объединяются.
type Multi []Notifier

// Notify вызывает всех получателей, даже если часть из них вернула ошибку.
func (m Multi) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop ничего не делает.
type Nop struct{}

// Notify всегда возвращает nil.
func (Nop) Notify(context.Context, Event) error { return nil }
