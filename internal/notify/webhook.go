package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-resty/resty/v2"

	"github.com/bigkaa/tempshare/internal/domain/model"
)

const webhookUsername = "tempshare"

// Поля embed-а в формате Discord-совместимых webhook-ов.
type (
	webhookPayload struct {
		Username string         `json:"username,omitempty"`
		Embeds   []webhookEmbed `json:"embeds"`
	}
	webhookEmbed struct {
		Title     string         `json:"title"`
		URL       string         `json:"url,omitempty"`
		Timestamp string         `json:"timestamp"`
		Fields    []webhookField `json:"fields"`
		Image     *webhookImage  `json:"image,omitempty"`
	}
	webhookField struct {
		Name   string `json:"name"`
		Value  string `json:"value"`
		Inline bool   `json:"inline,omitempty"`
	}
	webhookImage struct {
		URL string `json:"url"`
	}
)

// Webhook отправляет embed с описанием загрузки.
type Webhook struct {
	client *resty.Client
	url    string
}

// NewWebhook создаёт клиент webhook-а с таймаутом timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	client := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &Webhook{client: client, url: url}
}

// Notify отправляет POST с embed-ом. Ответ не 2xx — ошибка.
func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	resp, err := w.client.R().
		SetContext(ctx).
		SetBody(buildPayload(ev)).
		Post(w.url)
	if err != nil {
		return fmt.Errorf("ошибка отправки webhook: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("webhook ответил %s", resp.Status())
	}
	return nil
}

func buildPayload(ev Event) webhookPayload {
	embed := webhookEmbed{
		Title:     ev.Filename,
		URL:       ev.URL,
		Timestamp: ev.UploadAt.UTC().Format(time.RFC3339),
		Fields: []webhookField{
			{Name: "URL", Value: "```" + ev.URL + "```"},
			{Name: "Размер", Value: humanize.IBytes(uint64(ev.Filesize)), Inline: true},
			{Name: "Тип", Value: ev.MimeType, Inline: true},
			{Name: "Истекает", Value: fmt.Sprintf("<t:%d:R>", ev.ExpiresAt.Unix()), Inline: true},
		},
	}

	switch {
	case ev.ThumbnailURL != "":
		embed.Image = &webhookImage{URL: ev.ThumbnailURL}
	case model.CategoryOf(ev.MimeType) == model.CategoryImage:
		embed.Image = &webhookImage{URL: ev.URL}
	}

	return webhookPayload{Username: webhookUsername, Embeds: []webhookEmbed{embed}}
}
