// Пакет tokens — одноразовые токены скачивания.
// Токен выдаётся на шаге «запросить скачивание» и погашается при первом обращении.
// Backend-ы: expirable LRU (один экземпляр) и Redis (общий для всех экземпляров).
package tokens

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ErrNotFound — токен неизвестен, уже использован или истёк.
var ErrNotFound = errors.New("токен не найден")

// Grant — право на однократное скачивание файла.
type Grant struct {
	UploadID  string    `json:"uploadId"`
	Slug      string    `json:"slug"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Store — хранилище токенов скачивания.
type Store interface {
	// Put сохраняет токен на ttl.
	Put(ctx context.Context, token string, grant Grant, ttl time.Duration) error
	// TakeOnce атомарно извлекает и удаляет токен.
	// Второй вызов с тем же токеном возвращает ErrNotFound.
	TakeOnce(ctx context.Context, token string) (Grant, error)
}

var tokenOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "ts_token_store_total",
	Help: "Операции с хранилищем токенов скачивания.",
}, []string{"op", "result"})

// observe учитывает результат операции в метрике.
func observe(op string, err error) {
	result := "ok"
	switch {
	case errors.Is(err, ErrNotFound):
		result = "miss"
	case err != nil:
		result = "error"
	}
	tokenOpsTotal.WithLabelValues(op, result).Inc()
}
