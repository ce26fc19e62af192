// Пакет ident — генерация идентификаторов: публичных slug,
// идентификаторов сессий загрузки и токенов скачивания.
package ident

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/google/uuid"
)

// SlugLength — длина slug.
const SlugLength = 6

// slugAlphabet — URL-безопасный алфавит из 64 символов.
const slugAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-"

// tokenBytes — энтропия токена скачивания.
const tokenBytes = 32

// NewSlug возвращает случайный slug длины SlugLength.
// Уникальность не гарантируется, её проверяет вызывающая сторона.
func NewSlug() (string, error) {
	buf := make([]byte, SlugLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("генерация slug: %w", err)
	}
	for i, b := range buf {
		// 64 символа: младшие 6 бит дают равномерное распределение
		buf[i] = slugAlphabet[b&63]
	}
	return string(buf), nil
}

// IsSlug проверяет, что s похож на slug: непустой, не длиннее 64 символов, только алфавит slug.
func IsSlug(s string) bool {
	if s == "" || len(s) > 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		ok := (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' || c == '-'
		if !ok {
			return false
		}
	}
	return true
}

// NewUploadID возвращает идентификатор сессии загрузки (UUID v4).
func NewUploadID() string {
	return uuid.New().String()
}

// IsUploadID проверяет формат идентификатора сессии.
func IsUploadID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil && len(s) == 36
}

// NewToken возвращает одноразовый токен скачивания (256 бит, base64url без паддинга).
func NewToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("генерация токена: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
