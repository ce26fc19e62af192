// Пакет service — бизнес-логика tempshare: координатор загрузок,
// раздача файлов, список доменов, очистка просроченных файлов.
package service

import (
	"errors"
	"fmt"
	"net/http"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
)

// ErrorKind — класс ошибки сервиса.
type ErrorKind int

const (
	// KindValidation — ошибка клиента, обнаруженная до обращений к хранилищам.
	KindValidation ErrorKind = iota + 1
	// KindNotFound — неизвестная загрузка, slug или уже завершённая сессия.
	KindNotFound
	// KindExpired — ресурс существовал, но срок хранения истёк.
	KindExpired
	// KindConflict — некорректная последовательность частей или исчерпаны попытки выбора slug.
	KindConflict
	// KindUpstream — сбой объектного хранилища или базы метаданных.
	KindUpstream
	// KindInternal — прочие ошибки.
	KindInternal
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindExpired:
		return "expired"
	case KindConflict:
		return "conflict"
	case KindUpstream:
		return "upstream"
	default:
		return "internal"
	}
}

// UploadError — ошибка сервиса с HTTP-кодом и сообщением для клиента.
// Err — исходная причина, клиенту не показывается.
type UploadError struct {
	Kind       ErrorKind
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *UploadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// AsUploadError извлекает *UploadError из цепочки. Прочие ошибки считаются внутренними.
func AsUploadError(err error) *UploadError {
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue
	}
	return internalErr("Internal server error", err)
}

// KindOf возвращает класс ошибки (0 для nil).
func KindOf(err error) ErrorKind {
	if err == nil {
		return 0
	}
	return AsUploadError(err).Kind
}

func validationErr(message string) *UploadError {
	return &UploadError{
		Kind:       KindValidation,
		StatusCode: http.StatusBadRequest,
		Code:       apierrors.CodeValidationError,
		Message:    message,
	}
}

func notFoundErr(message string) *UploadError {
	return &UploadError{
		Kind:       KindNotFound,
		StatusCode: http.StatusNotFound,
		Code:       apierrors.CodeNotFound,
		Message:    message,
	}
}

func expiredErr(message string) *UploadError {
	return &UploadError{
		Kind:       KindExpired,
		StatusCode: http.StatusGone,
		Code:       apierrors.CodeExpired,
		Message:    message,
	}
}

// partsErr — нарушение последовательности частей, клиент может повторить запрос.
func partsErr(code, message string) *UploadError {
	return &UploadError{
		Kind:       KindConflict,
		StatusCode: http.StatusBadRequest,
		Code:       code,
		Message:    message,
	}
}

func slugExhaustedErr() *UploadError {
	return &UploadError{
		Kind:       KindConflict,
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeSlugExhausted,
		Message:    "Failed to generate unique slug",
	}
}

func upstreamErr(message string, err error) *UploadError {
	return &UploadError{
		Kind:       KindUpstream,
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeStorageError,
		Message:    message,
		Err:        err,
	}
}

func internalErr(message string, err error) *UploadError {
	return &UploadError{
		Kind:       KindInternal,
		StatusCode: http.StatusInternalServerError,
		Code:       apierrors.CodeInternalError,
		Message:    message,
		Err:        err,
	}
}
