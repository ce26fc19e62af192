// Пакет errors — запись ошибок API в едином формате
// {"error": {"code": "...", "message": "..."}}.
// Обработчики отдают ошибки только через WriteError и конструкторы ниже.
package errors //nolint:revive // имя совпадает со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
)

// Машиночитаемые коды ошибок.
const (
	CodeValidationError    = "VALIDATION_ERROR"
	CodeInvalidPartNumbers = "INVALID_PART_NUMBERS"
	CodeMissingChunks      = "MISSING_CHUNKS"
	CodeNotFound           = "NOT_FOUND"
	CodeExpired            = "EXPIRED"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeSlugExhausted      = "SLUG_EXHAUSTED"
	CodeStorageError       = "STORAGE_ERROR"
	CodeNotConfigured      = "NOT_CONFIGURED"
	CodeSweepInProgress    = "SWEEP_IN_PROGRESS"
	CodeInternalError      = "INTERNAL_ERROR"
)

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError записывает ответ ошибки.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание для клиента.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Expired — 410 ресурс существовал, но срок хранения истёк.
func Expired(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusGone, CodeExpired, message)
}

// Unauthorized — 401 неверные учётные данные.
func Unauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// NotConfigured — 500 служебный вызов без настроенной авторизации.
func NotConfigured(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeNotConfigured, message)
}

// InternalError — 500 внутренняя ошибка. Детали клиенту не передаются.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}

// SweepInProgress — 409 очистка уже выполняется.
func SweepInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeSweepInProgress, message)
}
