// handler.go — APIHandler реализует routes.ServerInterface,
// делегируя вызовы в отдельные handler'ы по доменам.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
	"github.com/bigkaa/tempshare/internal/api/routes"
	"github.com/bigkaa/tempshare/internal/service"
)

// maxJSONBody — ограничение размера JSON-тела запроса.
const maxJSONBody = 1 << 20

// APIHandler — единая реализация ServerInterface, собирающая
// все доменные handlers в один объект.
type APIHandler struct {
	uploads     *UploadsHandler
	downloads   *DownloadsHandler
	domains     *DomainsHandler
	maintenance *MaintenanceHandler
	health      *HealthHandler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
func NewAPIHandler(
	uploads *UploadsHandler,
	downloads *DownloadsHandler,
	domains *DomainsHandler,
	maintenance *MaintenanceHandler,
	health *HealthHandler,
) *APIHandler {
	return &APIHandler{
		uploads:     uploads,
		downloads:   downloads,
		domains:     domains,
		maintenance: maintenance,
		health:      health,
	}
}

// --- Uploads ---

func (h *APIHandler) StartUpload(w http.ResponseWriter, r *http.Request) {
	h.uploads.StartUpload(w, r)
}

func (h *APIHandler) UploadChunk(w http.ResponseWriter, r *http.Request, params routes.UploadChunkParams) {
	h.uploads.UploadChunk(w, r, params)
}

func (h *APIHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	h.uploads.CompleteUpload(w, r)
}

func (h *APIHandler) CancelUpload(w http.ResponseWriter, r *http.Request) {
	h.uploads.CancelUpload(w, r)
}

func (h *APIHandler) DirectUpload(w http.ResponseWriter, r *http.Request, params routes.DirectUploadParams) {
	h.uploads.DirectUpload(w, r, params)
}

// --- Downloads ---

func (h *APIHandler) GetUploadInfo(w http.ResponseWriter, r *http.Request, slug string) {
	h.downloads.GetUploadInfo(w, r, slug)
}

func (h *APIHandler) DownloadFile(w http.ResponseWriter, r *http.Request, slug string) {
	h.downloads.DownloadFile(w, r, slug)
}

func (h *APIHandler) CreateDownloadToken(w http.ResponseWriter, r *http.Request) {
	h.downloads.CreateDownloadToken(w, r)
}

func (h *APIHandler) RedeemDownloadToken(w http.ResponseWriter, r *http.Request, token string) {
	h.downloads.RedeemDownloadToken(w, r, token)
}

func (h *APIHandler) GetPublicObject(w http.ResponseWriter, r *http.Request, slug, filename string) {
	h.downloads.GetPublicObject(w, r, slug, filename)
}

func (h *APIHandler) GetPublicThumbnail(w http.ResponseWriter, r *http.Request, slug, name string) {
	h.downloads.GetPublicThumbnail(w, r, slug, name)
}

// --- Domains ---

func (h *APIHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	h.domains.ListDomains(w, r)
}

// --- Maintenance ---

func (h *APIHandler) ClearExpired(w http.ResponseWriter, r *http.Request) {
	h.maintenance.ClearExpired(w, r)
}

// --- Health & Metrics ---

func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// Проверка на этапе компиляции
var _ routes.ServerInterface = (*APIHandler)(nil)

// writeJSON отдаёт v с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeServiceError переводит ошибку сервиса в ответ API.
func writeServiceError(w http.ResponseWriter, err error) {
	ue := service.AsUploadError(err)
	apierrors.WriteError(w, ue.StatusCode, ue.Code, ue.Message)
}

// decodeJSON разбирает тело запроса в dst. При ошибке ответ уже записан.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.ValidationError(w, "Request body too large")
			return false
		}
		apierrors.ValidationError(w, "Invalid JSON body")
		return false
	}
	return true
}
