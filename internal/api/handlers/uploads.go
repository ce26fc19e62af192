// uploads.go — HTTP handlers координатора загрузок:
// start, chunk, complete, cancel, direct.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
	"github.com/bigkaa/tempshare/internal/api/routes"
	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/service"
)

// startRequest — тело POST /api/upload/start.
type startRequest struct {
	Filename string `json:"filename"`
	Filesize int64  `json:"filesize"`
	MimeType string `json:"mimeType"`
	Domain   string `json:"domain,omitempty"`
	Expires  string `json:"expires"`
}

// completeRequest — тело POST /api/upload/complete.
type completeRequest struct {
	UploadID      string               `json:"uploadId"`
	Slug          string               `json:"slug"`
	Filename      string               `json:"filename"`
	Filesize      int64                `json:"filesize"`
	MimeType      string               `json:"mimeType"`
	Domain        string               `json:"domain,omitempty"`
	Expires       string               `json:"expires"`
	TotalChunks   int                  `json:"totalChunks"`
	UploadedParts []model.UploadedPart `json:"uploadedParts"`
}

// cancelRequest — тело POST /api/upload/cancel.
type cancelRequest struct {
	UploadID string `json:"uploadId"`
}

// UploadsHandler — обработчик endpoints загрузки.
type UploadsHandler struct {
	svc *service.UploadService
}

// NewUploadsHandler создаёт обработчик endpoints загрузки.
func NewUploadsHandler(svc *service.UploadService) *UploadsHandler {
	return &UploadsHandler{svc: svc}
}

// StartUpload обрабатывает POST /api/upload/start.
func (h *UploadsHandler) StartUpload(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Start(r.Context(), service.StartParams{
		Filename: req.Filename,
		Filesize: req.Filesize,
		MimeType: req.MimeType,
		Domain:   req.Domain,
		Expires:  req.Expires,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// UploadChunk обрабатывает POST /api/upload/chunk.
// Тело — байты части, Content-Length обязателен.
func (h *UploadsHandler) UploadChunk(w http.ResponseWriter, r *http.Request, params routes.UploadChunkParams) {
	if r.ContentLength < 0 {
		apierrors.ValidationError(w, "Missing Content-Length header")
		return
	}

	res, err := h.svc.UploadChunk(r.Context(), service.ChunkParams{
		UploadID:    params.UploadId,
		ChunkIndex:  params.ChunkIndex,
		TotalChunks: params.TotalChunks,
		Length:      r.ContentLength,
		Body:        r.Body,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CompleteUpload обрабатывает POST /api/upload/complete.
func (h *UploadsHandler) CompleteUpload(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.svc.Complete(r.Context(), service.CompleteParams{
		UploadID:      req.UploadID,
		Slug:          req.Slug,
		Filename:      req.Filename,
		Filesize:      req.Filesize,
		MimeType:      req.MimeType,
		Domain:        req.Domain,
		Expires:       req.Expires,
		TotalChunks:   req.TotalChunks,
		UploadedParts: req.UploadedParts,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// CancelUpload обрабатывает POST /api/upload/cancel.
func (h *UploadsHandler) CancelUpload(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Cancel(r.Context(), req.UploadID); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// DirectUpload обрабатывает POST /api/upload/direct.
// Тело — файл целиком, параметры — в query.
func (h *UploadsHandler) DirectUpload(w http.ResponseWriter, r *http.Request, params routes.DirectUploadParams) {
	var domain string
	if params.Domain != nil {
		domain = *params.Domain
	}

	res, err := h.svc.Direct(r.Context(), service.DirectParams{
		Filename: params.Filename,
		Filesize: params.Filesize,
		MimeType: params.MimeType,
		Domain:   domain,
		Expires:  params.Expires,
		Body:     r.Body,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
