// downloads.go — сведения о файле, скачивание, токены скачивания
// и публичные пути объектов.
package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/service"
)

// URLBuilder строит публичные URL файлов и миниатюр.
type URLBuilder interface {
	FileURL(slug, filename string) string
	ObjectURL(key string) string
}

// recordView — запись в ответе GET /api/upload/{slug}.
type recordView struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Filename  string    `json:"filename"`
	Filesize  int64     `json:"filesize"`
	MimeType  string    `json:"mimeType"`
	Domain    string    `json:"domain,omitempty"`
	Width     *int      `json:"width,omitempty"`
	Height    *int      `json:"height,omitempty"`
	Thumbnail string    `json:"thumbnail,omitempty"`
	UploadAt  time.Time `json:"uploadAt"`
	ExpiresAt time.Time `json:"expiresAt"`
	URL       string    `json:"url"`
}

type infoResponse struct {
	Success bool       `json:"success"`
	Record  recordView `json:"record"`
}

type tokenRequest struct {
	UploadID string `json:"uploadId"`
}

// DownloadsHandler — обработчик endpoints раздачи файлов.
type DownloadsHandler struct {
	svc    *service.DownloadService
	urls   URLBuilder
	logger *slog.Logger
}

// NewDownloadsHandler создаёт обработчик раздачи файлов.
func NewDownloadsHandler(svc *service.DownloadService, urls URLBuilder, logger *slog.Logger) *DownloadsHandler {
	return &DownloadsHandler{
		svc:    svc,
		urls:   urls,
		logger: logger.With(slog.String("component", "downloads_handler")),
	}
}

// GetUploadInfo обрабатывает GET /api/upload/{slug}.
func (h *DownloadsHandler) GetUploadInfo(w http.ResponseWriter, r *http.Request, slug string) {
	rec, err := h.svc.Info(r.Context(), slug, r.Host)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, infoResponse{Success: true, Record: h.view(rec)})
}

func (h *DownloadsHandler) view(rec *model.UploadRecord) recordView {
	v := recordView{
		ID:        rec.ID,
		Slug:      rec.Slug,
		Filename:  rec.Filename,
		Filesize:  rec.Filesize,
		MimeType:  rec.MimeType,
		Domain:    rec.Domain,
		Width:     rec.Width,
		Height:    rec.Height,
		UploadAt:  rec.UploadAt,
		ExpiresAt: rec.ExpiresAt,
		URL:       h.urls.FileURL(rec.Slug, rec.Filename),
	}
	if rec.Thumbnail != nil {
		v.Thumbnail = h.urls.ObjectURL(*rec.Thumbnail)
	}
	return v
}

// DownloadFile обрабатывает GET /api/download/{slug}: файл как вложение.
func (h *DownloadsHandler) DownloadFile(w http.ResponseWriter, r *http.Request, slug string) {
	d, err := h.svc.Open(r.Context(), slug)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.stream(w, d, d.Record.Filename, true)
}

// CreateDownloadToken обрабатывает POST /api/download/token.
func (h *DownloadsHandler) CreateDownloadToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := h.svc.CreateToken(r.Context(), req.UploadID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// RedeemDownloadToken обрабатывает GET /api/download/token/{token}.
func (h *DownloadsHandler) RedeemDownloadToken(w http.ResponseWriter, r *http.Request, token string) {
	d, err := h.svc.Redeem(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.stream(w, d, d.Record.Filename, true)
}

// GetPublicObject обрабатывает GET /{slug}/{filename}.
func (h *DownloadsHandler) GetPublicObject(w http.ResponseWriter, r *http.Request, slug, filename string) {
	d, err := h.svc.OpenPublic(r.Context(), slug, filename, false)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.stream(w, d, filename, false)
}

// GetPublicThumbnail обрабатывает GET /{slug}/thumbnail/{name}.
func (h *DownloadsHandler) GetPublicThumbnail(w http.ResponseWriter, r *http.Request, slug, name string) {
	d, err := h.svc.OpenPublic(r.Context(), slug, name, true)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.stream(w, d, name, false)
}

// stream отдаёт тело объекта. attachment — скачивание, иначе inline.
func (h *DownloadsHandler) stream(w http.ResponseWriter, d *service.Download, filename string, attachment bool) {
	defer d.Object.Body.Close()

	contentType := d.Object.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	disposition := "inline"
	if attachment {
		disposition = "attachment"
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", disposition+`; filename="`+url.PathEscape(filename)+`"`)
	if d.Object.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Object.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, d.Object.Body); err != nil {
		// Заголовки уже отправлены, остаётся только залогировать
		h.logger.Warn("Ошибка передачи файла",
			slog.String("slug", d.Record.Slug),
			slog.String("error", err.Error()),
		)
	}
}
