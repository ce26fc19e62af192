// Пакет routes — контракт HTTP API tempshare: интерфейс обработчиков,
// параметры запросов и привязка маршрутов chi.
//
// Path- и query-параметры разбираются здесь через oapi-codegen runtime,
// обработчики получают уже типизированные значения.
package routes

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
)

// UploadChunkParams — query-параметры POST /api/upload/chunk.
type UploadChunkParams struct {
	UploadId    string `form:"uploadId" json:"uploadId"`
	ChunkIndex  int    `form:"chunkIndex" json:"chunkIndex"`
	TotalChunks int    `form:"totalChunks" json:"totalChunks"`
}

// DirectUploadParams — query-параметры POST /api/upload/direct.
type DirectUploadParams struct {
	Filename string  `form:"filename" json:"filename"`
	Filesize int64   `form:"filesize" json:"filesize"`
	MimeType string  `form:"mimeType" json:"mimeType"`
	Domain   *string `form:"domain,omitempty" json:"domain,omitempty"`
	Expires  string  `form:"expires" json:"expires"`
}

// ServerInterface — обработчики всех endpoints сервиса.
type ServerInterface interface {
	// (GET /health/live)
	HealthLive(w http.ResponseWriter, r *http.Request)
	// (GET /health/ready)
	HealthReady(w http.ResponseWriter, r *http.Request)
	// (GET /metrics)
	GetMetrics(w http.ResponseWriter, r *http.Request)

	// (POST /api/upload/start)
	StartUpload(w http.ResponseWriter, r *http.Request)
	// (POST /api/upload/chunk)
	UploadChunk(w http.ResponseWriter, r *http.Request, params UploadChunkParams)
	// (POST /api/upload/complete)
	CompleteUpload(w http.ResponseWriter, r *http.Request)
	// (POST /api/upload/cancel)
	CancelUpload(w http.ResponseWriter, r *http.Request)
	// (POST /api/upload/direct)
	DirectUpload(w http.ResponseWriter, r *http.Request, params DirectUploadParams)
	// (GET /api/upload/{slug})
	GetUploadInfo(w http.ResponseWriter, r *http.Request, slug string)

	// (GET /api/download/{slug})
	DownloadFile(w http.ResponseWriter, r *http.Request, slug string)
	// (POST /api/download/token)
	CreateDownloadToken(w http.ResponseWriter, r *http.Request)
	// (GET /api/download/token/{token})
	RedeemDownloadToken(w http.ResponseWriter, r *http.Request, token string)

	// (GET /api/domains)
	ListDomains(w http.ResponseWriter, r *http.Request)

	// (GET|POST /api/cron/clear)
	ClearExpired(w http.ResponseWriter, r *http.Request)

	// (GET /{slug}/{filename})
	GetPublicObject(w http.ResponseWriter, r *http.Request, slug, filename string)
	// (GET /{slug}/thumbnail/{name})
	GetPublicThumbnail(w http.ResponseWriter, r *http.Request, slug, name string)
}

// MiddlewareFunc — middleware отдельного маршрута.
type MiddlewareFunc func(http.Handler) http.Handler

// Options — параметры привязки маршрутов.
type Options struct {
	// Maintenance оборачивает служебные маршруты (авторизация). nil — без обёртки.
	Maintenance MiddlewareFunc
}

// wrapper разбирает параметры и вызывает ServerInterface.
type wrapper struct {
	handler ServerInterface
}

// HandlerFromMux регистрирует все маршруты ServerInterface на r.
func HandlerFromMux(si ServerInterface, r chi.Router, opts Options) {
	w := &wrapper{handler: si}

	r.Get("/health/live", si.HealthLive)
	r.Get("/health/ready", si.HealthReady)
	r.Get("/metrics", si.GetMetrics)

	r.Route("/api", func(r chi.Router) {
		r.Post("/upload/start", si.StartUpload)
		r.Post("/upload/chunk", w.UploadChunk)
		r.Post("/upload/complete", si.CompleteUpload)
		r.Post("/upload/cancel", si.CancelUpload)
		r.Post("/upload/direct", w.DirectUpload)
		r.Get("/upload/{slug}", w.GetUploadInfo)

		r.Post("/download/token", si.CreateDownloadToken)
		r.Get("/download/token/{token}", w.RedeemDownloadToken)
		r.Get("/download/{slug}", w.DownloadFile)

		r.Get("/domains", si.ListDomains)

		r.Group(func(r chi.Router) {
			if opts.Maintenance != nil {
				r.Use(opts.Maintenance)
			}
			r.Get("/cron/clear", si.ClearExpired)
			r.Post("/cron/clear", si.ClearExpired)
		})
	})

	r.Get("/{slug}/thumbnail/{name}", w.GetPublicThumbnail)
	r.Get("/{slug}/{filename}", w.GetPublicObject)
}

func (w *wrapper) UploadChunk(rw http.ResponseWriter, r *http.Request) {
	var params UploadChunkParams
	query := r.URL.Query()
	if !requireQuery(rw, query, "uploadId", "chunkIndex", "totalChunks") {
		return
	}

	if err := runtime.BindQueryParameter("form", true, true, "uploadId", query, &params.UploadId); err != nil {
		invalidParam(rw, "uploadId", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "chunkIndex", query, &params.ChunkIndex); err != nil {
		invalidParam(rw, "chunkIndex", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "totalChunks", query, &params.TotalChunks); err != nil {
		invalidParam(rw, "totalChunks", err)
		return
	}

	w.handler.UploadChunk(rw, r, params)
}

func (w *wrapper) DirectUpload(rw http.ResponseWriter, r *http.Request) {
	var params DirectUploadParams
	query := r.URL.Query()
	if !requireQuery(rw, query, "filename", "filesize", "mimeType", "expires") {
		return
	}

	if err := runtime.BindQueryParameter("form", true, true, "filename", query, &params.Filename); err != nil {
		invalidParam(rw, "filename", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "filesize", query, &params.Filesize); err != nil {
		invalidParam(rw, "filesize", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "mimeType", query, &params.MimeType); err != nil {
		invalidParam(rw, "mimeType", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "domain", query, &params.Domain); err != nil {
		invalidParam(rw, "domain", err)
		return
	}
	if err := runtime.BindQueryParameter("form", true, true, "expires", query, &params.Expires); err != nil {
		invalidParam(rw, "expires", err)
		return
	}

	w.handler.DirectUpload(rw, r, params)
}

func (w *wrapper) GetUploadInfo(rw http.ResponseWriter, r *http.Request) {
	slug, ok := pathParam(rw, r, "slug")
	if !ok {
		return
	}
	w.handler.GetUploadInfo(rw, r, slug)
}

func (w *wrapper) DownloadFile(rw http.ResponseWriter, r *http.Request) {
	slug, ok := pathParam(rw, r, "slug")
	if !ok {
		return
	}
	w.handler.DownloadFile(rw, r, slug)
}

func (w *wrapper) RedeemDownloadToken(rw http.ResponseWriter, r *http.Request) {
	token, ok := pathParam(rw, r, "token")
	if !ok {
		return
	}
	w.handler.RedeemDownloadToken(rw, r, token)
}

func (w *wrapper) GetPublicObject(rw http.ResponseWriter, r *http.Request) {
	slug, ok := pathParam(rw, r, "slug")
	if !ok {
		return
	}
	filename, ok := pathParam(rw, r, "filename")
	if !ok {
		return
	}
	w.handler.GetPublicObject(rw, r, slug, filename)
}

func (w *wrapper) GetPublicThumbnail(rw http.ResponseWriter, r *http.Request) {
	slug, ok := pathParam(rw, r, "slug")
	if !ok {
		return
	}
	name, ok := pathParam(rw, r, "name")
	if !ok {
		return
	}
	w.handler.GetPublicThumbnail(rw, r, slug, name)
}

// pathParam разбирает path-параметр name (simple style, с URL-декодированием).
func pathParam(rw http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var value string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &value,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		invalidParam(rw, name, err)
		return "", false
	}
	return value, true
}

// requireQuery отвечает 400, если хотя бы один из параметров отсутствует или пуст.
func requireQuery(rw http.ResponseWriter, query url.Values, names ...string) bool {
	for _, name := range names {
		if query.Get(name) == "" {
			apierrors.ValidationError(rw, "Missing required parameters")
			return false
		}
	}
	return true
}

func invalidParam(rw http.ResponseWriter, name string, err error) {
	apierrors.ValidationError(rw, fmt.Sprintf("Invalid parameter %s: %s", name, err.Error()))
}
