package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/storage/session"
)

// uploadChunks загружает data частями по 4 байта.
func uploadChunks(t *testing.T, env *testEnv, uploadID string, data string) []model.UploadedPart {
	t.Helper()
	ctx := context.Background()
	total := (len(data) + 3) / 4
	parts := make([]model.UploadedPart, 0, total)
	for i := 0; i < total; i++ {
		end := (i + 1) * 4
		if end > len(data) {
			end = len(data)
		}
		chunk := data[i*4 : end]
		res, err := env.svc.UploadChunk(ctx, ChunkParams{
			UploadID:    uploadID,
			ChunkIndex:  i,
			TotalChunks: total,
			Length:      int64(len(chunk)),
			Body:        strings.NewReader(chunk),
		})
		if err != nil {
			t.Fatalf("UploadChunk(%d): %v", i, err)
		}
		if res.UploadedPart.PartNumber != i+1 {
			t.Errorf("ожидался номер части %d, получено %d", i+1, res.UploadedPart.PartNumber)
		}
		if res.Uploaded != i+1 || res.Total != total {
			t.Errorf("ожидалось %d/%d, получено %d/%d", i+1, total, res.Uploaded, res.Total)
		}
		parts = append(parts, res.UploadedPart)
	}
	return parts
}

func TestDirectUpload(t *testing.T) {
	env := newTestEnv(t)
	env.svc.newSlug = seqSlugs("abc123")
	ctx := context.Background()

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "hello.txt", Filesize: 5, MimeType: "text/plain", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !start.IsDirectUpload || start.TotalChunks != 1 {
		t.Errorf("ожидалась прямая загрузка из 1 части, получено %+v", start)
	}
	ids, _, _ := env.sessions.List(ctx)
	if len(ids) != 0 {
		t.Errorf("прямая загрузка не должна создавать сессию, получено %d", len(ids))
	}

	res, err := env.svc.Direct(ctx, DirectParams{
		Filename: "hello.txt", Filesize: 5, MimeType: "text/plain", Expires: "1h",
		Body: strings.NewReader("hello"),
	})
	if err != nil {
		t.Fatalf("Direct: %v", err)
	}
	if res.URL != "https://files.example.com/abc123/hello.txt" {
		t.Errorf("ожидался URL файла, получено %q", res.URL)
	}
	if got := readObject(t, env.objects, "abc123/hello.txt"); got != "hello" {
		t.Errorf("ожидалось содержимое %q, получено %q", "hello", got)
	}

	rec, err := env.repo.GetBySlug(ctx, "abc123")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if got := rec.ExpiresAt.Sub(rec.UploadAt).String(); got != "1h0m0s" {
		t.Errorf("ожидался срок 1h, получено %s", got)
	}
	if env.notifier.count() != 1 {
		t.Errorf("ожидалось 1 уведомление, получено %d", env.notifier.count())
	}
}

func TestChunkedUpload(t *testing.T) {
	env := newTestEnv(t)
	env.svc.newSlug = seqSlugs("chunk1")
	ctx := context.Background()
	data := "0123456789"

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "my file.bin", Filesize: int64(len(data)), MimeType: "application/pdf",
		Domain: "Files.Example.COM", Expires: "1d",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.IsDirectUpload {
		t.Fatal("ожидалась chunked-загрузка")
	}
	if start.TotalChunks != 3 || start.ChunkSize != 4 {
		t.Errorf("ожидалось 3 части по 4 байта, получено %d по %d", start.TotalChunks, start.ChunkSize)
	}

	parts := uploadChunks(t, env, start.UploadID, data)
	// Порядок в запросе не важен
	parts[0], parts[2] = parts[2], parts[0]

	res, err := env.svc.Complete(ctx, CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "my file.bin",
		Filesize: int64(len(data)), MimeType: "application/pdf", Domain: "Files.Example.COM",
		Expires: "1d", TotalChunks: 3, UploadedParts: parts,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if res.URL != "https://files.example.com/chunk1/my_file.bin" {
		t.Errorf("ожидался URL с санитизированным именем, получено %q", res.URL)
	}
	if got := readObject(t, env.objects, "chunk1/my_file.bin"); got != data {
		t.Errorf("ожидалось содержимое %q, получено %q", data, got)
	}
	if _, err := env.sessions.Load(ctx, start.UploadID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("ожидалось удаление сессии, получено %v", err)
	}
	rec, err := env.repo.GetBySlug(ctx, "chunk1")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if rec.Domain != "files.example.com" {
		t.Errorf("ожидался домен в нижнем регистре, получено %q", rec.Domain)
	}

	// Повторное завершение — сессии уже нет
	_, err = env.svc.Complete(ctx, CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "my file.bin",
		Filesize: int64(len(data)), MimeType: "application/pdf", Expires: "1d",
		TotalChunks: 3, UploadedParts: parts,
	})
	wantKind(t, err, KindNotFound, "Upload not found")
}

func TestCancelUpload(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: 12, MimeType: "application/pdf", Expires: "7d",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	_, err = env.svc.UploadChunk(ctx, ChunkParams{
		UploadID: start.UploadID, ChunkIndex: 0, TotalChunks: 3, Length: 4,
		Body: strings.NewReader("abcd"),
	})
	if err != nil {
		t.Fatalf("UploadChunk: %v", err)
	}

	if err := env.svc.Cancel(ctx, start.UploadID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := env.sessions.Load(ctx, start.UploadID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("ожидалось удаление сессии, получено %v", err)
	}
	// Повторная отмена и отмена неизвестной загрузки — успех
	if err := env.svc.Cancel(ctx, start.UploadID); err != nil {
		t.Errorf("повторная отмена: ожидалось nil, получено %v", err)
	}
	if err := env.svc.Cancel(ctx, "not-a-uuid"); err != nil {
		t.Errorf("отмена неизвестной загрузки: ожидалось nil, получено %v", err)
	}
	wantKind(t, env.svc.Cancel(ctx, ""), KindValidation, "Missing uploadId")

	// Части отменённой загрузки больше не принимаются
	_, err = env.svc.UploadChunk(ctx, ChunkParams{
		UploadID: start.UploadID, ChunkIndex: 1, TotalChunks: 3, Length: 4,
		Body: strings.NewReader("efgh"),
	})
	wantKind(t, err, KindNotFound, "Upload not found")
	if env.repo.count() != 0 {
		t.Errorf("ожидалось 0 записей, получено %d", env.repo.count())
	}
}

func TestCancel_CorruptedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := "0b6f5b8e-3c1c-4f7a-9a63-1f0f7c0b9f11"

	if err := env.objects.Put(ctx, session.Key(id), strings.NewReader("{oops"), 5, "application/json"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := env.svc.Cancel(ctx, id); err != nil {
		t.Fatalf("Cancel: ожидалось nil, получено %v", err)
	}
	if objectExists(t, env.objects, session.Key(id)) {
		t.Error("повреждённая сессия должна быть удалена")
	}
}

func TestStart_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		params  StartParams
		message string
	}{
		{"нет имени", StartParams{Filesize: 5, MimeType: "text/plain", Expires: "1h"}, "Missing required fields"},
		{"нулевой размер", StartParams{Filename: "a", MimeType: "text/plain", Expires: "1h"}, "Missing required fields"},
		{"нет срока", StartParams{Filename: "a", Filesize: 5, MimeType: "text/plain"}, "Missing required fields"},
		{"слишком большой", StartParams{Filename: "a", Filesize: 1001, MimeType: "text/plain", Expires: "1h"}, "File too large"},
		{"отрицательный размер", StartParams{Filename: "a", Filesize: -1, MimeType: "text/plain", Expires: "1h"}, "File too small"},
		{"недопустимый тип", StartParams{Filename: "a", Filesize: 5, MimeType: "application/x-msdownload", Expires: "1h"}, "Invalid file type"},
		{"недопустимый срок", StartParams{Filename: "a", Filesize: 5, MimeType: "text/plain", Expires: "2h"}, "Invalid expiration option"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Start(ctx, tt.params)
			wantKind(t, err, KindValidation, tt.message)
		})
	}
	if env.repo.slugExistCalls != 0 {
		t.Errorf("валидация должна выполняться до выбора slug, вызовов SlugExists: %d", env.repo.slugExistCalls)
	}
}

func TestStart_ChunkThreshold(t *testing.T) {
	env := newTestEnv(t)
	env.svc.policy.DirectUploadLimit = 4
	ctx := context.Background()

	res, err := env.svc.Start(ctx, StartParams{Filename: "a.pdf", Filesize: 4, MimeType: "application/pdf", Expires: "1h"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !res.IsDirectUpload || res.TotalChunks != 1 {
		t.Errorf("размер на пороге: ожидалась прямая загрузка, получено %+v", res)
	}

	res, err = env.svc.Start(ctx, StartParams{Filename: "a.pdf", Filesize: 5, MimeType: "application/pdf", Expires: "1h"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.IsDirectUpload || res.TotalChunks != 2 {
		t.Errorf("размер порог+1: ожидалось 2 части, получено %+v", res)
	}
}

func TestStart_SlugExhausted(t *testing.T) {
	env := newTestEnv(t)
	env.repo.taken["busy"] = true
	env.svc.newSlug = seqSlugs("busy")

	_, err := env.svc.Start(context.Background(), StartParams{
		Filename: "a.txt", Filesize: 5, MimeType: "text/plain", Expires: "1h",
	})
	wantKind(t, err, KindConflict, "Failed to generate unique slug")
	if ue := AsUploadError(err); ue.Code != apierrors.CodeSlugExhausted || ue.StatusCode != 500 {
		t.Errorf("ожидалось %s/500, получено %s/%d", apierrors.CodeSlugExhausted, ue.Code, ue.StatusCode)
	}
	if env.repo.slugExistCalls != MaxSlugAttempts {
		t.Errorf("ожидалось %d попыток, получено %d", MaxSlugAttempts, env.repo.slugExistCalls)
	}
}

func TestStart_SlugRetry(t *testing.T) {
	env := newTestEnv(t)
	env.repo.taken["busy"] = true
	env.svc.newSlug = seqSlugs("busy", "busy", "free")

	res, err := env.svc.Start(context.Background(), StartParams{
		Filename: "a.txt", Filesize: 5, MimeType: "text/plain", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.Slug != "free" || env.repo.slugExistCalls != 3 {
		t.Errorf("ожидался slug free с 3 попытки, получено %s за %d", res.Slug, env.repo.slugExistCalls)
	}
}

func TestComplete_PartErrorsKeepSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	data := "0123456789"

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: 10, MimeType: "application/pdf", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	parts := uploadChunks(t, env, start.UploadID, data)

	base := CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "a.pdf",
		Filesize: 10, MimeType: "application/pdf", Expires: "1h", TotalChunks: 3,
	}

	tests := []struct {
		name  string
		parts []model.UploadedPart
		code  string
	}{
		{"пропущенная часть", []model.UploadedPart{parts[0], parts[2]}, apierrors.CodeMissingChunks},
		{"пустой список", nil, apierrors.CodeMissingChunks},
		{"дубликат", []model.UploadedPart{parts[0], parts[0], parts[1]}, apierrors.CodeInvalidPartNumbers},
		{"разрыв номеров", []model.UploadedPart{parts[0], parts[1], {PartNumber: 4, ETag: parts[2].ETag}}, apierrors.CodeInvalidPartNumbers},
		{"пустой etag", []model.UploadedPart{parts[0], parts[1], {PartNumber: 3}}, apierrors.CodeInvalidPartNumbers},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			p.UploadedParts = tt.parts
			_, err := env.svc.Complete(ctx, p)
			wantKind(t, err, KindConflict, "")
			if ue := AsUploadError(err); ue.Code != tt.code || ue.StatusCode != 400 {
				t.Errorf("ожидалось %s/400, получено %s/%d", tt.code, ue.Code, ue.StatusCode)
			}
			if _, err := env.sessions.Load(ctx, start.UploadID); err != nil {
				t.Errorf("сессия должна сохраниться, получено %v", err)
			}
		})
	}

	// После исправления списка загрузка завершается
	p := base
	p.UploadedParts = parts
	if _, err := env.svc.Complete(ctx, p); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

func TestComplete_MismatchedSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: 10, MimeType: "application/pdf", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	parts := uploadChunks(t, env, start.UploadID, "0123456789")

	_, err = env.svc.Complete(ctx, CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "other.pdf",
		Filesize: 10, MimeType: "application/pdf", Expires: "1h", TotalChunks: 3, UploadedParts: parts,
	})
	wantKind(t, err, KindValidation, "Upload does not match session")
	if _, err := env.sessions.Load(ctx, start.UploadID); err != nil {
		t.Errorf("сессия должна сохраниться, получено %v", err)
	}
}

// uploadChunk загружает часть index из data, разбитых по 4 байта.
func uploadChunk(ctx context.Context, env *testEnv, uploadID, data string, index int) (*ChunkResult, error) {
	total := (len(data) + 3) / 4
	end := min((index+1)*4, len(data))
	chunk := data[index*4 : end]
	return env.svc.UploadChunk(ctx, ChunkParams{
		UploadID: uploadID, ChunkIndex: index, TotalChunks: total,
		Length: int64(len(chunk)), Body: strings.NewReader(chunk),
	})
}

func TestChunkedUpload_OutOfOrder(t *testing.T) {
	env := newTestEnv(t)
	env.svc.newSlug = seqSlugs("order1")
	ctx := context.Background()
	data := "abcdefghij"

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: int64(len(data)), MimeType: "application/pdf", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Части приходят в порядке 2, 1, 3
	var parts []model.UploadedPart
	for _, index := range []int{1, 0, 2} {
		res, err := uploadChunk(ctx, env, start.UploadID, data, index)
		if err != nil {
			t.Fatalf("UploadChunk(%d): %v", index, err)
		}
		if res.UploadedPart.PartNumber != index+1 {
			t.Errorf("ожидался номер части %d, получено %d", index+1, res.UploadedPart.PartNumber)
		}
		parts = append(parts, res.UploadedPart)
	}

	_, err = env.svc.Complete(ctx, CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "a.pdf",
		Filesize: int64(len(data)), MimeType: "application/pdf", Expires: "1h",
		TotalChunks: start.TotalChunks, UploadedParts: parts,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := readObject(t, env.objects, "order1/a.pdf"); got != data {
		t.Errorf("ожидалось содержимое %q, получено %q", data, got)
	}
}

func TestChunkedUpload_Concurrent(t *testing.T) {
	env := newTestEnv(t)
	env.svc.newSlug = seqSlugs("para01")
	ctx := context.Background()
	data := "0123456789ABCDEFGHIJ"

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: int64(len(data)), MimeType: "application/pdf", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	parts := make([]model.UploadedPart, start.TotalChunks)
	errs := make([]error, start.TotalChunks)
	var wg sync.WaitGroup
	for _, index := range []int{1, 0, 4, 2, 3} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := uploadChunk(ctx, env, start.UploadID, data, index)
			if err != nil {
				errs[index] = err
				return
			}
			parts[index] = res.UploadedPart
		}()
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("UploadChunk(%d): %v", i, err)
		}
	}

	_, err = env.svc.Complete(ctx, CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "a.pdf",
		Filesize: int64(len(data)), MimeType: "application/pdf", Expires: "1h",
		TotalChunks: start.TotalChunks, UploadedParts: parts,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := readObject(t, env.objects, "para01/a.pdf"); got != data {
		t.Errorf("ожидалось содержимое %q, получено %q", data, got)
	}
}

func TestComplete_InvalidMetadata(t *testing.T) {
	env := newTestEnv(t)
	env.svc.newSlug = seqSlugs("meta01")
	ctx := context.Background()
	data := "0123456789"

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: 10, MimeType: "application/pdf", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	parts := uploadChunks(t, env, start.UploadID, data)

	base := CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "a.pdf",
		Filesize: 10, MimeType: "application/pdf", Expires: "1h",
		TotalChunks: 3, UploadedParts: parts,
	}

	tests := []struct {
		name    string
		modify  func(p *CompleteParams)
		message string
	}{
		{"отрицательный размер", func(p *CompleteParams) { p.Filesize = -5 }, "File too small"},
		{"слишком большой", func(p *CompleteParams) { p.Filesize = 1001 }, "File too large"},
		{"запрещённый тип", func(p *CompleteParams) { p.MimeType = "application/x-msdownload" }, "Invalid file type"},
		{"другой тип", func(p *CompleteParams) { p.MimeType = "image/png" }, "Upload does not match session"},
		{"другой размер", func(p *CompleteParams) { p.Filesize = 999 }, "Upload does not match session"},
		{"недопустимый срок", func(p *CompleteParams) { p.Expires = "2h" }, "Invalid expiration option"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := base
			tt.modify(&p)
			_, err := env.svc.Complete(ctx, p)
			wantKind(t, err, KindValidation, tt.message)
			if _, err := env.sessions.Load(ctx, start.UploadID); err != nil {
				t.Errorf("сессия должна сохраниться, получено %v", err)
			}
			if env.repo.count() != 0 {
				t.Errorf("ожидалось 0 записей, получено %d", env.repo.count())
			}
		})
	}

	// Число частей не совпадает с размером из сессии
	p := base
	p.TotalChunks, p.UploadedParts = 2, parts[:2]
	_, err = env.svc.Complete(ctx, p)
	if err == nil || AsUploadError(err).Code != apierrors.CodeMissingChunks {
		t.Errorf("ожидалось %s, получено %v", apierrors.CodeMissingChunks, err)
	}

	// Регистр MIME-типа не важен, в запись попадает нормализованный тип
	p = base
	p.MimeType = " Application/PDF "
	if _, err := env.svc.Complete(ctx, p); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	rec, err := env.repo.GetBySlug(ctx, "meta01")
	if err != nil {
		t.Fatalf("GetBySlug: %v", err)
	}
	if rec.MimeType != "application/pdf" || rec.Filesize != 10 {
		t.Errorf("ожидалось application/pdf/10, получено %s/%d", rec.MimeType, rec.Filesize)
	}
}

func TestComplete_ETagMismatchAborts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: 10, MimeType: "application/pdf", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	parts := uploadChunks(t, env, start.UploadID, "0123456789")
	parts[1].ETag = `"00000000000000000000000000000000"`

	_, err = env.svc.Complete(ctx, CompleteParams{
		UploadID: start.UploadID, Slug: start.Slug, Filename: "a.pdf",
		Filesize: 10, MimeType: "application/pdf", Expires: "1h", TotalChunks: 3, UploadedParts: parts,
	})
	if err == nil {
		t.Fatal("ожидалась ошибка сборки")
	}
	if _, err := env.sessions.Load(ctx, start.UploadID); !errors.Is(err, session.ErrNotFound) {
		t.Errorf("после сбоя сборки сессия удаляется, получено %v", err)
	}
	if env.repo.count() != 0 {
		t.Errorf("ожидалось 0 записей, получено %d", env.repo.count())
	}
}

func TestUploadChunk_Errors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	start, err := env.svc.Start(ctx, StartParams{
		Filename: "a.pdf", Filesize: 10, MimeType: "application/pdf", Expires: "1h",
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	tests := []struct {
		name    string
		params  ChunkParams
		kind    ErrorKind
		message string
	}{
		{"индекс за пределами", ChunkParams{UploadID: start.UploadID, ChunkIndex: 3, TotalChunks: 3, Length: 4, Body: strings.NewReader("abcd")}, KindValidation, "Invalid chunk parameters"},
		{"отрицательный индекс", ChunkParams{UploadID: start.UploadID, ChunkIndex: -1, TotalChunks: 3, Length: 4, Body: strings.NewReader("abcd")}, KindValidation, "Invalid chunk parameters"},
		{"пустая часть", ChunkParams{UploadID: start.UploadID, ChunkIndex: 0, TotalChunks: 3, Length: 0, Body: strings.NewReader("")}, KindValidation, "Empty chunk"},
		{"больше размера части", ChunkParams{UploadID: start.UploadID, ChunkIndex: 0, TotalChunks: 3, Length: 5, Body: strings.NewReader("abcde")}, KindValidation, "Chunk too large"},
		{"короче заявленного", ChunkParams{UploadID: start.UploadID, ChunkIndex: 0, TotalChunks: 3, Length: 4, Body: strings.NewReader("abc")}, KindValidation, "Chunk size mismatch"},
		{"длиннее заявленного", ChunkParams{UploadID: start.UploadID, ChunkIndex: 0, TotalChunks: 3, Length: 4, Body: strings.NewReader("abcde")}, KindValidation, "Chunk size mismatch"},
		{"неизвестная загрузка", ChunkParams{UploadID: "0b6f5b8e-3c1c-4f7a-9a63-1f0f7c0b9f11", ChunkIndex: 0, TotalChunks: 3, Length: 4, Body: strings.NewReader("abcd")}, KindNotFound, "Upload not found"},
		{"некорректный uploadId", ChunkParams{UploadID: "../etc", ChunkIndex: 0, TotalChunks: 3, Length: 4, Body: strings.NewReader("abcd")}, KindNotFound, "Upload not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.UploadChunk(ctx, tt.params)
			wantKind(t, err, tt.kind, tt.message)
		})
	}
}

func TestDirect_SizeMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.svc.newSlug = seqSlugs("short1")
	ctx := context.Background()

	for _, body := range []string{"hell", "hello!"} {
		_, err := env.svc.Direct(ctx, DirectParams{
			Filename: "hello.txt", Filesize: 5, MimeType: "text/plain", Expires: "1h",
			Body: strings.NewReader(body),
		})
		wantKind(t, err, KindValidation, "File size mismatch")
		if objectExists(t, env.objects, "short1/hello.txt") {
			t.Errorf("тело %q: объект не должен остаться", body)
		}
	}
	if env.repo.count() != 0 {
		t.Errorf("ожидалось 0 записей, получено %d", env.repo.count())
	}
}

func TestDirect_TooLarge(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Direct(context.Background(), DirectParams{
		Filename: "a.txt", Filesize: 9, MimeType: "text/plain", Expires: "1h",
		Body: strings.NewReader("123456789"),
	})
	wantKind(t, err, KindValidation, "File too large for direct upload")
}

func TestDirect_RecordFailureRemovesObject(t *testing.T) {
	env := newTestEnv(t)
	env.svc.newSlug = seqSlugs("fail01")
	env.repo.createErr = errors.New("база недоступна")

	_, err := env.svc.Direct(context.Background(), DirectParams{
		Filename: "a.txt", Filesize: 3, MimeType: "text/plain", Expires: "1h",
		Body: strings.NewReader("abc"),
	})
	wantKind(t, err, KindUpstream, "Failed to save upload")
	if objectExists(t, env.objects, "fail01/a.txt") {
		t.Error("объект без записи должен быть удалён")
	}
	if env.notifier.count() != 0 {
		t.Errorf("ожидалось 0 уведомлений, получено %d", env.notifier.count())
	}
}

func TestDirect_NotifierErrorIgnored(t *testing.T) {
	env := newTestEnv(t)
	env.notifier.err = errors.New("webhook недоступен")

	_, err := env.svc.Direct(context.Background(), DirectParams{
		Filename: "a.txt", Filesize: 3, MimeType: "text/plain", Expires: "30d",
		Body: strings.NewReader("abc"),
	})
	if err != nil {
		t.Fatalf("ошибка уведомления не должна влиять на загрузку, получено %v", err)
	}
	if env.repo.count() != 1 {
		t.Errorf("ожидалась 1 запись, получено %d", env.repo.count())
	}
}

func TestFileURL(t *testing.T) {
	env := newTestEnv(t)
	if got := env.svc.FileURL("abc", "a b#c.txt"); got != "https://files.example.com/abc/a%20b%23c.txt" {
		t.Errorf("ожидался экранированный URL, получено %q", got)
	}
}

func TestVerifyParts_SortsByNumber(t *testing.T) {
	parts := []model.UploadedPart{{PartNumber: 3, ETag: "c"}, {PartNumber: 1, ETag: "a"}, {PartNumber: 2, ETag: "b"}}
	sorted, err := verifyParts(parts, 3)
	if err != nil {
		t.Fatalf("verifyParts: %v", err)
	}
	for i, p := range sorted {
		if p.PartNumber != i+1 {
			t.Errorf("позиция %d: ожидался номер %d, получено %d", i, i+1, p.PartNumber)
		}
	}
	if parts[0].PartNumber != 3 {
		t.Error("исходный список не должен меняться")
	}
}
