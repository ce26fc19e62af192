package session

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
)

func newTestStore(t *testing.T) (*Store, *objectstore.FSStore) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	objects, err := objectstore.NewFSStoreWithFs(afero.NewMemMapFs(), logger)
	if err != nil {
		t.Fatalf("NewFSStoreWithFs: %v", err)
	}
	return New(objects), objects
}

func TestStore_SaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	s, objects := newTestStore(t)

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	sess := &model.UploadSession{
		UploadID:          uuid.New().String(),
		Key:               "abc123/video.mp4",
		MultipartUploadID: "mp-handle-1",
		ContentType:       "video/mp4",
		CreatedAt:         created,
	}
	if err := s.Save(ctx, sess); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// Состояние лежит под зарезервированным префиксом
	keys, _ := objects.List(ctx, Prefix)
	if len(keys) != 1 || keys[0] != "multipart-state/"+sess.UploadID {
		t.Errorf("ключи состояния: получено %v", keys)
	}

	got, err := s.Load(ctx, sess.UploadID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Key != sess.Key || got.MultipartUploadID != sess.MultipartUploadID ||
		got.ContentType != sess.ContentType || !got.CreatedAt.Equal(created) {
		t.Errorf("Load: ожидалось %+v, получено %+v", sess, got)
	}

	if err := s.Delete(ctx, sess.UploadID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, sess.UploadID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load после Delete: ожидалось ErrNotFound, получено %v", err)
	}
	if err := s.Delete(ctx, sess.UploadID); err != nil {
		t.Errorf("повторный Delete: %v", err)
	}
}

func TestStore_InvalidIDs(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t)

	for _, id := range []string{"", "abc", "../abc123/file.txt", strings.Repeat("a", 36)} {
		if _, err := s.Load(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Errorf("Load(%q): ожидалось ErrNotFound, получено %v", id, err)
		}
		if err := s.Delete(ctx, id); err != nil {
			t.Errorf("Delete(%q): ожидалось nil, получено %v", id, err)
		}
	}
	if err := s.Save(ctx, &model.UploadSession{UploadID: "../x", Key: "k", MultipartUploadID: "m"}); err == nil {
		t.Error("Save с некорректным uploadId: ожидалась ошибка")
	}
}

func TestStore_Corrupted(t *testing.T) {
	ctx := context.Background()
	s, objects := newTestStore(t)

	id := uuid.New().String()
	if err := objects.Put(ctx, Key(id), strings.NewReader("{not json"), 9, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Load(ctx, id); !errors.Is(err, ErrCorrupted) {
		t.Errorf("битый JSON: ожидалось ErrCorrupted, получено %v", err)
	}

	empty := uuid.New().String()
	if err := objects.Put(ctx, Key(empty), strings.NewReader("{}"), 2, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Load(ctx, empty); !errors.Is(err, ErrCorrupted) {
		t.Errorf("пустая сессия: ожидалось ErrCorrupted, получено %v", err)
	}
}

func TestStore_List(t *testing.T) {
	ctx := context.Background()
	s, objects := newTestStore(t)

	a, b := uuid.New().String(), uuid.New().String()
	for _, id := range []string{a, b} {
		if err := s.Save(ctx, &model.UploadSession{UploadID: id, Key: "k/" + id, MultipartUploadID: "m"}); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := objects.Put(ctx, Prefix+"garbage", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// Файлы вне префикса не попадают в список
	if err := objects.Put(ctx, "abc123/file.txt", strings.NewReader("x"), 1, ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ids, foreign, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("ids: ожидалось 2, получено %v", ids)
	}
	if len(foreign) != 1 || foreign[0] != Prefix+"garbage" {
		t.Errorf("foreign: получено %v", foreign)
	}
}
