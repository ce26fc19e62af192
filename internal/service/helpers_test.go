package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/bigkaa/tempshare/internal/domain/model"
	"github.com/bigkaa/tempshare/internal/domain/policy"
	"github.com/bigkaa/tempshare/internal/notify"
	"github.com/bigkaa/tempshare/internal/repository"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
	"github.com/bigkaa/tempshare/internal/storage/session"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// testPolicy — маленькие размеры, чтобы chunked-загрузка умещалась в байты.
func testPolicy() policy.Policy {
	return policy.Policy{
		MaxFileSize:       1000,
		ChunkSize:         4,
		DirectUploadLimit: 8,
	}
}

// memUploadRepo — UploadRepository в памяти.
type memUploadRepo struct {
	mu      sync.Mutex
	records map[string]*model.UploadRecord

	createErr     error
	deleteErr     map[string]error
	slugExistsErr error
	// taken — slug-и, которые SlugExists считает занятыми
	taken            map[string]bool
	slugExistCalls   int
	listExpiredCalls int
}

func newMemUploadRepo() *memUploadRepo {
	return &memUploadRepo{
		records:   make(map[string]*model.UploadRecord),
		deleteErr: make(map[string]error),
		taken:     make(map[string]bool),
	}
}

func (r *memUploadRepo) Create(_ context.Context, rec *model.UploadRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, existing := range r.records {
		if existing.Slug == rec.Slug {
			return repository.ErrConflict
		}
	}
	cp := *rec
	r.records[rec.ID] = &cp
	return nil
}

func (r *memUploadRepo) GetBySlug(_ context.Context, slug string) (*model.UploadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if rec.Slug == slug {
			cp := *rec
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *memUploadRepo) GetByID(_ context.Context, id string) (*model.UploadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *memUploadRepo) SlugExists(_ context.Context, slug string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.slugExistCalls++
	if r.slugExistsErr != nil {
		return false, r.slugExistsErr
	}
	if r.taken[slug] {
		return true, nil
	}
	for _, rec := range r.records {
		if rec.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (r *memUploadRepo) ListExpired(_ context.Context, now time.Time, after repository.ExpiredCursor, limit int) ([]*model.UploadRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listExpiredCalls++
	var out []*model.UploadRecord
	for _, rec := range r.records {
		if !rec.ExpiresAt.Before(now) {
			continue
		}
		if !after.IsZero() && !cursorLess(after, rec) {
			continue
		}
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
			return out[i].ExpiresAt.Before(out[j].ExpiresAt)
		}
		return out[i].ID < out[j].ID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// cursorLess сообщает, что rec идёт после курсора в порядке (expires_at, id).
func cursorLess(c repository.ExpiredCursor, rec *model.UploadRecord) bool {
	if !c.ExpiresAt.Equal(rec.ExpiresAt) {
		return c.ExpiresAt.Before(rec.ExpiresAt)
	}
	return c.ID < rec.ID
}

func (r *memUploadRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.deleteErr[id]; err != nil {
		return err
	}
	if _, ok := r.records[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *memUploadRepo) add(rec *model.UploadRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *rec
	r.records[rec.ID] = &cp
}

func (r *memUploadRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// recordingNotifier запоминает события.
type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *recordingNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

// failingStore — обёртка над Store с отказами по ключу.
type failingStore struct {
	objectstore.Store
	failDelete map[string]bool
}

func (s *failingStore) Delete(ctx context.Context, key string) error {
	if s.failDelete[key] {
		return errors.New("хранилище недоступно")
	}
	return s.Store.Delete(ctx, key)
}

// testEnv — координатор поверх FS backend-а в памяти.
type testEnv struct {
	fs       afero.Fs
	objects  *objectstore.FSStore
	sessions *session.Store
	repo     *memUploadRepo
	notifier *recordingNotifier
	svc      *UploadService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	fsys := afero.NewMemMapFs()
	objects, err := objectstore.NewFSStoreWithFs(fsys, testLogger())
	if err != nil {
		t.Fatalf("NewFSStoreWithFs: %v", err)
	}
	env := &testEnv{
		fs:       fsys,
		objects:  objects,
		sessions: session.New(objects),
		repo:     newMemUploadRepo(),
		notifier: &recordingNotifier{},
	}
	env.svc = NewUploadService(testPolicy(), objects, env.sessions, env.repo, nil, env.notifier,
		"https://files.example.com/", testLogger())
	return env
}

// seqSlugs возвращает генератор, выдающий slug-и по порядку.
func seqSlugs(slugs ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		s := slugs[i%len(slugs)]
		i++
		return s, nil
	}
}

func objectExists(t *testing.T, store objectstore.Store, key string) bool {
	t.Helper()
	obj, err := store.Get(context.Background(), key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return false
	}
	if err != nil {
		t.Fatalf("Get(%s): %v", key, err)
	}
	obj.Body.Close()
	return true
}

func readObject(t *testing.T, store objectstore.Store, key string) string {
	t.Helper()
	obj, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%s): %v", key, err)
	}
	defer obj.Body.Close()
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		t.Fatalf("ReadAll(%s): %v", key, err)
	}
	return string(data)
}

func wantKind(t *testing.T, err error, kind ErrorKind, message string) {
	t.Helper()
	if err == nil {
		t.Fatalf("ожидалась ошибка %s (%q), получено nil", kind, message)
	}
	ue := AsUploadError(err)
	if ue.Kind != kind {
		t.Errorf("ожидался класс %s, получено %s (%v)", kind, ue.Kind, err)
	}
	if message != "" && ue.Message != message {
		t.Errorf("ожидалось сообщение %q, получено %q", message, ue.Message)
	}
}
