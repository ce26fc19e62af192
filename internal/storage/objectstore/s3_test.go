package objectstore

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/bigkaa/tempshare/internal/domain/model"
)

const (
	minioUser     = "tempshare"
	minioPassword = "tempshare-secret"
	minioBucket   = "tempshare-test"
)

// setupMinio запускает MinIO в Docker-контейнере и возвращает S3Store с пустым бакетом.
func setupMinio(t *testing.T) *S3Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("Пропуск интеграционного теста: TEST_INTEGRATION не установлена")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "docker.io/minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd: []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/live").
				WithPort("9000/tcp").
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить MinIO контейнер: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Ошибка остановки контейнера: %v", err)
		}
	})

	endpoint, err := container.PortEndpoint(ctx, "9000/tcp", "http")
	if err != nil {
		t.Fatalf("Не удалось получить endpoint контейнера: %v", err)
	}

	client, err := NewS3Client(ctx, S3Config{
		Bucket:          minioBucket,
		Region:          "us-east-1",
		Endpoint:        endpoint,
		AccessKeyID:     minioUser,
		SecretAccessKey: minioPassword,
		ForcePathStyle:  true,
	})
	if err != nil {
		t.Fatalf("NewS3Client: %v", err)
	}
	if _, err := client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(minioBucket)}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}
	return NewS3Store(client, minioBucket, testLogger())
}

func TestS3Store_Objects(t *testing.T) {
	s := setupMinio(t)
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	// Тело без Seek — как поток из HTTP-запроса
	body := io.NopCloser(strings.NewReader("hello"))
	if err := s.Put(ctx, "abc123/hello.txt", body, 5, "text/plain"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	obj, err := s.Get(ctx, "abc123/hello.txt")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(obj.Body)
	obj.Body.Close()
	if string(data) != "hello" || obj.Size != 5 || obj.ContentType != "text/plain" {
		t.Errorf("Get: получено %q size=%d type=%q", data, obj.Size, obj.ContentType)
	}

	if _, err := s.Get(ctx, "abc123/missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get отсутствующего: ожидалось ErrNotFound, получено %v", err)
	}

	for _, k := range []string{"abc123/temp/1", "abc123/temp/2", "abc123/thumbnail/hello.jpg"} {
		if err := s.Put(ctx, k, strings.NewReader("x"), 1, ""); err != nil {
			t.Fatalf("Put(%s): %v", k, err)
		}
	}
	keys, err := s.List(ctx, "abc123/")
	if err != nil || len(keys) != 4 {
		t.Errorf("List: ожидалось 4 ключа, получено %v (%v)", keys, err)
	}
	n, err := s.DeletePrefix(ctx, "abc123/temp/")
	if err != nil || n != 2 {
		t.Errorf("DeletePrefix: ожидалось 2, получено %d (%v)", n, err)
	}

	if err := s.Delete(ctx, "abc123/hello.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "abc123/hello.txt"); err != nil {
		t.Errorf("повторный Delete: %v", err)
	}
}

func TestS3Store_Multipart(t *testing.T) {
	s := setupMinio(t)
	ctx := context.Background()

	mu, err := s.CreateMultipartUpload(ctx, "mp0001/big.bin", "application/octet-stream")
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}

	// Все части, кроме последней, не меньше 5 MiB
	partSize := int64(5 << 20)
	first := strings.Repeat("a", int(partSize))
	h := s.ResumeMultipartUpload(mu.Key(), mu.UploadID())

	p2, err := h.UploadPart(ctx, 2, io.NopCloser(strings.NewReader("tail")), 4)
	if err != nil {
		t.Fatalf("UploadPart(2): %v", err)
	}
	p1, err := h.UploadPart(ctx, 1, io.NopCloser(strings.NewReader(first)), partSize)
	if err != nil {
		t.Fatalf("UploadPart(1): %v", err)
	}

	if err := h.Complete(ctx, []model.UploadedPart{p1, p2}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	obj, err := s.Get(ctx, "mp0001/big.bin")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	obj.Body.Close()
	if obj.Size != partSize+4 {
		t.Errorf("Size: ожидалось %d, получено %d", partSize+4, obj.Size)
	}

	// Повторное завершение — загрузки уже нет
	if err := h.Complete(ctx, []model.UploadedPart{p1, p2}); !errors.Is(err, ErrNoSuchUpload) {
		t.Errorf("повторный Complete: ожидалось ErrNoSuchUpload, получено %v", err)
	}
}

func TestS3Store_MultipartAbort(t *testing.T) {
	s := setupMinio(t)
	ctx := context.Background()

	mu, err := s.CreateMultipartUpload(ctx, "mp0002/a.bin", "")
	if err != nil {
		t.Fatalf("CreateMultipartUpload: %v", err)
	}
	if _, err := mu.UploadPart(ctx, 1, strings.NewReader("data"), 4); err != nil {
		t.Fatalf("UploadPart: %v", err)
	}
	if err := mu.Abort(ctx); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if err := mu.Abort(ctx); err != nil {
		t.Errorf("повторный Abort: %v", err)
	}
	_, err = mu.UploadPart(ctx, 2, strings.NewReader("x"), 1)
	if !errors.Is(err, ErrNoSuchUpload) {
		t.Errorf("UploadPart после Abort: ожидалось ErrNoSuchUpload, получено %v", err)
	}
}
