package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/bigkaa/tempshare/internal/domain/model"
)

// S3Config — параметры подключения к S3-совместимому хранилищу.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint — нестандартный endpoint (R2, MinIO); пустая строка — AWS
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	ForcePathStyle  bool
}

// S3Store — объектное хранилище поверх S3 API.
type S3Store struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewS3Client создаёт клиент S3. Статические ключи используются, если заданы,
// иначе — стандартная цепочка провайдеров AWS.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("загрузка конфигурации AWS: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
		// Тело части — поток из HTTP-запроса без Seek: контрольные суммы только по требованию API
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}), nil
}

// NewS3Store создаёт хранилище для бакета.
func NewS3Store(client *s3.Client, bucket string, logger *slog.Logger) *S3Store {
	return &S3Store{
		client: client,
		bucket: bucket,
		logger: logger.With(slog.String("component", "s3_store")),
	}
}

// unsignedPayload — тело запроса не хешируется при подписи,
// поэтому поток можно передать без буферизации.
var unsignedPayload = s3.WithAPIOptions(v4.SwapComputePayloadSHA256ForUnsignedPayloadMiddleware)

// Put записывает объект одним PutObject.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	in := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if size >= 0 {
		in.ContentLength = aws.Int64(size)
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	if _, err := s.client.PutObject(ctx, in, unsignedPayload); err != nil {
		return fmt.Errorf("PutObject %s: %w", key, err)
	}
	return nil
}

// Get открывает объект.
func (s *S3Store) Get(ctx context.Context, key string) (*Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("GetObject %s: %w", key, err)
	}
	return &Object{
		Body:        out.Body,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
	}, nil
}

// Delete удаляет объект. S3 не возвращает ошибку для отсутствующего ключа.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("DeleteObject %s: %w", key, err)
	}
	return nil
}

// List перебирает страницы ListObjectsV2.
func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	var keys []string
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("ListObjectsV2 %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
	}
	return keys, nil
}

// DeletePrefix удаляет объекты пакетами DeleteObjects (до 1000 ключей на страницу листинга).
func (s *S3Store) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if prefix == "" {
		return 0, fmt.Errorf("%w: пустой префикс", ErrInvalidKey)
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})

	deleted := 0
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return deleted, fmt.Errorf("ListObjectsV2 %s: %w", prefix, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		objects := make([]types.ObjectIdentifier, 0, len(page.Contents))
		for _, obj := range page.Contents {
			objects = append(objects, types.ObjectIdentifier{Key: obj.Key})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{
				Objects: objects,
				Quiet:   aws.Bool(true),
			},
		})
		if err != nil {
			return deleted, fmt.Errorf("DeleteObjects %s: %w", prefix, err)
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return deleted + len(objects) - len(out.Errors), fmt.Errorf("DeleteObjects %s: %d ошибок, первая: %s %s",
				prefix, len(out.Errors), aws.ToString(first.Key), aws.ToString(first.Message))
		}
		deleted += len(objects)
	}

	s.logger.Debug("Удалены объекты по префиксу",
		slog.String("prefix", prefix),
		slog.Int("count", deleted),
	)
	return deleted, nil
}

// Ping проверяет доступ к бакету.
func (s *S3Store) Ping(ctx context.Context) error {
	if _, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("HeadBucket %s: %w", s.bucket, err)
	}
	return nil
}

// CreateMultipartUpload открывает multipart-загрузку.
func (s *S3Store) CreateMultipartUpload(ctx context.Context, key, contentType string) (MultipartUpload, error) {
	in := &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	out, err := s.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("CreateMultipartUpload %s: %w", key, err)
	}
	return s.ResumeMultipartUpload(key, aws.ToString(out.UploadId)), nil
}

// ResumeMultipartUpload восстанавливает дескриптор по UploadId.
func (s *S3Store) ResumeMultipartUpload(key, uploadID string) MultipartUpload {
	return &s3Upload{store: s, key: key, uploadID: uploadID}
}

type s3Upload struct {
	store    *S3Store
	key      string
	uploadID string
}

func (u *s3Upload) Key() string      { return u.key }
func (u *s3Upload) UploadID() string { return u.uploadID }

// UploadPart передаёт тело части потоком; ContentLength обязателен.
func (u *s3Upload) UploadPart(ctx context.Context, partNumber int, body io.Reader, size int64) (model.UploadedPart, error) {
	if partNumber < 1 || partNumber > MaxPartNumber {
		return model.UploadedPart{}, fmt.Errorf("%w: номер части %d", ErrInvalidParts, partNumber)
	}
	out, err := u.store.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(u.store.bucket),
		Key:           aws.String(u.key),
		UploadId:      aws.String(u.uploadID),
		PartNumber:    aws.Int32(int32(partNumber)), //nolint:gosec // ограничено MaxPartNumber
		Body:          body,
		ContentLength: aws.Int64(size),
	}, unsignedPayload)
	if err != nil {
		return model.UploadedPart{}, fmt.Errorf("UploadPart %s #%d: %w", u.key, partNumber, mapMultipartErr(err))
	}
	return model.UploadedPart{PartNumber: partNumber, ETag: aws.ToString(out.ETag)}, nil
}

// Complete передаёт упорядоченный список частей в CompleteMultipartUpload.
func (u *s3Upload) Complete(ctx context.Context, parts []model.UploadedPart) error {
	completed := make([]types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, types.CompletedPart{
			ETag:       aws.String(p.ETag),
			PartNumber: aws.Int32(int32(p.PartNumber)), //nolint:gosec // проверено координатором
		})
	}

	_, err := u.store.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(u.store.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return fmt.Errorf("CompleteMultipartUpload %s: %w", u.key, mapMultipartErr(err))
	}
	return nil
}

// Abort отменяет загрузку. NoSuchUpload считается успехом.
func (u *s3Upload) Abort(ctx context.Context) error {
	_, err := u.store.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(u.store.bucket),
		Key:      aws.String(u.key),
		UploadId: aws.String(u.uploadID),
	})
	if err != nil {
		if errors.Is(mapMultipartErr(err), ErrNoSuchUpload) {
			return nil
		}
		return fmt.Errorf("AbortMultipartUpload %s: %w", u.key, err)
	}
	return nil
}

// isNotFound распознаёт отсутствие объекта в ответе S3.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// mapMultipartErr заменяет коды ошибок multipart на ошибки пакета.
func mapMultipartErr(err error) error {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch apiErr.ErrorCode() {
	case "NoSuchUpload":
		return fmt.Errorf("%w: %s", ErrNoSuchUpload, apiErr.ErrorMessage())
	case "InvalidPart", "InvalidPartOrder", "EntityTooSmall":
		return fmt.Errorf("%w: %s", ErrInvalidParts, apiErr.ErrorMessage())
	}
	return err
}

var _ Store = (*S3Store)(nil)
