package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/tempshare/internal/domain/model"
)

// UploadRepository — операции над таблицей uploads.
type UploadRepository interface {
	// Create сохраняет новую запись. Занятый slug — ErrConflict.
	Create(ctx context.Context, r *model.UploadRecord) error
	// GetBySlug возвращает запись по slug.
	GetBySlug(ctx context.Context, slug string) (*model.UploadRecord, error)
	// GetByID возвращает запись по UUID.
	GetByID(ctx context.Context, id string) (*model.UploadRecord, error)
	// SlugExists сообщает, занят ли slug.
	SlugExists(ctx context.Context, slug string) (bool, error)
	// ListExpired возвращает записи с expires_at < now в порядке (expires_at, id),
	// начиная строго после after, не более limit штук.
	ListExpired(ctx context.Context, now time.Time, after ExpiredCursor, limit int) ([]*model.UploadRecord, error)
	// Delete удаляет запись. Отсутствующая запись — ErrNotFound.
	Delete(ctx context.Context, id string) error
}

// ExpiredCursor — позиция в выборке просроченных записей.
// Нулевое значение означает начало выборки.
type ExpiredCursor struct {
	ExpiresAt time.Time
	ID        string
}

// IsZero сообщает, что курсор указывает на начало выборки.
func (c ExpiredCursor) IsZero() bool { return c.ID == "" }

// CursorAfter возвращает курсор, указывающий на запись rec.
func CursorAfter(rec *model.UploadRecord) ExpiredCursor {
	return ExpiredCursor{ExpiresAt: rec.ExpiresAt, ID: rec.ID}
}

type uploadRepo struct {
	db DBTX
}

// NewUploadRepository создаёт репозиторий загрузок.
func NewUploadRepository(db DBTX) UploadRepository {
	return &uploadRepo{db: db}
}

const uploadColumns = `id, slug, filename, filesize, mime_type, domain,
	width, height, thumbnail, upload_at, expires_at`

func (r *uploadRepo) Create(ctx context.Context, rec *model.UploadRecord) error {
	query := `
		INSERT INTO uploads (` + uploadColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		rec.ID, rec.Slug, rec.Filename, rec.Filesize, rec.MimeType, nullString(rec.Domain),
		rec.Width, rec.Height, rec.Thumbnail, rec.UploadAt, rec.ExpiresAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: slug %s уже занят", ErrConflict, rec.Slug)
		}
		return fmt.Errorf("ошибка создания записи загрузки: %w", err)
	}
	return nil
}

func (r *uploadRepo) GetBySlug(ctx context.Context, slug string) (*model.UploadRecord, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE slug = $1`
	return r.getOne(ctx, query, slug)
}

func (r *uploadRepo) GetByID(ctx context.Context, id string) (*model.UploadRecord, error) {
	query := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *uploadRepo) getOne(ctx context.Context, query string, arg any) (*model.UploadRecord, error) {
	rec, err := scanUpload(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения записи загрузки: %w", err)
	}
	return rec, nil
}

func (r *uploadRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM uploads WHERE slug = $1)`, slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("ошибка проверки slug: %w", err)
	}
	return exists, nil
}

func (r *uploadRepo) ListExpired(ctx context.Context, now time.Time, after ExpiredCursor, limit int) ([]*model.UploadRecord, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if after.IsZero() {
		rows, err = r.db.Query(ctx, `
			SELECT `+uploadColumns+`
			FROM uploads
			WHERE expires_at < $1
			ORDER BY expires_at, id
			LIMIT $2`, now, limit)
	} else {
		rows, err = r.db.Query(ctx, `
			SELECT `+uploadColumns+`
			FROM uploads
			WHERE expires_at < $1 AND (expires_at, id) > ($2, $3::uuid)
			ORDER BY expires_at, id
			LIMIT $4`, now, after.ExpiresAt, after.ID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("ошибка выборки просроченных загрузок: %w", err)
	}
	defer rows.Close()

	var out []*model.UploadRecord
	for rows.Next() {
		rec, err := scanUpload(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения записи загрузки: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *uploadRepo) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM uploads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ошибка удаления записи загрузки: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// scanUpload читает строку в порядке uploadColumns.
func scanUpload(row pgx.Row) (*model.UploadRecord, error) {
	rec := &model.UploadRecord{}
	var domain *string
	err := row.Scan(
		&rec.ID, &rec.Slug, &rec.Filename, &rec.Filesize, &rec.MimeType, &domain,
		&rec.Width, &rec.Height, &rec.Thumbnail, &rec.UploadAt, &rec.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	if domain != nil {
		rec.Domain = *domain
	}
	rec.UploadAt = rec.UploadAt.UTC()
	rec.ExpiresAt = rec.ExpiresAt.UTC()
	return rec, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
