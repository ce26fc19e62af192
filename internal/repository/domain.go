package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/tempshare/internal/domain/model"
)

// DomainRepository — операции над таблицей domains.
type DomainRepository interface {
	// List возвращает все домены, упорядоченные по domain, затем по subdomain.
	List(ctx context.Context) ([]*model.Domain, error)
	// Create добавляет домен. Дубликат — ErrConflict.
	Create(ctx context.Context, d *model.Domain) error
}

type domainRepo struct {
	db DBTX
}

// NewDomainRepository создаёт репозиторий доменов.
func NewDomainRepository(db DBTX) DomainRepository {
	return &domainRepo{db: db}
}

func (r *domainRepo) List(ctx context.Context) ([]*model.Domain, error) {
	query := `
		SELECT id, domain, subdomain, created_at
		FROM domains
		ORDER BY domain, subdomain NULLS FIRST`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка доменов: %w", err)
	}
	defer rows.Close()

	var out []*model.Domain
	for rows.Next() {
		d := &model.Domain{}
		if err := rows.Scan(&d.ID, &d.Domain, &d.Subdomain, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка чтения домена: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *domainRepo) Create(ctx context.Context, d *model.Domain) error {
	query := `
		INSERT INTO domains (domain, subdomain)
		VALUES ($1, $2)
		RETURNING id, created_at`

	err := r.db.QueryRow(ctx, query, d.Domain, d.Subdomain).Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: домен %s уже существует", ErrConflict, d.Host())
		}
		return fmt.Errorf("ошибка создания домена: %w", err)
	}
	return nil
}
