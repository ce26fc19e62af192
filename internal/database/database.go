// Пакет database — пул PostgreSQL для метаданных загрузок и доменов,
// схема таблиц uploads/domains (golang-migrate) и проверка готовности.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/tempshare/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	applicationName = "tempshare"
	readyTimeout    = 3 * time.Second
	// minIdleConns — подключения, которые пул держит открытыми для очистки и readiness
	minIdleConns = 2
)

// ErrDirtySchema — предыдущая миграция оборвалась, схему нужно чинить вручную.
var ErrDirtySchema = errors.New("схема БД в состоянии dirty")

// Connect создаёт пул подключений и ждёт PostgreSQL не дольше
// cfg.DBStartupTimeout, повторяя ping с экспоненциальной задержкой.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = min(minIdleConns, cfg.DBMaxConns)
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := waitForPostgres(ctx, pool.Ping, cfg.DBStartupTimeout, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(cfg.DBMaxConns)),
	)
	return pool, nil
}

// waitForPostgres повторяет ping, пока он не пройдёт или не истечёт timeout.
func waitForPostgres(ctx context.Context, ping func(context.Context) error, timeout time.Duration, logger *slog.Logger) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = timeout

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		pingCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		defer cancel()
		return ping(pingCtx)
	}, backoff.WithContext(b, ctx), func(err error, next time.Duration) {
		logger.Warn("PostgreSQL недоступен, повтор",
			slog.Int("attempt", attempt),
			slog.Duration("next", next),
			slog.String("error", err.Error()),
		)
	})
}

// Migrate создаёт и обновляет таблицы uploads и domains.
// Схема в состоянии dirty не трогается: сервис не стартует с ErrDirtySchema.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	// Драйвер pgx5 выбирается по схеме URL
	dbURL := "pgx5://" + strings.TrimPrefix(cfg.DatabaseDSN(), "postgres://")

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	case dirty:
		return fmt.Errorf("%w: версия %d", ErrDirtySchema, from)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ошибка применения миграций: %w", err)
	}

	to, _, _ := m.Version()
	if to != from {
		logger.Info("Схема БД обновлена",
			slog.Uint64("from", uint64(from)),
			slog.Uint64("to", uint64(to)),
		)
	} else {
		logger.Debug("Схема БД актуальна", slog.Uint64("version", uint64(to)))
	}
	return nil
}

// ReadinessChecker — проверка PostgreSQL для /health/ready.
// Исчерпанный пул даёт degraded: запросы загрузок встанут в очередь.
type ReadinessChecker struct {
	ping  func(context.Context) error
	usage func() (acquired, max int32)
}

// NewReadinessChecker создаёт проверку готовности по пулу.
func NewReadinessChecker(pool *pgxpool.Pool) *ReadinessChecker {
	return &ReadinessChecker{
		ping: pool.Ping,
		usage: func() (int32, int32) {
			st := pool.Stat()
			return st.AcquiredConns(), st.MaxConns()
		},
	}
}

// CheckReady возвращает статус ("ok", "degraded", "fail") и сообщение.
func (c *ReadinessChecker) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
	defer cancel()

	if err := c.ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	acquired, total := c.usage()
	if total > 0 && acquired >= total {
		return "degraded", fmt.Sprintf("пул подключений занят: %d из %d", acquired, total)
	}
	return "ok", fmt.Sprintf("подключения: %d из %d", acquired, total)
}
