// Точка входа tempshare — сервиса временного обмена файлами.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// поднимает объектное хранилище, хранилище токенов и уведомления,
// запускает фоновую очистку, topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/tempshare/internal/api/handlers"
	"github.com/bigkaa/tempshare/internal/api/middleware"
	"github.com/bigkaa/tempshare/internal/config"
	"github.com/bigkaa/tempshare/internal/database"
	"github.com/bigkaa/tempshare/internal/media"
	"github.com/bigkaa/tempshare/internal/notify"
	"github.com/bigkaa/tempshare/internal/repository"
	"github.com/bigkaa/tempshare/internal/server"
	"github.com/bigkaa/tempshare/internal/service"
	"github.com/bigkaa/tempshare/internal/storage/objectstore"
	"github.com/bigkaa/tempshare/internal/storage/session"
	"github.com/bigkaa/tempshare/internal/tokens"
)

// jwksClientTimeout — таймаут HTTP-клиента при загрузке JWKS.
const jwksClientTimeout = 10 * time.Second

func main() {
	// 1. Конфигурация
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// 2. Логирование
	logger := config.SetupLogger(cfg)
	logger.Info("tempshare запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("storage", cfg.StorageBackend),
		slog.String("max_file_size", humanize.IBytes(uint64(cfg.MaxFileSize))),
		slog.String("chunk_size", humanize.IBytes(uint64(cfg.ChunkSize))),
	)

	ctx := context.Background()

	// 3. Объектное хранилище
	objects, err := openObjectStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации объектного хранилища", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Миграции и подключение к PostgreSQL
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт через тот же пул
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	uploadRepo := repository.NewUploadRepository(pool)
	domainRepo := repository.NewDomainRepository(pool)

	// 6. Хранилище токенов скачивания
	tokenStore, closeTokens, err := openTokenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации хранилища токенов", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeTokens()

	// 7. Размеры изображений и превью видео
	var thumbnailer media.Thumbnailer
	if cfg.FFmpegPath != "" {
		thumbnailer = media.NewVideoThumbnailer(cfg.FFmpegPath, logger)
	} else {
		logger.Info("ffmpeg не задан, превью видео отключены")
	}
	enricher := media.NewEnricher(objects, thumbnailer, cfg.ThumbnailMaxSource, logger)

	// 8. Уведомления о загрузках
	notifier, closeNotifier := buildNotifier(cfg, logger)
	defer closeNotifier()

	// 9. Сервисы
	sessions := session.New(objects)
	uploadSvc := service.NewUploadService(cfg.Policy(), objects, sessions, uploadRepo,
		enricher, notifier, cfg.PublicBaseURL, logger)
	downloadSvc := service.NewDownloadService(uploadRepo, objects, tokenStore, cfg.TokenTTL, logger)
	domainSvc := service.NewDomainService(domainRepo, cfg.DomainCacheTTL, logger)

	// 10. Фоновые процессы
	sweepSvc := service.NewSweepService(uploadRepo, objects, sessions,
		cfg.SweepInterval, cfg.SweepConcurrency, cfg.SessionTTL, logger)
	sweepSvc.Start(ctx)

	dephealthSvc := startDephealth(ctx, cfg, pgDB, logger)

	// 11. Авторизация служебных endpoints
	maintenanceAuth, err := middleware.NewMaintenanceAuth(middleware.MaintenanceAuthConfig{
		Secret:        cfg.CronSecret,
		JWKSURL:       cfg.JWKSUrl,
		JWTLeeway:     cfg.JWTLeeway,
		ClientTimeout: jwksClientTimeout,
	}, logger)
	if err != nil {
		logger.Error("Ошибка инициализации авторизации", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if !maintenanceAuth.Configured() {
		logger.Warn("Ни TS_CRON_SECRET, ни TS_JWKS_URL не заданы, /api/cron/clear недоступен")
	}

	// 12. Handlers
	apiHandler := handlers.NewAPIHandler(
		handlers.NewUploadsHandler(uploadSvc),
		handlers.NewDownloadsHandler(downloadSvc, uploadSvc, logger),
		handlers.NewDomainsHandler(domainSvc),
		handlers.NewMaintenanceHandler(sweepSvc, logger),
		handlers.NewHealthHandler(database.NewReadinessChecker(pool), objects),
	)

	// 13. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler, maintenanceAuth.Middleware())
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
	}

	// --- Остановка фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")
	sweepSvc.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("tempshare остановлен")
}

// openObjectStore создаёт backend объектного хранилища и проверяет доступ к нему.
func openObjectStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (objectstore.Store, error) {
	var (
		store objectstore.Store
		err   error
	)
	switch cfg.StorageBackend {
	case config.StorageFS:
		store, err = objectstore.NewFSStore(cfg.FSRoot, logger)
		if err != nil {
			return nil, err
		}
		logger.Info("Объектное хранилище: файловая система", slog.String("root", cfg.FSRoot))
	default:
		client, cerr := objectstore.NewS3Client(ctx, objectstore.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			ForcePathStyle:  cfg.S3ForcePathStyle,
		})
		if cerr != nil {
			return nil, cerr
		}
		store = objectstore.NewS3Store(client, cfg.S3Bucket, logger)
		logger.Info("Объектное хранилище: S3",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("endpoint", cfg.S3Endpoint),
		)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := store.Ping(pingCtx); err != nil {
		// Хранилище может подняться позже, readiness покажет fail
		logger.Warn("Объектное хранилище недоступно при старте", slog.String("error", err.Error()))
	}
	return store, nil
}

// openTokenStore создаёт хранилище токенов. Второе значение закрывает соединения.
func openTokenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (tokens.Store, func(), error) {
	if cfg.TokenBackend == config.TokensRedis {
		client, err := tokens.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Токены скачивания: Redis", slog.String("addr", cfg.RedisAddr))
		return tokens.NewRedisStore(client), func() { _ = client.Close() }, nil
	}

	logger.Info("Токены скачивания: память процесса",
		slog.Int("size", cfg.TokenCacheSize),
	)
	return tokens.NewMemoryStore(cfg.TokenCacheSize, cfg.TokenTTL), func() {}, nil
}

// buildNotifier собирает получателей уведомлений. Второе значение закрывает writer Kafka.
func buildNotifier(cfg *config.Config, logger *slog.Logger) (notify.Notifier, func()) {
	var (
		targets notify.Multi
		closers []func()
	)
	if cfg.WebhookURL != "" {
		targets = append(targets, notify.NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout))
		logger.Info("Уведомления: webhook включён")
	}
	if len(cfg.KafkaBrokers) > 0 {
		k := notify.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		targets = append(targets, k)
		closers = append(closers, func() {
			if err := k.Close(); err != nil {
				logger.Warn("Ошибка закрытия Kafka writer", slog.String("error", err.Error()))
			}
		})
		logger.Info("Уведомления: Kafka включена", slog.String("topic", cfg.KafkaTopic))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(targets) == 0 {
		return notify.Nop{}, closeAll
	}
	return targets, closeAll
}

// startDephealth запускает topologymetrics. Ошибки не фатальны.
func startDephealth(ctx context.Context, cfg *config.Config, pgDB *sql.DB, logger *slog.Logger) *service.DephealthService {
	pgURL := (&url.URL{
		Scheme: "postgres",
		User:   url.User(cfg.DBUser),
		Host:   fmt.Sprintf("%s:%d", cfg.DBHost, cfg.DBPort),
		Path:   "/" + cfg.DBName,
	}).String()

	ds, err := service.NewDephealthService(cfg.ServiceID, cfg.DephealthGroup,
		service.DephealthDeps{DB: pgDB, PGConnURL: pgURL, JWKSURL: cfg.JWKSUrl},
		cfg.DephealthCheckInterval, logger)
	if err != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", err.Error()),
		)
		return nil
	}
	if err := ds.Start(ctx); err != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", err.Error()))
		return nil
	}
	logger.Info("topologymetrics запущен",
		slog.String("check_interval", cfg.DephealthCheckInterval.String()),
	)
	return ds
}
