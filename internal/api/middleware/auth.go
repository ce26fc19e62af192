// auth.go — авторизация служебных вызовов (/api/cron/clear).
// Принимается Authorization: Bearer <секрет> либо JWT (RS256), проверенный по JWKS.
// Публичные endpoints загрузки и скачивания не требуют авторизации.
package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/tempshare/internal/api/errors"
)

// contextKey — тип для ключей контекста.
type contextKey string

// ContextKeySubject — ключ для субъекта служебного вызова в контексте запроса.
const ContextKeySubject contextKey = "maintenance_subject"

// subjectSecret — субъект, аутентифицированный общим секретом.
const subjectSecret = "cron-secret"

// MaintenanceAuth — middleware авторизации служебных вызовов.
type MaintenanceAuth struct {
	secret    string
	jwks      keyfunc.Keyfunc
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// MaintenanceAuthConfig — параметры MaintenanceAuth.
type MaintenanceAuthConfig struct {
	// Общий секрет (TS_CRON_SECRET), пустая строка отключает проверку секретом
	Secret string
	// URL JWKS (TS_JWKS_URL), пустая строка отключает JWT
	JWKSURL string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
}

// NewMaintenanceAuth создаёт middleware. JWKS загружается в фоне:
// недоступность endpoint при старте не мешает запуску сервиса.
func NewMaintenanceAuth(cfg MaintenanceAuthConfig, logger *slog.Logger) (*MaintenanceAuth, error) {
	a := &MaintenanceAuth{
		secret:    cfg.Secret,
		jwtLeeway: cfg.JWTLeeway,
		logger:    logger.With(slog.String("component", "maintenance_auth")),
	}
	if cfg.JWKSURL == "" {
		return a, nil
	}

	timeout := cfg.ClientTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	storage, err := jwkset.NewStorageFromHTTP(cfg.JWKSURL, jwkset.HTTPClientStorageOptions{
		Client:                    &http.Client{Timeout: timeout},
		NoErrorReturnFirstHTTPReq: true,
		RefreshInterval:           time.Hour,
		RefreshErrorHandler: func(_ context.Context, err error) {
			a.logger.Error("Ошибка обновления JWKS",
				slog.String("error", err.Error()),
				slog.String("url", cfg.JWKSURL),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("создание JWKS storage: %w", err)
	}

	k, err := keyfunc.New(keyfunc.Options{Storage: storage})
	if err != nil {
		return nil, fmt.Errorf("создание keyfunc: %w", err)
	}
	a.jwks = k
	return a, nil
}

// NewMaintenanceAuthWithKeyfunc создаёт middleware с готовой keyfunc.
// Используется в тестах для подстановки JWKS.
func NewMaintenanceAuthWithKeyfunc(secret string, kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *MaintenanceAuth {
	return &MaintenanceAuth{
		secret:    secret,
		jwks:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "maintenance_auth")),
	}
}

// Configured сообщает, настроен ли хотя бы один способ авторизации.
func (a *MaintenanceAuth) Configured() bool {
	return a.secret != "" || a.jwks != nil
}

// Middleware возвращает HTTP middleware.
// 500, если авторизация не настроена; 401 при отсутствии или неверных учётных данных.
func (a *MaintenanceAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !a.Configured() {
				a.logger.Error("Служебный вызов без настроенной авторизации",
					slog.String("path", r.URL.Path),
				)
				apierrors.NotConfigured(w, "Cron secret not configured")
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				apierrors.Unauthorized(w, "Unauthorized")
				return
			}

			subject, ok := a.authenticate(r.Context(), token)
			if !ok {
				a.logger.Warn("Отклонён служебный вызов",
					slog.String("path", r.URL.Path),
					slog.String("remote_addr", r.RemoteAddr),
				)
				apierrors.Unauthorized(w, "Unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// authenticate проверяет токен сначала как общий секрет, затем как JWT.
func (a *MaintenanceAuth) authenticate(ctx context.Context, token string) (string, bool) {
	if a.secret != "" && subtle.ConstantTimeCompare([]byte(token), []byte(a.secret)) == 1 {
		return subjectSecret, true
	}
	if a.jwks == nil {
		return "", false
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, a.jwks.KeyfuncCtx(ctx),
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(a.jwtLeeway),
	)
	if err != nil || !parsed.Valid {
		if err != nil {
			a.logger.Debug("JWT валидация не пройдена", slog.String("error", err.Error()))
		}
		return "", false
	}
	if claims.Subject == "" {
		return "", false
	}
	return claims.Subject, true
}

// bearerToken извлекает токен из Authorization: Bearer <token>.
func bearerToken(r *http.Request) (string, bool) {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SubjectFromContext извлекает субъект служебного вызова из контекста.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}
