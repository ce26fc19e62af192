// domains.go — список доменов для выбора при загрузке.
// Список меняется редко, поэтому кэшируется в expirable LRU.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/tempshare/internal/repository"
)

// Prometheus-метрики кэша доменов.
var (
	domainCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_domain_cache_hits_total",
		Help: "Попадания в кэш списка доменов.",
	})
	domainCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ts_domain_cache_misses_total",
		Help: "Промахи кэша списка доменов.",
	})
)

const domainCacheKey = "all"

// DomainOption — элемент списка доменов.
type DomainOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Label string `json:"label"`
}

// DomainService — список доменов с кэшем.
type DomainService struct {
	repo   repository.DomainRepository
	cache  *expirable.LRU[string, []DomainOption]
	logger *slog.Logger
}

// NewDomainService создаёт сервис доменов. ttl — время жизни кэша.
func NewDomainService(repo repository.DomainRepository, ttl time.Duration, logger *slog.Logger) *DomainService {
	return &DomainService{
		repo:   repo,
		cache:  expirable.NewLRU[string, []DomainOption](1, nil, ttl),
		logger: logger.With(slog.String("component", "domain_service")),
	}
}

// List возвращает домены, упорядоченные по имени домена.
func (s *DomainService) List(ctx context.Context) ([]DomainOption, error) {
	if cached, ok := s.cache.Get(domainCacheKey); ok {
		domainCacheHitsTotal.Inc()
		return cached, nil
	}
	domainCacheMissesTotal.Inc()

	domains, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("Ошибка получения списка доменов", slog.String("error", err.Error()))
		return nil, upstreamErr("Failed to fetch domains", err)
	}

	options := make([]DomainOption, 0, len(domains))
	for _, d := range domains {
		host := d.Host()
		options = append(options, DomainOption{ID: d.ID, Value: host, Label: host})
	}
	s.cache.Add(domainCacheKey, options)
	return options, nil
}

// Invalidate сбрасывает кэш.
func (s *DomainService) Invalidate() {
	s.cache.Purge()
}
