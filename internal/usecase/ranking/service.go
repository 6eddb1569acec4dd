package ranking

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/domain"
)

const (
	lockKey       = "ranking:publish:lock"
	generationKey = "ranking:generation"
)

// ErrPublishInProgress возвращается, если другой экземпляр уже публикует рейтинг.
var ErrPublishInProgress = errors.New("публикация рейтинга уже выполняется")

// Options задаёт параметры публикатора и кэша запросов.
type Options struct {
	QueryCacheTTL time.Duration
	LockTTL       time.Duration
	HistoryLimit  int
	DefaultLimit  int
	MaxLimit      int
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		QueryCacheTTL: 30 * time.Second,
		LockTTL:       time.Minute,
		HistoryLimit:  30,
		DefaultLimit:  20,
		MaxLimit:      100,
	}
}

// Service публикует глобальный рейтинг и отвечает на запросы к нему.
type Service struct {
	burgers  domain.BurgerRepo
	featured domain.FeaturedRepo
	prefs    domain.PreferenceRepo
	cache    domain.Cache
	queue    domain.RecomputeQueue
	scorer   *ranker.Scorer
	opts     Options
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис рейтинга. queue может быть nil, если процесс не принимает ручной пересчёт.
func NewService(burgers domain.BurgerRepo, featured domain.FeaturedRepo, prefs domain.PreferenceRepo, cache domain.Cache, queue domain.RecomputeQueue, scorer *ranker.Scorer, opts Options, logger zerolog.Logger) *Service {
	return &Service{
		burgers:  burgers,
		featured: featured,
		prefs:    prefs,
		cache:    cache,
		queue:    queue,
		scorer:   scorer,
		opts:     opts,
		log:      logger.With().Str("component", "ranking").Logger(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}
