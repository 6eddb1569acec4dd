package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/domain"
	"burgerank/internal/infra/queue"
	"burgerank/internal/usecase/match"
	"burgerank/internal/usecase/ranking"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`

	HTTP struct {
		Addr           string `envconfig:"HTTP_ADDR" default:":8080"`
		MetricsAddr    string `envconfig:"METRICS_ADDR" default:":9090"`
		IdentitySecret string `envconfig:"IDENTITY_SECRET"`
		AdminToken     string `envconfig:"ADMIN_TOKEN"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	Ranking struct {
		WeightQuality      float64 `envconfig:"RANKING_WEIGHT_QUALITY" default:"0.40"`
		WeightVerification float64 `envconfig:"RANKING_WEIGHT_VERIFICATION" default:"0.25"`
		WeightCredibility  float64 `envconfig:"RANKING_WEIGHT_CREDIBILITY" default:"0.20"`
		WeightVolume       float64 `envconfig:"RANKING_WEIGHT_VOLUME" default:"0.10"`
		WeightRecency      float64 `envconfig:"RANKING_WEIGHT_RECENCY" default:"0.03"`
		WeightPairwise     float64 `envconfig:"RANKING_WEIGHT_PAIRWISE" default:"0.02"`

		PriorMean     float64 `envconfig:"RANKING_PRIOR_MEAN" default:"3.5"`
		PriorWeight   float64 `envconfig:"RANKING_PRIOR_WEIGHT" default:"5"`
		HalfLifeDays  float64 `envconfig:"RANKING_HALF_LIFE_DAYS" default:"30"`
		VolumeCap     int     `envconfig:"RANKING_VOLUME_CAP" default:"50"`
		PairwiseScale float64 `envconfig:"RANKING_PAIRWISE_SCALE" default:"100"`

		Interval      time.Duration `envconfig:"RANKING_INTERVAL" default:"15m"`
		LockTTL       time.Duration `envconfig:"RANKING_LOCK_TTL" default:"1m"`
		QueryCacheTTL time.Duration `envconfig:"RANKING_QUERY_CACHE_TTL" default:"30s"`
	} `envconfig:""`

	Match struct {
		KFactor         float64       `envconfig:"MATCH_K_FACTOR" default:"24"`
		SeedRating      float64       `envconfig:"MATCH_SEED_RATING" default:"1500"`
		SeedFromRating  bool          `envconfig:"MATCH_SEED_FROM_RATING" default:"false"`
		PoolSize        int           `envconfig:"MATCH_POOL_SIZE" default:"100"`
		MilestoneEvery  int           `envconfig:"MATCH_MILESTONE_EVERY" default:"10"`
		MilestoneBonus  int           `envconfig:"MATCH_MILESTONE_BONUS" default:"5"`
		SubmitPerMinute int           `envconfig:"MATCH_SUBMIT_PER_MINUTE" default:"60"`
		SubmitBurst     int           `envconfig:"MATCH_SUBMIT_BURST" default:"10"`
		RoundRetention  time.Duration `envconfig:"MATCH_ROUND_RETENTION" default:"4320h"`
		PruneInterval   time.Duration `envconfig:"MATCH_PRUNE_INTERVAL" default:"24h"`
	} `envconfig:""`

	Queue struct {
		// Driver выбирает брокер задач пересчёта: redis или rabbitmq.
		Driver      string `envconfig:"RECOMPUTE_QUEUE_DRIVER" default:"redis"`
		RedisKey    string `envconfig:"RECOMPUTE_QUEUE_KEY" default:"ranking_recompute_jobs"`
		RabbitURL   string `envconfig:"RABBITMQ_URL"`
		RabbitQueue string `envconfig:"RABBITMQ_QUEUE" default:"ranking_recompute"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	if err := cfg.Weights().Validate(); err != nil {
		log.Fatalf("некорректные веса рейтинга: %v", err)
	}
	return cfg
}

// Weights возвращает веса факторов рейтинга.
func (c AppConfig) Weights() ranker.Weights {
	return ranker.Weights{
		Quality:      c.Ranking.WeightQuality,
		Verification: c.Ranking.WeightVerification,
		Credibility:  c.Ranking.WeightCredibility,
		Volume:       c.Ranking.WeightVolume,
		Recency:      c.Ranking.WeightRecency,
		Pairwise:     c.Ranking.WeightPairwise,
	}
}

// RankerParams возвращает параметры нормализаторов.
func (c AppConfig) RankerParams() ranker.Params {
	return ranker.Params{
		PriorMean:     c.Ranking.PriorMean,
		PriorWeight:   c.Ranking.PriorWeight,
		HalfLifeDays:  c.Ranking.HalfLifeDays,
		VolumeCap:     c.Ranking.VolumeCap,
		PairwiseScale: c.Ranking.PairwiseScale,
		LevelWeights:  domain.DefaultLevelWeights(),
	}
}

// RankingOptions возвращает параметры публикатора и кэша.
func (c AppConfig) RankingOptions() ranking.Options {
	opts := ranking.DefaultOptions()
	opts.LockTTL = c.Ranking.LockTTL
	opts.QueryCacheTTL = c.Ranking.QueryCacheTTL
	return opts
}

// MatchOptions возвращает параметры движка матча.
func (c AppConfig) MatchOptions() match.Options {
	return match.Options{
		KFactor:         c.Match.KFactor,
		SeedRating:      c.Match.SeedRating,
		SeedFromRating:  c.Match.SeedFromRating,
		PoolSize:        c.Match.PoolSize,
		MilestoneEvery:  c.Match.MilestoneEvery,
		MilestoneBonus:  c.Match.MilestoneBonus,
		SubmitPerMinute: c.Match.SubmitPerMinute,
		SubmitBurst:     c.Match.SubmitBurst,
		RoundRetention:  c.Match.RoundRetention,
	}
}

// QueueConfig возвращает параметры очереди пересчёта.
func (c AppConfig) QueueConfig() queue.Config {
	return queue.Config{
		Driver:      c.Queue.Driver,
		RedisKey:    c.Queue.RedisKey,
		RabbitURL:   c.Queue.RabbitURL,
		RabbitQueue: c.Queue.RabbitQueue,
	}
}
