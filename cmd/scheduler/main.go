package main

import (
	"context"
	"errors"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/adapters/repo"
	"burgerank/internal/domain"
	"burgerank/internal/infra/cache"
	"burgerank/internal/infra/config"
	"burgerank/internal/infra/db"
	logger "burgerank/internal/infra/log"
	"burgerank/internal/infra/metrics"
	"burgerank/internal/infra/queue"
	"burgerank/internal/usecase/match"
	"burgerank/internal/usecase/ranking"
)

func main() {
	cfg := config.Load()
	lg := logger.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN, 5)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	jobs, closeQueue, err := queue.Open(cfg.QueueConfig(), rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: очередь пересчёта недоступна")
	}
	defer func() { _ = closeQueue() }()

	scorer, err := ranker.NewScorer(cfg.Weights(), cfg.RankerParams(), lg)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: некорректные параметры рейтинга")
	}

	store := repo.NewPostgres(pool)
	rankingService := ranking.NewService(store, store, store, cache.NewRedis(rdb), jobs, scorer, cfg.RankingOptions(), lg)
	matchService, err := match.NewService(store, store, cfg.MatchOptions(), lg)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: некорректные параметры матча")
	}

	metrics.StartServer(ctx, lg.With().Str("component", "metrics").Logger(), cfg.HTTP.MetricsAddr)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		runPublisher(ctx, lg, rankingService, cfg.Ranking.Interval)
	}()
	go func() {
		defer wg.Done()
		consumeRecompute(ctx, lg, rankingService, jobs)
	}()
	go func() {
		defer wg.Done()
		runPrune(ctx, lg, matchService, cfg.Match.PruneInterval)
	}()

	<-ctx.Done()
	lg.Info().Msg("scheduler: остановка")
	wg.Wait()
}

func publish(ctx context.Context, lg zerolog.Logger, svc *ranking.Service, cause domain.RecomputeCause) {
	run, err := svc.Publish(ctx, cause)
	switch {
	case errors.Is(err, ranking.ErrPublishInProgress):
		lg.Info().Str("cause", string(cause)).Msg("scheduler: публикация уже выполняется, пропускаем")
	case err != nil:
		lg.Error().Err(err).Str("cause", string(cause)).Msg("scheduler: публикация рейтинга не удалась")
	default:
		lg.Info().Int64("version", run.Version).Int("burgers", run.Burgers).Str("cause", string(cause)).Msg("scheduler: рейтинг опубликован")
	}
}

func runPublisher(ctx context.Context, lg zerolog.Logger, svc *ranking.Service, interval time.Duration) {
	publish(ctx, lg, svc, domain.RecomputeCauseScheduled)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish(ctx, lg, svc, domain.RecomputeCauseScheduled)
		}
	}
}

func consumeRecompute(ctx context.Context, lg zerolog.Logger, svc *ranking.Service, jobs domain.RecomputeQueue) {
	for {
		job, err := jobs.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			lg.Error().Err(err).Msg("scheduler: ошибка чтения очереди пересчёта")
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
			}
			continue
		}
		lg.Info().Str("job_id", job.ID).Str("requested_by", job.RequestedBy).Msg("scheduler: внеплановый пересчёт")
		cause := job.Cause
		if cause == "" {
			cause = domain.RecomputeCauseManual
		}
		publish(ctx, lg, svc, cause)
	}
}

func runPrune(ctx context.Context, lg zerolog.Logger, svc *match.Service, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := svc.Prune(ctx); err != nil {
				lg.Error().Err(err).Msg("scheduler: очистка раундов не удалась")
			}
		}
	}
}
