package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/adapters/repo"
	"burgerank/internal/infra/cache"
	"burgerank/internal/infra/config"
	"burgerank/internal/infra/db"
	httpinfra "burgerank/internal/infra/http"
	logger "burgerank/internal/infra/log"
	"burgerank/internal/infra/metrics"
	"burgerank/internal/infra/queue"
	"burgerank/internal/usecase/match"
	"burgerank/internal/usecase/ranking"
	"burgerank/internal/usecase/topfive"
)

func main() {
	cfg := config.Load()
	lg := logger.NewLogger(cfg.AppEnv, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.PGDSN, 20)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()

	jobs, closeQueue, err := queue.Open(cfg.QueueConfig(), rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("api: очередь пересчёта недоступна")
	}
	defer func() { _ = closeQueue() }()

	scorer, err := ranker.NewScorer(cfg.Weights(), cfg.RankerParams(), lg)
	if err != nil {
		log.Fatal().Err(err).Msg("api: некорректные параметры рейтинга")
	}

	store := repo.NewPostgres(pool)
	matchService, err := match.NewService(store, store, cfg.MatchOptions(), lg)
	if err != nil {
		log.Fatal().Err(err).Msg("api: некорректные параметры матча")
	}
	topFiveService := topfive.NewService(store, store, matchService.Elo(), lg)
	rankingService := ranking.NewService(store, store, store, cache.NewRedis(rdb), jobs, scorer, cfg.RankingOptions(), lg)

	server := httpinfra.NewServer(lg)
	httpinfra.NewHandlers(matchService, topFiveService, rankingService, lg).
		Mount(server.Router, cfg.HTTP.IdentitySecret, cfg.HTTP.AdminToken)

	metrics.StartServer(ctx, lg.With().Str("component", "metrics").Logger(), cfg.HTTP.MetricsAddr)
	go func() {
		if err := server.Start(cfg.HTTP.Addr); err != nil {
			lg.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("api: ошибка остановки сервера")
	}
}
