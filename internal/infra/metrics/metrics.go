package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	RankingPublishSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ranking_publish_seconds",
		Help:    "Время публикации глобального рейтинга",
		Buckets: prometheus.DefBuckets,
	})
	RankingPublishTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_publish_total",
		Help: "Запуски публикатора рейтинга по статусу",
	}, []string{"status"})
	RankingBurgers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ranking_burgers",
		Help: "Количество бургеров в последней публикации",
	})
	RankingVersion = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ranking_version",
		Help: "Версия последнего опубликованного рейтинга",
	})
	RankingFactorFallbacks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_factor_fallbacks_total",
		Help: "Факторы, обнулённые из-за некорректной статистики",
	}, []string{"factor"})

	MatchRoundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "match_rounds_total",
		Help: "Раунды матча по результату",
	}, []string{"result"})
	MatchMilestonesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "match_milestones_total",
		Help: "Достигнутые вехи сессии матча",
	})
	TopFiveUpdatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "top_five_updates_total",
		Help: "Обновления топ-5 по источнику",
	}, []string{"provenance"})
	FeaturedConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "featured_conflicts_total",
		Help: "Вытеснения бургера из слота витрины",
	})

	RankingCacheTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ranking_cache_total",
		Help: "Обращения к кэшу рейтинга",
	}, []string{"result"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		RankingPublishSeconds,
		RankingPublishTotal,
		RankingBurgers,
		RankingVersion,
		RankingFactorFallbacks,
		MatchRoundsTotal,
		MatchMilestonesTotal,
		TopFiveUpdatesTotal,
		FeaturedConflictsTotal,
		RankingCacheTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObservePublish фиксирует результат запуска публикатора.
func ObservePublish(start time.Time, burgers int, version int64, err error) {
	RankingPublishSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		RankingPublishTotal.WithLabelValues("failed").Inc()
		return
	}
	RankingPublishTotal.WithLabelValues("success").Inc()
	RankingBurgers.Set(float64(burgers))
	RankingVersion.Set(float64(version))
}
