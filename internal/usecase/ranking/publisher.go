package ranking

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const (
	runStatusSuccess = "success"
	runStatusFailed  = "failed"
)

// Publish пересчитывает рейтинг всех бургеров и записывает его одной транзакцией.
// Одновременно публикует только один экземпляр; при ошибке остаются прежние значения.
func (s *Service) Publish(ctx context.Context, cause domain.RecomputeCause) (domain.RankingRun, error) {
	var run domain.RankingRun
	ran := false
	err := s.cache.Once(ctx, lockKey, s.opts.LockTTL, func() error {
		ran = true
		var err error
		run, err = s.publish(ctx, cause)
		return err
	})
	if err != nil {
		return run, err
	}
	if !ran {
		s.log.Info().Str("cause", string(cause)).Msg("ranking: публикация пропущена, блокировка занята")
		return domain.RankingRun{}, ErrPublishInProgress
	}
	return run, nil
}

func (s *Service) publish(ctx context.Context, cause domain.RecomputeCause) (domain.RankingRun, error) {
	start := s.now()
	run := domain.RankingRun{ID: uuid.NewString(), StartedAt: start}

	entries, err := s.compute(ctx, start)
	if err == nil {
		run.Burgers = len(entries)
		var version int64
		version, err = s.burgers.LatestRankingVersion(ctx)
		if err == nil {
			run.Version = version + 1
			run.FinishedAt = s.now()
			run.Status = runStatusSuccess
			err = s.burgers.PublishRanking(ctx, run, entries)
		}
	}
	metrics.ObservePublish(start, run.Burgers, run.Version, err)
	if err != nil {
		run.Status = runStatusFailed
		run.FinishedAt = s.now()
		run.Error = err.Error()
		if recErr := s.burgers.RecordRankingRun(ctx, run); recErr != nil {
			s.log.Error().Err(recErr).Str("run_id", run.ID).Msg("ranking: не удалось записать неудачный запуск")
		}
		s.log.Error().Err(err).Str("run_id", run.ID).Str("cause", string(cause)).Msg("ranking: публикация не удалась, остаются прежние значения")
		return run, fmt.Errorf("публикация рейтинга: %w", err)
	}

	s.invalidate(ctx, strconv.FormatInt(run.Version, 10))
	s.log.Info().
		Str("run_id", run.ID).
		Int64("version", run.Version).
		Int("burgers", run.Burgers).
		Str("cause", string(cause)).
		Dur("took", run.FinishedAt.Sub(start)).
		Msg("ranking: рейтинг опубликован")
	return run, nil
}

// Compute считает рейтинг без записи. Используется публикатором и тестами детерминизма.
func (s *Service) Compute(ctx context.Context) ([]domain.RankingEntry, error) {
	return s.compute(ctx, s.now())
}

func (s *Service) compute(ctx context.Context, now time.Time) ([]domain.RankingEntry, error) {
	snap, err := s.burgers.LoadStatsSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("снимок статистики: %w", err)
	}
	ranked := s.scorer.Rank(snap.Burgers, snap.MeanRatings, now)
	entries := make([]domain.RankingEntry, 0, len(ranked))
	for _, r := range ranked {
		entries = append(entries, domain.RankingEntry{
			BurgerID:  r.Burger.ID,
			Score:     r.Breakdown.Score,
			Position:  r.Position,
			InRanking: r.Burger.TotalReviews > 0,
		})
	}
	return entries, nil
}

// RequestRecompute ставит задачу на внеплановый пересчёт.
func (s *Service) RequestRecompute(ctx context.Context, requestedBy string) (domain.RecomputeJob, error) {
	if s.queue == nil {
		return domain.RecomputeJob{}, errors.New("очередь пересчёта не настроена")
	}
	job := domain.RecomputeJob{
		ID:          uuid.NewString(),
		RequestedBy: requestedBy,
		RequestedAt: s.now(),
		Cause:       domain.RecomputeCauseManual,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return domain.RecomputeJob{}, fmt.Errorf("постановка пересчёта: %w", err)
	}
	return job, nil
}

// invalidate меняет поколение кэша запросов рейтинга.
func (s *Service) invalidate(ctx context.Context, generation string) {
	if err := s.cache.Set(ctx, generationKey, []byte(generation), 0); err != nil {
		s.log.Warn().Err(err).Msg("ranking: не удалось сбросить кэш")
	}
}
