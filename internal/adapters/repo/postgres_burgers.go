package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const rankingHistoryDepth = 30

// LoadStatsSnapshot читает одобренные бургеры и средний Elo из одного снимка
// базы (REPEATABLE READ, только чтение), чтобы расчёт не видел частичных записей.
func (p *Postgres) LoadStatsSnapshot(ctx context.Context) (domain.StatsSnapshot, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tx, err := p.begin(ctx, "burgers", pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	rows, err := tx.Query(ctx, `SELECT `+burgerColumns+` FROM `+burgerFrom+` WHERE b.approved ORDER BY b.id`)
	metrics.ObserveNetworkRequest("postgres", "burgers_list_stats", "burgers", start, err)
	if err != nil {
		return domain.StatsSnapshot{}, err
	}
	burgers, err := collectBurgers(rows)
	if err != nil {
		return domain.StatsSnapshot{}, fmt.Errorf("burgers: %w", err)
	}

	means, err := meanRatings(ctx, tx)
	if err != nil {
		return domain.StatsSnapshot{}, fmt.Errorf("mean ratings: %w", err)
	}
	if err := p.commit(ctx, tx, "burgers"); err != nil {
		return domain.StatsSnapshot{}, err
	}
	return domain.StatsSnapshot{Burgers: burgers, MeanRatings: means}, nil
}

// PublishRanking записывает баллы, позиции, историю и запуск одной транзакцией.
func (p *Postgres) PublishRanking(ctx context.Context, run domain.RankingRun, entries []domain.RankingEntry) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	ids := make([]string, len(entries))
	scores := make([]float64, len(entries))
	positions := make([]int32, len(entries))
	inRanking := make([]bool, len(entries))
	for i, e := range entries {
		ids[i], scores[i], positions[i], inRanking[i] = e.BurgerID, e.Score, int32(e.Position), e.InRanking
	}

	tx, err := p.begin(ctx, "burgers", pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	_, err = tx.Exec(ctx, `
UPDATE burgers b
SET ranking_score = u.score, ranking_position = u.position, in_ranking = u.in_ranking, ranking_updated_at = $5
FROM unnest($1::text[], $2::float8[], $3::int4[], $4::bool[]) AS u(id, score, position, in_ranking)
WHERE b.id = u.id
`, ids, scores, positions, inRanking, run.FinishedAt)
	metrics.ObserveNetworkRequest("postgres", "burgers_publish_ranking", "burgers", start, err)
	if err != nil {
		return fmt.Errorf("update burgers: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO ranking_history (burger_id, version, position, score, recorded_at)
SELECT u.id, $4, u.position, u.score, $5
FROM unnest($1::text[], $2::float8[], $3::int4[]) AS u(id, score, position)
ON CONFLICT (burger_id, version) DO NOTHING
`, ids, scores, positions, run.Version, run.FinishedAt)
	metrics.ObserveNetworkRequest("postgres", "ranking_history_insert", "ranking_history", start, err)
	if err != nil {
		return fmt.Errorf("insert history: %w", err)
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM ranking_history WHERE version <= $1`, run.Version-rankingHistoryDepth)
	metrics.ObserveNetworkRequest("postgres", "ranking_history_trim", "ranking_history", start, err)
	if err != nil {
		return fmt.Errorf("trim history: %w", err)
	}

	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	return p.commit(ctx, tx, "burgers")
}

func insertRun(ctx context.Context, tx pgx.Tx, run domain.RankingRun) error {
	var version any
	if run.Version > 0 && run.Status == "success" {
		version = run.Version
	}
	start := time.Now()
	_, err := tx.Exec(ctx, `
INSERT INTO ranking_runs (id, version, started_at, finished_at, burgers, status, error)
VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
`, run.ID, version, run.StartedAt, run.FinishedAt, run.Burgers, run.Status, run.Error)
	metrics.ObserveNetworkRequest("postgres", "ranking_runs_insert", "ranking_runs", start, err)
	return err
}

// RecordRankingRun записывает запуск, не изменивший рейтинг.
func (p *Postgres) RecordRankingRun(ctx context.Context, run domain.RankingRun) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tx, err := p.begin(ctx, "ranking_runs", pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)
	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	return p.commit(ctx, tx, "ranking_runs")
}

// LatestRankingVersion возвращает версию последней успешной публикации или 0.
func (p *Postgres) LatestRankingVersion(ctx context.Context) (int64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var version int64
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT COALESCE(MAX(version), 0) FROM ranking_runs WHERE status = 'success'`).Scan(&version)
	metrics.ObserveNetworkRequest("postgres", "ranking_runs_latest", "ranking_runs", start, err)
	return version, err
}

func rankingOrder(mode domain.SortMode) string {
	switch mode {
	case domain.SortTrending:
		return `b.recent_reviews DESC, b.ranking_position ASC NULLS LAST, b.id`
	case domain.SortNew:
		return `b.created_at DESC, b.id`
	default:
		return `b.ranking_position ASC NULLS LAST, b.id`
	}
}

// QueryRanking реализует domain.BurgerRepo.
func (p *Postgres) QueryRanking(ctx context.Context, q domain.RankingQuery) ([]domain.Burger, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+burgerColumns+`
FROM `+burgerFrom+`
WHERE b.approved
  AND ($1 = '' OR r.city_id = $1)
  AND ($2 = '' OR b.type = $2)
  AND ($3 OR b.in_ranking)
ORDER BY `+rankingOrder(q.SortBy)+`
LIMIT $4 OFFSET $5
`, q.CityID, q.BurgerType, q.IncludeAll, q.Limit, q.Offset)
	metrics.ObserveNetworkRequest("postgres", "burgers_query_ranking", "burgers", start, err)
	if err != nil {
		return nil, err
	}
	return collectBurgers(rows)
}

// GetBurger реализует domain.BurgerRepo.
func (p *Postgres) GetBurger(ctx context.Context, id string) (domain.Burger, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	b, err := scanBurger(p.pool.QueryRow(ctx, `SELECT `+burgerColumns+` FROM `+burgerFrom+` WHERE b.id = $1`, id))
	metrics.ObserveNetworkRequest("postgres", "burgers_get", "burgers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Burger{}, domain.ErrBurgerNotFound
	}
	return b, err
}

// ListRankingHistory возвращает последние позиции бургера, новые первыми.
func (p *Postgres) ListRankingHistory(ctx context.Context, burgerID string, limit int) ([]domain.RankingSnapshot, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT burger_id, position, score, version, recorded_at
FROM ranking_history WHERE burger_id = $1
ORDER BY version DESC LIMIT $2
`, burgerID, limit)
	metrics.ObserveNetworkRequest("postgres", "ranking_history_list", "ranking_history", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RankingSnapshot
	for rows.Next() {
		var s domain.RankingSnapshot
		if err := rows.Scan(&s.BurgerID, &s.Position, &s.Score, &s.Version, &s.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
