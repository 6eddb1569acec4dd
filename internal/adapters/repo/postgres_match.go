package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const (
	roundColumns = `id, user_id, burger_a, burger_b, created_at, resolved_at, COALESCE(winner_id, ''),
rating_a_before, rating_b_before, rating_a_after, rating_b_after, points`
	activeDaysLimit = 400
)

func scanRound(row pgx.Row) (domain.MatchRound, error) {
	var (
		r          domain.MatchRound
		resolvedAt sql.NullTime
		aBefore    sql.NullFloat64
		bBefore    sql.NullFloat64
		aAfter     sql.NullFloat64
		bAfter     sql.NullFloat64
	)
	err := row.Scan(&r.ID, &r.UserID, &r.BurgerA, &r.BurgerB, &r.CreatedAt, &resolvedAt, &r.WinnerID,
		&aBefore, &bBefore, &aAfter, &bAfter, &r.Points)
	if err != nil {
		return domain.MatchRound{}, err
	}
	if resolvedAt.Valid {
		ts := resolvedAt.Time
		r.ResolvedAt = &ts
	}
	r.RatingABefore, r.RatingBBefore = aBefore.Float64, bBefore.Float64
	r.RatingAAfter, r.RatingBAfter = aAfter.Float64, bAfter.Float64
	return r, nil
}

// CreateRound открывает раунд и создаёт недостающие предпочтения со стартовыми рейтингами
// из seeds. Прежние открытые раунды пользователя снимаются, открытым остаётся один.
func (p *Postgres) CreateRound(ctx context.Context, round domain.MatchRound, seeds map[string]float64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tx, err := p.begin(ctx, "match_rounds", pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('match:' || $1::text))`, round.UserID)
	metrics.ObserveNetworkRequest("postgres", "match_user_lock", "match_rounds", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `DELETE FROM match_rounds WHERE user_id = $1 AND resolved_at IS NULL`, round.UserID)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_supersede", "match_rounds", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO burger_preferences (user_id, burger_id, elo_rating, comparisons, updated_at)
VALUES ($1, $2, $4, 0, $6), ($1, $3, $5, 0, $6)
ON CONFLICT (user_id, burger_id) DO NOTHING
`, round.UserID, round.BurgerA, round.BurgerB, seeds[round.BurgerA], seeds[round.BurgerB], round.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "burger_preferences_seed", "burger_preferences", start, err)
	if err != nil {
		return err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO match_rounds (id, user_id, burger_a, burger_b, created_at)
VALUES ($1, $2, $3, $4, $5)
`, round.ID, round.UserID, round.BurgerA, round.BurgerB, round.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_insert", "match_rounds", start, err)
	if err != nil {
		return err
	}
	return p.commit(ctx, tx, "match_rounds")
}

// PairCounts возвращает число разрешённых раундов по каждой неупорядоченной паре.
func (p *Postgres) PairCounts(ctx context.Context, userID string) (map[string]int, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT LEAST(burger_a, burger_b), GREATEST(burger_a, burger_b), COUNT(*)
FROM match_rounds
WHERE user_id = $1 AND resolved_at IS NOT NULL
GROUP BY 1, 2
`, userID)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_pair_counts", "match_rounds", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var (
			a, b  string
			count int
		)
		if err := rows.Scan(&a, &b, &count); err != nil {
			return nil, err
		}
		out[domain.PairKey(a, b)] += count
	}
	return out, rows.Err()
}

// LastResolvedRound возвращает последний разрешённый раунд или nil.
func (p *Postgres) LastResolvedRound(ctx context.Context, userID string) (*domain.MatchRound, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	round, err := scanRound(p.pool.QueryRow(ctx, `
SELECT `+roundColumns+` FROM match_rounds
WHERE user_id = $1 AND resolved_at IS NOT NULL
ORDER BY resolved_at DESC LIMIT 1
`, userID))
	metrics.ObserveNetworkRequest("postgres", "match_rounds_last", "match_rounds", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &round, nil
}

// ResolveRound разрешает раунд одной транзакцией. Раунды одного пользователя
// сериализуются advisory-блокировкой, строки предпочтений блокируются FOR UPDATE.
func (p *Postgres) ResolveRound(ctx context.Context, params domain.ResolveParams, seedRating float64, fn domain.ResolveFunc) (domain.MatchRound, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	tx, err := p.begin(ctx, "match_rounds", pgx.TxOptions{})
	if err != nil {
		return domain.MatchRound{}, err
	}
	defer tx.Rollback(ctx)

	start := time.Now()
	_, err = tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('match:' || $1::text))`, params.UserID)
	metrics.ObserveNetworkRequest("postgres", "match_user_lock", "match_rounds", start, err)
	if err != nil {
		return domain.MatchRound{}, err
	}

	round, err := p.lockRound(ctx, tx, params)
	if err != nil {
		return domain.MatchRound{}, err
	}
	loserID := round.BurgerA
	if params.WinnerID == round.BurgerA {
		loserID = round.BurgerB
	}

	prefs, err := lockPreferences(ctx, tx, params.UserID, []string{params.WinnerID, loserID}, seedRating)
	if err != nil {
		return domain.MatchRound{}, err
	}

	dayStart := time.Date(params.Now.UTC().Year(), params.Now.UTC().Month(), params.Now.UTC().Day(), 0, 0, 0, 0, time.UTC)
	var resolvedToday int
	start = time.Now()
	err = tx.QueryRow(ctx, `
SELECT COUNT(*) FROM match_rounds
WHERE user_id = $1 AND resolved_at >= $2 AND resolved_at < $3
`, params.UserID, dayStart, dayStart.Add(24*time.Hour)).Scan(&resolvedToday)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_session", "match_rounds", start, err)
	if err != nil {
		return domain.MatchRound{}, err
	}

	update, err := fn(domain.RoundState{
		Round:        round,
		Winner:       prefs[params.WinnerID],
		Loser:        prefs[loserID],
		SessionCount: resolvedToday + 1,
	})
	if err != nil {
		return domain.MatchRound{}, err
	}

	for _, pref := range []domain.PairwisePreference{update.Winner, update.Loser} {
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO burger_preferences (user_id, burger_id, elo_rating, comparisons, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (user_id, burger_id) DO UPDATE
SET elo_rating = EXCLUDED.elo_rating, comparisons = EXCLUDED.comparisons, updated_at = EXCLUDED.updated_at
`, params.UserID, pref.BurgerID, pref.Rating, pref.Comparisons, pref.UpdatedAt)
		metrics.ObserveNetworkRequest("postgres", "burger_preferences_update", "burger_preferences", start, err)
		if err != nil {
			return domain.MatchRound{}, err
		}
	}

	ratingA, ratingB := update.Winner, update.Loser
	beforeA, beforeB := prefs[params.WinnerID], prefs[loserID]
	if round.BurgerA != params.WinnerID {
		ratingA, ratingB = ratingB, ratingA
		beforeA, beforeB = beforeB, beforeA
	}
	resolvedAt := params.Now
	round.ResolvedAt = &resolvedAt
	round.WinnerID = params.WinnerID
	round.RatingABefore, round.RatingBBefore = beforeA.Rating, beforeB.Rating
	round.RatingAAfter, round.RatingBAfter = ratingA.Rating, ratingB.Rating
	round.Points = update.Points

	start = time.Now()
	tag, err := tx.Exec(ctx, `
UPDATE match_rounds
SET resolved_at = $2, winner_id = $3,
    rating_a_before = $4, rating_b_before = $5, rating_a_after = $6, rating_b_after = $7, points = $8
WHERE id = $1 AND resolved_at IS NULL
`, round.ID, resolvedAt, round.WinnerID, round.RatingABefore, round.RatingBBefore, round.RatingAAfter, round.RatingBAfter, round.Points)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_resolve", "match_rounds", start, err)
	if err != nil {
		return domain.MatchRound{}, err
	}
	if tag.RowsAffected() == 0 {
		return domain.MatchRound{}, domain.ErrAlreadyResolved
	}

	if err := p.commit(ctx, tx, "match_rounds"); err != nil {
		return domain.MatchRound{}, err
	}
	return round, nil
}

// lockRound блокирует раунд пользователя по идентификатору.
func (p *Postgres) lockRound(ctx context.Context, tx pgx.Tx, params domain.ResolveParams) (domain.MatchRound, error) {
	if params.RoundID == "" {
		return domain.MatchRound{}, domain.ErrUnknownPair
	}
	start := time.Now()
	round, err := scanRound(tx.QueryRow(ctx, `
SELECT `+roundColumns+` FROM match_rounds WHERE id = $1 AND user_id = $2 FOR UPDATE
`, params.RoundID, params.UserID))
	metrics.ObserveNetworkRequest("postgres", "match_rounds_lock", "match_rounds", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MatchRound{}, domain.ErrUnknownPair
	}
	if err != nil {
		return domain.MatchRound{}, err
	}
	if !round.HasPair(params.BurgerA, params.BurgerB) {
		return domain.MatchRound{}, domain.ErrUnknownPair
	}
	if round.Resolved() {
		return domain.MatchRound{}, domain.ErrAlreadyResolved
	}
	return round, nil
}

// lockPreferences блокирует строки предпочтений в порядке ID, отсутствующие заполняет стартовым рейтингом.
func lockPreferences(ctx context.Context, tx pgx.Tx, userID string, burgerIDs []string, seedRating float64) (map[string]domain.PairwisePreference, error) {
	ids := append([]string(nil), burgerIDs...)
	sort.Strings(ids)

	start := time.Now()
	rows, err := tx.Query(ctx, `
SELECT burger_id, elo_rating, comparisons, updated_at
FROM burger_preferences
WHERE user_id = $1 AND burger_id = ANY($2)
ORDER BY burger_id
FOR UPDATE
`, userID, ids)
	metrics.ObserveNetworkRequest("postgres", "burger_preferences_lock", "burger_preferences", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]domain.PairwisePreference, len(ids))
	for rows.Next() {
		pref := domain.PairwisePreference{UserID: userID}
		if err := rows.Scan(&pref.BurgerID, &pref.Rating, &pref.Comparisons, &pref.UpdatedAt); err != nil {
			return nil, err
		}
		out[pref.BurgerID] = pref
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			out[id] = domain.PairwisePreference{UserID: userID, BurgerID: id, Rating: seedRating}
		}
	}
	return out, nil
}

// MatchActivity агрегирует журнал раундов пользователя.
func (p *Postgres) MatchActivity(ctx context.Context, userID string, now time.Time) (domain.MatchActivity, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	now = now.UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	act := domain.MatchActivity{Wins: make(map[string]int)}

	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*), COUNT(*) FILTER (WHERE resolved_at >= $2), COALESCE(SUM(points), 0)
FROM match_rounds
WHERE user_id = $1 AND resolved_at IS NOT NULL
`, userID, dayStart).Scan(&act.Total, &act.Today, &act.TotalPoints)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_totals", "match_rounds", start, err)
	if err != nil {
		return domain.MatchActivity{}, err
	}

	start = time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT date_trunc('day', resolved_at AT TIME ZONE 'UTC') AS day
FROM match_rounds
WHERE user_id = $1 AND resolved_at IS NOT NULL
ORDER BY day DESC
LIMIT $2
`, userID, activeDaysLimit)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_days", "match_rounds", start, err)
	if err != nil {
		return domain.MatchActivity{}, err
	}
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			rows.Close()
			return domain.MatchActivity{}, err
		}
		act.ActiveDays = append(act.ActiveDays, time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC))
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.MatchActivity{}, err
	}

	start = time.Now()
	rows, err = p.pool.Query(ctx, `
SELECT winner_id, COUNT(*) FROM match_rounds
WHERE user_id = $1 AND resolved_at IS NOT NULL
GROUP BY winner_id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_wins", "match_rounds", start, err)
	if err != nil {
		return domain.MatchActivity{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			id   string
			wins int
		)
		if err := rows.Scan(&id, &wins); err != nil {
			return domain.MatchActivity{}, err
		}
		act.Wins[id] = wins
	}
	if err := rows.Err(); err != nil {
		return domain.MatchActivity{}, fmt.Errorf("wins: %w", err)
	}
	return act, nil
}

// ListMatchHistory возвращает последние разрешённые раунды.
func (p *Postgres) ListMatchHistory(ctx context.Context, userID string, limit int) ([]domain.MatchRound, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+roundColumns+` FROM match_rounds
WHERE user_id = $1 AND resolved_at IS NOT NULL
ORDER BY resolved_at DESC LIMIT $2
`, userID, limit)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_history", "match_rounds", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.MatchRound
	for rows.Next() {
		r, err := scanRound(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PruneRounds удаляет раунды, созданные раньше before.
func (p *Postgres) PruneRounds(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	start := time.Now()
	tag, err := p.pool.Exec(ctx, `DELETE FROM match_rounds WHERE created_at < $1`, before)
	metrics.ObserveNetworkRequest("postgres", "match_rounds_prune", "match_rounds", start, err)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
