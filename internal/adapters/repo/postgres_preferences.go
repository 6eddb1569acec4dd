package repo

import (
	"context"
	"database/sql"
	"time"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

// ListRatedBurgers возвращает оценённые пользователем бургеры, свежие первыми.
// limit <= 0 снимает ограничение.
func (p *Postgres) ListRatedBurgers(ctx context.Context, userID string, limit int) ([]domain.RatedBurger, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+burgerColumns+`, ur.rating, ur.rated_at, bp.elo_rating, bp.comparisons, bp.updated_at
FROM user_burger_ratings ur
JOIN burgers b ON b.id = ur.burger_id
JOIN restaurants r ON r.id = b.restaurant_id
LEFT JOIN burger_preferences bp ON bp.user_id = ur.user_id AND bp.burger_id = ur.burger_id
WHERE ur.user_id = $1 AND b.approved
ORDER BY ur.rated_at DESC, b.id
LIMIT $2
`, userID, limitArg)
	metrics.ObserveNetworkRequest("postgres", "user_burger_ratings_list", "user_burger_ratings", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RatedBurger
	for rows.Next() {
		var (
			rb          domain.RatedBurger
			elo         sql.NullFloat64
			comparisons sql.NullInt32
			updatedAt   sql.NullTime
		)
		rb.Burger, err = scanBurger(rows, &rb.UserRating, &rb.RatedAt, &elo, &comparisons, &updatedAt)
		if err != nil {
			return nil, err
		}
		if elo.Valid {
			rb.Preference = &domain.PairwisePreference{
				UserID:      userID,
				BurgerID:    rb.Burger.ID,
				Rating:      elo.Float64,
				Comparisons: int(comparisons.Int32),
				UpdatedAt:   updatedAt.Time,
			}
		}
		out = append(out, rb)
	}
	return out, rows.Err()
}

// MeanRatingsByBurger возвращает средний Elo бургеров, участвовавших хотя бы в одном раунде.
func (p *Postgres) MeanRatingsByBurger(ctx context.Context) (map[string]float64, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	return meanRatings(ctx, p.pool)
}

func meanRatings(ctx context.Context, q querier) (map[string]float64, error) {
	start := time.Now()
	rows, err := q.Query(ctx, `
SELECT burger_id, AVG(elo_rating)
FROM burger_preferences
WHERE comparisons > 0
GROUP BY burger_id
`)
	metrics.ObserveNetworkRequest("postgres", "burger_preferences_mean", "burger_preferences", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]float64)
	for rows.Next() {
		var (
			id   string
			mean float64
		)
		if err := rows.Scan(&id, &mean); err != nil {
			return nil, err
		}
		out[id] = mean
	}
	return out, rows.Err()
}
