package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.BurgerRepo     = (*Postgres)(nil)
	_ domain.FeaturedRepo   = (*Postgres)(nil)
	_ domain.PreferenceRepo = (*Postgres)(nil)
	_ domain.MatchRoundRepo = (*Postgres)(nil)
	_ domain.TopFiveRepo    = (*Postgres)(nil)
)

const queryTimeout = 5 * time.Second

// querier: общее у пула и транзакции.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, queryTimeout)
}

func (p *Postgres) begin(ctx context.Context, target string, opts pgx.TxOptions) (pgx.Tx, error) {
	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, opts)
	metrics.ObserveNetworkRequest("postgres", "begin_tx", target, start, err)
	return tx, err
}

func (p *Postgres) commit(ctx context.Context, tx pgx.Tx, target string) error {
	start := time.Now()
	err := tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", target, start, err)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

const burgerColumns = `
b.id, b.name, b.type, b.restaurant_id, r.name, r.city_id,
b.average_rating, b.total_reviews, b.verified_reviews_count, b.recent_reviews, b.reviews_by_level,
b.created_at, b.last_review_at,
COALESCE(b.ranking_score, 0), COALESCE(b.ranking_position, 0), b.in_ranking, b.featured_order`

const burgerFrom = `burgers b JOIN restaurants r ON r.id = b.restaurant_id`

// scanBurger читает строку, выбранную по burgerColumns. extra дописываются после колонок бургера.
func scanBurger(row pgx.Row, extra ...any) (domain.Burger, error) {
	var (
		b          domain.Burger
		cityID     sql.NullString
		burgerType sql.NullString
		byLevel    map[string]int
		lastReview sql.NullTime
		featured   sql.NullInt32
	)
	dest := []any{
		&b.ID, &b.Name, &burgerType, &b.RestaurantID, &b.RestaurantName, &cityID,
		&b.AverageRating, &b.TotalReviews, &b.VerifiedReviewsCount, &b.RecentReviews, &byLevel,
		&b.CreatedAt, &lastReview,
		&b.RankingScore, &b.RankingPosition, &b.InRanking, &featured,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Burger{}, err
	}
	b.Type = burgerType.String
	b.CityID = cityID.String
	if lastReview.Valid {
		ts := lastReview.Time
		b.LastReviewAt = &ts
	}
	if featured.Valid {
		order := int(featured.Int32)
		b.FeaturedOrder = &order
		b.IsFeatured = true
	}
	if len(byLevel) > 0 {
		b.ReviewsByLevel = make(map[domain.ReviewerLevel]int, len(byLevel))
		for raw, count := range byLevel {
			b.ReviewsByLevel[domain.ParseLevel(raw)] += count
		}
	}
	return b, nil
}

func collectBurgers(rows pgx.Rows) ([]domain.Burger, error) {
	defer rows.Close()
	var out []domain.Burger
	for rows.Next() {
		b, err := scanBurger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
