package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

// GetTopFive реализует domain.TopFiveRepo.
func (p *Postgres) GetTopFive(ctx context.Context, userID string) (domain.TopFive, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	top := domain.TopFive{UserID: userID}
	var provenance string
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT ordered_burger_ids, provenance, updated_at FROM user_top_five WHERE user_id = $1
`, userID).Scan(&top.BurgerIDs, &provenance, &top.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "user_top_five_get", "user_top_five", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TopFive{}, false, nil
	}
	if err != nil {
		return domain.TopFive{}, false, err
	}
	top.Provenance = domain.Provenance(provenance)
	return top, true, nil
}

// SaveTopFive перезаписывает топ пользователя целиком.
func (p *Postgres) SaveTopFive(ctx context.Context, top domain.TopFive) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	ids := top.BurgerIDs
	if ids == nil {
		ids = []string{}
	}
	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO user_top_five (user_id, ordered_burger_ids, provenance, updated_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id) DO UPDATE
SET ordered_burger_ids = EXCLUDED.ordered_burger_ids, provenance = EXCLUDED.provenance, updated_at = EXCLUDED.updated_at
`, top.UserID, ids, string(top.Provenance), top.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "user_top_five_save", "user_top_five", start, err)
	return err
}
