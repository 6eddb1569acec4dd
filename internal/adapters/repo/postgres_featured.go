package repo

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const featuredRetryMax = 3

// AssignFeatured очищает прежний слот бургера и прежнего владельца слота, затем
// занимает слот. Частичный уникальный индекс по featured_order не даёт двум
// транзакциям занять один слот; проигравшая повторяет попытку.
func (p *Postgres) AssignFeatured(ctx context.Context, burgerID string, slot int) (string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var err error
	for attempt := 0; attempt < featuredRetryMax; attempt++ {
		var displaced string
		displaced, err = p.assignFeatured(ctx, burgerID, slot)
		if err == nil {
			return displaced, nil
		}
		if !isUniqueViolation(err) {
			return "", err
		}
	}
	return "", err
}

func (p *Postgres) assignFeatured(ctx context.Context, burgerID string, slot int) (string, error) {
	tx, err := p.begin(ctx, "burgers", pgx.TxOptions{})
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	var id string
	start := time.Now()
	err = tx.QueryRow(ctx, `SELECT id FROM burgers WHERE id = $1 FOR UPDATE`, burgerID).Scan(&id)
	metrics.ObserveNetworkRequest("postgres", "burgers_lock", "burgers", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrBurgerNotFound
	}
	if err != nil {
		return "", err
	}

	var displaced string
	start = time.Now()
	err = tx.QueryRow(ctx, `SELECT id FROM burgers WHERE featured_order = $1 FOR UPDATE`, slot).Scan(&displaced)
	metrics.ObserveNetworkRequest("postgres", "burgers_lock_featured", "burgers", start, err)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `
UPDATE burgers SET is_featured = false, featured_order = NULL
WHERE featured_order = $1 OR id = $2
`, slot, burgerID)
	metrics.ObserveNetworkRequest("postgres", "burgers_clear_featured", "burgers", start, err)
	if err != nil {
		return "", err
	}

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE burgers SET is_featured = true, featured_order = $1 WHERE id = $2`, slot, burgerID)
	metrics.ObserveNetworkRequest("postgres", "burgers_set_featured", "burgers", start, err)
	if err != nil {
		return "", err
	}

	if err := p.commit(ctx, tx, "burgers"); err != nil {
		return "", err
	}
	return displaced, nil
}

// ClearFeatured освобождает слот.
func (p *Postgres) ClearFeatured(ctx context.Context, slot int) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE burgers SET is_featured = false, featured_order = NULL WHERE featured_order = $1`, slot)
	metrics.ObserveNetworkRequest("postgres", "burgers_clear_featured", "burgers", start, err)
	return err
}

// ListFeatured возвращает бургеры витрины по порядку слотов.
func (p *Postgres) ListFeatured(ctx context.Context) ([]domain.Burger, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+burgerColumns+` FROM `+burgerFrom+` WHERE b.featured_order IS NOT NULL ORDER BY b.featured_order`)
	metrics.ObserveNetworkRequest("postgres", "burgers_list_featured", "burgers", start, err)
	if err != nil {
		return nil, err
	}
	return collectBurgers(rows)
}
