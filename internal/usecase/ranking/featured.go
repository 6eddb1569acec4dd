package ranking

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

// MaxFeaturedSlots: число слотов витрины.
const MaxFeaturedSlots = 3

func validSlot(slot int) error {
	if slot < 1 || slot > MaxFeaturedSlots {
		return domain.ErrInvalidSlot
	}
	return nil
}

// AssignFeatured ставит бургер в слот витрины. Прежний владелец слота вытесняется
// и фиксируется предупреждением.
func (s *Service) AssignFeatured(ctx context.Context, burgerID string, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	displaced, err := s.featured.AssignFeatured(ctx, burgerID, slot)
	if err != nil {
		return fmt.Errorf("назначение витрины: %w", err)
	}
	if displaced != "" && displaced != burgerID {
		metrics.FeaturedConflictsTotal.Inc()
		s.log.Warn().
			Err(domain.ErrConflictingFeaturedSlot).
			Int("slot", slot).
			Str("burger_id", burgerID).
			Str("displaced_id", displaced).
			Msg("ranking: слот витрины перезаписан")
	}
	s.invalidate(ctx, uuid.NewString())
	return nil
}

// ClearFeatured освобождает слот витрины.
func (s *Service) ClearFeatured(ctx context.Context, slot int) error {
	if err := validSlot(slot); err != nil {
		return err
	}
	if err := s.featured.ClearFeatured(ctx, slot); err != nil {
		return fmt.Errorf("очистка витрины: %w", err)
	}
	s.invalidate(ctx, uuid.NewString())
	return nil
}

// ListFeatured возвращает бургеры витрины по номеру слота.
func (s *Service) ListFeatured(ctx context.Context) ([]Item, error) {
	burgers, err := s.featured.ListFeatured(ctx)
	if err != nil {
		return nil, fmt.Errorf("список витрины: %w", err)
	}
	return toItems(burgers), nil
}
