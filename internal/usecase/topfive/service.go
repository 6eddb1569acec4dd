package topfive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

// Entry: позиция топа вместе с данными бургера.
type Entry struct {
	Position      int     `json:"position"`
	BurgerID      string  `json:"burger_id"`
	Name          string  `json:"name"`
	RestaurantID  string  `json:"restaurant_id"`
	AverageRating float64 `json:"average_rating"`
	UserRating    float64 `json:"user_rating"`
	Rating        float64 `json:"elo_rating"`
}

// Preview: рассчитанный по Elo топ, ещё не сохранённый.
type Preview struct {
	BurgerIDs     []string `json:"burger_ids"`
	Burgers       []Entry  `json:"burgers"`
	MatchesStored bool     `json:"matches_stored"`
}

// View: текущий топ пользователя.
type View struct {
	BurgerIDs  []string          `json:"burger_ids"`
	Burgers    []Entry           `json:"burgers"`
	Provenance domain.Provenance `json:"provenance"`
	UpdatedAt  *time.Time        `json:"updated_at,omitempty"`
	// Stored ложен, если пользователь ещё не сохранял топ и показан автоматический вариант.
	Stored bool `json:"stored"`
}

// Service согласует автоматический порядок по Elo с ручным порядком пользователя.
type Service struct {
	prefs domain.PreferenceRepo
	tops  domain.TopFiveRepo
	elo   *ranker.Elo
	log   zerolog.Logger
	now   func() time.Time
}

// NewService создаёт сервис топ-5.
func NewService(prefs domain.PreferenceRepo, tops domain.TopFiveRepo, elo *ranker.Elo, logger zerolog.Logger) *Service {
	return &Service{
		prefs: prefs,
		tops:  tops,
		elo:   elo,
		log:   logger.With().Str("component", "topfive").Logger(),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) rating(rb domain.RatedBurger) float64 {
	if rb.Preference != nil {
		return rb.Preference.Rating
	}
	return s.elo.Seed(rb.UserRating)
}

// rank упорядочивает оценённые бургеры: Elo по убыванию, затем средняя оценка,
// затем самая ранняя оценка пользователя, затем ID.
func (s *Service) rank(rated []domain.RatedBurger) []domain.RatedBurger {
	out := append([]domain.RatedBurger(nil), rated...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if ra, rb := s.rating(a), s.rating(b); ra != rb {
			return ra > rb
		}
		if a.Burger.AverageRating != b.Burger.AverageRating {
			return a.Burger.AverageRating > b.Burger.AverageRating
		}
		if !a.RatedAt.Equal(b.RatedAt) {
			return a.RatedAt.Before(b.RatedAt)
		}
		return a.Burger.ID < b.Burger.ID
	})
	if len(out) > domain.TopFiveSize {
		out = out[:domain.TopFiveSize]
	}
	return out
}

func (s *Service) entries(ids []string, byID map[string]domain.RatedBurger) []Entry {
	out := make([]Entry, 0, len(ids))
	for i, id := range ids {
		e := Entry{Position: i + 1, BurgerID: id, Rating: s.elo.SeedRating}
		if rb, ok := byID[id]; ok {
			e.Name = rb.Burger.Name
			e.RestaurantID = rb.Burger.RestaurantID
			e.AverageRating = rb.Burger.AverageRating
			e.UserRating = rb.UserRating
			e.Rating = s.rating(rb)
		}
		out = append(out, e)
	}
	return out
}

func (s *Service) loadRated(ctx context.Context, userID string) ([]domain.RatedBurger, map[string]domain.RatedBurger, error) {
	rated, err := s.prefs.ListRatedBurgers(ctx, userID, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("список оценённых бургеров: %w", err)
	}
	byID := make(map[string]domain.RatedBurger, len(rated))
	for _, rb := range rated {
		byID[rb.Burger.ID] = rb
	}
	return rated, byID, nil
}

func (s *Service) preview(ctx context.Context, userID string) (Preview, domain.TopFive, bool, error) {
	rated, byID, err := s.loadRated(ctx, userID)
	if err != nil {
		return Preview{}, domain.TopFive{}, false, err
	}
	stored, ok, err := s.tops.GetTopFive(ctx, userID)
	if err != nil {
		return Preview{}, domain.TopFive{}, false, fmt.Errorf("получение топ-5: %w", err)
	}
	ranked := s.rank(rated)
	ids := make([]string, 0, len(ranked))
	for _, rb := range ranked {
		ids = append(ids, rb.Burger.ID)
	}
	return Preview{
		BurgerIDs:     ids,
		Burgers:       s.entries(ids, byID),
		MatchesStored: ok && sameOrder(ids, stored.BurgerIDs),
	}, stored, ok, nil
}

// AutoCalculate возвращает превью топа по Elo. Ничего не сохраняет.
func (s *Service) AutoCalculate(ctx context.Context, userID string) (Preview, error) {
	p, _, _, err := s.preview(ctx, userID)
	return p, err
}

// Get возвращает сохранённый топ или автоматический, если пользователь его не сохранял.
func (s *Service) Get(ctx context.Context, userID string) (View, error) {
	_, byID, err := s.loadRated(ctx, userID)
	if err != nil {
		return View{}, err
	}
	stored, ok, err := s.tops.GetTopFive(ctx, userID)
	if err != nil {
		return View{}, fmt.Errorf("получение топ-5: %w", err)
	}
	if !ok {
		p, err := s.AutoCalculate(ctx, userID)
		if err != nil {
			return View{}, err
		}
		return View{BurgerIDs: p.BurgerIDs, Burgers: p.Burgers, Provenance: domain.ProvenanceAuto}, nil
	}
	updated := stored.UpdatedAt
	return View{
		BurgerIDs:  stored.BurgerIDs,
		Burgers:    s.entries(stored.BurgerIDs, byID),
		Provenance: stored.Provenance,
		UpdatedAt:  &updated,
		Stored:     true,
	}, nil
}

// Reorder сохраняет ручную перестановку текущего топа.
func (s *Service) Reorder(ctx context.Context, userID string, ids []string) (domain.TopFive, error) {
	stored, _, err := s.tops.GetTopFive(ctx, userID)
	if err != nil {
		return domain.TopFive{}, fmt.Errorf("получение топ-5: %w", err)
	}
	if err := ValidatePermutation(stored.BurgerIDs, ids); err != nil {
		return domain.TopFive{}, err
	}
	top := domain.TopFive{
		UserID:     userID,
		BurgerIDs:  append([]string(nil), ids...),
		Provenance: domain.ProvenanceManual,
		UpdatedAt:  s.now(),
	}
	if err := s.tops.SaveTopFive(ctx, top); err != nil {
		return domain.TopFive{}, fmt.Errorf("сохранение топ-5: %w", err)
	}
	metrics.TopFiveUpdatesTotal.WithLabelValues(string(domain.ProvenanceManual)).Inc()
	return top, nil
}

// ReplaceWithAuto подтверждает автоматический порядок. Порядок пересчитывается на сервере;
// если клиент передал expected и он устарел, возвращается ErrStalePreview.
// Совпадение с сохранённым порядком: успешный no-op.
func (s *Service) ReplaceWithAuto(ctx context.Context, userID string, expected []string) (domain.TopFive, error) {
	p, stored, ok, err := s.preview(ctx, userID)
	if err != nil {
		return domain.TopFive{}, err
	}
	if len(expected) > 0 && !sameOrder(expected, p.BurgerIDs) {
		return domain.TopFive{}, domain.ErrStalePreview
	}
	if ok && p.MatchesStored {
		s.log.Debug().Str("user_id", userID).Msg("topfive: порядок не изменился")
		return stored, nil
	}
	top := domain.TopFive{
		UserID:     userID,
		BurgerIDs:  p.BurgerIDs,
		Provenance: domain.ProvenanceAuto,
		UpdatedAt:  s.now(),
	}
	if err := s.tops.SaveTopFive(ctx, top); err != nil {
		return domain.TopFive{}, fmt.Errorf("сохранение топ-5: %w", err)
	}
	metrics.TopFiveUpdatesTotal.WithLabelValues(string(domain.ProvenanceAuto)).Inc()
	return top, nil
}

// Update сохраняет порядок пользователя: ручную перестановку или подтверждённый автоматический топ.
func (s *Service) Update(ctx context.Context, userID string, ids []string, provenance domain.Provenance) (domain.TopFive, error) {
	switch provenance {
	case domain.ProvenanceAuto:
		return s.ReplaceWithAuto(ctx, userID, ids)
	case domain.ProvenanceManual, "":
		return s.Reorder(ctx, userID, ids)
	default:
		return domain.TopFive{}, fmt.Errorf("неизвестный источник порядка %q", provenance)
	}
}

// ValidatePermutation проверяет, что next является перестановкой current.
func ValidatePermutation(current, next []string) error {
	seen := make(map[string]struct{}, len(next))
	for _, id := range next {
		if _, dup := seen[id]; dup {
			return domain.ErrDuplicateEntry
		}
		seen[id] = struct{}{}
	}
	if len(next) != len(current) {
		return domain.ErrIncompleteReorder
	}
	for _, id := range current {
		if _, ok := seen[id]; !ok {
			return domain.ErrIncompleteReorder
		}
	}
	return nil
}

func sameOrder(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
