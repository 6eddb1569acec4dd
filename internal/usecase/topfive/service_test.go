package topfive

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/domain"
)

type stubPrefs struct {
	rated []domain.RatedBurger
}

func (s *stubPrefs) ListRatedBurgers(context.Context, string, int) ([]domain.RatedBurger, error) {
	return s.rated, nil
}

func (s *stubPrefs) MeanRatingsByBurger(context.Context) (map[string]float64, error) {
	return nil, nil
}

type stubTops struct {
	top   domain.TopFive
	ok    bool
	saves int
}

func (s *stubTops) GetTopFive(context.Context, string) (domain.TopFive, bool, error) {
	return s.top, s.ok, nil
}

func (s *stubTops) SaveTopFive(_ context.Context, top domain.TopFive) error {
	s.top, s.ok = top, true
	s.saves++
	return nil
}

var base = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func rated(id string, elo, avg float64, ratedAt time.Time) domain.RatedBurger {
	rb := domain.RatedBurger{Burger: domain.Burger{ID: id, Name: id, AverageRating: avg}, RatedAt: ratedAt}
	if elo > 0 {
		rb.Preference = &domain.PairwisePreference{BurgerID: id, Rating: elo}
	}
	return rb
}

func newService(prefs *stubPrefs, tops *stubTops) *Service {
	elo, _ := ranker.NewElo(ranker.DefaultKFactor, ranker.DefaultSeedRating)
	svc := NewService(prefs, tops, elo, zerolog.Nop())
	svc.now = func() time.Time { return base.Add(24 * time.Hour) }
	return svc
}

func TestAutoCalculateOrdering(t *testing.T) {
	prefs := &stubPrefs{rated: []domain.RatedBurger{
		rated("f", 1400, 5, base),
		rated("a", 1600, 4, base),
		rated("b", 1550, 4.5, base),
		rated("c", 1550, 4.8, base),
		rated("d", 0, 3, base.Add(time.Hour)),
		rated("e", 0, 3, base),
	}}
	svc := newService(prefs, &stubTops{})

	p, err := svc.AutoCalculate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []string{"a", "c", "b", "e", "d"}
	if !reflect.DeepEqual(p.BurgerIDs, want) {
		t.Fatalf("ожидали %v, получили %v", want, p.BurgerIDs)
	}
	if p.MatchesStored {
		t.Fatalf("топ ещё не сохранён")
	}
	if p.Burgers[3].Rating != 1500 {
		t.Fatalf("бургер без Elo должен получить стартовый рейтинг")
	}
}

func TestReorderAcceptsPermutationsOnly(t *testing.T) {
	tops := &stubTops{top: domain.TopFive{UserID: "u1", BurgerIDs: []string{"a", "b", "c"}, Provenance: domain.ProvenanceAuto}, ok: true}
	svc := newService(&stubPrefs{}, tops)
	ctx := context.Background()

	cases := []struct {
		name string
		ids  []string
		want error
	}{
		{"partial", []string{"a", "b"}, domain.ErrIncompleteReorder},
		{"foreign id", []string{"a", "b", "z"}, domain.ErrIncompleteReorder},
		{"extra id", []string{"a", "b", "c", "d"}, domain.ErrIncompleteReorder},
		{"duplicate", []string{"a", "a", "b"}, domain.ErrDuplicateEntry},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Reorder(ctx, "u1", tc.ids); !errors.Is(err, tc.want) {
				t.Fatalf("ожидали %v, получили %v", tc.want, err)
			}
		})
	}
	if tops.saves != 0 {
		t.Fatalf("некорректный порядок не должен сохраняться")
	}

	top, err := svc.Update(ctx, "u1", []string{"c", "a", "b"}, domain.ProvenanceManual)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if top.Provenance != domain.ProvenanceManual || !top.UpdatedAt.Equal(base.Add(24*time.Hour)) {
		t.Fatalf("ожидали ручной источник и метку времени, получили %+v", top)
	}
	if !reflect.DeepEqual(tops.top.BurgerIDs, []string{"c", "a", "b"}) {
		t.Fatalf("порядок сохранён неверно: %v", tops.top.BurgerIDs)
	}
}

func TestReplaceWithAuto(t *testing.T) {
	prefs := &stubPrefs{rated: []domain.RatedBurger{
		rated("a", 1520, 4, base),
		rated("b", 1510, 4, base),
	}}
	tops := &stubTops{}
	svc := newService(prefs, tops)
	ctx := context.Background()

	if _, err := svc.ReplaceWithAuto(ctx, "u1", []string{"b", "a"}); !errors.Is(err, domain.ErrStalePreview) {
		t.Fatalf("ожидали ErrStalePreview, получили %v", err)
	}

	top, err := svc.Update(ctx, "u1", []string{"a", "b"}, domain.ProvenanceAuto)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if top.Provenance != domain.ProvenanceAuto || tops.saves != 1 {
		t.Fatalf("ожидали сохранение автоматического топа")
	}

	if _, err := svc.ReplaceWithAuto(ctx, "u1", nil); err != nil {
		t.Fatalf("повторное подтверждение должно быть успешным: %v", err)
	}
	if tops.saves != 1 {
		t.Fatalf("совпадающий порядок не должен перезаписываться")
	}

	p, err := svc.AutoCalculate(ctx, "u1")
	if err != nil || !p.MatchesStored {
		t.Fatalf("превью должно совпадать с сохранённым (%v)", err)
	}
}

func TestGetFallsBackToAuto(t *testing.T) {
	prefs := &stubPrefs{rated: []domain.RatedBurger{rated("a", 1600, 4, base), rated("b", 1500, 4, base)}}
	tops := &stubTops{}
	svc := newService(prefs, tops)

	view, err := svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if view.Stored || view.Provenance != domain.ProvenanceAuto || !reflect.DeepEqual(view.BurgerIDs, []string{"a", "b"}) {
		t.Fatalf("ожидали автоматический топ, получили %+v", view)
	}
	if tops.saves != 0 {
		t.Fatalf("чтение не должно сохранять топ")
	}

	tops.top, tops.ok = domain.TopFive{UserID: "u1", BurgerIDs: []string{"b", "a"}, Provenance: domain.ProvenanceManual, UpdatedAt: base}, true
	view, err = svc.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !view.Stored || view.Burgers[0].BurgerID != "b" || view.Burgers[0].Rating != 1500 {
		t.Fatalf("ожидали сохранённый ручной топ, получили %+v", view)
	}
}

func TestAutoCalculateSeedsFromStars(t *testing.T) {
	low, high := rated("low", 0, 4.9, base), rated("high", 0, 3, base)
	low.UserRating, high.UserRating = 2, 5
	prefs := &stubPrefs{rated: []domain.RatedBurger{low, rated("mid", 1500, 4, base), high}}
	svc := newService(prefs, &stubTops{})
	svc.elo.SeedFromRating = true

	p, err := svc.AutoCalculate(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	want := []string{"high", "mid", "low"}
	if !reflect.DeepEqual(p.BurgerIDs, want) {
		t.Fatalf("ожидали %v, получили %v", want, p.BurgerIDs)
	}
	if p.Burgers[0].Rating != 1600 || p.Burgers[2].Rating != 1360 {
		t.Fatalf("ожидали стартовые рейтинги 1600 и 1360, получили %+v", p.Burgers)
	}
}
