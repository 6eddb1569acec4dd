package ranking

import (
	"context"
	"errors"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/domain"
)

type memBurgers struct {
	burgers    map[string]domain.Burger
	history    []domain.RankingSnapshot
	runs       []domain.RankingRun
	version    int64
	means      map[string]float64
	publishErr error
	queries    int
	snapshots  int
}

func newMemBurgers(burgers ...domain.Burger) *memBurgers {
	m := &memBurgers{burgers: map[string]domain.Burger{}}
	for _, b := range burgers {
		m.burgers[b.ID] = b
	}
	return m
}

func (m *memBurgers) sorted() []domain.Burger {
	out := make([]domain.Burger, 0, len(m.burgers))
	for _, b := range m.burgers {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memBurgers) LoadStatsSnapshot(context.Context) (domain.StatsSnapshot, error) {
	m.snapshots++
	means := make(map[string]float64, len(m.means))
	for id, v := range m.means {
		means[id] = v
	}
	return domain.StatsSnapshot{Burgers: m.sorted(), MeanRatings: means}, nil
}

func (m *memBurgers) PublishRanking(_ context.Context, run domain.RankingRun, entries []domain.RankingEntry) error {
	if m.publishErr != nil {
		return m.publishErr
	}
	for _, e := range entries {
		b := m.burgers[e.BurgerID]
		b.RankingScore, b.RankingPosition, b.InRanking = e.Score, e.Position, e.InRanking
		m.burgers[e.BurgerID] = b
		m.history = append(m.history, domain.RankingSnapshot{BurgerID: e.BurgerID, Position: e.Position, Score: e.Score, Version: run.Version, RecordedAt: run.FinishedAt})
	}
	m.version = run.Version
	m.runs = append(m.runs, run)
	return nil
}

func (m *memBurgers) RecordRankingRun(_ context.Context, run domain.RankingRun) error {
	m.runs = append(m.runs, run)
	return nil
}

func (m *memBurgers) LatestRankingVersion(context.Context) (int64, error) {
	return m.version, nil
}

func (m *memBurgers) QueryRanking(_ context.Context, q domain.RankingQuery) ([]domain.Burger, error) {
	m.queries++
	var out []domain.Burger
	for _, b := range m.sorted() {
		if !q.IncludeAll && !b.InRanking {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RankingPosition < out[j].RankingPosition })
	return out, nil
}

func (m *memBurgers) GetBurger(_ context.Context, id string) (domain.Burger, error) {
	b, ok := m.burgers[id]
	if !ok {
		return domain.Burger{}, domain.ErrBurgerNotFound
	}
	return b, nil
}

func (m *memBurgers) ListRankingHistory(_ context.Context, burgerID string, limit int) ([]domain.RankingSnapshot, error) {
	var out []domain.RankingSnapshot
	for i := len(m.history) - 1; i >= 0 && len(out) < limit; i-- {
		if m.history[i].BurgerID == burgerID {
			out = append(out, m.history[i])
		}
	}
	return out, nil
}

type memFeatured struct {
	slots map[int]string
}

func (f *memFeatured) AssignFeatured(_ context.Context, burgerID string, slot int) (string, error) {
	for s, id := range f.slots {
		if id == burgerID {
			delete(f.slots, s)
		}
	}
	displaced := f.slots[slot]
	f.slots[slot] = burgerID
	return displaced, nil
}

func (f *memFeatured) ClearFeatured(_ context.Context, slot int) error {
	delete(f.slots, slot)
	return nil
}

func (f *memFeatured) ListFeatured(context.Context) ([]domain.Burger, error) {
	var out []domain.Burger
	for slot := 1; slot <= MaxFeaturedSlots; slot++ {
		if id, ok := f.slots[slot]; ok {
			order := slot
			out = append(out, domain.Burger{ID: id, IsFeatured: true, FeaturedOrder: &order})
		}
	}
	return out, nil
}

type stubPrefs struct {
	means map[string]float64
}

func (s *stubPrefs) ListRatedBurgers(context.Context, string, int) ([]domain.RatedBurger, error) {
	return nil, nil
}

func (s *stubPrefs) MeanRatingsByBurger(context.Context) (map[string]float64, error) {
	return s.means, nil
}

type memCache struct {
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (c *memCache) Once(_ context.Context, key string, _ time.Duration, fn func() error) error {
	if _, ok := c.data[key]; ok {
		return nil
	}
	c.data[key] = []byte("1")
	if err := fn(); err != nil {
		delete(c.data, key)
		return err
	}
	return nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.data[key] = value
	return nil
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := c.data[key]
	if !ok {
		return nil, errors.New("cache miss")
	}
	return v, nil
}

type memQueue struct {
	jobs []domain.RecomputeJob
}

func (q *memQueue) Enqueue(_ context.Context, job domain.RecomputeJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *memQueue) Pop(context.Context) (domain.RecomputeJob, error) {
	return domain.RecomputeJob{}, errors.New("empty")
}

var now = time.Date(2024, 7, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc      *Service
	burgers  *memBurgers
	featured *memFeatured
	cache    *memCache
	queue    *memQueue
}

func sampleBurgers() []domain.Burger {
	last := now.Add(-48 * time.Hour)
	return []domain.Burger{
		{ID: "classic", Name: "Classic", AverageRating: 4.6, TotalReviews: 40, VerifiedReviewsCount: 30,
			ReviewsByLevel: map[domain.ReviewerLevel]int{domain.LevelExpert: 20, domain.LevelBeginner: 20},
			CreatedAt:      now.Add(-300 * 24 * time.Hour), LastReviewAt: &last},
		{ID: "smash", Name: "Smash", AverageRating: 4.2, TotalReviews: 8, VerifiedReviewsCount: 2,
			ReviewsByLevel: map[domain.ReviewerLevel]int{domain.LevelBeginner: 8},
			CreatedAt:      now.Add(-60 * 24 * time.Hour)},
		{ID: "fresh", Name: "Fresh", CreatedAt: now.Add(-time.Hour)},
	}
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	scorer, err := ranker.NewScorer(ranker.DefaultWeights(), ranker.DefaultParams(), zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	f := fixture{
		burgers:  newMemBurgers(sampleBurgers()...),
		featured: &memFeatured{slots: map[int]string{}},
		cache:    newMemCache(),
		queue:    &memQueue{},
	}
	prefs := &stubPrefs{means: map[string]float64{"classic": 1540, "smash": 1460}}
	f.burgers.means = prefs.means
	f.svc = NewService(f.burgers, f.featured, prefs, f.cache, f.queue, scorer, DefaultOptions(), zerolog.Nop())
	f.svc.now = func() time.Time { return now }
	return f
}

func (f fixture) releaseLock() { delete(f.cache.data, lockKey) }

func TestPublishAssignsDensePositions(t *testing.T) {
	f := newFixture(t)
	run, err := f.svc.Publish(context.Background(), domain.RecomputeCauseScheduled)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if run.Version != 1 || run.Burgers != 3 || run.Status != runStatusSuccess {
		t.Fatalf("неожиданный запуск: %+v", run)
	}
	order := map[int]string{}
	for _, b := range f.burgers.burgers {
		order[b.RankingPosition] = b.ID
	}
	want := map[int]string{1: "classic", 2: "smash", 3: "fresh"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("ожидали позиции %v, получили %v", want, order)
	}
	if f.burgers.burgers["fresh"].InRanking {
		t.Fatalf("бургер без отзывов не должен входить в рейтинг")
	}
	if len(f.burgers.history) != 3 {
		t.Fatalf("ожидали запись истории для каждого бургера")
	}
}

func TestPublishIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Publish(ctx, domain.RecomputeCauseScheduled); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	first := f.burgers.sorted()
	f.releaseLock()
	if _, err := f.svc.Publish(ctx, domain.RecomputeCauseManual); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	second := f.burgers.sorted()
	for i := range first {
		if first[i].RankingScore != second[i].RankingScore || first[i].RankingPosition != second[i].RankingPosition {
			t.Fatalf("повторная публикация изменила %s", first[i].ID)
		}
	}
	if f.burgers.version != 2 {
		t.Fatalf("ожидали версию 2, получили %d", f.burgers.version)
	}
}

func TestPublishFailureKeepsPreviousRanking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Publish(ctx, domain.RecomputeCauseScheduled); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	before := f.burgers.sorted()
	f.releaseLock()

	f.burgers.publishErr = errors.New("connection reset")
	run, err := f.svc.Publish(ctx, domain.RecomputeCauseScheduled)
	if err == nil {
		t.Fatalf("ожидали ошибку публикации")
	}
	if run.Status != runStatusFailed || run.Error == "" {
		t.Fatalf("ожидали неудачный запуск, получили %+v", run)
	}
	if !reflect.DeepEqual(before, f.burgers.sorted()) {
		t.Fatalf("неудачный запуск не должен менять рейтинг")
	}
	if last := f.burgers.runs[len(f.burgers.runs)-1]; last.Status != runStatusFailed {
		t.Fatalf("неудачный запуск должен быть записан")
	}
	if _, locked := f.cache.data[lockKey]; locked {
		t.Fatalf("блокировка должна сниматься после ошибки")
	}
}

func TestPublishSkipsWhenLocked(t *testing.T) {
	f := newFixture(t)
	f.cache.data[lockKey] = []byte("1")
	if _, err := f.svc.Publish(context.Background(), domain.RecomputeCauseScheduled); !errors.Is(err, ErrPublishInProgress) {
		t.Fatalf("ожидали ErrPublishInProgress, получили %v", err)
	}
	if f.burgers.version != 0 {
		t.Fatalf("публикация не должна была выполняться")
	}
}

func TestQueryHidesUnratedUnlessIncludeAll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Publish(ctx, domain.RecomputeCauseScheduled); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	items, err := f.svc.Query(ctx, domain.RankingQuery{})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("ожидали 2 бургера в рейтинге, получили %d", len(items))
	}
	all, err := f.svc.Query(ctx, domain.RankingQuery{IncludeAll: true})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(all) != 3 || all[2].ID != "fresh" || all[2].InRanking {
		t.Fatalf("ожидали бургер без отзывов последним, получили %+v", all)
	}
}

func TestQueryCacheInvalidatedByPublish(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	q := domain.RankingQuery{SortBy: "bogus", Limit: 1000}

	for i := 0; i < 2; i++ {
		if _, err := f.svc.Query(ctx, q); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if f.burgers.queries != 1 {
		t.Fatalf("второй запрос должен обслуживаться из кэша, запросов к БД: %d", f.burgers.queries)
	}
	if _, err := f.svc.Publish(ctx, domain.RecomputeCauseScheduled); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := f.svc.Query(ctx, q); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if f.burgers.queries != 2 {
		t.Fatalf("публикация должна сбрасывать кэш, запросов к БД: %d", f.burgers.queries)
	}
}

func TestFeaturedSlotsStayExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	steps := []struct {
		burger string
		slot   int
	}{
		{"classic", 1}, {"smash", 2}, {"fresh", 3}, {"smash", 1}, {"classic", 3}, {"fresh", 3},
	}
	for _, st := range steps {
		if err := f.svc.AssignFeatured(ctx, st.burger, st.slot); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
		seen := map[string]bool{}
		for _, id := range f.featured.slots {
			if seen[id] {
				t.Fatalf("бургер %s занимает несколько слотов", id)
			}
			seen[id] = true
		}
		if len(f.featured.slots) > MaxFeaturedSlots {
			t.Fatalf("занято больше трёх слотов")
		}
	}
	want := map[int]string{1: "smash", 3: "fresh"}
	if !reflect.DeepEqual(f.featured.slots, want) {
		t.Fatalf("ожидали %v, получили %v", want, f.featured.slots)
	}

	for _, slot := range []int{0, 4} {
		if err := f.svc.AssignFeatured(ctx, "classic", slot); !errors.Is(err, domain.ErrInvalidSlot) {
			t.Fatalf("ожидали ErrInvalidSlot для слота %d, получили %v", slot, err)
		}
	}
	if err := f.svc.ClearFeatured(ctx, 1); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	items, err := f.svc.ListFeatured(ctx)
	if err != nil || len(items) != 1 || items[0].ID != "fresh" {
		t.Fatalf("ожидали в витрине только fresh, получили %+v (%v)", items, err)
	}
}

func TestDetailsMatchesPublishedScore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if _, err := f.svc.Publish(ctx, domain.RecomputeCauseScheduled); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	d, err := f.svc.Details(ctx, "classic")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if d.Breakdown.Score != d.Burger.RankingScore {
		t.Fatalf("разбор %v не совпал с опубликованным баллом %v", d.Breakdown.Score, d.Burger.RankingScore)
	}
	if len(d.History) != 1 || d.History[0].Position != 1 {
		t.Fatalf("ожидали одну запись истории, получили %+v", d.History)
	}
	if _, err := f.svc.Details(ctx, "missing"); !errors.Is(err, domain.ErrBurgerNotFound) {
		t.Fatalf("ожидали ErrBurgerNotFound, получили %v", err)
	}
}

func TestRequestRecompute(t *testing.T) {
	f := newFixture(t)
	job, err := f.svc.RequestRecompute(context.Background(), "admin")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(f.queue.jobs) != 1 || f.queue.jobs[0].ID != job.ID || job.Cause != domain.RecomputeCauseManual {
		t.Fatalf("ожидали задачу ручного пересчёта в очереди")
	}
}

func TestComputeReadsOneSnapshot(t *testing.T) {
	f := newFixture(t)
	// средние вне снимка не должны влиять на расчёт
	f.svc.prefs = &stubPrefs{means: map[string]float64{"smash": 2400}}

	entries, err := f.svc.Compute(context.Background())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if f.burgers.snapshots != 1 {
		t.Fatalf("ожидали одно чтение снимка, получили %d", f.burgers.snapshots)
	}
	if len(entries) != 3 || entries[0].BurgerID != "classic" {
		t.Fatalf("ожидали classic первым по снимку, получили %+v", entries)
	}
}
