package match

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// Options задаёт параметры движка матча.
type Options struct {
	KFactor         float64
	SeedRating      float64
	// SeedFromRating задаёт стартовый Elo по оценке пользователя: 1200 + звёзды/5·400.
	SeedFromRating  bool
	PoolSize        int
	MilestoneEvery  int
	MilestoneBonus  int
	SubmitPerMinute int
	SubmitBurst     int
	RoundRetention  time.Duration
}

// DefaultOptions возвращает параметры по умолчанию.
func DefaultOptions() Options {
	return Options{
		KFactor:         ranker.DefaultKFactor,
		SeedRating:      ranker.DefaultSeedRating,
		PoolSize:        100,
		MilestoneEvery:  10,
		MilestoneBonus:  5,
		SubmitPerMinute: 60,
		SubmitBurst:     10,
		RoundRetention:  180 * 24 * time.Hour,
	}
}

// Contender: бургер пары вместе с его Elo в глазах пользователя.
type Contender struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type,omitempty"`
	RestaurantID   string  `json:"restaurant_id"`
	AverageRating  float64 `json:"average_rating"`
	UserRating     float64 `json:"user_rating"`
	Rating         float64 `json:"elo_rating"`
	Comparisons    int     `json:"comparisons"`
	Tier           string  `json:"tier"`
	WinProbability int     `json:"win_probability"`
}

// Pair: очередной раунд матча.
type Pair struct {
	RoundID     string                       `json:"round_id"`
	BurgerA     Contender                    `json:"burger_a"`
	BurgerB     Contender                    `json:"burger_b"`
	Restaurants map[string]domain.Restaurant `json:"restaurants"`
}

// SubmitRequest: результат раунда от пользователя. RoundID выдаётся GetMatchPair и обязателен.
type SubmitRequest struct {
	RoundID  string
	BurgerA  string
	BurgerB  string
	WinnerID string
}

// Result описывает применённый раунд.
type Result struct {
	RoundID      string  `json:"round_id"`
	WinnerID     string  `json:"winner_id"`
	LoserID      string  `json:"loser_id"`
	WinnerRating float64 `json:"winner_rating"`
	LoserRating  float64 `json:"loser_rating"`
	Delta        float64 `json:"delta"`
	Points       int     `json:"points"`
	SessionCount int     `json:"session_count"`
	Milestone    bool    `json:"milestone"`
}

// Service реализует попарное сравнение бургеров с обновлением Elo.
type Service struct {
	prefs   domain.PreferenceRepo
	rounds  domain.MatchRoundRepo
	elo     *ranker.Elo
	opts    Options
	limiter *submitLimiter
	log     zerolog.Logger

	now  func() time.Time
	pick func(n int) int
}

// NewService создаёт сервис матча.
func NewService(prefs domain.PreferenceRepo, rounds domain.MatchRoundRepo, opts Options, logger zerolog.Logger) (*Service, error) {
	elo, err := ranker.NewElo(opts.KFactor, opts.SeedRating)
	if err != nil {
		return nil, err
	}
	elo.SeedFromRating = opts.SeedFromRating
	if opts.PoolSize < 2 {
		return nil, fmt.Errorf("match: pool size must be at least 2, got %d", opts.PoolSize)
	}
	return &Service{
		prefs:   prefs,
		rounds:  rounds,
		elo:     elo,
		opts:    opts,
		limiter: newSubmitLimiter(opts.SubmitPerMinute, opts.SubmitBurst),
		log:     logger.With().Str("component", "match").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
		pick:    rand.IntN,
	}, nil
}

// Elo возвращает настроенную модель рейтинга, общую с топ-5.
func (s *Service) Elo() *ranker.Elo { return s.elo }

// GetMatchPair выбирает наименее сравнённую пару из оценённых пользователем бургеров
// и открывает для неё раунд.
func (s *Service) GetMatchPair(ctx context.Context, userID string) (Pair, error) {
	pool, err := s.prefs.ListRatedBurgers(ctx, userID, s.opts.PoolSize)
	if err != nil {
		return Pair{}, fmt.Errorf("список оценённых бургеров: %w", err)
	}
	if len(pool) < 2 {
		return Pair{}, domain.ErrInsufficientData
	}
	counts, err := s.rounds.PairCounts(ctx, userID)
	if err != nil {
		return Pair{}, fmt.Errorf("счётчики пар: %w", err)
	}
	var previous string
	last, err := s.rounds.LastResolvedRound(ctx, userID)
	if err != nil {
		return Pair{}, fmt.Errorf("последний раунд: %w", err)
	}
	if last != nil {
		previous = domain.PairKey(last.BurgerA, last.BurgerB)
	}

	i, j := s.samplePair(pool, counts, previous)
	a, b := pool[i], pool[j]
	if s.pick(2) == 1 {
		a, b = b, a
	}

	round := domain.MatchRound{
		ID:        uuid.NewString(),
		UserID:    userID,
		BurgerA:   a.Burger.ID,
		BurgerB:   b.Burger.ID,
		CreatedAt: s.now(),
	}
	seeds := map[string]float64{
		a.Burger.ID: s.elo.Seed(a.UserRating),
		b.Burger.ID: s.elo.Seed(b.UserRating),
	}
	if err := s.rounds.CreateRound(ctx, round, seeds); err != nil {
		return Pair{}, fmt.Errorf("создание раунда: %w", err)
	}

	ca, cb := s.contender(a), s.contender(b)
	ca.WinProbability = ranker.WinProbability(ca.Rating, cb.Rating)
	cb.WinProbability = 100 - ca.WinProbability
	return Pair{
		RoundID: round.ID,
		BurgerA: ca,
		BurgerB: cb,
		Restaurants: map[string]domain.Restaurant{
			a.Burger.ID: {ID: a.Burger.RestaurantID, Name: a.Burger.RestaurantName},
			b.Burger.ID: {ID: b.Burger.RestaurantID, Name: b.Burger.RestaurantName},
		},
	}, nil
}

// samplePair выбирает равновероятно среди пар с наименьшим числом сравнений.
// Предыдущая пара исключается, если есть хотя бы одна другая.
func (s *Service) samplePair(pool []domain.RatedBurger, counts map[string]int, previous string) (int, int) {
	type candidate struct{ i, j int }
	var best []candidate
	minCount := -1
	for i := 0; i < len(pool); i++ {
		for j := i + 1; j < len(pool); j++ {
			key := domain.PairKey(pool[i].Burger.ID, pool[j].Burger.ID)
			if key == previous && len(pool) > 2 {
				continue
			}
			c := counts[key]
			switch {
			case minCount < 0 || c < minCount:
				minCount = c
				best = append(best[:0], candidate{i, j})
			case c == minCount:
				best = append(best, candidate{i, j})
			}
		}
	}
	chosen := best[s.pick(len(best))]
	return chosen.i, chosen.j
}

func (s *Service) contender(rb domain.RatedBurger) Contender {
	rating, comparisons := s.elo.Seed(rb.UserRating), 0
	if rb.Preference != nil {
		rating, comparisons = rb.Preference.Rating, rb.Preference.Comparisons
	}
	return Contender{
		ID:            rb.Burger.ID,
		Name:          rb.Burger.Name,
		Type:          rb.Burger.Type,
		RestaurantID:  rb.Burger.RestaurantID,
		AverageRating: rb.Burger.AverageRating,
		UserRating:    rb.UserRating,
		Rating:        rating,
		Comparisons:   comparisons,
		Tier:          ranker.RatingTier(rating),
	}
}

// SubmitMatch применяет результат раунда. Оба рейтинга и журнал раунда
// обновляются одной транзакцией. Раунд разрешается только по идентификатору,
// поэтому повтор того же запроса возвращает ErrAlreadyResolved.
func (s *Service) SubmitMatch(ctx context.Context, userID string, req SubmitRequest) (Result, error) {
	if req.WinnerID == "" || (req.WinnerID != req.BurgerA && req.WinnerID != req.BurgerB) {
		metrics.MatchRoundsTotal.WithLabelValues("invalid").Inc()
		return Result{}, domain.ErrInvalidWinner
	}
	if req.BurgerA == req.BurgerB || req.RoundID == "" {
		metrics.MatchRoundsTotal.WithLabelValues("invalid").Inc()
		return Result{}, domain.ErrUnknownPair
	}
	now := s.now()
	reservation, ok := s.limiter.Reserve(userID, now)
	if !ok {
		metrics.MatchRoundsTotal.WithLabelValues("rate_limited").Inc()
		return Result{}, domain.ErrRateLimited
	}

	var res Result
	params := domain.ResolveParams{
		RoundID:  req.RoundID,
		UserID:   userID,
		BurgerA:  req.BurgerA,
		BurgerB:  req.BurgerB,
		WinnerID: req.WinnerID,
		Now:      now,
	}
	round, err := s.rounds.ResolveRound(ctx, params, s.opts.SeedRating, func(state domain.RoundState) (domain.RoundUpdate, error) {
		winner, loser := state.Winner, state.Loser
		newWinner, newLoser, delta := s.elo.Apply(winner.Rating, loser.Rating)
		winner.Rating, loser.Rating = newWinner, newLoser
		winner.Comparisons++
		loser.Comparisons++
		winner.UpdatedAt, loser.UpdatedAt = now, now

		points := Points(state.SessionCount, s.opts.MilestoneEvery, s.opts.MilestoneBonus)
		res = Result{
			WinnerID:     winner.BurgerID,
			LoserID:      loser.BurgerID,
			WinnerRating: newWinner,
			LoserRating:  newLoser,
			Delta:        delta,
			Points:       points,
			SessionCount: state.SessionCount,
			Milestone:    IsMilestone(state.SessionCount, s.opts.MilestoneEvery),
		}
		return domain.RoundUpdate{Winner: winner, Loser: loser, Points: points}, nil
	})
	if err != nil {
		// повтор или чужой раунд не расходуют лимит пользователя
		if errors.Is(err, domain.ErrAlreadyResolved) || errors.Is(err, domain.ErrUnknownPair) {
			reservation.CancelAt(now)
		}
		metrics.MatchRoundsTotal.WithLabelValues("rejected").Inc()
		return Result{}, fmt.Errorf("разрешение раунда: %w", err)
	}
	res.RoundID = round.ID
	metrics.MatchRoundsTotal.WithLabelValues("resolved").Inc()
	if res.Milestone {
		metrics.MatchMilestonesTotal.Inc()
		s.log.Info().Str("user_id", userID).Int("session", res.SessionCount).Msg("match: веха сессии")
	}
	return res, nil
}

// IsMilestone сообщает, является ли n-й раунд сессии вехой.
func IsMilestone(sessionCount, every int) bool {
	return every > 0 && sessionCount > 0 && sessionCount%every == 0
}

// Points возвращает очки за n-й раунд сессии: одно очко плюс бонус на вехе.
func Points(sessionCount, every, bonus int) int {
	if IsMilestone(sessionCount, every) {
		return 1 + bonus
	}
	return 1
}

// GetMatchHistory возвращает последние разрешённые раунды пользователя.
func (s *Service) GetMatchHistory(ctx context.Context, userID string, limit int) ([]domain.MatchRound, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	history, err := s.rounds.ListMatchHistory(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("история матчей: %w", err)
	}
	return history, nil
}

// Prune удаляет раунды старше срока хранения.
func (s *Service) Prune(ctx context.Context) (int64, error) {
	if s.opts.RoundRetention <= 0 {
		return 0, nil
	}
	before := s.now().Add(-s.opts.RoundRetention)
	removed, err := s.rounds.PruneRounds(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("очистка раундов: %w", err)
	}
	s.log.Info().Int64("removed", removed).Time("before", before).Msg("match: журнал раундов очищен")
	return removed, nil
}
