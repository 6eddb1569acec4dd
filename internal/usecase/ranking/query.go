package ranking

import (
	"context"
	"encoding/json"
	"fmt"

	"burgerank/internal/adapters/ranker"
	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

// Item: бургер в ответе публичного рейтинга.
type Item struct {
	ID                   string  `json:"id"`
	Name                 string  `json:"name"`
	Type                 string  `json:"type,omitempty"`
	RestaurantID         string  `json:"restaurant_id"`
	RestaurantName       string  `json:"restaurant_name"`
	CityID               string  `json:"city_id,omitempty"`
	AverageRating        float64 `json:"average_rating"`
	TotalReviews         int     `json:"total_reviews"`
	VerifiedReviewsCount int     `json:"verified_reviews_count"`
	RankingScore         float64 `json:"ranking_score"`
	RankingPosition      int     `json:"ranking_position"`
	InRanking            bool    `json:"in_ranking"`
	IsFeatured           bool    `json:"is_featured"`
	FeaturedOrder        *int    `json:"featured_order,omitempty"`
}

func toItem(b domain.Burger) Item {
	return Item{
		ID:                   b.ID,
		Name:                 b.Name,
		Type:                 b.Type,
		RestaurantID:         b.RestaurantID,
		RestaurantName:       b.RestaurantName,
		CityID:               b.CityID,
		AverageRating:        b.AverageRating,
		TotalReviews:         b.TotalReviews,
		VerifiedReviewsCount: b.VerifiedReviewsCount,
		RankingScore:         b.RankingScore,
		RankingPosition:      b.RankingPosition,
		InRanking:            b.InRanking,
		IsFeatured:           b.IsFeatured,
		FeaturedOrder:        b.FeaturedOrder,
	}
}

func toItems(burgers []domain.Burger) []Item {
	out := make([]Item, 0, len(burgers))
	for _, b := range burgers {
		out = append(out, toItem(b))
	}
	return out
}

// normalize подставляет значения по умолчанию и ограничивает размер страницы.
func (s *Service) normalize(q domain.RankingQuery) domain.RankingQuery {
	switch q.SortBy {
	case domain.SortRanking, domain.SortTrending, domain.SortNew:
	default:
		q.SortBy = domain.SortRanking
	}
	if q.Limit <= 0 {
		q.Limit = s.opts.DefaultLimit
	}
	if q.Limit > s.opts.MaxLimit {
		q.Limit = s.opts.MaxLimit
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

func cacheKey(generation string, q domain.RankingQuery) string {
	return fmt.Sprintf("ranking:q:%s:%s:%s:%s:%t:%d:%d", generation, q.CityID, q.BurgerType, q.SortBy, q.IncludeAll, q.Limit, q.Offset)
}

// Query возвращает страницу публичного рейтинга. Бургеры без отзывов видны только с IncludeAll.
// Ответ кэшируется в рамках поколения рейтинга.
func (s *Service) Query(ctx context.Context, q domain.RankingQuery) ([]Item, error) {
	q = s.normalize(q)

	generation, err := s.cache.Get(ctx, generationKey)
	if err != nil {
		generation = []byte("0")
	}
	key := cacheKey(string(generation), q)
	if raw, err := s.cache.Get(ctx, key); err == nil {
		var items []Item
		if err := json.Unmarshal(raw, &items); err == nil {
			metrics.RankingCacheTotal.WithLabelValues("hit").Inc()
			return items, nil
		}
	}
	metrics.RankingCacheTotal.WithLabelValues("miss").Inc()

	burgers, err := s.burgers.QueryRanking(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("запрос рейтинга: %w", err)
	}
	items := toItems(burgers)
	if payload, err := json.Marshal(items); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.opts.QueryCacheTTL); err != nil {
			s.log.Warn().Err(err).Msg("ranking: не удалось сохранить ответ в кэш")
		}
	}
	return items, nil
}

// Details: разбор балла бургера по факторам и история позиций.
type Details struct {
	Burger    Item                     `json:"burger"`
	Breakdown ranker.Breakdown         `json:"breakdown"`
	Weights   ranker.Weights           `json:"weights"`
	History   []domain.RankingSnapshot `json:"history"`
}

// Details пересчитывает вклад факторов для одного бургера.
func (s *Service) Details(ctx context.Context, burgerID string) (Details, error) {
	b, err := s.burgers.GetBurger(ctx, burgerID)
	if err != nil {
		return Details{}, fmt.Errorf("получение бургера: %w", err)
	}
	means, err := s.prefs.MeanRatingsByBurger(ctx)
	if err != nil {
		return Details{}, fmt.Errorf("средние Elo: %w", err)
	}
	mean, ok := means[b.ID]
	breakdown := s.scorer.Score(b, ranker.PairwiseInput{Mean: mean, Has: ok, PopulationMean: ranker.PopulationMean(means)}, s.now())
	history, err := s.burgers.ListRankingHistory(ctx, b.ID, s.opts.HistoryLimit)
	if err != nil {
		return Details{}, fmt.Errorf("история позиций: %w", err)
	}
	return Details{
		Burger:    toItem(b),
		Breakdown: breakdown,
		Weights:   s.scorer.Weights(),
		History:   history,
	}, nil
}
