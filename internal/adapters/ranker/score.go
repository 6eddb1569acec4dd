package ranker

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"burgerank/internal/domain"
	"burgerank/internal/infra/metrics"
)

const weightSumTolerance = 1e-9

// Weights: веса факторов глобального рейтинга.
type Weights struct {
	Quality      float64 `json:"quality"`
	Verification float64 `json:"verification"`
	Credibility  float64 `json:"credibility"`
	Volume       float64 `json:"volume"`
	Recency      float64 `json:"recency"`
	Pairwise     float64 `json:"pairwise"`
}

// DefaultWeights возвращает опубликованную методологию рейтинга.
func DefaultWeights() Weights {
	return Weights{
		Quality:      0.40,
		Verification: 0.25,
		Credibility:  0.20,
		Volume:       0.10,
		Recency:      0.03,
		Pairwise:     0.02,
	}
}

func (w Weights) values() map[string]float64 {
	return map[string]float64{
		"quality":      w.Quality,
		"verification": w.Verification,
		"credibility":  w.Credibility,
		"volume":       w.Volume,
		"recency":      w.Recency,
		"pairwise":     w.Pairwise,
	}
}

// Validate проверяет, что веса неотрицательны и в сумме дают единицу.
func (w Weights) Validate() error {
	var sum float64
	for name, v := range w.values() {
		if badFloat(v) || v < 0 {
			return fmt.Errorf("ranker: weight %s must be a non-negative number, got %v", name, v)
		}
		sum += v
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("ranker: weights must sum to 1, got %v", sum)
	}
	return nil
}

// Breakdown хранит нормализованные факторы и итоговый балл бургера.
type Breakdown struct {
	Quality      float64 `json:"quality"`
	Verification float64 `json:"verification"`
	Credibility  float64 `json:"credibility"`
	Volume       float64 `json:"volume"`
	Recency      float64 `json:"recency"`
	Pairwise     float64 `json:"pairwise"`
	Score        float64 `json:"score"`
}

// PairwiseInput: средний Elo бургера и среднее по популяции.
type PairwiseInput struct {
	Mean           float64
	Has            bool
	PopulationMean float64
}

// Scorer считает балл бургера по весам и параметрам нормализаторов.
type Scorer struct {
	weights Weights
	params  Params
	log     zerolog.Logger
}

// NewScorer проверяет веса и создаёт агрегатор.
func NewScorer(weights Weights, params Params, logger zerolog.Logger) (*Scorer, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	if len(params.LevelWeights) == 0 {
		params.LevelWeights = domain.DefaultLevelWeights()
	}
	return &Scorer{
		weights: weights,
		params:  params,
		log:     logger.With().Str("component", "ranker").Logger(),
	}, nil
}

// Weights возвращает веса агрегатора.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// Score считает балл одного бургера. Ошибки нормализаторов обнуляют фактор.
func (s *Scorer) Score(b domain.Burger, pairwise PairwiseInput, now time.Time) Breakdown {
	var out Breakdown
	out.Quality = s.factor(b.ID, "quality", func() (float64, error) {
		return RatingQuality(b.AverageRating, b.TotalReviews, s.params)
	})
	out.Verification = s.factor(b.ID, "verification", func() (float64, error) {
		return VerificationRatio(b.VerifiedReviewsCount, b.TotalReviews)
	})
	out.Credibility = s.factor(b.ID, "credibility", func() (float64, error) {
		return ReviewerCredibility(b.ReviewsByLevel, s.params.LevelWeights)
	})
	out.Volume = s.factor(b.ID, "volume", func() (float64, error) {
		return Volume(b.TotalReviews, s.params.VolumeCap)
	})
	out.Recency = s.factor(b.ID, "recency", func() (float64, error) {
		return Recency(b.CreatedAt, b.LastReviewAt, now, s.params.HalfLifeDays)
	})
	if pairwise.Has {
		out.Pairwise = s.factor(b.ID, "pairwise", func() (float64, error) {
			return PairwiseStrength(pairwise.Mean, pairwise.PopulationMean, s.params.PairwiseScale)
		})
	}

	w := s.weights
	out.Score = clamp01(w.Quality*out.Quality +
		w.Verification*out.Verification +
		w.Credibility*out.Credibility +
		w.Volume*out.Volume +
		w.Recency*out.Recency +
		w.Pairwise*out.Pairwise)
	return out
}

func (s *Scorer) factor(burgerID, name string, fn func() (float64, error)) float64 {
	v, err := fn()
	if err != nil {
		s.log.Warn().Err(err).Str("burger_id", burgerID).Str("factor", name).Msg("ranker: фактор обнулён")
		metrics.RankingFactorFallbacks.WithLabelValues(name).Inc()
		return 0
	}
	return v
}

// Ranked: бургер с рассчитанным баллом и позицией.
type Ranked struct {
	Burger    domain.Burger
	Breakdown Breakdown
	Position  int
}

// Rank считает баллы всех бургеров и упорядочивает их с разрешением ничьих.
// Позиции плотные и начинаются с 1.
func (s *Scorer) Rank(burgers []domain.Burger, means map[string]float64, now time.Time) []Ranked {
	popMean := PopulationMean(means)
	out := make([]Ranked, 0, len(burgers))
	for _, b := range burgers {
		mean, ok := means[b.ID]
		out = append(out, Ranked{
			Burger:    b,
			Breakdown: s.Score(b, PairwiseInput{Mean: mean, Has: ok, PopulationMean: popMean}, now),
		})
	}
	Sort(out)
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}
