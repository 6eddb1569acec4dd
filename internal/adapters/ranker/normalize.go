package ranker

import (
	"fmt"
	"math"
	"time"

	"burgerank/internal/domain"
)

const (
	minStars = 1.0
	maxStars = 5.0
)

// Params задаёт форму нормализаторов. Значения настраиваются через окружение.
type Params struct {
	PriorMean     float64
	PriorWeight   float64
	HalfLifeDays  float64
	VolumeCap     int
	PairwiseScale float64
	LevelWeights  domain.LevelWeights
}

// DefaultParams возвращает параметры нормализаторов по умолчанию.
func DefaultParams() Params {
	return Params{
		PriorMean:     3.5,
		PriorWeight:   5,
		HalfLifeDays:  30,
		VolumeCap:     50,
		PairwiseScale: 100,
		LevelWeights:  domain.DefaultLevelWeights(),
	}
}

func malformed(format string, args ...any) error {
	return fmt.Errorf("%w: %s", domain.ErrMalformedStats, fmt.Sprintf(format, args...))
}

func badFloat(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// RatingQuality возвращает байесовски сглаженную среднюю оценку в диапазоне [0,1].
// Бургер без отзывов получает 0.
func RatingQuality(avg float64, n int, p Params) (float64, error) {
	if n < 0 {
		return 0, malformed("negative review count %d", n)
	}
	if n == 0 {
		return 0, nil
	}
	if badFloat(avg) || avg < 0 || avg > maxStars {
		return 0, malformed("average rating %v out of range", avg)
	}
	if p.PriorWeight < 0 {
		return 0, malformed("negative prior weight %v", p.PriorWeight)
	}
	shrunk := (avg*float64(n) + p.PriorMean*p.PriorWeight) / (float64(n) + p.PriorWeight)
	return clamp01((shrunk - minStars) / (maxStars - minStars)), nil
}

// VerificationRatio возвращает долю подтверждённых чеком отзывов.
func VerificationRatio(verified, total int) (float64, error) {
	if verified < 0 || total < 0 {
		return 0, malformed("negative counts verified=%d total=%d", verified, total)
	}
	if total == 0 {
		return 0, nil
	}
	if verified > total {
		return 0, malformed("verified %d exceeds total %d", verified, total)
	}
	return float64(verified) / float64(total), nil
}

// ReviewerCredibility возвращает средний вес уровня авторов, делённый на максимальный вес.
func ReviewerCredibility(byLevel map[domain.ReviewerLevel]int, weights domain.LevelWeights) (float64, error) {
	maxWeight := weights.Max()
	if maxWeight <= 0 {
		return 0, malformed("level weights are empty")
	}
	var count int
	var sum float64
	for level, c := range byLevel {
		if c < 0 {
			return 0, malformed("negative review count %d for level %s", c, level)
		}
		count += c
		sum += float64(c) * weights.Weight(level)
	}
	if count == 0 {
		return 0, nil
	}
	return clamp01(sum / float64(count) / maxWeight), nil
}

// Recency убывает экспоненциально от момента последней активности бургера.
func Recency(createdAt time.Time, lastReviewAt *time.Time, now time.Time, halfLifeDays float64) (float64, error) {
	if createdAt.IsZero() {
		return 0, malformed("created_at is empty")
	}
	if halfLifeDays <= 0 || badFloat(halfLifeDays) {
		return 0, malformed("half-life %v must be positive", halfLifeDays)
	}
	active := createdAt
	if lastReviewAt != nil && lastReviewAt.After(active) {
		active = *lastReviewAt
	}
	ageDays := now.Sub(active).Hours() / 24
	if ageDays <= 0 {
		return 1, nil
	}
	return clamp01(math.Exp(-math.Ln2 * ageDays / halfLifeDays)), nil
}

// Volume насыщается при достижении volumeCap отзывов.
func Volume(n, volumeCap int) (float64, error) {
	if n < 0 {
		return 0, malformed("negative review count %d", n)
	}
	if volumeCap <= 0 {
		return 0, malformed("volume cap %d must be positive", volumeCap)
	}
	return clamp01(math.Log1p(float64(n)) / math.Log1p(float64(volumeCap))), nil
}

// PairwiseStrength переводит средний Elo бургера в [0,1] логистой вокруг среднего по популяции.
func PairwiseStrength(meanRating float64, populationMean, scale float64) (float64, error) {
	if badFloat(meanRating) || badFloat(populationMean) {
		return 0, malformed("pairwise rating is not finite")
	}
	if scale <= 0 {
		return 0, malformed("logistic scale %v must be positive", scale)
	}
	return clamp01(1 / (1 + math.Exp(-(meanRating-populationMean)/scale))), nil
}

// PopulationMean возвращает среднее Elo по всем бургерам, у которых есть данные матчей.
func PopulationMean(means map[string]float64) float64 {
	var sum float64
	var n int
	for _, m := range means {
		if badFloat(m) {
			continue
		}
		sum += m
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
