package ranker

import (
	"fmt"
	"math"
)

const (
	// DefaultKFactor: фиксированный коэффициент K для всех раундов.
	DefaultKFactor = 24.0
	// DefaultSeedRating: стартовый рейтинг бургера в пуле пользователя.
	DefaultSeedRating = 1500.0

	// Стартовый рейтинг по оценке пользователя: 0 звёзд даёт 1200, 5 звёзд дают 1600.
	starSeedBase  = 1200.0
	starSeedRange = 400.0
)

// Elo применяет классическое обновление Эло к паре рейтингов.
type Elo struct {
	KFactor    float64
	SeedRating float64
	// SeedFromRating включает стартовый рейтинг по оценке пользователя вместо SeedRating.
	SeedFromRating bool
}

// NewElo проверяет параметры и создаёт движок.
func NewElo(kFactor, seed float64) (*Elo, error) {
	if kFactor <= 0 || badFloat(kFactor) {
		return nil, fmt.Errorf("ranker: k-factor must be positive, got %v", kFactor)
	}
	if seed <= 0 || badFloat(seed) {
		return nil, fmt.Errorf("ranker: seed rating must be positive, got %v", seed)
	}
	return &Elo{KFactor: kFactor, SeedRating: seed}, nil
}

// InitialRating переводит оценку пользователя (0..5 звёзд) в стартовый рейтинг.
func InitialRating(stars float64) float64 {
	return starSeedBase + clamp(stars, 0, maxStars)/maxStars*starSeedRange
}

// Seed возвращает стартовый рейтинг бургера, который пользователь оценил в stars звёзд.
func (e *Elo) Seed(stars float64) float64 {
	if e.SeedFromRating && !badFloat(stars) {
		return InitialRating(stars)
	}
	return e.SeedRating
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ExpectedScore возвращает ожидаемый результат игрока с рейтингом a против b.
func ExpectedScore(a, b float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/400))
}

// Apply возвращает новые рейтинги победителя и проигравшего.
// Проигравший теряет ровно столько, сколько получил победитель.
func (e *Elo) Apply(winner, loser float64) (newWinner, newLoser, delta float64) {
	delta = e.KFactor * (1 - ExpectedScore(winner, loser))
	return winner + delta, loser - delta, delta
}

// WinProbability возвращает шанс победы a над b в процентах.
func WinProbability(a, b float64) int {
	return int(math.Round(ExpectedScore(a, b) * 100))
}

// RatingTier возвращает текстовую ступень для рейтинга.
func RatingTier(rating float64) string {
	switch {
	case rating >= 1800:
		return "master"
	case rating >= 1600:
		return "expert"
	case rating >= 1400:
		return "advanced"
	case rating >= 1200:
		return "intermediate"
	case rating >= 1000:
		return "beginner"
	default:
		return "novice"
	}
}
