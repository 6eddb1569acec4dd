package ranker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpectedScore(t *testing.T) {
	t.Run("equal ratings", func(t *testing.T) {
		assert.InDelta(t, 0.5, ExpectedScore(1500, 1500), 1e-12)
	})
	t.Run("symmetric", func(t *testing.T) {
		a, b := ExpectedScore(1512, 1600), ExpectedScore(1600, 1512)
		assert.InDelta(t, 1.0, a+b, 1e-12)
	})
	t.Run("stronger side favoured", func(t *testing.T) {
		assert.Greater(t, ExpectedScore(1700, 1500), 0.5)
	})
}

func TestApplyScenario(t *testing.T) {
	engine, err := NewElo(DefaultKFactor, DefaultSeedRating)
	require.NoError(t, err)

	a, b, delta := engine.Apply(1500, 1500)
	assert.InDelta(t, 1512.0, a, 1e-9)
	assert.InDelta(t, 1488.0, b, 1e-9)
	assert.InDelta(t, 12.0, delta, 1e-9)

	c, a2, _ := engine.Apply(1600, a)
	assert.InDelta(t, 1502.98, a2, 0.01)
	assert.InDelta(t, 1609.02, c, 0.01)
}

func TestApplyIsZeroSum(t *testing.T) {
	engine, err := NewElo(DefaultKFactor, DefaultSeedRating)
	require.NoError(t, err)

	pairs := [][2]float64{{1500, 1500}, {1200, 1800}, {1800, 1200}, {1499.5, 1633.25}, {900, 2400}}
	for _, p := range pairs {
		w, l, delta := engine.Apply(p[0], p[1])
		assert.InDelta(t, p[0]+p[1], w+l, 1e-9, "сумма рейтингов изменилась для %v", p)
		assert.Greater(t, delta, 0.0)
		assert.LessOrEqual(t, delta, DefaultKFactor)
	}
}

func TestNewEloRejectsInvalidParams(t *testing.T) {
	_, err := NewElo(0, 1500)
	assert.Error(t, err)
	_, err = NewElo(24, math.NaN())
	assert.Error(t, err)
}

func TestWinProbabilityAndTier(t *testing.T) {
	assert.Equal(t, 50, WinProbability(1500, 1500))
	assert.Equal(t, 64, WinProbability(1600, 1500))
	assert.Equal(t, "novice", RatingTier(950))
	assert.Equal(t, "advanced", RatingTier(1500))
	assert.Equal(t, "expert", RatingTier(1600))
	assert.Equal(t, "master", RatingTier(1850))
}

func TestSeedFromUserRating(t *testing.T) {
	engine, err := NewElo(DefaultKFactor, DefaultSeedRating)
	require.NoError(t, err)
	assert.Equal(t, DefaultSeedRating, engine.Seed(5), "без опции стартовый рейтинг фиксирован")

	engine.SeedFromRating = true
	assert.InDelta(t, 1200.0, engine.Seed(0), 1e-9)
	assert.InDelta(t, 1520.0, engine.Seed(4), 1e-9)
	assert.InDelta(t, 1600.0, engine.Seed(5), 1e-9)
	assert.InDelta(t, 1600.0, engine.Seed(7), 1e-9, "оценка выше пяти звёзд обрезается")
	assert.Equal(t, DefaultSeedRating, engine.Seed(math.NaN()))
}
