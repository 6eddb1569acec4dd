package ranker

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"burgerank/internal/domain"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	s, err := NewScorer(DefaultWeights(), DefaultParams(), zerolog.Nop())
	require.NoError(t, err)
	return s
}

func TestWeightsValidate(t *testing.T) {
	require.NoError(t, DefaultWeights().Validate())

	w := DefaultWeights()
	w.Quality = 0.5
	assert.Error(t, w.Validate())

	w = DefaultWeights()
	w.Quality, w.Pairwise = 0.43, -0.01
	assert.Error(t, w.Validate())

	_, err := NewScorer(w, DefaultParams(), zerolog.Nop())
	assert.Error(t, err)
}

func TestScoreIsBounded(t *testing.T) {
	s := newTestScorer(t)
	last := testNow
	cases := []domain.Burger{
		{ID: "empty", CreatedAt: testNow},
		{ID: "perfect", AverageRating: 5, TotalReviews: 1000, VerifiedReviewsCount: 1000,
			ReviewsByLevel: map[domain.ReviewerLevel]int{domain.LevelMaster: 1000}, CreatedAt: testNow, LastReviewAt: &last},
		{ID: "broken", AverageRating: math.NaN(), TotalReviews: -3, VerifiedReviewsCount: 9, CreatedAt: testNow},
	}
	for _, b := range cases {
		got := s.Score(b, PairwiseInput{Mean: 2400, Has: true, PopulationMean: 1500}, testNow)
		assert.GreaterOrEqual(t, got.Score, 0.0, b.ID)
		assert.LessOrEqual(t, got.Score, 1.0, b.ID)
	}
}

func TestMalformedFactorFallsBackToZero(t *testing.T) {
	s := newTestScorer(t)
	b := domain.Burger{ID: "x", AverageRating: 4, TotalReviews: 2, VerifiedReviewsCount: 5, CreatedAt: testNow}
	got := s.Score(b, PairwiseInput{}, testNow)
	assert.Zero(t, got.Verification)
	assert.Greater(t, got.Quality, 0.0)
}

func TestUnratedNeverOutranksRated(t *testing.T) {
	s := newTestScorer(t)
	unrated := domain.Burger{ID: "a-new", CreatedAt: testNow}
	rated := domain.Burger{
		ID: "z-old", AverageRating: 1, TotalReviews: 1,
		ReviewsByLevel: map[domain.ReviewerLevel]int{domain.LevelBeginner: 1},
		CreatedAt:      testNow.Add(-5 * 365 * 24 * time.Hour),
	}
	means := map[string]float64{"a-new": 2000, "z-old": 1000}

	ranked := s.Rank([]domain.Burger{unrated, rated}, means, testNow)
	require.Len(t, ranked, 2)
	assert.Equal(t, "z-old", ranked[0].Burger.ID)
	assert.Equal(t, 1, ranked[0].Position)
	assert.Equal(t, 2, ranked[1].Position)
	assert.LessOrEqual(t, ranked[1].Breakdown.Score, 0.05)
}

func TestRankIsDeterministic(t *testing.T) {
	s := newTestScorer(t)
	burgers := []domain.Burger{
		{ID: "c", AverageRating: 4.5, TotalReviews: 10, VerifiedReviewsCount: 5, CreatedAt: testNow},
		{ID: "a", AverageRating: 4.5, TotalReviews: 10, VerifiedReviewsCount: 5, CreatedAt: testNow},
		{ID: "b", AverageRating: 3.0, TotalReviews: 3, CreatedAt: testNow},
	}
	first := s.Rank(burgers, nil, testNow)
	reversed := []domain.Burger{burgers[2], burgers[1], burgers[0]}
	second := s.Rank(reversed, nil, testNow)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].Burger.ID, second[i].Burger.ID)
		assert.Equal(t, first[i].Breakdown.Score, second[i].Breakdown.Score)
	}
	assert.Equal(t, "a", first[0].Burger.ID)
}
