package ranker

import (
	"math"
	"sort"
	"strings"
)

// ScoreEpsilon: баллы, отличающиеся меньше чем на эту величину, считаются равными.
const ScoreEpsilon = 1e-6

// scoreBucket квантует балл, чтобы сравнение с допуском оставалось транзитивным.
func scoreBucket(score float64) int64 {
	return int64(math.Round(score / ScoreEpsilon))
}

// Compare возвращает -1, если a стоит в рейтинге выше b, и 1 в обратном случае.
// Ноль возможен только для одного и того же бургера.
func Compare(a, b Ranked) int {
	if ba, bb := scoreBucket(a.Breakdown.Score), scoreBucket(b.Breakdown.Score); ba != bb {
		if ba > bb {
			return -1
		}
		return 1
	}
	if a.Burger.VerifiedReviewsCount != b.Burger.VerifiedReviewsCount {
		if a.Burger.VerifiedReviewsCount > b.Burger.VerifiedReviewsCount {
			return -1
		}
		return 1
	}
	if !a.Burger.CreatedAt.Equal(b.Burger.CreatedAt) {
		if a.Burger.CreatedAt.Before(b.Burger.CreatedAt) {
			return -1
		}
		return 1
	}
	return strings.Compare(a.Burger.ID, b.Burger.ID)
}

// Sort упорядочивает бургеры от лучшего к худшему.
func Sort(items []Ranked) {
	sort.Slice(items, func(i, j int) bool {
		return Compare(items[i], items[j]) < 0
	})
}
