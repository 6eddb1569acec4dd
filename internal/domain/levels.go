package domain

import "strings"

// ReviewerLevel описывает уровень автора отзыва.
type ReviewerLevel string

const (
	LevelBeginner     ReviewerLevel = "beginner"
	LevelIntermediate ReviewerLevel = "intermediate"
	LevelExpert       ReviewerLevel = "expert"
	LevelMaster       ReviewerLevel = "master"
)

// LevelWeights задаёт вес отзыва в зависимости от уровня автора.
type LevelWeights map[ReviewerLevel]float64

// DefaultLevelWeights возвращает веса по умолчанию: мастер весит вдвое больше новичка.
func DefaultLevelWeights() LevelWeights {
	return LevelWeights{
		LevelBeginner:     1.0,
		LevelIntermediate: 1.33,
		LevelExpert:       1.67,
		LevelMaster:       2.0,
	}
}

// ParseLevel приводит строку к уровню. Неизвестные значения считаются новичком.
func ParseLevel(raw string) ReviewerLevel {
	level := ReviewerLevel(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := DefaultLevelWeights()[level]; ok {
		return level
	}
	return LevelBeginner
}

// Weight возвращает вес уровня. Для неизвестного уровня используется вес новичка.
func (w LevelWeights) Weight(level ReviewerLevel) float64 {
	if weight, ok := w[level]; ok {
		return weight
	}
	return w[LevelBeginner]
}

// Max возвращает максимальный достижимый вес.
func (w LevelWeights) Max() float64 {
	var maxWeight float64
	for _, weight := range w {
		if weight > maxWeight {
			maxWeight = weight
		}
	}
	return maxWeight
}
