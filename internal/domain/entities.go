package domain

import "time"

// Burger описывает бургер вместе с агрегированной статистикой отзывов и полями рейтинга.
type Burger struct {
	ID             string
	Name           string
	Type           string
	RestaurantID   string
	RestaurantName string
	CityID         string

	AverageRating        float64
	TotalReviews         int
	VerifiedReviewsCount int
	RecentReviews        int
	ReviewsByLevel       map[ReviewerLevel]int
	CreatedAt            time.Time
	LastReviewAt         *time.Time

	RankingScore    float64
	RankingPosition int
	InRanking       bool

	IsFeatured    bool
	FeaturedOrder *int
}

// Restaurant хранит минимальные сведения о ресторане для ответа матча.
type Restaurant struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PairwisePreference хранит Elo-рейтинг бургера в глазах конкретного пользователя.
type PairwisePreference struct {
	UserID      string
	BurgerID    string
	Rating      float64
	Comparisons int
	UpdatedAt   time.Time
}

// RatedBurger описывает бургер, который пользователь уже оценил.
type RatedBurger struct {
	Burger     Burger
	UserRating float64
	RatedAt    time.Time
	// Preference пустой, если бургер ещё не попадал в пул матча.
	Preference *PairwisePreference
}

// MatchRound описывает одну пару для сравнения и результат её разрешения.
type MatchRound struct {
	ID         string
	UserID     string
	BurgerA    string
	BurgerB    string
	CreatedAt  time.Time
	ResolvedAt *time.Time
	WinnerID   string

	RatingABefore float64
	RatingBBefore float64
	RatingAAfter  float64
	RatingBAfter  float64
	Points        int
}

// Resolved сообщает, разрешён ли раунд.
func (r MatchRound) Resolved() bool {
	return r.ResolvedAt != nil
}

// HasPair проверяет, что раунд относится к неупорядоченной паре (a, b).
func (r MatchRound) HasPair(a, b string) bool {
	return (r.BurgerA == a && r.BurgerB == b) || (r.BurgerA == b && r.BurgerB == a)
}

// PairKey возвращает ключ неупорядоченной пары.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// MatchActivity агрегирует журнал раундов пользователя.
type MatchActivity struct {
	Total       int
	Today       int
	TotalPoints int
	// ActiveDays содержит дни (UTC, полночь) с разрешёнными раундами по убыванию.
	ActiveDays []time.Time
	Wins       map[string]int
}

// Provenance описывает источник порядка в топ-5.
type Provenance string

const (
	// ProvenanceManual: порядок задан пользователем.
	ProvenanceManual Provenance = "manual"
	// ProvenanceAuto: порядок рассчитан по Elo и подтверждён пользователем.
	ProvenanceAuto Provenance = "auto"
)

// TopFiveSize: максимальный размер топа.
const TopFiveSize = 5

// TopFive хранит упорядоченный список любимых бургеров пользователя.
type TopFive struct {
	UserID     string
	BurgerIDs  []string
	Provenance Provenance
	UpdatedAt  time.Time
}

// SortMode задаёт режим сортировки публичного рейтинга.
type SortMode string

const (
	SortRanking  SortMode = "ranking"
	SortTrending SortMode = "trending"
	SortNew      SortMode = "new"
)

// RankingQuery описывает фильтры публичного рейтинга.
type RankingQuery struct {
	CityID     string
	BurgerType string
	SortBy     SortMode
	IncludeAll bool
	Limit      int
	Offset     int
}

// RankingEntry: результат расчёта одного бургера при публикации.
type RankingEntry struct {
	BurgerID  string
	Score     float64
	Position  int
	InRanking bool
}

// RankingSnapshot: запись истории позиций бургера.
type RankingSnapshot struct {
	BurgerID   string    `json:"burger_id"`
	Position   int       `json:"position"`
	Score      float64   `json:"score"`
	Version    int64     `json:"version"`
	RecordedAt time.Time `json:"recorded_at"`
}

// RankingRun описывает один запуск публикатора.
type RankingRun struct {
	ID         string
	Version    int64
	StartedAt  time.Time
	FinishedAt time.Time
	Burgers    int
	Status     string
	Error      string
}
