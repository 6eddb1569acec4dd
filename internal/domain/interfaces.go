package domain

import (
	"context"
	"time"
)

// BurgerRepo отдаёт статистику бургеров и сохраняет результаты публикации рейтинга.
type BurgerRepo interface {
	// LoadStatsSnapshot читает статистику всех одобренных бургеров и средние Elo
	// из одного согласованного снимка.
	LoadStatsSnapshot(ctx context.Context) (StatsSnapshot, error)
	// PublishRanking записывает все позиции одной транзакцией.
	PublishRanking(ctx context.Context, run RankingRun, entries []RankingEntry) error
	RecordRankingRun(ctx context.Context, run RankingRun) error
	LatestRankingVersion(ctx context.Context) (int64, error)
	QueryRanking(ctx context.Context, q RankingQuery) ([]Burger, error)
	GetBurger(ctx context.Context, id string) (Burger, error)
	ListRankingHistory(ctx context.Context, burgerID string, limit int) ([]RankingSnapshot, error)
}

// StatsSnapshot: входные данные одной публикации рейтинга.
type StatsSnapshot struct {
	Burgers     []Burger
	MeanRatings map[string]float64
}

// FeaturedRepo управляет тремя слотами витрины.
type FeaturedRepo interface {
	// AssignFeatured атомарно очищает прежний слот бургера и прежнего владельца слота.
	// Возвращает ID вытесненного бургера или пустую строку.
	AssignFeatured(ctx context.Context, burgerID string, slot int) (string, error)
	ClearFeatured(ctx context.Context, slot int) error
	ListFeatured(ctx context.Context) ([]Burger, error)
}

// PreferenceRepo читает Elo-рейтинги пользователей.
type PreferenceRepo interface {
	// ListRatedBurgers возвращает последние оценённые пользователем бургеры.
	ListRatedBurgers(ctx context.Context, userID string, limit int) ([]RatedBurger, error)
	// MeanRatingsByBurger возвращает средний Elo каждого бургера по всем пользователям.
	MeanRatingsByBurger(ctx context.Context) (map[string]float64, error)
}

// RoundState передаётся в ResolveFunc внутри транзакции разрешения раунда.
type RoundState struct {
	Round  MatchRound
	Winner PairwisePreference
	Loser  PairwisePreference
	// SessionCount: порядковый номер этого раунда в сессии (сутки UTC).
	SessionCount int
}

// RoundUpdate описывает новые рейтинги после раунда.
type RoundUpdate struct {
	Winner PairwisePreference
	Loser  PairwisePreference
	Points int
}

// ResolveFunc считает обновление рейтингов по состоянию раунда.
type ResolveFunc func(state RoundState) (RoundUpdate, error)

// ResolveParams идентифицирует раунд для разрешения.
type ResolveParams struct {
	RoundID  string
	UserID   string
	BurgerA  string
	BurgerB  string
	WinnerID string
	Now      time.Time
}

// MatchRoundRepo хранит журнал раундов и применяет их результаты.
type MatchRoundRepo interface {
	// CreateRound сохраняет открытый раунд и лениво создаёт предпочтения обоих бургеров
	// со стартовыми рейтингами из seeds. Прежние открытые раунды пользователя снимаются,
	// так что открытым остаётся не больше одного раунда.
	CreateRound(ctx context.Context, round MatchRound, seeds map[string]float64) error
	PairCounts(ctx context.Context, userID string) (map[string]int, error)
	LastResolvedRound(ctx context.Context, userID string) (*MatchRound, error)
	// ResolveRound выполняет разрешение раунда по его идентификатору одной транзакцией.
	// Повторное разрешение возвращает ErrAlreadyResolved; снятый, чужой или неизвестный
	// раунд возвращает ErrUnknownPair.
	ResolveRound(ctx context.Context, params ResolveParams, seedRating float64, fn ResolveFunc) (MatchRound, error)
	MatchActivity(ctx context.Context, userID string, now time.Time) (MatchActivity, error)
	ListMatchHistory(ctx context.Context, userID string, limit int) ([]MatchRound, error)
	PruneRounds(ctx context.Context, before time.Time) (int64, error)
}

// TopFiveRepo хранит топ-5 пользователя. Сохранение перезаписывает запись целиком.
type TopFiveRepo interface {
	GetTopFive(ctx context.Context, userID string) (TopFive, bool, error)
	SaveTopFive(ctx context.Context, top TopFive) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
