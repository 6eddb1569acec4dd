package match

import (
	"context"
	"fmt"
	"time"
)

// BurgerWins: бургер с наибольшим числом побед.
type BurgerWins struct {
	BurgerID string `json:"burger_id"`
	Wins     int    `json:"wins"`
}

// Stats: сводка активности пользователя в матче.
type Stats struct {
	TotalMatches   int         `json:"total_matches"`
	TodayMatches   int         `json:"today_matches"`
	CurrentStreak  int         `json:"current_streak"`
	MostWinsBurger *BurgerWins `json:"most_wins_burger"`
	TotalPoints    int         `json:"total_points"`
}

// GetMatchStats собирает статистику по журналу раундов.
func (s *Service) GetMatchStats(ctx context.Context, userID string) (Stats, error) {
	now := s.now()
	activity, err := s.rounds.MatchActivity(ctx, userID, now)
	if err != nil {
		return Stats{}, fmt.Errorf("активность матча: %w", err)
	}
	stats := Stats{
		TotalMatches:  activity.Total,
		TodayMatches:  activity.Today,
		TotalPoints:   activity.TotalPoints,
		CurrentStreak: Streak(activity.ActiveDays, now),
	}
	for id, wins := range activity.Wins {
		if wins <= 0 {
			continue
		}
		if stats.MostWinsBurger == nil || wins > stats.MostWinsBurger.Wins ||
			(wins == stats.MostWinsBurger.Wins && id < stats.MostWinsBurger.BurgerID) {
			stats.MostWinsBurger = &BurgerWins{BurgerID: id, Wins: wins}
		}
	}
	return stats, nil
}

func utcDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Streak считает подряд идущие дни с раундами, заканчивающиеся сегодня или вчера.
// days ожидаются по убыванию.
func Streak(days []time.Time, now time.Time) int {
	if len(days) == 0 {
		return 0
	}
	expected := utcDay(now)
	if first := utcDay(days[0]); !first.Equal(expected) {
		expected = expected.AddDate(0, 0, -1)
		if !first.Equal(expected) {
			return 0
		}
	}
	streak := 0
	for _, d := range days {
		day := utcDay(d)
		if day.Equal(expected) {
			streak++
			expected = expected.AddDate(0, 0, -1)
			continue
		}
		if day.After(expected) {
			continue
		}
		break
	}
	return streak
}
