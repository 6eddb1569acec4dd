package match

import (
	"context"
	"testing"
	"time"

	"burgerank/internal/domain"
)

func TestStreak(t *testing.T) {
	now := time.Date(2024, 5, 20, 10, 0, 0, 0, time.UTC)
	day := func(offset int) time.Time { return utcDay(now).AddDate(0, 0, -offset) }

	cases := []struct {
		name string
		days []time.Time
		want int
	}{
		{"no activity", nil, 0},
		{"today only", []time.Time{day(0)}, 1},
		{"ends yesterday", []time.Time{day(1), day(2), day(3)}, 3},
		{"gap breaks", []time.Time{day(0), day(1), day(3)}, 2},
		{"stale", []time.Time{day(2), day(3)}, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Streak(tc.days, now); got != tc.want {
				t.Fatalf("ожидали серию %d, получили %d", tc.want, got)
			}
		})
	}
}

func TestMostWinsTieBreaksByID(t *testing.T) {
	svc, rounds := newTestService(t, "a", "b")
	resolved := fixedNow
	rounds.rounds = []domain.MatchRound{
		{ID: "1", UserID: "u1", BurgerA: "a", BurgerB: "b", WinnerID: "b", ResolvedAt: &resolved, Points: 1},
		{ID: "2", UserID: "u1", BurgerA: "a", BurgerB: "b", WinnerID: "a", ResolvedAt: &resolved, Points: 1},
	}
	stats, err := svc.GetMatchStats(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if stats.MostWinsBurger == nil || stats.MostWinsBurger.BurgerID != "a" || stats.MostWinsBurger.Wins != 1 {
		t.Fatalf("ожидали лидера a, получили %+v", stats.MostWinsBurger)
	}
}
