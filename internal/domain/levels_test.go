package domain

import "testing"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want ReviewerLevel
	}{
		{name: "exact", raw: "expert", want: LevelExpert},
		{name: "mixed case", raw: " Master ", want: LevelMaster},
		{name: "unknown falls back", raw: "legend", want: LevelBeginner},
		{name: "empty", raw: "", want: LevelBeginner},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.raw); got != tt.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLevelWeights(t *testing.T) {
	w := DefaultLevelWeights()
	if w.Max() != 2.0 {
		t.Fatalf("ожидали максимальный вес 2.0, получили %v", w.Max())
	}
	if w.Weight("unknown") != 1.0 {
		t.Fatalf("неизвестный уровень должен весить как новичок")
	}
}

func TestPairKeyIsUnordered(t *testing.T) {
	if PairKey("b", "a") != PairKey("a", "b") {
		t.Fatalf("ключ пары должен не зависеть от порядка")
	}
	round := MatchRound{BurgerA: "a", BurgerB: "b"}
	if !round.HasPair("b", "a") || round.HasPair("a", "c") {
		t.Fatalf("HasPair работает неверно")
	}
}
