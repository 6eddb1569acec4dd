package log

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestNewLoggerLevel(t *testing.T) {
	if got := NewLogger("dev", "api").GetLevel(); got != zerolog.DebugLevel {
		t.Fatalf("ожидали debug в dev, получили %s", got)
	}
	if got := NewLogger("prod", "api").GetLevel(); got != zerolog.InfoLevel {
		t.Fatalf("ожидали info вне dev, получили %s", got)
	}
}
