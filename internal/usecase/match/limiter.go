package match

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = time.Hour

// submitLimiter ограничивает частоту отправки результатов матча для каждого пользователя.
type submitLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	entries   map[string]*limiterEntry
	lastSweep time.Time
}

type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

func newSubmitLimiter(perMinute, burst int) *submitLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMinute
	}
	return &submitLimiter{
		limit:   rate.Every(time.Minute / time.Duration(perMinute)),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// reservation: взятый у лимитера токен, который можно вернуть.
type reservation struct {
	r *rate.Reservation
}

// CancelAt возвращает токен лимитеру. Безопасен для nil.
func (r *reservation) CancelAt(now time.Time) {
	if r == nil || r.r == nil {
		return
	}
	r.r.CancelAt(now)
}

// Reserve берёт токен для пользователя, если он доступен сейчас. Nil-лимитер пропускает всё.
func (l *submitLimiter) Reserve(userID string, now time.Time) (*reservation, bool) {
	if l == nil {
		return nil, true
	}
	r := l.limiterFor(userID, now).ReserveN(now, 1)
	if !r.OK() {
		return nil, false
	}
	if r.DelayFrom(now) > 0 {
		r.CancelAt(now)
		return nil, false
	}
	return &reservation{r: r}, true
}

func (l *submitLimiter) limiterFor(userID string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if now.Sub(l.lastSweep) > limiterIdleTTL {
		for id, e := range l.entries {
			if now.Sub(e.lastAccess) > limiterIdleTTL {
				delete(l.entries, id)
			}
		}
		l.lastSweep = now
	}
	entry, ok := l.entries[userID]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[userID] = entry
	}
	entry.lastAccess = now
	return entry.limiter
}
