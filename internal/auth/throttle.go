package auth

import (
	"context"
	"sync"
	"time"
)

var (
	loginWindow      = 15 * time.Minute
	lockDuration     = 10 * time.Minute
	maxLoginAttempts = 5
)

// Throttle はクライアントごとのログイン失敗回数を管理します。
type Throttle interface {
	// Locked はロック中であれば残り時間を返します。
	Locked(ctx context.Context, key string) (time.Duration, error)
	// Fail は失敗を記録し、ロックまでの残り回数を返します。
	Fail(ctx context.Context, key string) (int, error)
	// Reset は記録を消去します。
	Reset(ctx context.Context, key string) error
}

// attemptState は失敗の記録です。Redis にはこの構造体を JSON で保存します。
type attemptState struct {
	Count        int       `json:"count"`
	FirstAttempt time.Time `json:"first_attempt"`
	LockedUntil  time.Time `json:"locked_until"`
}

// record は now 時点の失敗を 1 回加え、残り回数を返します。
func (s *attemptState) record(now time.Time) int {
	lockExpired := !s.LockedUntil.IsZero() && now.After(s.LockedUntil)
	if lockExpired || s.FirstAttempt.IsZero() || now.Sub(s.FirstAttempt) > loginWindow {
		*s = attemptState{FirstAttempt: now}
	}

	s.Count++
	if s.Count >= maxLoginAttempts {
		s.LockedUntil = now.Add(lockDuration)
		s.Count = maxLoginAttempts
	}

	remaining := maxLoginAttempts - s.Count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

func (s *attemptState) lockedFor(now time.Time) time.Duration {
	if now.After(s.LockedUntil) {
		return 0
	}
	return s.LockedUntil.Sub(now)
}

// MemoryThrottle はプロセス内のマップで管理する Throttle です。
type MemoryThrottle struct {
	lock     sync.Mutex
	attempts map[string]*attemptState
	now      func() time.Time
}

// NewMemoryThrottle は MemoryThrottle を作成します。
func NewMemoryThrottle() *MemoryThrottle {
	return &MemoryThrottle{
		attempts: make(map[string]*attemptState),
		now:      time.Now,
	}
}

func (m *MemoryThrottle) Locked(_ context.Context, key string) (time.Duration, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		return 0, nil
	}
	return state.lockedFor(m.now()), nil
}

func (m *MemoryThrottle) Fail(_ context.Context, key string) (int, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	state, ok := m.attempts[key]
	if !ok {
		state = &attemptState{}
		m.attempts[key] = state
	}
	return state.record(m.now()), nil
}

func (m *MemoryThrottle) Reset(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	delete(m.attempts, key)
	return nil
}
