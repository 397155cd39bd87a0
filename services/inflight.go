package services

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// InflightMonitor tracks generation turns per session. It never blocks a
// turn: overlapping turns on one session are logged so they can be traced
// back to a client that broke the one-request-at-a-time discipline.
type InflightMonitor struct {
	staleAfter time.Duration
	turns      map[string]*inflightTurn
	mutex      sync.Mutex
}

type inflightTurn struct {
	SessionID string
	Started   time.Time
	Active    int
}

func NewInflightMonitor(staleAfter time.Duration) *InflightMonitor {
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &InflightMonitor{
		staleAfter: staleAfter,
		turns:      make(map[string]*inflightTurn),
	}
}

// Begin records the start of a turn and returns the function that records
// its end, along with whether another turn on the session was still running.
func (m *InflightMonitor) Begin(sessionID string) (done func(), overlapped bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	turn, exists := m.turns[sessionID]
	if exists && turn.Active > 0 {
		overlapped = true
		slog.Warn("Overlapping generation turns on one session",
			"session_id", sessionID,
			"active", turn.Active,
			"running_for", time.Since(turn.Started))
	} else {
		turn = &inflightTurn{SessionID: sessionID, Started: time.Now()}
		m.turns[sessionID] = turn
	}
	turn.Active++

	var once sync.Once
	return func() {
		once.Do(func() { m.end(sessionID) })
	}, overlapped
}

func (m *InflightMonitor) end(sessionID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if turn, exists := m.turns[sessionID]; exists {
		turn.Active--
		if turn.Active <= 0 {
			delete(m.turns, sessionID)
		}
	}
}

// Active returns how many turns are running on a session
func (m *InflightMonitor) Active(sessionID string) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if turn, exists := m.turns[sessionID]; exists {
		return turn.Active
	}
	return 0
}

// Run periodically drops turns that outlived staleAfter, until ctx is done.
func (m *InflightMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second) // Check every 30 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.sweep(now)
		}
	}
}

func (m *InflightMonitor) sweep(now time.Time) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for sessionID, turn := range m.turns {
		if now.Sub(turn.Started) > m.staleAfter {
			slog.Warn("Dropping stale generation turn",
				"session_id", sessionID,
				"running_for", now.Sub(turn.Started))
			delete(m.turns, sessionID)
		}
	}
}
