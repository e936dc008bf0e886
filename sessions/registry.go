package sessions

import (
	"errors"
	"sync"
	"time"

	"posture-service/models"

	"github.com/apex/log"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is not in the registry.
var ErrSessionNotFound = errors.New("session not found")

const (
	defaultAnalysisInterval = 30 // seconds

	// Eviction bounds: stopped sessions linger for an hour so late stop
	// responses stay queryable; active sessions abandoned for a day are
	// presumed leaked by a client that never called stop.
	stoppedTTL = 1 * time.Hour
	activeTTL  = 24 * time.Hour
)

type entry struct {
	session  models.Session
	lastSeen time.Time
}

// Registry tracks active measurement sessions in memory. Sessions do not
// survive a restart. All methods are safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*entry
	now      func() time.Time
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		now:      time.Now,
	}
}

// Start opens a session. An empty sessionID gets a generated one. Starting
// an existing id overwrites it, last writer wins.
func (r *Registry) Start(sessionID string, userID int64, deviceInfo string, intervalSeconds int) models.Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if intervalSeconds <= 0 {
		intervalSeconds = defaultAnalysisInterval
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	session := models.Session{
		SessionID:               sessionID,
		UserID:                  userID,
		StartTime:               now,
		Status:                  models.SessionActive,
		DeviceInfo:              deviceInfo,
		AnalysisIntervalSeconds: intervalSeconds,
	}
	r.sessions[sessionID] = &entry{session: session, lastSeen: now}

	return session
}

// Stop closes a session and freezes its duration. A second stop on the same
// id is a no-op returning the original result.
func (r *Registry) Stop(sessionID string) (models.StopSessionResponse, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return models.StopSessionResponse{}, ErrSessionNotFound
	}

	if e.session.Status != models.SessionStopped {
		now := r.now()
		e.session.EndTime = &now
		e.session.Status = models.SessionStopped
		e.lastSeen = now
	}

	return models.StopSessionResponse{
		SessionID:       sessionID,
		DurationSeconds: int64(e.session.EndTime.Sub(e.session.StartTime).Seconds()),
		TotalRecords:    e.session.RecordCount,
	}, nil
}

// RecordCreated increments the record count of an active session. Unknown
// or stopped sessions are ignored: records may legitimately arrive with a
// client-generated session id that was never started here.
func (r *Registry) RecordCreated(sessionID string) {
	if sessionID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok || e.session.Status != models.SessionActive {
		return
	}
	e.session.RecordCount++
	e.lastSeen = r.now()
}

// ListActive returns all sessions currently in the active state.
func (r *Registry) ListActive() []models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := []models.Session{}
	for _, e := range r.sessions {
		if e.session.Status == models.SessionActive {
			out = append(out, e.session)
		}
	}
	return out
}

// Get returns a session by id.
func (r *Registry) Get(sessionID string) (models.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.sessions[sessionID]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return e.session, nil
}

// Sweep evicts stopped sessions past their retention and active sessions
// idle beyond the abandonment TTL. Returns the number evicted.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	evicted := 0
	for id, e := range r.sessions {
		var ttl time.Duration
		if e.session.Status == models.SessionStopped {
			ttl = stoppedTTL
		} else {
			ttl = activeTTL
		}
		if now.Sub(e.lastSeen) > ttl {
			delete(r.sessions, id)
			evicted++
		}
	}
	return evicted
}

// RunSweeper sweeps the registry on the given interval until stop is closed.
func (r *Registry) RunSweeper(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				log.Infof("Evicted %d stale posture sessions", n)
			}
		case <-stop:
			return
		}
	}
}
