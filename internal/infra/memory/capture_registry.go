package memory

import (
	"sync"

	"moodquiz-service/internal/app"
)

// CaptureRegistry is an in-memory implementation of app.CaptureRegistry.
type CaptureRegistry struct {
	mu       sync.Mutex
	sessions map[string]app.CaptureSession
}

func NewCaptureRegistry() *CaptureRegistry {
	return &CaptureRegistry{sessions: make(map[string]app.CaptureSession)}
}

func (r *CaptureRegistry) Put(attemptID string, session app.CaptureSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[attemptID] = session
}

func (r *CaptureRegistry) Take(attemptID string) (app.CaptureSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[attemptID]
	if ok {
		delete(r.sessions, attemptID)
	}
	return session, ok
}

func (r *CaptureRegistry) Drain() []app.CaptureSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]app.CaptureSession, 0, len(r.sessions))
	for id, session := range r.sessions {
		out = append(out, session)
		delete(r.sessions, id)
	}
	return out
}

// Len returns the number of tracked sessions.
func (r *CaptureRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
