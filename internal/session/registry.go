package session

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCapacityExceeded rejects session creation at the concurrency cap.
// Admission control is a hard bound, not a degradation strategy.
var ErrCapacityExceeded = errors.New("session capacity exceeded")

// CloseHook runs exactly once per session on teardown, whichever path
// triggers it. Wiring uses it to release the upstream connection and track
// usage.
type CloseHook func(s *Session, reason string)

// Registry is the process-wide table of active sessions. The map has its own
// lock; individual sessions are otherwise privately owned by their
// orchestrator goroutine.
type Registry struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	capacity          int
	inactivityTimeout time.Duration
	onClose           CloseHook
}

func NewRegistry(capacity int, inactivityTimeout time.Duration) *Registry {
	if capacity <= 0 {
		capacity = 20
	}
	if inactivityTimeout <= 0 {
		inactivityTimeout = 10 * time.Minute
	}
	return &Registry{
		sessions:          make(map[string]*Session),
		capacity:          capacity,
		inactivityTimeout: inactivityTimeout,
	}
}

func (r *Registry) SetCloseHook(hook CloseHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onClose = hook
}

// Create admits a new session or fails with ErrCapacityExceeded without
// mutating the registry.
func (r *Registry) Create(p Params) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sessions) >= r.capacity {
		return nil, ErrCapacityExceeded
	}
	s := newSession(p)
	r.sessions[s.ID] = s
	return s, nil
}

func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Close removes the session and runs the close hook. Idempotent: concurrent
// or repeated closes (explicit close racing the sweep) run the hook once.
func (r *Registry) Close(id, reason string) bool {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	hook := r.onClose
	r.mu.Unlock()

	if !ok {
		return false
	}

	s.runTeardown(func() {
		s.setCloseReason(reason)
		s.SetStatus(StatusTerminated)
		s.SetConnected(false)
		if s.Upstream != nil {
			_ = s.Upstream.Close()
		}
		if hook != nil {
			hook(s, reason)
		}
	})
	return true
}

// Sweep closes every session idle past the inactivity timeout and returns
// how many were closed.
func (r *Registry) Sweep() int {
	now := time.Now().UTC()

	r.mu.RLock()
	var expired []string
	for id, s := range r.sessions {
		if s.IdleSince(now) >= r.inactivityTimeout {
			expired = append(expired, id)
		}
	}
	r.mu.RUnlock()

	closed := 0
	for _, id := range expired {
		if r.Close(id, "inactivity_timeout") {
			closed++
		}
	}
	return closed
}

// StartSweeper runs Sweep on a fixed interval until ctx is done.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Sweep()
			}
		}
	}()
}

func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) Capacity() int {
	return r.capacity
}

// StatusEntry is an anonymized view of one active session: id prefix only,
// never full identifiers.
type StatusEntry struct {
	IDPrefix        string `json:"id_prefix"`
	DurationSeconds int64  `json:"duration_seconds"`
	Connected       bool   `json:"connected"`
}

type StatusReport struct {
	Capacity    int           `json:"capacity"`
	Active      int           `json:"active"`
	Utilization float64       `json:"utilization_pct"`
	Sessions    []StatusEntry `json:"sessions"`
}

func (r *Registry) StatusReport() StatusReport {
	now := time.Now().UTC()

	r.mu.RLock()
	defer r.mu.RUnlock()

	report := StatusReport{
		Capacity: r.capacity,
		Active:   len(r.sessions),
		Sessions: make([]StatusEntry, 0, len(r.sessions)),
	}
	if r.capacity > 0 {
		report.Utilization = float64(len(r.sessions)) / float64(r.capacity) * 100
	}
	for _, s := range r.sessions {
		prefix := s.ID
		if len(prefix) > 8 {
			prefix = prefix[:8]
		}
		report.Sessions = append(report.Sessions, StatusEntry{
			IDPrefix:        prefix,
			DurationSeconds: int64(now.Sub(s.StartedAt).Seconds()),
			Connected:       s.Connected(),
		})
	}
	return report
}
