// Package session keeps one capture workflow per front-end session.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/face-match/internal/capture"
	"github.com/example/face-match/internal/matcher"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 30 * time.Minute

// Registry creates and tracks controllers.
type Registry struct {
	client   matcher.Client
	observer capture.Observer
	base     *zap.Logger
	logger   *zap.Logger
	ttl      time.Duration
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*capture.Controller
}

// NewRegistry returns an empty registry. observer may be nil.
func NewRegistry(client matcher.Client, observer capture.Observer, ttl time.Duration, logger *zap.Logger) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		client:   client,
		observer: observer,
		base:     logger,
		logger:   logger.Named("session_registry"),
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*capture.Controller),
	}
}

// Create starts a new workflow in Idle.
func (r *Registry) Create() *capture.Controller {
	id := uuid.NewString()
	opts := []capture.Option{capture.WithClock(r.now)}
	if r.observer != nil {
		opts = append(opts, capture.WithObserver(r.observer))
	}
	c := capture.New(id, r.client, r.base, opts...)

	r.mu.Lock()
	r.sessions[id] = c
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("session_id", id))
	return c
}

// Get returns the controller for id.
func (r *Registry) Get(id string) (*capture.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// Delete abandons the session. Any in-flight submission becomes stale.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	c, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	c.Close()
	r.logger.Info("session deleted", zap.String("session_id", id))
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep abandons sessions idle for longer than the TTL and returns how many
// were removed.
func (r *Registry) Sweep(now time.Time) int {
	var expired []*capture.Controller

	r.mu.Lock()
	for id, c := range r.sessions {
		if now.Sub(c.LastActivity()) > r.ttl {
			expired = append(expired, c)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, c := range expired {
		c.Close()
	}
	if len(expired) > 0 {
		r.logger.Info("expired sessions swept", zap.Int("count", len(expired)))
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done, then closes all sessions.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}

func (r *Registry) closeAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*capture.Controller)
	r.mu.Unlock()

	for _, c := range sessions {
		c.Close()
	}
}
