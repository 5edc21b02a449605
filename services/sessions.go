package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrNoUser = errors.New("no authenticated user")

type session struct {
	identity *SessionIdentity
	engine   *TeamEngine
	lastSeen time.Time
}

// Sessions holds one running TeamEngine per signed-in user.
type Sessions struct {
	store    TeamStore
	profiles ProfileStore
	catalog  Catalog
	logger   *zap.Logger
	metrics  *Metrics
	opts     []EngineOption
	clock    clockwork.Clock

	mu     sync.Mutex
	live   map[string]*session
	closed bool
}

func NewSessions(store TeamStore, profiles ProfileStore, catalog Catalog, logger *zap.Logger, metrics *Metrics, opts ...EngineOption) *Sessions {
	return &Sessions{
		store:    store,
		profiles: profiles,
		catalog:  catalog,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		clock:    clockwork.NewRealClock(),
		live:     make(map[string]*session),
	}
}

// Get returns the user's engine, building and starting it on first use. It
// returns once the engine's first roster load has finished.
func (s *Sessions) Get(ctx context.Context, claims UserClaims) (*TeamEngine, error) {
	if claims.UserID == "" {
		return nil, ErrNoUser
	}
	engine, err := s.getOrStart(claims)
	if err != nil {
		return nil, err
	}
	if err := engine.WaitLoaded(ctx); err != nil {
		return nil, fmt.Errorf("wait for %s roster: %w", claims.UserID, err)
	}
	return engine, nil
}

func (s *Sessions) getOrStart(claims UserClaims) (*TeamEngine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, errors.New("session registry closed")
	}
	if sess, ok := s.live[claims.UserID]; ok {
		sess.lastSeen = s.clock.Now()
		return sess.engine, nil
	}

	identity := NewSessionIdentity(claims, s.profiles)
	opts := append([]EngineOption{
		WithLogger(s.logger.With(zap.String("user_id", claims.UserID))),
		WithMetrics(s.metrics),
	}, s.opts...)
	engine := NewTeamEngine(s.store, s.catalog, identity, opts...)
	if err := engine.Start(); err != nil {
		return nil, fmt.Errorf("start engine for %s: %w", claims.UserID, err)
	}
	s.live[claims.UserID] = &session{identity: identity, engine: engine, lastSeen: s.clock.Now()}
	s.metrics.setSessions(len(s.live))
	s.logger.Info("👤 [Sessions] session started", zap.String("user_id", claims.UserID))
	return engine, nil
}

// Touch marks the user's session as active without returning it.
func (s *Sessions) Touch(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.live[userID]; ok {
		sess.lastSeen = s.clock.Now()
	}
}

// EvictIdle ends every session not seen for longer than maxIdle and returns
// how many were ended.
func (s *Sessions) EvictIdle(maxIdle time.Duration) int {
	cutoff := s.clock.Now().Add(-maxIdle)
	s.mu.Lock()
	var idle []*session
	for id, sess := range s.live {
		if sess.lastSeen.Before(cutoff) {
			idle = append(idle, sess)
			delete(s.live, id)
		}
	}
	s.metrics.setSessions(len(s.live))
	s.mu.Unlock()

	for _, sess := range idle {
		sess.identity.SignOut()
		sess.engine.Shutdown()
	}
	if len(idle) > 0 {
		s.logger.Info("[Sessions] evicted idle sessions", zap.Int("count", len(idle)), zap.Duration("max_idle", maxIdle))
	}
	return len(idle)
}

// End signs the user out and stops their engine. It reports whether a session existed.
func (s *Sessions) End(userID string) bool {
	s.mu.Lock()
	sess, ok := s.live[userID]
	delete(s.live, userID)
	s.metrics.setSessions(len(s.live))
	s.mu.Unlock()
	if !ok {
		return false
	}
	sess.identity.SignOut()
	sess.engine.Shutdown()
	s.logger.Info("[Sessions] session ended", zap.String("user_id", userID))
	return true
}

// Each calls fn for every live engine. fn runs outside the registry lock.
func (s *Sessions) Each(fn func(userID string, engine *TeamEngine)) {
	s.mu.Lock()
	snapshot := make(map[string]*TeamEngine, len(s.live))
	for id, sess := range s.live {
		snapshot[id] = sess.engine
	}
	s.mu.Unlock()
	for id, engine := range snapshot {
		fn(id, engine)
	}
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.live)
}

// Close ends every session.
func (s *Sessions) Close() {
	s.mu.Lock()
	s.closed = true
	live := s.live
	s.live = make(map[string]*session)
	s.metrics.setSessions(0)
	s.mu.Unlock()
	for _, sess := range live {
		sess.identity.SignOut()
		sess.engine.Shutdown()
	}
}
