package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"pokecare/models"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// SyncState tells whether a roster entry came from the store or from an
// optimistic patch that is still waiting for the next reload.
type SyncState string

const (
	SyncConfirmed SyncState = "confirmed"
	SyncPending   SyncState = "pending"
)

// MemberSnapshot is a read-only view of one roster entry.
type MemberSnapshot struct {
	models.TeamMember
	State SyncState `json:"sync_state"`
}

// NeedsLevel buckets the mean of a member's vitals.
type NeedsLevel string

const (
	NeedsCritical  NeedsLevel = "critical"
	NeedsLow       NeedsLevel = "low"
	NeedsMedium    NeedsLevel = "medium"
	NeedsGood      NeedsLevel = "good"
	NeedsExcellent NeedsLevel = "excellent"
)

// ReleaseResult is returned to the caller for display; Error is set on failure.
type ReleaseResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// TeamEngine owns one user's in-memory team: it mirrors the store, runs the
// decay job and evaluates evolution rules. Locks are never held across store
// or catalog calls.
type TeamEngine struct {
	store    TeamStore
	catalog  Catalog
	identity Identity
	rules    Rules
	clock    clockwork.Clock
	logger   *zap.Logger
	metrics  *Metrics
	bus      *RosterBus

	mu        sync.RWMutex
	roster    []MemberSnapshot
	lastDecay map[string]time.Time

	adoptMu sync.Mutex

	loaded     chan struct{}
	loadedOnce sync.Once

	bgMu      sync.Mutex
	stopped   bool
	scheduler gocron.Scheduler
	bgCtx     context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	stopOnce  sync.Once
}

type EngineOption func(*TeamEngine)

func WithClock(c clockwork.Clock) EngineOption {
	return func(e *TeamEngine) { e.clock = c }
}

func WithLogger(l *zap.Logger) EngineOption {
	return func(e *TeamEngine) { e.logger = l }
}

func WithRules(r Rules) EngineOption {
	return func(e *TeamEngine) { e.rules = r }
}

func WithMetrics(m *Metrics) EngineOption {
	return func(e *TeamEngine) { e.metrics = m }
}

func NewTeamEngine(store TeamStore, catalog Catalog, identity Identity, opts ...EngineOption) *TeamEngine {
	e := &TeamEngine{
		store:     store,
		catalog:   catalog,
		identity:  identity,
		rules:     DefaultRules(),
		clock:     clockwork.NewRealClock(),
		logger:    zap.NewNop(),
		bus:       NewRosterBus(),
		lastDecay: make(map[string]time.Time),
		loaded:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.bgCtx, e.cancel = context.WithCancel(context.Background())
	return e
}

// Start kicks off the initial roster load and schedules the decay job.
func (e *TeamEngine) Start() error {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if e.stopped {
		return errors.New("team engine already shut down")
	}
	if e.scheduler != nil {
		return nil
	}

	s, err := gocron.NewScheduler(gocron.WithClock(e.clock))
	if err != nil {
		return fmt.Errorf("create decay scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(e.rules.DecayInterval),
		gocron.NewTask(func() { e.decayTick(e.bgCtx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return fmt.Errorf("schedule decay job: %w", err)
	}
	e.scheduler = s

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.LoadRoster(e.bgCtx)
	}()
	s.Start()
	return nil
}

// Shutdown stops the decay job, waits for background work and drops all listeners.
func (e *TeamEngine) Shutdown() {
	e.stopOnce.Do(func() {
		e.bgMu.Lock()
		e.stopped = true
		s := e.scheduler
		e.bgMu.Unlock()

		if s != nil {
			if err := s.Shutdown(); err != nil {
				e.logger.Warn("[Team] decay scheduler shutdown failed", zap.Error(err))
			}
		}
		e.cancel()
		e.wg.Wait()
		e.markLoaded()
		e.bus.Close()
	})
}

// goBackground runs fn on the engine's context unless the engine is shutting down.
func (e *TeamEngine) goBackground(fn func(ctx context.Context)) {
	e.bgMu.Lock()
	defer e.bgMu.Unlock()
	if e.stopped {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn(e.bgCtx)
	}()
}

func (e *TeamEngine) markLoaded() {
	e.loadedOnce.Do(func() { close(e.loaded) })
}

// WaitLoaded blocks until the first roster load has finished or ctx ends.
func (e *TeamEngine) WaitLoaded(ctx context.Context) error {
	select {
	case <-e.loaded:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn for roster events until unsubscribe is called or ctx ends.
func (e *TeamEngine) Subscribe(ctx context.Context, fn Listener) (unsubscribe func()) {
	return e.bus.Subscribe(ctx, fn)
}

// Roster returns a copy of the current team, oldest adoption first.
func (e *TeamEngine) Roster() []MemberSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]MemberSnapshot, len(e.roster))
	copy(out, e.roster)
	return out
}

func (e *TeamEngine) Member(memberID string) (MemberSnapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, m := range e.roster {
		if m.ID == memberID {
			return m, true
		}
	}
	return MemberSnapshot{}, false
}

// LoadRoster replaces the roster with the store's rows for the current user.
// It never fails: problems are logged and the previous snapshot is kept,
// except for a missing table, which empties the roster.
func (e *TeamEngine) LoadRoster(ctx context.Context) {
	e.reload(ctx, EventLoaded, "")
}

func (e *TeamEngine) reload(ctx context.Context, kind RosterEventKind, memberID string) {
	defer e.markLoaded()
	owner, ok := e.identity.CurrentUser()
	if !ok {
		if e.replaceRoster(nil) {
			e.publish(kind, memberID)
		}
		return
	}

	exists, err := e.store.TableExists(ctx)
	if err != nil {
		e.logger.Error("[Team] table check failed", zap.String("user_id", owner), zap.Error(err))
		return
	}
	if !exists {
		e.logger.Warn("[Team] database tables not created yet, team will be empty", zap.String("user_id", owner))
		e.replaceRoster(nil)
		e.publish(kind, memberID)
		return
	}

	rows, err := e.store.ListByOwner(ctx, owner)
	if err != nil {
		e.logger.Error("[Team] failed to load team", zap.String("user_id", owner), zap.Error(err))
		return
	}
	e.replaceRoster(rows)
	e.publish(kind, memberID)
}

// replaceRoster swaps the roster wholesale and keeps the decay clock in step
// with it. It reports whether the previous roster was non-empty.
func (e *TeamEngine) replaceRoster(rows []models.TeamMember) bool {
	now := e.clock.Now()
	next := make([]MemberSnapshot, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		next = append(next, MemberSnapshot{TeamMember: row, State: SyncConfirmed})
		seen[row.ID] = struct{}{}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	hadMembers := len(e.roster) > 0
	e.roster = next
	for id := range seen {
		if _, ok := e.lastDecay[id]; !ok {
			e.lastDecay[id] = now
		}
	}
	for id := range e.lastDecay {
		if _, ok := seen[id]; !ok {
			delete(e.lastDecay, id)
		}
	}
	return hadMembers
}

func (e *TeamEngine) publish(kind RosterEventKind, memberID string) {
	e.bus.Publish(RosterEvent{
		Kind:     kind,
		MemberID: memberID,
		Roster:   e.Roster(),
		At:       e.clock.Now(),
	})
}

func (e *TeamEngine) tableReady(ctx context.Context, op string) bool {
	exists, err := e.store.TableExists(ctx)
	if err != nil {
		e.logger.Error("[Team] table check failed", zap.String("op", op), zap.Error(err))
		return false
	}
	if !exists {
		e.logger.Error("[Team] database tables not created yet", zap.String("op", op))
		return false
	}
	return true
}

// writeThrough persists patch, then marks the member pending with the patch
// applied so listeners see the change before the authoritative reload.
func (e *TeamEngine) writeThrough(ctx context.Context, owner, memberID string, patch models.MemberPatch, kind RosterEventKind) error {
	rows, err := e.store.Update(ctx, memberID, owner, patch)
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotOwned
	}

	now := e.clock.Now()
	e.mu.Lock()
	for i := range e.roster {
		if e.roster[i].ID == memberID {
			m := e.roster[i]
			patch.Apply(&m.TeamMember, now)
			m.State = SyncPending
			e.roster[i] = m
			break
		}
	}
	e.mu.Unlock()

	e.publish(kind, memberID)
	return nil
}

func (e *TeamEngine) touchDecay(memberID string) {
	now := e.clock.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastDecay[memberID] = now
}

// Adopt adds species to the team. It returns false, with no side effects,
// when nobody is signed in, the team is full, the species is already on the
// team, or the store rejects the insert.
func (e *TeamEngine) Adopt(ctx context.Context, species *models.Species) bool {
	if species == nil || species.ID <= 0 {
		return false
	}
	owner, ok := e.identity.CurrentUser()
	if !ok {
		e.logger.Debug("[Adopt] no user signed in")
		return false
	}

	e.adoptMu.Lock()
	defer e.adoptMu.Unlock()

	e.mu.RLock()
	full := len(e.roster) >= e.rules.MaxTeamSize
	dup := false
	for _, m := range e.roster {
		if m.PokemonID == species.ID {
			dup = true
			break
		}
	}
	e.mu.RUnlock()
	if full || dup {
		return false
	}

	if !e.tableReady(ctx, "adopt") {
		return false
	}
	profile, err := e.identity.Profile(ctx)
	if err != nil || profile == nil {
		e.logger.Error("[Adopt] user profile unavailable", zap.String("user_id", owner), zap.Error(err))
		return false
	}

	member := models.NewTeamMember(owner, *species)
	if err := e.store.Create(ctx, *profile, member, e.rules.MaxTeamSize); err != nil {
		if errors.Is(err, ErrTeamFull) || errors.Is(err, ErrAlreadyOnTeam) {
			e.logger.Info("[Adopt] rejected by store, refreshing roster", zap.String("user_id", owner),
				zap.Int("species_id", species.ID), zap.Error(err))
			e.reload(ctx, EventLoaded, "")
			return false
		}
		e.logger.Error("[Adopt] insert failed", zap.String("user_id", owner),
			zap.Int("species_id", species.ID), zap.Error(err))
		return false
	}
	e.logger.Info("🎉 [Adopt] creature adopted", zap.String("user_id", owner),
		zap.String("member_id", member.ID), zap.String("species", species.Name))
	e.metrics.adopted()

	speciesID := species.ID
	e.goBackground(func(ctx context.Context) {
		if _, err := e.catalog.EvolutionChain(ctx, speciesID); err != nil {
			e.logger.Debug("[Adopt] evolution chain prefetch failed", zap.Int("species_id", speciesID), zap.Error(err))
		}
	})

	e.touchDecay(member.ID)
	e.reload(ctx, EventAdopted, member.ID)
	return true
}

// Release deletes a member owned by the current user. Failures come back as
// a displayable error instead of being swallowed.
func (e *TeamEngine) Release(ctx context.Context, memberID string) ReleaseResult {
	owner, ok := e.identity.CurrentUser()
	if !ok {
		return ReleaseResult{Error: "No user logged in. Please sign in."}
	}
	if _, ok := e.Member(memberID); !ok {
		return ReleaseResult{Error: ErrNotOwned.Error()}
	}

	exists, err := e.store.TableExists(ctx)
	if err != nil {
		e.logger.Error("[Release] table check failed", zap.Error(err))
		return ReleaseResult{Error: fmt.Sprintf("Database error: %v", err)}
	}
	if !exists {
		return ReleaseResult{Error: "Database tables not found. Please ensure setup is complete."}
	}

	rows, err := e.store.Delete(ctx, memberID, owner)
	if err != nil {
		e.logger.Error("[Release] delete failed", zap.String("member_id", memberID), zap.String("user_id", owner), zap.Error(err))
		return ReleaseResult{Error: err.Error()}
	}
	if rows == 0 {
		return ReleaseResult{Error: ErrNotOwned.Error()}
	}

	e.mu.Lock()
	delete(e.lastDecay, memberID)
	e.mu.Unlock()

	e.logger.Info("[Release] creature released", zap.String("member_id", memberID), zap.String("user_id", owner))
	e.metrics.released()
	e.reload(ctx, EventReleased, memberID)
	return ReleaseResult{Success: true}
}

// EvolutionProgress is the percentage (one decimal) of activity points
// collected towards the next evolution.
func (e *TeamEngine) EvolutionProgress(memberID string) float64 {
	m, ok := e.Member(memberID)
	if !ok {
		return 0
	}
	required := e.rules.RequiredPoints(m.PokemonID)
	if required <= 0 {
		return 100
	}
	progress := math.Min(float64(m.ActivityPoints)/float64(required), 1) * 100
	return math.Round(progress*10) / 10
}

func (e *TeamEngine) NeedsLevel(memberID string) NeedsLevel {
	m, ok := e.Member(memberID)
	if !ok {
		return NeedsGood
	}
	avg := m.Vitals.Mean()
	switch {
	case avg < 20:
		return NeedsCritical
	case avg < 40:
		return NeedsLow
	case avg < 60:
		return NeedsMedium
	case avg < 80:
		return NeedsGood
	default:
		return NeedsExcellent
	}
}

// EvolutionStage reports the member's 1-based stage in its evolution chain
// and the chain's stage count. ok is false when the chain is unavailable.
func (e *TeamEngine) EvolutionStage(ctx context.Context, memberID string) (stage, stages int, ok bool) {
	m, found := e.Member(memberID)
	if !found {
		return 0, 0, false
	}
	chain, err := e.catalog.EvolutionChain(ctx, m.PokemonID)
	if err != nil {
		e.logger.Debug("[Team] evolution chain unavailable", zap.String("member_id", memberID), zap.Error(err))
		return 0, 0, false
	}
	stage = chain.Stage(m.Species().SpeciesName())
	if stage == 0 {
		return 0, 0, false
	}
	return stage, chain.Depth(), true
}

// Rules exposes the balance the engine runs with.
func (e *TeamEngine) Rules() Rules {
	return e.rules
}
