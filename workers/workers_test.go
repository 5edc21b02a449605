package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"pokecare/models"
	"pokecare/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestProfileSyncWorker_SyncBatch(t *testing.T) {
	var gotSince, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/public/profiles", r.URL.Path)
		gotSince = r.URL.Query().Get("since")
		gotToken = r.Header.Get("X-Service-Token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"users":[
			{"id":"p1","external_id":"u1","username":"misty","email":"misty@cerulean.test","updated_at":"2024-05-01T10:00:00Z"},
			{"id":"u2","username":"brock","email":"brock@pewter.test","updated_at":"2024-05-02T10:00:00Z"}
		]}`))
	}))
	defer srv.Close()

	store := services.NewMemoryTeamStore()
	w := NewProfileSyncWorker(store, srv.URL, "/api/v1/public/profiles", "svc-token", time.Minute, zap.NewNop())

	since := time.Date(2024, 4, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, w.SyncBatch(context.Background(), since))
	assert.Equal(t, "2024-04-30T00:00:00Z", gotSince)
	assert.Equal(t, "svc-token", gotToken)

	misty, ok := store.Profile("u1")
	require.True(t, ok)
	assert.Equal(t, "misty", misty.Username)
	_, ok = store.Profile("u2")
	assert.True(t, ok)

	assert.Equal(t, time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC), store.LastProfileUpdate(context.Background()).UTC())
}

func TestProfileSyncWorker_Non200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	store := services.NewMemoryTeamStore()
	w := NewProfileSyncWorker(store, srv.URL, "/profiles", "t", 0, zap.NewNop())
	err := w.SyncBatch(context.Background(), time.Time{})
	require.ErrorContains(t, err, "502")
}

type fakeSource struct {
	mu      sync.Mutex
	engines map[string]*services.TeamEngine
	calls   int
	evicts  []time.Duration
}

func (f *fakeSource) EvictIdle(maxIdle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evicts = append(f.evicts, maxIdle)
	return 0
}

func (f *fakeSource) evictCalls() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.evicts...)
}

func (f *fakeSource) Each(fn func(string, *services.TeamEngine)) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	for id, e := range f.engines {
		fn(id, e)
	}
}

type staticIdentity struct{ id string }

func (s staticIdentity) CurrentUser() (string, bool) { return s.id, s.id != "" }
func (s staticIdentity) Profile(ctx context.Context) (*models.UserProfile, error) {
	return &models.UserProfile{ID: s.id, Username: s.id}, nil
}

func TestReconcileRosters_ConfirmsStoreRows(t *testing.T) {
	store := services.NewMemoryTeamStore()
	row := *models.NewTeamMember("u1", models.Species{ID: 7, Name: "squirtle"})
	store.Insert(row)

	engine := services.NewTeamEngine(store, nil, staticIdentity{id: "u1"})
	src := &fakeSource{engines: map[string]*services.TeamEngine{"u1": engine}}
	require.Empty(t, engine.Roster())

	reconcileRosters(context.Background(), src, zap.NewNop())

	roster := engine.Roster()
	require.Len(t, roster, 1)
	assert.Equal(t, row.ID, roster[0].ID)
	assert.Equal(t, services.SyncConfirmed, roster[0].State)
}

func TestPollRosters_StopsOnCancel(t *testing.T) {
	src := &fakeSource{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		PollRosters(ctx, src, time.Millisecond, 15*time.Minute, zap.NewNop())
		close(done)
	}()
	require.Eventually(t, func() bool { return len(src.evictCalls()) > 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("PollRosters did not return after cancel")
	}
	assert.Equal(t, 15*time.Minute, src.evictCalls()[0])
}
