package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"pokecare/models"
	"pokecare/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCatalog struct {
	species map[int]models.Species
	chains  map[int]*models.EvolutionChain
}

func (s *stubCatalog) SpeciesByID(_ context.Context, id int) (*models.Species, error) {
	sp, ok := s.species[id]
	if !ok {
		return nil, services.ErrSpeciesNotFound
	}
	return &sp, nil
}

func (s *stubCatalog) SpeciesByName(_ context.Context, name string) (*models.Species, error) {
	for _, sp := range s.species {
		if strings.EqualFold(sp.Name, name) {
			return &sp, nil
		}
	}
	return nil, services.ErrSpeciesNotFound
}

func (s *stubCatalog) EvolutionChain(_ context.Context, speciesID int) (*models.EvolutionChain, error) {
	chain, ok := s.chains[speciesID]
	if !ok {
		return nil, services.ErrSpeciesNotFound
	}
	return chain, nil
}

func chainLink(name string, id int, next ...models.ChainLink) models.ChainLink {
	return models.ChainLink{
		Species:   models.NamedResource{Name: name, URL: fmt.Sprintf("https://pokeapi.test/api/v2/pokemon-species/%d/", id)},
		EvolvesTo: next,
	}
}

func (s *stubCatalog) BaseSpeciesInRange(_ context.Context, start, end int) ([]models.Species, error) {
	var out []models.Species
	for id := start; id <= end; id++ {
		if sp, ok := s.species[id]; ok {
			out = append(out, sp)
		}
	}
	return out, nil
}

type testServer struct {
	app      *fiber.App
	store    *services.MemoryTeamStore
	sessions *services.Sessions
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	bulbasaur := &models.EvolutionChain{ID: 1, Chain: chainLink("bulbasaur", 1, chainLink("ivysaur", 2, chainLink("venusaur", 3)))}
	catalog := &stubCatalog{
		species: map[int]models.Species{
			1:  {ID: 1, Name: "bulbasaur"},
			3:  {ID: 3, Name: "venusaur"},
			4:  {ID: 4, Name: "charmander"},
			25: {ID: 25, Name: "pikachu"},
		},
		chains: map[int]*models.EvolutionChain{1: bulbasaur, 2: bulbasaur, 3: bulbasaur},
	}
	store := services.NewMemoryTeamStore()
	sessions := services.NewSessions(store, store, catalog, zap.NewNop(), nil)
	t.Cleanup(sessions.Close)

	app := fiber.New()
	SetupTeamRoutes(app, sessions, catalog, zap.NewNop())
	return &testServer{app: app, store: store, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, userID, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Name", "ash")
	}
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]interface{}{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestTeamRoutes_RequireUser(t *testing.T) {
	s := newTestServer(t)
	status, _ := s.do(t, http.MethodGet, "/team", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestTeamRoutes_AdoptFeedRelease(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/team", "u1", `{"species_id":25}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	members := body["members"].([]interface{})
	require.Len(t, members, 1)
	member := members[0].(map[string]interface{})
	id := member["id"].(string)
	assert.Equal(t, "pikachu", member["pokemon_name"])
	assert.Equal(t, float64(50), member["hunger"])
	assert.Equal(t, "confirmed", member["sync_state"])
	assert.Equal(t, "good", member["needs_level"])

	prof, ok := s.store.Profile("u1")
	require.True(t, ok)
	assert.Equal(t, "ash", prof.Username)

	status, _ = s.do(t, http.MethodPost, "/team", "u1", `{"species_id":25}`)
	assert.Equal(t, fiber.StatusConflict, status)

	status, _ = s.do(t, http.MethodPost, "/team", "u1", `{"species_id":999}`)
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = s.do(t, http.MethodGet, "/team/"+id+"/feed-options", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["options"], 3)

	status, _ = s.do(t, http.MethodPost, "/team/"+id+"/feed", "u1", `{"food":"cake"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = s.do(t, http.MethodPost, "/team/"+id+"/feed", "u1", `{"food":"berry"}`)
	require.Equal(t, fiber.StatusOK, status, body)
	result := body["result"].(map[string]interface{})
	assert.Equal(t, true, result["success"])
	assert.Equal(t, float64(75), result["new_stats"].(map[string]interface{})["hunger"])

	status, _ = s.do(t, http.MethodGet, "/team/"+id, "u2", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = s.do(t, http.MethodDelete, "/team/"+id, "u2", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, services.ErrNotOwned.Error(), body["error"])
	_, stillThere := s.store.Row(id)
	assert.True(t, stillThere)

	status, body = s.do(t, http.MethodDelete, "/team/"+id, "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["success"])

	status, body = s.do(t, http.MethodGet, "/team", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Empty(t, body["members"])
}

func TestTeamRoutes_EndSession(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(t, http.MethodGet, "/team", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, 1, s.sessions.Len())

	status, body := s.do(t, http.MethodPost, "/session/end", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["ended"])
	assert.Equal(t, 0, s.sessions.Len())

	_, body = s.do(t, http.MethodPost, "/session/end", "u1", "")
	assert.Equal(t, false, body["ended"])
}

func TestCatalogRoutes(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/catalog/species/4", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "charmander", body["name"])

	status, _ = s.do(t, http.MethodGet, "/catalog/species/abc", "u1", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodGet, "/catalog/species/7", "u1", "")
	assert.Equal(t, fiber.StatusNotFound, status)

	status, body = s.do(t, http.MethodGet, "/catalog/generations/1", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["species"], 4)
	assert.Equal(t, "Kanto", body["generation"].(map[string]interface{})["name"])

	status, _ = s.do(t, http.MethodGet, "/catalog/generations/9", "u1", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestTeamRoutes_FirstRequestSeesStoredTeam(t *testing.T) {
	s := newTestServer(t)
	for id := 100; id < 106; id++ {
		s.store.Insert(*models.NewTeamMember("u1", models.Species{ID: id, Name: fmt.Sprintf("species-%d", id)}))
	}

	status, body := s.do(t, http.MethodGet, "/team", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["members"], 6)

	status, _ = s.do(t, http.MethodPost, "/team", "u2", `{"species_id":4}`)
	require.Equal(t, fiber.StatusCreated, status)

	status, _ = s.do(t, http.MethodPost, "/team", "u1", `{"species_id":25}`)
	assert.Equal(t, fiber.StatusConflict, status)
	rows, err := s.store.ListByOwner(context.Background(), "u1")
	require.NoError(t, err)
	assert.Len(t, rows, 6)
}

func TestTeamRoutes_MemberShowsEvolutionStage(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/team", "u1", `{"species_id":1}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	member := body["members"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, float64(1), member["evolution_stage"])
	assert.Equal(t, float64(3), member["evolution_stages"])
	assert.Equal(t, false, member["final_stage"])

	status, body = s.do(t, http.MethodPost, "/team", "u1", `{"species_id":3}`)
	require.Equal(t, fiber.StatusCreated, status, body)
	last := body["members"].([]interface{})[1].(map[string]interface{})
	assert.Equal(t, float64(3), last["evolution_stage"])
	assert.Equal(t, true, last["final_stage"])
}

func TestCatalogRoutes_SearchByName(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodGet, "/catalog/species?name=Pikachu", "u1", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, float64(25), body["id"])

	status, _ = s.do(t, http.MethodGet, "/catalog/species", "u1", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = s.do(t, http.MethodGet, "/catalog/species?name=mew", "u1", "")
	assert.Equal(t, fiber.StatusNotFound, status)
}
