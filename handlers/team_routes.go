package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"pokecare/middleware"
	"pokecare/models"
	"pokecare/services"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// CatalogReader is what the routes need from the species catalog.
type CatalogReader interface {
	SpeciesByID(ctx context.Context, id int) (*models.Species, error)
	SpeciesByName(ctx context.Context, name string) (*models.Species, error)
	BaseSpeciesInRange(ctx context.Context, start, end int) ([]models.Species, error)
}

// MemberView is a roster entry with its derived reads.
type MemberView struct {
	services.MemberSnapshot
	RequiredPoints    int                 `json:"required_points"`
	EvolutionProgress float64             `json:"evolution_progress"`
	NeedsLevel        services.NeedsLevel `json:"needs_level"`
	EvolutionStage    int                 `json:"evolution_stage,omitempty"`
	EvolutionStages   int                 `json:"evolution_stages,omitempty"`
	FinalStage        bool                `json:"final_stage"`
}

// FeedOption is one food as offered to a member.
type FeedOption struct {
	Food    services.FoodKind   `json:"food"`
	Effect  services.FoodEffect `json:"effect"`
	CanFeed bool                `json:"can_feed"`
	Message string              `json:"message"`
}

const sseKeepAlive = 15 * time.Second

type teamHandler struct {
	sessions *services.Sessions
	catalog  CatalogReader
	logger   *zap.Logger
}

// SetupTeamRoutes registers the per-user team routes. The Gateway forwards
// /api/v1/pokecare/s/... to these paths with X-User-* headers set.
func SetupTeamRoutes(app *fiber.App, sessions *services.Sessions, catalog CatalogReader, logger *zap.Logger) {
	h := &teamHandler{sessions: sessions, catalog: catalog, logger: logger}

	secured := app.Group("/", middleware.UserContextMiddleware(logger))

	secured.Get("/team", h.listTeam)
	secured.Post("/team", h.adopt)
	secured.Get("/team/stream", h.stream)
	secured.Get("/team/:id", h.getMember)
	secured.Get("/team/:id/feed-options", h.feedOptions)
	secured.Post("/team/:id/feed", h.feed)
	secured.Delete("/team/:id", h.release)
	secured.Post("/session/end", h.endSession)

	secured.Get("/catalog/species", h.searchSpecies)
	secured.Get("/catalog/species/:id", h.species)
	secured.Get("/catalog/generations/:gen", h.generation)
}

func (h *teamHandler) engine(c *fiber.Ctx) (*services.TeamEngine, error) {
	userID, email, username := middleware.UserFromLocals(c)
	engine, err := h.sessions.Get(c.UserContext(), services.UserClaims{UserID: userID, Email: email, Username: username})
	if err != nil {
		if errors.Is(err, services.ErrNoUser) {
			return nil, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "no authenticated user"})
		}
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "failed to open team session",
			"cause": err.Error(),
		})
	}
	return engine, nil
}

func view(ctx context.Context, engine *services.TeamEngine, m services.MemberSnapshot) MemberView {
	v := MemberView{
		MemberSnapshot:    m,
		RequiredPoints:    engine.Rules().RequiredPoints(m.PokemonID),
		EvolutionProgress: engine.EvolutionProgress(m.ID),
		NeedsLevel:        engine.NeedsLevel(m.ID),
	}
	if stage, stages, ok := engine.EvolutionStage(ctx, m.ID); ok {
		v.EvolutionStage, v.EvolutionStages = stage, stages
		v.FinalStage = stage >= stages
	}
	return v
}

func rosterView(ctx context.Context, engine *services.TeamEngine) []MemberView {
	roster := engine.Roster()
	out := make([]MemberView, 0, len(roster))
	for _, m := range roster {
		out = append(out, view(ctx, engine, m))
	}
	return out
}

func (h *teamHandler) listTeam(c *fiber.Ctx) error {
	engine, err := h.engine(c)
	if engine == nil {
		return err
	}
	if c.QueryBool("refresh") {
		engine.LoadRoster(c.UserContext())
	}
	return c.JSON(fiber.Map{
		"members":  rosterView(c.UserContext(), engine),
		"max_size": engine.Rules().MaxTeamSize,
	})
}

func (h *teamHandler) adopt(c *fiber.Ctx) error {
	engine, err := h.engine(c)
	if engine == nil {
		return err
	}

	var req struct {
		SpeciesID int `json:"species_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.SpeciesID <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "species_id is required"})
	}

	species, err := h.catalog.SpeciesByID(c.UserContext(), req.SpeciesID)
	if err != nil {
		if errors.Is(err, services.ErrSpeciesNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "species not found"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "catalog unavailable",
			"cause": err.Error(),
		})
	}

	if !engine.Adopt(c.UserContext(), species) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": fmt.Sprintf("could not adopt %s: team is full, it is already on the team, or the store rejected it", species.Name),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"members": rosterView(c.UserContext(), engine)})
}

func (h *teamHandler) getMember(c *fiber.Ctx) error {
	engine, err := h.engine(c)
	if engine == nil {
		return err
	}
	m, ok := engine.Member(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "team member not found"})
	}
	return c.JSON(view(c.UserContext(), engine, m))
}

func (h *teamHandler) feedOptions(c *fiber.Ctx) error {
	engine, err := h.engine(c)
	if engine == nil {
		return err
	}
	id := c.Params("id")
	if _, ok := engine.Member(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "team member not found"})
	}

	rules := engine.Rules()
	options := make([]FeedOption, 0, len(services.FoodKinds))
	for _, food := range services.FoodKinds {
		options = append(options, FeedOption{
			Food:    food,
			Effect:  rules.Food[food],
			CanFeed: engine.CanFeed(id, food),
			Message: engine.FeedingMessage(id, food),
		})
	}
	return c.JSON(fiber.Map{"options": options})
}

func (h *teamHandler) feed(c *fiber.Ctx) error {
	engine, err := h.engine(c)
	if engine == nil {
		return err
	}

	var req struct {
		Food string `json:"food"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	food, ok := services.ParseFoodKind(req.Food)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "food must be one of berry, potion, candy",
		})
	}

	id := c.Params("id")
	if _, ok := engine.Member(id); !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "team member not found"})
	}

	res := engine.Feed(c.UserContext(), id, food)
	if !res.Success {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to feed team member"})
	}
	resp := fiber.Map{"result": res}
	if m, ok := engine.Member(id); ok {
		resp["member"] = view(c.UserContext(), engine, m)
	}
	return c.JSON(resp)
}

func (h *teamHandler) release(c *fiber.Ctx) error {
	engine, err := h.engine(c)
	if engine == nil {
		return err
	}
	res := engine.Release(c.UserContext(), c.Params("id"))
	if !res.Success {
		status := fiber.StatusInternalServerError
		if res.Error == services.ErrNotOwned.Error() {
			status = fiber.StatusConflict
		}
		return c.Status(status).JSON(res)
	}
	return c.JSON(res)
}

func (h *teamHandler) endSession(c *fiber.Ctx) error {
	userID, _, _ := middleware.UserFromLocals(c)
	return c.JSON(fiber.Map{"ended": h.sessions.End(userID)})
}

// stream pushes every roster event as an SSE message until the client goes away.
func (h *teamHandler) stream(c *fiber.Ctx) error {
	engine, err := h.engine(c)
	if engine == nil {
		return err
	}
	userID, _, _ := middleware.UserFromLocals(c)

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events := make(chan services.RosterEvent, 16)
	ctx, cancel := context.WithCancel(context.Background())
	unsubscribe := engine.Subscribe(ctx, func(ev services.RosterEvent) {
		select {
		case events <- ev:
		default:
			h.logger.Warn("[SSE] dropping roster event for slow client", zap.String("user_id", userID))
		}
	})
	initial := services.RosterEvent{Kind: services.EventLoaded, Roster: engine.Roster(), At: time.Now()}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer unsubscribe()

		ticker := time.NewTicker(sseKeepAlive)
		defer ticker.Stop()

		if err := writeEvent(w, initial); err != nil {
			return
		}
		for {
			select {
			case ev := <-events:
				if err := writeEvent(w, ev); err != nil {
					h.logger.Debug("[SSE] client disconnected", zap.String("user_id", userID), zap.Error(err))
					return
				}
			case <-ticker.C:
				h.sessions.Touch(userID)
				if _, err := w.WriteString(":\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, ev services.RosterEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, payload); err != nil {
		return err
	}
	return w.Flush()
}

func (h *teamHandler) searchSpecies(c *fiber.Ctx) error {
	name := c.Query("name")
	if name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	sp, err := h.catalog.SpeciesByName(c.UserContext(), name)
	if err != nil {
		if errors.Is(err, services.ErrSpeciesNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "species not found"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "catalog unavailable",
			"cause": err.Error(),
		})
	}
	return c.JSON(sp)
}

func (h *teamHandler) species(c *fiber.Ctx) error {
	id, err := strconv.Atoi(c.Params("id"))
	if err != nil || id <= 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid species id"})
	}
	sp, err := h.catalog.SpeciesByID(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, services.ErrSpeciesNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "species not found"})
		}
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "catalog unavailable",
			"cause": err.Error(),
		})
	}
	return c.JSON(sp)
}

func (h *teamHandler) generation(c *fiber.Ctx) error {
	n, err := strconv.Atoi(c.Params("gen"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid generation"})
	}
	gen, ok := models.Generations[n]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "unknown generation"})
	}
	species, err := h.catalog.BaseSpeciesInRange(c.UserContext(), gen.Start, gen.End)
	if err != nil {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "catalog unavailable",
			"cause": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"generation": gen, "species": species})
}
