package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"pokecare/models"

	"github.com/gosimple/slug"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const DefaultPokeAPIBaseURL = "https://pokeapi.co/api/v2"

var ErrSpeciesNotFound = errors.New("species not found in catalog")

// Catalog is the read-only creature catalog the engine depends on.
type Catalog interface {
	SpeciesByID(ctx context.Context, id int) (*models.Species, error)
	EvolutionChain(ctx context.Context, speciesID int) (*models.EvolutionChain, error)
}

// SpriteMirror copies a sprite to our own storage and returns its public URL.
type SpriteMirror interface {
	MirrorSprite(ctx context.Context, speciesID int, sourceURL string) (string, error)
}

// CatalogClient reads PokeAPI through per-kind TTL caches. Concurrent misses
// for the same key share one upstream request.
type CatalogClient struct {
	BaseURL    string
	HTTPClient *http.Client

	logger  *zap.Logger
	mirror  SpriteMirror
	flight  singleflight.Group
	species *expirable.LRU[int, *models.Species]
	names   *expirable.LRU[string, int]
	infos   *expirable.LRU[int, *models.SpeciesInfo]
	chains  *expirable.LRU[string, *models.EvolutionChain]
}

type CatalogOption func(*CatalogClient)

func WithSpriteMirror(m SpriteMirror) CatalogOption {
	return func(c *CatalogClient) { c.mirror = m }
}

func WithHTTPClient(hc *http.Client) CatalogOption {
	return func(c *CatalogClient) { c.HTTPClient = hc }
}

func NewCatalogClient(baseURL string, ttl time.Duration, size int, logger *zap.Logger, opts ...CatalogOption) *CatalogClient {
	if baseURL == "" {
		baseURL = DefaultPokeAPIBaseURL
	}
	if size <= 0 {
		size = 1024
	}
	c := &CatalogClient{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
		species:    expirable.NewLRU[int, *models.Species](size, nil, ttl),
		names:      expirable.NewLRU[string, int](size, nil, ttl),
		infos:      expirable.NewLRU[int, *models.SpeciesInfo](size, nil, ttl),
		chains:     expirable.NewLRU[string, *models.EvolutionChain](size, nil, ttl),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SpeciesByID returns the /pokemon/{id} payload.
func (c *CatalogClient) SpeciesByID(ctx context.Context, id int) (*models.Species, error) {
	if id <= 0 {
		return nil, ErrSpeciesNotFound
	}
	if sp, ok := c.species.Get(id); ok {
		return sp, nil
	}
	return c.fetchSpecies(ctx, strconv.Itoa(id))
}

// SpeciesByName looks a species up by display name ("Mr. Mime" → mr-mime).
func (c *CatalogClient) SpeciesByName(ctx context.Context, name string) (*models.Species, error) {
	key := slug.Make(name)
	if key == "" {
		return nil, ErrSpeciesNotFound
	}
	if id, ok := c.names.Get(key); ok {
		return c.SpeciesByID(ctx, id)
	}
	return c.fetchSpecies(ctx, key)
}

func (c *CatalogClient) fetchSpecies(ctx context.Context, key string) (*models.Species, error) {
	v, err, _ := c.flight.Do("pokemon:"+key, func() (interface{}, error) {
		var sp models.Species
		if err := c.getJSON(ctx, c.BaseURL+"/pokemon/"+key, &sp); err != nil {
			return nil, err
		}
		sp.ResolveAnimatedSprite()
		if c.mirror != nil && sp.AnimatedSprite != "" {
			if url, err := c.mirror.MirrorSprite(ctx, sp.ID, sp.AnimatedSprite); err != nil {
				c.logger.Warn("[Catalog] sprite mirror failed, keeping upstream url",
					zap.Int("species_id", sp.ID), zap.Error(err))
			} else {
				sp.AnimatedSprite = url
			}
		}
		c.species.Add(sp.ID, &sp)
		c.names.Add(slug.Make(sp.Name), sp.ID)
		return &sp, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Species), nil
}

// SpeciesInfo returns the /pokemon-species/{id} payload.
func (c *CatalogClient) SpeciesInfo(ctx context.Context, id int) (*models.SpeciesInfo, error) {
	if info, ok := c.infos.Get(id); ok {
		return info, nil
	}
	v, err, _ := c.flight.Do(fmt.Sprintf("species:%d", id), func() (interface{}, error) {
		var info models.SpeciesInfo
		if err := c.getJSON(ctx, fmt.Sprintf("%s/pokemon-species/%d", c.BaseURL, id), &info); err != nil {
			return nil, err
		}
		c.infos.Add(id, &info)
		return &info, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.SpeciesInfo), nil
}

// EvolutionChain resolves species → evolution_chain.url → chain. Chains are
// cached by URL, so every member of a family shares one entry.
func (c *CatalogClient) EvolutionChain(ctx context.Context, speciesID int) (*models.EvolutionChain, error) {
	info, err := c.SpeciesInfo(ctx, speciesID)
	if err != nil {
		return nil, err
	}
	chainURL := info.EvolutionChain.URL
	if chainURL == "" {
		return nil, ErrSpeciesNotFound
	}
	if chain, ok := c.chains.Get(chainURL); ok {
		return chain, nil
	}
	v, err, _ := c.flight.Do("chain:"+chainURL, func() (interface{}, error) {
		var chain models.EvolutionChain
		if err := c.getJSON(ctx, chainURL, &chain); err != nil {
			return nil, err
		}
		c.chains.Add(chainURL, &chain)
		return &chain, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.EvolutionChain), nil
}

// BaseSpeciesInRange lists the first-stage species with national ids in
// [start,end], ordered by id. Species that fail to load are skipped.
func (c *CatalogClient) BaseSpeciesInRange(ctx context.Context, start, end int) ([]models.Species, error) {
	if start < 1 || end < start {
		return nil, fmt.Errorf("invalid species range %d-%d", start, end)
	}
	results := make([]*models.Species, end-start+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for id := start; id <= end; id++ {
		id := id
		g.Go(func() error {
			sp, err := c.SpeciesByID(gctx, id)
			if err != nil {
				c.logger.Debug("[Catalog] skipping species", zap.Int("species_id", id), zap.Error(err))
				return nil
			}
			info, err := c.SpeciesInfo(gctx, id)
			if err != nil || info.EvolvesFromSpecies != nil {
				return nil
			}
			results[id-start] = sp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.Species
	for _, sp := range results {
		if sp != nil {
			out = append(out, *sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *CatalogClient) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("catalog request %s failed: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrSpeciesNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("catalog returned status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode catalog response: %w", err)
	}
	return nil
}
