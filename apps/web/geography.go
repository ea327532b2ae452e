package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Geography lists Brazilian states (UF codes) and their municipalities.
type Geography interface {
	Regions(ctx context.Context) ([]string, error)
	Cities(ctx context.Context, uf string) ([]string, error)
}

// IBGEClient implements Geography against the IBGE "localidades" API.
type IBGEClient struct {
	BaseURL string
	Client  *http.Client
}

func (g *IBGEClient) Regions(ctx context.Context) ([]string, error) {
	var data []struct {
		Sigla string `json:"sigla"`
	}
	if err := g.get(ctx, "/estados?orderBy=nome", &data); err != nil {
		return nil, err
	}

	regions := make([]string, 0, len(data))
	for _, uf := range data {
		if uf.Sigla != "" {
			regions = append(regions, uf.Sigla)
		}
	}
	return regions, nil
}

func (g *IBGEClient) Cities(ctx context.Context, uf string) ([]string, error) {
	uf = strings.TrimSpace(uf)
	if uf == "" {
		return nil, fmt.Errorf("ibge: empty uf")
	}

	var data []struct {
		Nome string `json:"nome"`
	}
	if err := g.get(ctx, "/estados/"+url.PathEscape(uf)+"/municipios?orderBy=nome", &data); err != nil {
		return nil, err
	}

	cities := make([]string, 0, len(data))
	for _, city := range data {
		if city.Nome != "" {
			cities = append(cities, city.Nome)
		}
	}
	return cities, nil
}

func (g *IBGEClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(g.BaseURL, "/")+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ibge error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("ibge decode: %w", err)
	}
	return nil
}

// cachedGeography keeps IBGE answers for ttl; the lists change a few times a decade.
type cachedGeography struct {
	next    Geography
	regions *ttlCache[[]string]
	cities  *ttlCache[[]string]
}

func newCachedGeography(next Geography, ttl time.Duration) *cachedGeography {
	return &cachedGeography{
		next:    next,
		regions: newTTLCache[[]string](ttl),
		cities:  newTTLCache[[]string](ttl),
	}
}

func (g *cachedGeography) Regions(ctx context.Context) ([]string, error) {
	if cached, ok := g.regions.get("all"); ok {
		return append([]string(nil), cached...), nil
	}
	regions, err := g.next.Regions(ctx)
	if err != nil {
		return nil, err
	}
	g.regions.set("all", append([]string(nil), regions...))
	return regions, nil
}

func (g *cachedGeography) Cities(ctx context.Context, uf string) ([]string, error) {
	key := strings.ToUpper(strings.TrimSpace(uf))
	if cached, ok := g.cities.get(key); ok {
		return append([]string(nil), cached...), nil
	}
	cities, err := g.next.Cities(ctx, key)
	if err != nil {
		return nil, err
	}
	g.cities.set(key, append([]string(nil), cities...))
	return cities, nil
}
