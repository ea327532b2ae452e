package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Item is one collectible category from the backend catalog.
type Item struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	ImageURL string `json:"image_url"`
}

type CreatedPoint struct {
	ID int `json:"id"`
}

// PointsBackend is the Ecoleta API: the item catalog and the points write endpoint.
type PointsBackend interface {
	Items(ctx context.Context) ([]Item, error)
	CreatePoint(ctx context.Context, payload PointPayload) (*CreatedPoint, error)
}

type EcoletaBackend struct {
	BaseURL string
	Client  *http.Client
}

func (b *EcoletaBackend) Items(ctx context.Context) ([]Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url("/items"), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, backendStatusError(resp)
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("backend items decode: %w", err)
	}
	return items, nil
}

func (b *EcoletaBackend) CreatePoint(ctx context.Context, payload PointPayload) (*CreatedPoint, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url("/points"), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := b.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, backendStatusError(resp)
	}

	// Only success matters; the id is kept for the receipt when the backend sends one.
	created := &CreatedPoint{}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err == nil && len(bytes.TrimSpace(raw)) > 0 {
		if decodeErr := json.Unmarshal(raw, created); decodeErr != nil {
			created = &CreatedPoint{}
		}
	}
	return created, nil
}

func (b *EcoletaBackend) url(path string) string {
	return strings.TrimRight(b.BaseURL, "/") + path
}

func backendStatusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("backend error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// cachedCatalog caches the item catalog; writes always go straight through.
type cachedCatalog struct {
	next  PointsBackend
	items *ttlCache[[]Item]
}

func newCachedCatalog(next PointsBackend, ttl time.Duration) *cachedCatalog {
	return &cachedCatalog{next: next, items: newTTLCache[[]Item](ttl)}
}

func (c *cachedCatalog) Items(ctx context.Context) ([]Item, error) {
	if cached, ok := c.items.get("all"); ok {
		return append([]Item(nil), cached...), nil
	}
	items, err := c.next.Items(ctx)
	if err != nil {
		return nil, err
	}
	c.items.set("all", append([]Item(nil), items...))
	return items, nil
}

func (c *cachedCatalog) CreatePoint(ctx context.Context, payload PointPayload) (*CreatedPoint, error) {
	return c.next.CreatePoint(ctx, payload)
}
