package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// AddressHint is the street address nearest to a picked map point.
type AddressHint struct {
	Street string
	City   string
	UF     string
}

// Label renders the hint the way it is shown under the map.
func (h AddressHint) Label() string {
	parts := make([]string, 0, 2)
	if h.Street != "" {
		parts = append(parts, h.Street)
	}
	place := h.City
	if h.UF != "" {
		if place != "" {
			place += " - " + h.UF
		} else {
			place = h.UF
		}
	}
	if place != "" {
		parts = append(parts, place)
	}
	return strings.Join(parts, ", ")
}

// Geocoder resolves coordinates to an address. A nil hint with nil error means nothing was found.
type Geocoder interface {
	Geocode(ctx context.Context, at Coordinate) (*AddressHint, error)
}

// MapboxGeocoder implements Geocoder using Mapbox API v6
type MapboxGeocoder struct {
	AccessToken string
	Client      *http.Client
}

func (g *MapboxGeocoder) Geocode(ctx context.Context, at Coordinate) (*AddressHint, error) {
	if g.AccessToken == "" {
		return nil, errors.New("mapbox access token missing")
	}

	query := url.Values{}
	query.Set("longitude", fmt.Sprintf("%f", at.Longitude))
	query.Set("latitude", fmt.Sprintf("%f", at.Latitude))
	query.Set("access_token", g.AccessToken)
	query.Set("types", "address")
	query.Set("language", "pt")
	query.Set("limit", "1")
	u := "https://api.mapbox.com/search/geocode/v6/reverse?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("mapbox error (%d): %s", resp.StatusCode, string(body))
	}

	var data struct {
		Features []struct {
			Properties struct {
				Name    string `json:"name"`
				Context struct {
					Place struct {
						Name string `json:"name"`
					} `json:"place"`
					Region struct {
						RegionCode string `json:"region_code"`
					} `json:"region"`
				} `json:"context"`
			} `json:"properties"`
		} `json:"features"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	if len(data.Features) == 0 {
		return nil, nil
	}

	props := data.Features[0].Properties
	return &AddressHint{
		Street: props.Name,
		City:   props.Context.Place.Name,
		UF:     strings.ToUpper(props.Context.Region.RegionCode),
	}, nil
}

// NominatimGeocoder implements Geocoder using OSM Nominatim.
// Nominatim's usage policy allows one request per second and requires a User-Agent.
type NominatimGeocoder struct {
	UserAgent string
	Client    *http.Client
	BaseURL   string
	mu        sync.Mutex
	lastCall  time.Time
}

func (g *NominatimGeocoder) Geocode(ctx context.Context, at Coordinate) (*AddressHint, error) {
	if err := g.throttle(ctx); err != nil {
		return nil, err
	}

	base := g.BaseURL
	if base == "" {
		base = "https://nominatim.openstreetmap.org"
	}
	u := fmt.Sprintf("%s/reverse?format=jsonv2&lat=%f&lon=%f&addressdetails=1", strings.TrimRight(base, "/"), at.Latitude, at.Longitude)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", g.UserAgent)
	req.Header.Set("Accept-Language", "pt-BR")

	resp, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim error: %d", resp.StatusCode)
	}

	var data struct {
		Address struct {
			Road        string `json:"road"`
			HouseNumber string `json:"house_number"`
			City        string `json:"city"`
			Town        string `json:"town"`
			Village     string `json:"village"`
			StateCode   string `json:"ISO3166-2-lvl4"`
		} `json:"address"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}

	city := data.Address.City
	if city == "" {
		city = data.Address.Town
	}
	if city == "" {
		city = data.Address.Village
	}

	street := data.Address.Road
	if street != "" && data.Address.HouseNumber != "" {
		street = fmt.Sprintf("%s, %s", street, data.Address.HouseNumber)
	}

	if street == "" && city == "" {
		return nil, nil
	}

	return &AddressHint{
		Street: street,
		City:   city,
		UF:     strings.TrimPrefix(data.Address.StateCode, "BR-"),
	}, nil
}

func (g *NominatimGeocoder) throttle(ctx context.Context) error {
	g.mu.Lock()
	wait := time.Second - time.Since(g.lastCall)
	if wait < 0 {
		wait = 0
	}
	g.lastCall = time.Now().Add(wait)
	g.mu.Unlock()

	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FallbackGeocoder prioritizes first, falls back to second
type FallbackGeocoder struct {
	Primary   Geocoder
	Secondary Geocoder
}

func (g *FallbackGeocoder) Geocode(ctx context.Context, at Coordinate) (*AddressHint, error) {
	res, err := g.Primary.Geocode(ctx, at)
	if err != nil || res == nil {
		return g.Secondary.Geocode(ctx, at)
	}
	return res, nil
}
