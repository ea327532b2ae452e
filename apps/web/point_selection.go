package main

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	geolocationDenied      = "denied"
	geolocationUnavailable = "unavailable"
	geolocationTimeout     = "timeout"
)

// networkFailure wraps an upstream error so handlers report it as a 502.
func networkFailure(message string, err error) error {
	return fmt.Errorf("%w: %v", &apiError{Status: http.StatusBadGateway, Code: "network_failure", Message: message}, err)
}

func validationFailure(code, message string) error {
	return &apiError{Status: http.StatusBadRequest, Code: code, Message: message}
}

// loadRegions fills the draft's region list once, on the first render.
func (a *App) loadRegions(ctx context.Context, draft *Draft) error {
	if draft.hasRegions() {
		return nil
	}
	regions, err := a.geography.Regions(ctx)
	if err != nil {
		return networkFailure("Could not load the list of states", err)
	}
	draft.SetRegions(regions)
	return nil
}

// parseRegion normalises a UF from any surface before it reaches the draft.
func parseRegion(raw string) *string {
	return parseSelection(strings.ToUpper(raw))
}

// selectRegion records the chosen UF and loads its cities. The lock is not held
// during the fetch; if another selection lands first, this result is dropped.
func (a *App) selectRegion(ctx context.Context, draft *Draft, region *string) error {
	if region != nil && !draft.knowsRegion(*region) {
		return validationFailure("unknown_region", "Unknown state "+*region)
	}

	ticket, fetch := draft.SelectRegion(region)
	if !fetch {
		return nil
	}
	return a.loadCities(ctx, draft, ticket)
}

// ensureCities retries the city fetch of the selected UF when an earlier one failed.
func (a *App) ensureCities(ctx context.Context, draft *Draft) error {
	ticket, fetch := draft.MissingCities()
	if !fetch {
		return nil
	}
	return a.loadCities(ctx, draft, ticket)
}

func (a *App) loadCities(ctx context.Context, draft *Draft, ticket cityTicket) error {
	cities, err := a.geography.Cities(ctx, ticket.Region)
	if err != nil {
		return networkFailure("Could not load the cities of "+ticket.Region, err)
	}
	if !draft.ApplyCities(ticket, cities) {
		a.log.Debug("discarded stale city list", "draft_id", draft.ID, "uf", ticket.Region, "generation", ticket.Generation)
	}
	return nil
}

// checkCity requires the city list of the UF to be loaded and to contain city.
func checkCity(view DraftView, uf, city string) error {
	if view.CitiesUF != uf || !containsString(view.Cities, city) {
		return validationFailure("unknown_city", fmt.Sprintf("%s is not a city of %s", city, uf))
	}
	return nil
}

func (a *App) selectCity(ctx context.Context, draft *Draft, city *string) error {
	if city == nil {
		draft.SelectCity(nil)
		return nil
	}
	if err := a.ensureCities(ctx, draft); err != nil {
		return err
	}
	view := draft.View()
	if view.UF == nil {
		return validationFailure("region_required", "Select a state before choosing a city")
	}
	if err := checkCity(view, *view.UF, *city); err != nil {
		return err
	}
	draft.SelectCity(city)
	return nil
}

func (a *App) selectPosition(draft *Draft, at Coordinate) error {
	if !at.valid() {
		return validationFailure("invalid_position", "Latitude or longitude out of range")
	}
	ticket := draft.SelectPosition(at)
	if a.geocoder != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), addressHintTimeout)
			defer cancel()
			a.resolveAddressHint(ctx, draft, ticket)
		}()
	}
	return nil
}

// resolveAddressHint reverse-geocodes a picked point and stores the label if
// the user has not clicked somewhere else in the meantime.
func (a *App) resolveAddressHint(ctx context.Context, draft *Draft, ticket positionTicket) {
	hint, err := a.geocoder.Geocode(ctx, ticket.Position)
	if err != nil {
		a.log.Warn("address hint lookup failed", "draft_id", draft.ID, "err", err)
		return
	}
	if hint == nil {
		return
	}
	if !draft.ApplyAddressHint(ticket, hint.Label()) {
		a.log.Debug("discarded stale address hint", "draft_id", draft.ID, "generation", ticket.Generation)
	}
}

func (a *App) reportGeolocation(draft *Draft, at *Coordinate, reason string) error {
	if at != nil {
		if !at.valid() {
			return validationFailure("invalid_position", "Latitude or longitude out of range")
		}
		draft.ResolveInitialPosition(*at)
		return nil
	}
	switch reason {
	case geolocationDenied, geolocationUnavailable, geolocationTimeout:
		draft.FailGeolocation(reason)
		return nil
	default:
		return validationFailure("invalid_payload", "Geolocation report needs a position or a known error")
	}
}

func (a *App) catalogItems(ctx context.Context) ([]Item, error) {
	items, err := a.backend.Items(ctx)
	if err != nil {
		return nil, networkFailure("Could not load the item catalog", err)
	}
	return items, nil
}

func (a *App) toggleItem(ctx context.Context, draft *Draft, id int) (bool, error) {
	items, err := a.catalogItems(ctx)
	if err != nil {
		return false, err
	}
	for _, item := range items {
		if item.ID == id {
			return draft.ToggleItem(id), nil
		}
	}
	return false, &apiError{Status: http.StatusNotFound, Code: "unknown_item", Message: fmt.Sprintf("Item %d is not in the catalog", id)}
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
