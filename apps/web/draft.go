package main

import (
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"
)

// noneSelected is the value legacy form posts use for "nothing picked" in the UF and city selects.
const noneSelected = "0"

type FormData struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Whatsapp string `json:"whatsapp"`
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c Coordinate) valid() bool {
	return c.Latitude >= -90 && c.Latitude <= 90 && c.Longitude >= -180 && c.Longitude <= 180
}

// PointPayload is the body of the backend's POST points call.
type PointPayload struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	Whatsapp  string  `json:"whatsapp"`
	UF        string  `json:"uf"`
	City      string  `json:"city"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Items     []int   `json:"items"`
}

// itemSelection keeps ids in click order; membership is what matters.
type itemSelection []int

func (s itemSelection) contains(id int) bool {
	return slices.Contains(s, id)
}

// toggle removes id when present and appends it otherwise.
func (s itemSelection) toggle(id int) itemSelection {
	if idx := slices.Index(s, id); idx >= 0 {
		out := make(itemSelection, 0, len(s)-1)
		out = append(out, s[:idx]...)
		return append(out, s[idx+1:]...)
	}
	out := make(itemSelection, 0, len(s)+1)
	out = append(out, s...)
	return append(out, id)
}

// sameMembers compares two selections ignoring order.
func (s itemSelection) sameMembers(other itemSelection) bool {
	if len(s) != len(other) {
		return false
	}
	left := slices.Clone(s)
	right := slices.Clone(other)
	slices.Sort(left)
	slices.Sort(right)
	return slices.Equal(left, right)
}

// cityTicket identifies one city-list request. The result is applied only while
// Generation still matches the draft's region generation.
type cityTicket struct {
	Region     string
	Generation uint64
}

type positionTicket struct {
	Position   Coordinate
	Generation uint64
}

// Draft is the state of one CreatePoint form. All access goes through its
// methods; network calls happen outside the lock and report back with tickets.
type Draft struct {
	ID string

	mu       sync.Mutex
	lastSeen time.Time

	form   FormData
	region *string
	city   *string

	initialPosition  Coordinate
	initialResolved  bool
	geolocationError string

	position           Coordinate
	positionSet        bool
	positionGeneration uint64
	addressHint        string

	items itemSelection

	regions          []string
	cities           []string
	citiesRegion     string
	regionGeneration uint64

	submitting bool
}

// DraftView is a point-in-time copy of a draft for rendering and JSON.
type DraftView struct {
	ID               string      `json:"-"`
	Name             string      `json:"name"`
	Email            string      `json:"email"`
	Whatsapp         string      `json:"whatsapp"`
	UF               *string     `json:"uf"`
	City             *string     `json:"city"`
	InitialPosition  Coordinate  `json:"initial_position"`
	Position         *Coordinate `json:"position"`
	GeolocationError string      `json:"geolocation_error,omitempty"`
	AddressHint      string      `json:"address_hint,omitempty"`
	Items            []int       `json:"items"`
	Regions          []string    `json:"regions"`
	Cities           []string    `json:"cities"`
	CitiesUF         string      `json:"cities_uf,omitempty"`
}

func newDraft(id string, now time.Time) *Draft {
	return &Draft{ID: id, lastSeen: now}
}

// parseSelection maps a raw select value to an optional selection.
func parseSelection(raw string) *string {
	value := strings.TrimSpace(raw)
	if value == "" || value == noneSelected {
		return nil
	}
	return &value
}

func sameSelection(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (d *Draft) touch(now time.Time) {
	d.mu.Lock()
	d.lastSeen = now
	d.mu.Unlock()
}

func (d *Draft) idleSince(now time.Time) time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return now.Sub(d.lastSeen)
}

func (d *Draft) SetFields(form FormData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.form = form
}

// UpdateFields applies contact fields by form input name. Nothing is written
// unless every name is known.
func (d *Draft) UpdateFields(fields map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for name := range fields {
		if d.formField(name) == nil {
			return &apiError{Status: http.StatusBadRequest, Code: "invalid_payload", Message: "Unknown field " + name}
		}
	}
	for name, value := range fields {
		*d.formField(name) = value
	}
	return nil
}

// formField is called with mu held.
func (d *Draft) formField(name string) *string {
	switch name {
	case "name":
		return &d.form.Name
	case "email":
		return &d.form.Email
	case "whatsapp":
		return &d.form.Whatsapp
	}
	return nil
}

func (d *Draft) hasRegions() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regions) > 0
}

func (d *Draft) SetRegions(regions []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.regions = slices.Clone(regions)
}

// knowsRegion reports whether code is in the loaded region list. An unloaded
// list knows nothing and accepts everything.
func (d *Draft) knowsRegion(code string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.regions) == 0 || slices.Contains(d.regions, code)
}

// SelectRegion records the region and reports whether a city fetch must be
// issued. Choosing "none" issues nothing, and neither does re-choosing the
// current region once its cities are loaded. The city selection is left alone.
func (d *Draft) SelectRegion(region *string) (cityTicket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if sameSelection(d.region, region) {
		return d.missingCitiesLocked()
	}
	d.region = region
	d.regionGeneration++
	if region == nil {
		return cityTicket{}, false
	}
	return cityTicket{Region: *region, Generation: d.regionGeneration}, true
}

// MissingCities returns a ticket for the selected region when its city list
// has not been loaded, e.g. after a failed fetch.
func (d *Draft) MissingCities() (cityTicket, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.missingCitiesLocked()
}

// missingCitiesLocked keeps the current generation so a fetch still in flight
// for the same region stays valid.
func (d *Draft) missingCitiesLocked() (cityTicket, bool) {
	if d.region == nil || d.citiesRegion == *d.region {
		return cityTicket{}, false
	}
	return cityTicket{Region: *d.region, Generation: d.regionGeneration}, true
}

// ApplyCities stores a city list if ticket is still current and reports
// whether it did.
func (d *Draft) ApplyCities(ticket cityTicket, cities []string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if ticket.Generation != d.regionGeneration {
		return false
	}
	d.cities = slices.Clone(cities)
	d.citiesRegion = ticket.Region
	return true
}

func (d *Draft) SelectCity(city *string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.city = city
}

// ResolveInitialPosition sets the map center from the first geolocation fix.
// Later fixes are ignored.
func (d *Draft) ResolveInitialPosition(c Coordinate) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialResolved {
		return false
	}
	d.initialPosition = c
	d.initialResolved = true
	d.geolocationError = ""
	return true
}

func (d *Draft) FailGeolocation(reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.initialResolved {
		return
	}
	d.geolocationError = reason
}

// SelectPosition stores a map click and clears the address hint of the old point.
func (d *Draft) SelectPosition(c Coordinate) positionTicket {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.position = c
	d.positionSet = true
	d.positionGeneration++
	d.addressHint = ""
	return positionTicket{Position: c, Generation: d.positionGeneration}
}

func (d *Draft) ApplyAddressHint(ticket positionTicket, hint string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ticket.Generation != d.positionGeneration {
		return false
	}
	d.addressHint = hint
	return true
}

// ToggleItem flips membership of id and returns whether it is now selected.
func (d *Draft) ToggleItem(id int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items = d.items.toggle(id)
	return d.items.contains(id)
}

// beginSubmit marks the draft as being submitted; a second concurrent submit is refused.
func (d *Draft) beginSubmit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.submitting {
		return &apiError{Status: http.StatusConflict, Code: "submit_in_progress", Message: "This form is already being submitted"}
	}
	d.submitting = true
	return nil
}

func (d *Draft) endSubmit() {
	d.mu.Lock()
	d.submitting = false
	d.mu.Unlock()
}

// Payload assembles the write body from current state.
func (d *Draft) Payload() PointPayload {
	d.mu.Lock()
	defer d.mu.Unlock()

	payload := PointPayload{
		Name:      d.form.Name,
		Email:     d.form.Email,
		Whatsapp:  d.form.Whatsapp,
		Latitude:  d.position.Latitude,
		Longitude: d.position.Longitude,
		Items:     make([]int, len(d.items)),
	}
	copy(payload.Items, d.items)
	if d.region != nil {
		payload.UF = *d.region
	}
	if d.city != nil {
		payload.City = *d.city
	}
	return payload
}

func (d *Draft) View() DraftView {
	d.mu.Lock()
	defer d.mu.Unlock()

	view := DraftView{
		ID:               d.ID,
		Name:             d.form.Name,
		Email:            d.form.Email,
		Whatsapp:         d.form.Whatsapp,
		InitialPosition:  d.initialPosition,
		GeolocationError: d.geolocationError,
		AddressHint:      d.addressHint,
		Items:            slices.Clone([]int(d.items)),
		Regions:          slices.Clone(d.regions),
		Cities:           slices.Clone(d.cities),
		CitiesUF:         d.citiesRegion,
	}
	if view.Items == nil {
		view.Items = []int{}
	}
	if view.Regions == nil {
		view.Regions = []string{}
	}
	if view.Cities == nil {
		view.Cities = []string{}
	}
	if d.region != nil {
		region := *d.region
		view.UF = &region
	}
	if d.city != nil {
		city := *d.city
		view.City = &city
	}
	if d.positionSet {
		position := d.position
		view.Position = &position
	}
	return view
}

// MapCenter is where the map opens: the picked point, else the geolocation fix.
func (v DraftView) MapCenter() Coordinate {
	if v.Position != nil {
		return *v.Position
	}
	return v.InitialPosition
}

func (v DraftView) ItemSelected(id int) bool {
	return slices.Contains(v.Items, id)
}
