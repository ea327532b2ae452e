package main

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *App) regionsHandler(c *gin.Context) {
	regions, err := a.geography.Regions(c.Request.Context())
	if err != nil {
		writeAPIError(c, networkFailure("Could not load the list of states", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"regions": regions})
}

func (a *App) citiesHandler(c *gin.Context) {
	uf := parseRegion(c.Param("uf"))
	if uf == nil {
		writeAPIError(c, validationFailure("region_required", "Select a state first"))
		return
	}
	cities, err := a.geography.Cities(c.Request.Context(), *uf)
	if err != nil {
		writeAPIError(c, networkFailure("Could not load the cities of "+*uf, err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"uf": *uf, "cities": cities})
}

func (a *App) itemsHandler(c *gin.Context) {
	items, err := a.catalogItems(c.Request.Context())
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// draftHandler returns the caller's draft, starting one if needed. This is
// the mount call of the page script.
func (a *App) draftHandler(c *gin.Context) {
	draft, created, err := a.ensureDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if created {
		a.log.Info("draft started", "draft_id", draft.ID)
	}
	if err := a.loadRegions(c.Request.Context(), draft); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

func (a *App) draftFieldsHandler(c *gin.Context) {
	draft, err := a.requireDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	var body map[string]string
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, validationFailure("invalid_payload", "Invalid payload"))
		return
	}
	for name, value := range body {
		body[name] = strings.TrimSpace(value)
	}
	if err := draft.UpdateFields(body); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

func (a *App) draftRegionHandler(c *gin.Context) {
	draft, err := a.requireDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	var body struct {
		UF *string `json:"uf"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, validationFailure("invalid_payload", "Invalid payload"))
		return
	}
	var region *string
	if body.UF != nil {
		region = parseRegion(*body.UF)
	}
	if err := a.selectRegion(c.Request.Context(), draft, region); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

func (a *App) draftCityHandler(c *gin.Context) {
	draft, err := a.requireDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	var body struct {
		City *string `json:"city"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, validationFailure("invalid_payload", "Invalid payload"))
		return
	}
	var city *string
	if body.City != nil {
		city = parseSelection(*body.City)
	}
	if err := a.selectCity(c.Request.Context(), draft, city); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

type coordinateBody struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (b coordinateBody) coordinate() (*Coordinate, bool) {
	if b.Latitude == nil && b.Longitude == nil {
		return nil, true
	}
	if b.Latitude == nil || b.Longitude == nil {
		return nil, false
	}
	return &Coordinate{Latitude: *b.Latitude, Longitude: *b.Longitude}, true
}

func (a *App) draftPositionHandler(c *gin.Context) {
	draft, err := a.requireDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	var body coordinateBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, validationFailure("invalid_payload", "Invalid payload"))
		return
	}
	at, ok := body.coordinate()
	if !ok || at == nil {
		writeAPIError(c, validationFailure("position_required", "Latitude and longitude are required"))
		return
	}
	if err := a.selectPosition(draft, *at); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

func (a *App) draftGeolocationHandler(c *gin.Context) {
	draft, err := a.requireDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	var body struct {
		coordinateBody
		Error string `json:"error"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		writeAPIError(c, validationFailure("invalid_payload", "Invalid payload"))
		return
	}
	at, ok := body.coordinate()
	if !ok {
		writeAPIError(c, validationFailure("invalid_payload", "Latitude and longitude must be sent together"))
		return
	}
	if err := a.reportGeolocation(draft, at, strings.TrimSpace(body.Error)); err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft.View())
}

func (a *App) draftToggleItemHandler(c *gin.Context) {
	draft, err := a.requireDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		writeAPIError(c, validationFailure("invalid_payload", "Item id must be a number"))
		return
	}
	selected, err := a.toggleItem(c.Request.Context(), draft, id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item_id": id, "selected": selected, "items": draft.View().Items})
}

func (a *App) draftSubmitHandler(c *gin.Context) {
	draft, err := a.requireDraft(c)
	if err != nil {
		writeAPIError(c, err)
		return
	}

	submission, err := a.submitDraft(c.Request.Context(), draft, c.ClientIP())
	if err != nil {
		writeAPIError(c, err)
		return
	}

	a.clearDraft(c, draft)
	c.JSON(http.StatusCreated, gin.H{
		"public_id":   submission.PublicID,
		"receipt_url": a.receiptURL(submission.PublicID),
		"redirect":    "/",
	})
}
