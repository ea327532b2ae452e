package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *App) registerPageRoutes(r *gin.Engine) error {
	staticFS, err := pageStaticFileSystem(a.cfg.Env)
	if err != nil {
		return err
	}
	r.StaticFS("/static", staticFS)

	r.GET("/", a.homePageHandler)
	r.GET("/create-point", a.createPointPageHandler)
	r.POST("/create-point", a.createPointSubmitHandler)
	r.GET("/create-point/receipts/:public_id", a.receiptHandler)
	return nil
}

func (a *App) homePageHandler(c *gin.Context) {
	base := a.pageBaseData(c, "page_title_home")
	if strings.TrimSpace(c.Query("notice")) == noticePointCreated {
		base.NoticeMessage = base.Text["notice_point_created"]
	}
	a.renderPageTemplate(c, http.StatusOK, pageTemplateHomePath, homeViewData{pageBaseViewData: base})
}

func (a *App) createPointPageHandler(c *gin.Context) {
	base := a.pageBaseData(c, "page_title_create")
	draft, _, err := a.ensureDraft(c)
	if err != nil {
		a.log.Error("failed to start draft", "err", err)
		base.ErrorMessage = base.Text["error_session_failed"]
		a.renderPageTemplate(c, http.StatusInternalServerError, pageTemplateCreatePath, createPointViewData{pageBaseViewData: base})
		return
	}

	a.renderCreatePoint(c, http.StatusOK, base, draft)
}

// createPointSubmitHandler is the no-script path: every field arrives in one
// form post and goes through the same draft operations as the JSON API.
func (a *App) createPointSubmitHandler(c *gin.Context) {
	base := a.pageBaseData(c, "page_title_create")
	draft, _, err := a.ensureDraft(c)
	if err != nil {
		a.log.Error("failed to start draft", "err", err)
		base.ErrorMessage = base.Text["error_session_failed"]
		a.renderPageTemplate(c, http.StatusInternalServerError, pageTemplateCreatePath, createPointViewData{pageBaseViewData: base})
		return
	}

	if err := a.applyCreatePointForm(c, draft); err != nil {
		base.ErrorMessage = pageErrorMessage(base, err)
		a.renderCreatePoint(c, errorStatus(err), base, draft)
		return
	}

	submission, err := a.submitDraft(c.Request.Context(), draft, c.ClientIP())
	if err != nil {
		base.ErrorMessage = pageErrorMessage(base, err)
		a.renderCreatePoint(c, errorStatus(err), base, draft)
		return
	}

	a.clearDraft(c, draft)
	a.log.Info("point created from form post", "public_id", submission.PublicID)
	c.Redirect(http.StatusSeeOther, "/?notice="+noticePointCreated)
}

func (a *App) applyCreatePointForm(c *gin.Context, draft *Draft) error {
	ctx := c.Request.Context()

	draft.SetFields(FormData{
		Name:     strings.TrimSpace(c.PostForm("name")),
		Email:    strings.TrimSpace(c.PostForm("email")),
		Whatsapp: strings.TrimSpace(c.PostForm("whatsapp")),
	})

	if err := a.loadRegions(ctx, draft); err != nil {
		return err
	}
	if err := a.selectRegion(ctx, draft, parseRegion(c.PostForm("uf"))); err != nil {
		return err
	}
	if err := a.selectCity(ctx, draft, parseSelection(c.PostForm("city"))); err != nil {
		return err
	}

	rawLat := strings.TrimSpace(c.PostForm("latitude"))
	rawLng := strings.TrimSpace(c.PostForm("longitude"))
	if rawLat != "" || rawLng != "" {
		lat, latErr := strconv.ParseFloat(rawLat, 64)
		lng, lngErr := strconv.ParseFloat(rawLng, 64)
		if latErr != nil || lngErr != nil {
			return validationFailure("invalid_position", "Latitude and longitude must be numbers")
		}
		if err := a.selectPosition(draft, Coordinate{Latitude: lat, Longitude: lng}); err != nil {
			return err
		}
	}

	var wanted itemSelection
	for _, raw := range c.PostFormArray("items") {
		id, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			return validationFailure("unknown_item", "Invalid item "+raw)
		}
		if !wanted.contains(id) {
			wanted = append(wanted, id)
		}
	}
	current := draft.View()
	for _, id := range current.Items {
		if !wanted.contains(id) {
			draft.ToggleItem(id)
		}
	}
	for _, id := range wanted {
		if current.ItemSelected(id) {
			continue
		}
		if _, err := a.toggleItem(ctx, draft, id); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) renderCreatePoint(c *gin.Context, status int, base pageBaseViewData, draft *Draft) {
	ctx := c.Request.Context()
	if err := a.loadRegions(ctx, draft); err != nil {
		a.log.Warn("region list unavailable", "draft_id", draft.ID, "err", err)
		if base.ErrorMessage == "" {
			base.ErrorMessage = base.Text["error_regions_load_failed"]
		}
	}

	items, err := a.catalogItems(ctx)
	if err != nil {
		a.log.Warn("item catalog unavailable", "draft_id", draft.ID, "err", err)
		if base.ErrorMessage == "" {
			base.ErrorMessage = base.Text["error_items_load_failed"]
		}
	}

	view := draft.View()
	data := createPointViewData{
		pageBaseViewData: base,
		Draft:            view,
		Center:           view.MapCenter(),
		Items:            buildItemOptions(items, view),
	}
	if view.UF != nil {
		data.SelectedUF = *view.UF
	}
	if view.City != nil {
		data.SelectedCity = *view.City
	}
	a.renderPageTemplate(c, status, pageTemplateCreatePath, data)
}

func (a *App) renderPageTemplate(c *gin.Context, status int, contentTemplatePath string, data any) {
	templates, err := a.templates.templatesForRender(contentTemplatePath)
	if err != nil {
		c.String(http.StatusInternalServerError, "page template error: %v", err)
		return
	}

	c.Status(status)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if executeErr := templates.ExecuteTemplate(c.Writer, "layout", data); executeErr != nil {
		a.log.Error("render page template failed", "error", executeErr)
		if !c.Writer.Written() {
			c.String(http.StatusInternalServerError, "render failure")
		}
	}
}

func (a *App) pageBaseData(c *gin.Context, titleKey string) pageBaseViewData {
	lang := pageLanguageFromRequest(c)
	return pageBaseViewData{
		Title: pageText(lang, titleKey),
		Lang:  lang,
		Text:  pageTexts(lang),
	}
}

func pageLanguageFromRequest(c *gin.Context) string {
	if lang := strings.TrimSpace(c.Query("lang")); lang != "" {
		return normalizePageLanguage(lang)
	}
	return pageLanguageFromHeader(c.GetHeader("Accept-Language"))
}

// pageErrorMessage shows validation messages as they are and replaces
// upstream failures with a translated generic message.
func pageErrorMessage(base pageBaseViewData, err error) string {
	var apiErr *apiError
	if errors.As(err, &apiErr) && apiErr.Status < http.StatusInternalServerError {
		return apiErr.Message
	}
	return base.Text["error_submit_failed"]
}

func errorStatus(err error) int {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}
