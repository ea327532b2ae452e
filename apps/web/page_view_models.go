package main

import (
	"strings"
	"sync"
	"time"
)

const (
	pageDefaultLanguage        = "pt"
	pageDisplayTimestampLayout = "02/01/2006 15:04"
	pageTemplateHomePath       = "templates/home.tmpl"
	pageTemplateCreatePath     = "templates/create_point.tmpl"
	noticePointCreated         = "point_created"
)

var (
	pageTranslations = map[string]map[string]string{
		"pt": {
			"app_title":                 "Ecoleta",
			"page_title_home":           "Seu marketplace de coleta de resíduos",
			"page_title_create":         "Cadastro do ponto de coleta",
			"home_lead":                 "Ajudamos pessoas a encontrarem pontos de coleta de forma eficiente.",
			"home_create_link":          "Cadastre um ponto de coleta",
			"back_home":                 "Voltar para home",
			"notice_point_created":      "Ponto de coleta cadastrado com sucesso!",
			"section_data":              "Dados",
			"field_name":                "Nome da entidade",
			"field_email":               "E-mail",
			"field_whatsapp":            "Whatsapp",
			"section_address":           "Endereços",
			"section_address_hint":      "Selecione o endereço no mapa",
			"field_latitude":            "Latitude",
			"field_longitude":           "Longitude",
			"field_uf":                  "Estado (UF)",
			"field_city":                "Cidade",
			"select_uf":                 "Selecione uma UF",
			"select_city":               "Selecione uma cidade",
			"section_items":             "Ítens de coleta",
			"section_items_hint":        "Selecione um ou mais ítens abaixo",
			"submit_button":             "Cadastrar ponto de coleta",
			"geolocation_unavailable":   "Não foi possível obter sua localização. Clique no mapa para marcar o ponto.",
			"address_hint_label":        "Endereço aproximado",
			"error_regions_load_failed": "Não foi possível carregar a lista de estados.",
			"error_items_load_failed":   "Não foi possível carregar os ítens de coleta.",
			"error_submit_failed":       "Não foi possível cadastrar o ponto de coleta. Tente novamente.",
			"error_session_failed":      "Não foi possível iniciar o formulário.",
			"error_receipt_unavailable": "Comprovante indisponível.",
		},
		"en": {
			"app_title":                 "Ecoleta",
			"page_title_home":           "Your waste collection marketplace",
			"page_title_create":         "Register a collection point",
			"home_lead":                 "We help people find collection points efficiently.",
			"home_create_link":          "Register a collection point",
			"back_home":                 "Back to home",
			"notice_point_created":      "Collection point registered!",
			"section_data":              "Details",
			"field_name":                "Entity name",
			"field_email":               "E-mail",
			"field_whatsapp":            "Whatsapp",
			"section_address":           "Address",
			"section_address_hint":      "Pick the address on the map",
			"field_latitude":            "Latitude",
			"field_longitude":           "Longitude",
			"field_uf":                  "State (UF)",
			"field_city":                "City",
			"select_uf":                 "Select a state",
			"select_city":               "Select a city",
			"section_items":             "Collected items",
			"section_items_hint":        "Select one or more items below",
			"submit_button":             "Register collection point",
			"geolocation_unavailable":   "Your location is unavailable. Click the map to mark the point.",
			"address_hint_label":        "Approximate address",
			"error_regions_load_failed": "Could not load the list of states.",
			"error_items_load_failed":   "Could not load the collected items.",
			"error_submit_failed":       "Could not register the collection point. Try again.",
			"error_session_failed":      "Could not start the form.",
			"error_receipt_unavailable": "Receipt unavailable.",
		},
	}

	pageTimeZoneOnce sync.Once
	pageTimeZone     *time.Location
)

type pageBaseViewData struct {
	Title         string
	Lang          string
	Text          map[string]string
	ErrorMessage  string
	NoticeMessage string
}

type homeViewData struct {
	pageBaseViewData
}

type itemOptionView struct {
	ID       int
	Title    string
	ImageURL string
	Selected bool
}

type createPointViewData struct {
	pageBaseViewData
	Draft        DraftView
	Center       Coordinate
	Items        []itemOptionView
	SelectedUF   string
	SelectedCity string
}

func buildItemOptions(items []Item, draft DraftView) []itemOptionView {
	options := make([]itemOptionView, 0, len(items))
	for _, item := range items {
		options = append(options, itemOptionView{
			ID:       item.ID,
			Title:    item.Title,
			ImageURL: item.ImageURL,
			Selected: draft.ItemSelected(item.ID),
		})
	}
	return options
}

func normalizePageLanguage(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "en":
		return "en"
	default:
		return pageDefaultLanguage
	}
}

// pageLanguageFromHeader picks the first supported language of an Accept-Language header.
func pageLanguageFromHeader(header string) string {
	for _, part := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
		primary := strings.ToLower(strings.SplitN(tag, "-", 2)[0])
		if _, ok := pageTranslations[primary]; ok {
			return primary
		}
	}
	return pageDefaultLanguage
}

func pageTexts(lang string) map[string]string {
	if translations, ok := pageTranslations[normalizePageLanguage(lang)]; ok {
		return translations
	}
	return pageTranslations[pageDefaultLanguage]
}

func pageText(lang, key string) string {
	if value, ok := pageTexts(lang)[key]; ok {
		return value
	}
	if value, ok := pageTranslations[pageDefaultLanguage][key]; ok {
		return value
	}
	return key
}

func formatReceiptTimestamp(raw string) string {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return raw
	}
	return parsed.In(pageTimeLocation()).Format(pageDisplayTimestampLayout)
}

func pageTimeLocation() *time.Location {
	pageTimeZoneOnce.Do(func() {
		location, err := time.LoadLocation("America/Sao_Paulo")
		if err != nil {
			pageTimeZone = time.UTC
			return
		}
		pageTimeZone = location
	})
	return pageTimeZone
}
