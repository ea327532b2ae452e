package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

func (a *App) createDraftToken(draftID string, expiresIn time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"draft_id": draftID,
		"iat":      time.Now().Unix(),
		"exp":      time.Now().Add(expiresIn).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.AppSigningSecret))
}

func (a *App) verifyDraftToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return []byte(a.cfg.AppSigningSecret), nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid draft token")
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	draftID, ok := claims["draft_id"].(string)
	if !ok || draftID == "" {
		return "", fmt.Errorf("missing draft_id")
	}
	return draftID, nil
}

// currentDraft returns the draft named by the request cookie, if it is still live.
func (a *App) currentDraft(c *gin.Context) (*Draft, bool) {
	token, err := c.Cookie(draftCookieName)
	if err != nil {
		return nil, false
	}
	draftID, err := a.verifyDraftToken(token)
	if err != nil {
		return nil, false
	}
	return a.drafts.Get(draftID)
}

// requireDraft is currentDraft for API mutations: a missing or expired draft is an error.
func (a *App) requireDraft(c *gin.Context) (*Draft, error) {
	draft, ok := a.currentDraft(c)
	if !ok {
		return nil, &apiError{Status: http.StatusNotFound, Code: "draft_not_found", Message: "The form session expired, reload the page"}
	}
	return draft, nil
}

// ensureDraft returns the current draft or starts a new one and sets its cookie.
// The bool reports whether the draft was just created.
func (a *App) ensureDraft(c *gin.Context) (*Draft, bool, error) {
	if draft, ok := a.currentDraft(c); ok {
		return draft, false, nil
	}
	draft := a.drafts.Create()
	token, err := a.createDraftToken(draft.ID, a.cfg.DraftTTL)
	if err != nil {
		a.drafts.Discard(draft.ID)
		return nil, false, err
	}
	c.SetCookie(draftCookieName, token, int(a.cfg.DraftTTL.Seconds()), "/", "", a.isProduction(), true)
	return draft, true, nil
}

func (a *App) clearDraft(c *gin.Context, draft *Draft) {
	a.drafts.Discard(draft.ID)
	c.SetCookie(draftCookieName, "", -1, "/", "", a.isProduction(), true)
}
