package main

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"
	"unicode"

	"ecoleta/libs/mailer"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	submissionStatusCreated = "created"
	submissionStatusFailed  = "failed"
)

// Submission is one attempt to register a point, successful or not.
type Submission struct {
	ID             int          `json:"-"`
	PublicID       string       `json:"public_id"`
	CreatedAt      string       `json:"created_at"`
	Status         string       `json:"status"`
	Payload        PointPayload `json:"payload"`
	BackendPointID *int         `json:"backend_point_id,omitempty"`
	Error          *string      `json:"error,omitempty"`
}

var payloadValidator = validator.New()

// validatePointPayload checks what the browser's required/type attributes
// used to check, plus consistency with the lists the user picked from.
func validatePointPayload(payload PointPayload, view DraftView) error {
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		return validationFailure("name_required", "Entity name is required")
	}
	if err := payloadValidator.Var(name, fmt.Sprintf("max=%d", maxEntityNameLength)); err != nil {
		return validationFailure("invalid_name", "Entity name is too long")
	}

	email := strings.TrimSpace(payload.Email)
	if email == "" {
		return validationFailure("invalid_email", "Email is required")
	}
	if err := payloadValidator.Var(email, "email"); err != nil {
		return validationFailure("invalid_email", "Email is invalid")
	}

	if !validWhatsapp(payload.Whatsapp) {
		return validationFailure("invalid_whatsapp", "Whatsapp must be a phone number")
	}

	if payload.UF == "" {
		return validationFailure("region_required", "Select a state")
	}
	if len(view.Regions) > 0 && !containsString(view.Regions, payload.UF) {
		return validationFailure("unknown_region", "Unknown state "+payload.UF)
	}
	if payload.City == "" {
		return validationFailure("city_required", "Select a city")
	}
	if err := checkCity(view, payload.UF, payload.City); err != nil {
		return err
	}

	if view.Position == nil {
		return validationFailure("position_required", "Click the map to mark the point's location")
	}
	if payloadValidator.Var(payload.Latitude, "latitude") != nil || payloadValidator.Var(payload.Longitude, "longitude") != nil {
		return validationFailure("invalid_position", "Latitude or longitude out of range")
	}

	if len(payload.Items) == 0 {
		return validationFailure("items_required", "Select at least one item")
	}
	return nil
}

func validWhatsapp(raw string) bool {
	digits := 0
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == ' ', r == '-', r == '(', r == ')', r == '+':
		default:
			return false
		}
	}
	return digits > 0 && digits <= maxWhatsappDigits
}

// submitDraft validates the draft, performs the single backend write and
// records the attempt. Only attempts that reach the write count against the
// client's submit throttle. On success the draft is discarded by the caller.
func (a *App) submitDraft(ctx context.Context, draft *Draft, clientIP string) (*Submission, error) {
	if err := draft.beginSubmit(); err != nil {
		return nil, err
	}
	defer draft.endSubmit()

	if err := a.ensureCities(ctx, draft); err != nil {
		return nil, err
	}
	payload := draft.Payload()
	if err := validatePointPayload(payload, draft.View()); err != nil {
		return nil, err
	}
	if err := a.allowSubmit(clientIP); err != nil {
		return nil, err
	}

	submission := Submission{PublicID: uuid.NewString(), Payload: payload}

	created, err := a.backend.CreatePoint(ctx, payload)
	if err != nil {
		message := err.Error()
		submission.Status = submissionStatusFailed
		submission.Error = &message
		if _, logErr := a.recordSubmission(ctx, submission); logErr != nil {
			a.log.Error("failed to record submission", "public_id", submission.PublicID, "err", logErr)
		}
		a.log.Error("point submission failed", "draft_id", draft.ID, "public_id", submission.PublicID, "err", err)
		return nil, networkFailure("Could not register the collection point, try again", err)
	}

	submission.Status = submissionStatusCreated
	if created != nil && created.ID > 0 {
		id := created.ID
		submission.BackendPointID = &id
	}

	stored, err := a.recordSubmission(ctx, submission)
	if err != nil {
		// The point exists in the backend; only the receipt is lost.
		a.log.Error("failed to record submission", "public_id", submission.PublicID, "err", err)
		stored = submission
	}

	a.log.Info("point submitted", "draft_id", draft.ID, "public_id", stored.PublicID, "uf", payload.UF, "city", payload.City, "items", len(payload.Items))

	if a.mailer != nil {
		go func(s Submission) {
			ctx, cancel := context.WithTimeout(context.Background(), confirmationMailTimeout)
			defer cancel()
			if err := a.sendConfirmationEmail(ctx, s); err != nil {
				a.log.Error("failed to send confirmation email", "public_id", s.PublicID, "err", err)
			}
		}(stored)
	}

	return &stored, nil
}

func (a *App) receiptURL(publicID string) string {
	return buildPublicURL(a.cfg.PublicBaseURL, "/create-point/receipts/"+publicID)
}

func buildPublicURL(baseURL, path string) string {
	if strings.HasPrefix(path, "/") {
		return strings.TrimRight(baseURL, "/") + path
	}
	return strings.TrimRight(baseURL, "/") + "/" + path
}

const (
	confirmationSubject  = "Ponto de coleta cadastrado"
	confirmationBodyHTML = `<p>Olá, %s!</p><p>O ponto de coleta em %s - %s foi cadastrado no Ecoleta.</p><p><a href="%s">Baixar comprovante</a></p>`
	confirmationBodyText = "Olá, %s!\n\nO ponto de coleta em %s - %s foi cadastrado no Ecoleta.\nComprovante: %s\n"
)

func (a *App) sendConfirmationEmail(ctx context.Context, s Submission) error {
	link := a.receiptURL(s.PublicID)
	msg := mailer.Message{
		To:      []string{s.Payload.Email},
		Subject: confirmationSubject,
		HTML:    fmt.Sprintf(confirmationBodyHTML, html.EscapeString(s.Payload.Name), html.EscapeString(s.Payload.City), s.Payload.UF, link),
		Text:    fmt.Sprintf(confirmationBodyText, s.Payload.Name, s.Payload.City, s.Payload.UF, link),
	}

	result, err := a.mailer.Send(ctx, msg)
	if err != nil {
		return err
	}
	a.log.Info("confirmation email sent", "public_id", s.PublicID, "provider", a.mailer.ProviderName(), "message_id", result.ProviderMessageID)
	return nil
}

func (a *App) submissionByPublicID(ctx context.Context, publicID string) (*Submission, error) {
	if _, err := uuid.Parse(publicID); err != nil {
		return nil, &apiError{Status: http.StatusNotFound, Code: "submission_not_found", Message: "Submission not found"}
	}
	submission, err := a.loadSubmission(ctx, publicID)
	if err != nil {
		return nil, err
	}
	if submission == nil || submission.Status != submissionStatusCreated {
		return nil, &apiError{Status: http.StatusNotFound, Code: "submission_not_found", Message: "Submission not found"}
	}
	return submission, nil
}
