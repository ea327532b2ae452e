package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	insertSubmissionSQL = `
		INSERT INTO point_submissions (public_id, status, payload, backend_point_id, error_message, uf, city)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	selectSubmissionByPublicIDSQL = `
		SELECT id, public_id, status, payload, backend_point_id, error_message, created_at
		FROM point_submissions
		WHERE public_id = $1
	`
)

// submissionRow mirrors the point_submissions columns read back for a receipt.
type submissionRow struct {
	ID             int
	PublicID       string
	Status         string
	Payload        []byte
	BackendPointID sql.NullInt64
	ErrorMessage   sql.NullString
	CreatedAt      time.Time
}

func (r *submissionRow) scanTargets() []any {
	return []any{&r.ID, &r.PublicID, &r.Status, &r.Payload, &r.BackendPointID, &r.ErrorMessage, &r.CreatedAt}
}

func (r submissionRow) submission() (*Submission, error) {
	submission := Submission{
		ID:        r.ID,
		PublicID:  r.PublicID,
		Status:    r.Status,
		CreatedAt: formatTimestamp(r.CreatedAt),
	}
	if err := json.Unmarshal(r.Payload, &submission.Payload); err != nil {
		return nil, fmt.Errorf("decode submission payload: %w", err)
	}
	if r.BackendPointID.Valid {
		id := int(r.BackendPointID.Int64)
		submission.BackendPointID = &id
	}
	if r.ErrorMessage.Valid {
		message := r.ErrorMessage.String
		submission.Error = &message
	}
	return &submission, nil
}

// submissionInsertArgs returns the values for insertSubmissionSQL in column order.
func submissionInsertArgs(submission Submission) ([]any, error) {
	payload, err := json.Marshal(submission.Payload)
	if err != nil {
		return nil, err
	}

	var backendPointID sql.NullInt64
	if submission.BackendPointID != nil {
		backendPointID = sql.NullInt64{Int64: int64(*submission.BackendPointID), Valid: true}
	}
	var errorMessage sql.NullString
	if submission.Error != nil {
		errorMessage = sql.NullString{String: *submission.Error, Valid: true}
	}
	return []any{
		submission.PublicID,
		submission.Status,
		payload,
		backendPointID,
		errorMessage,
		submission.Payload.UF,
		submission.Payload.City,
	}, nil
}

func (a *App) storeRecordSubmission(ctx context.Context, submission Submission) (Submission, error) {
	args, err := submissionInsertArgs(submission)
	if err != nil {
		return submission, err
	}

	var createdAt time.Time
	if err := a.db.QueryRowContext(ctx, insertSubmissionSQL, args...).Scan(&submission.ID, &createdAt); err != nil {
		return submission, fmt.Errorf("insert point submission: %w", err)
	}

	submission.CreatedAt = formatTimestamp(createdAt)
	return submission, nil
}

func (a *App) storeGetSubmissionByPublicID(ctx context.Context, publicID string) (*Submission, error) {
	var row submissionRow
	err := a.db.QueryRowContext(ctx, selectSubmissionByPublicIDSQL, publicID).Scan(row.scanTargets()...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return row.submission()
}
