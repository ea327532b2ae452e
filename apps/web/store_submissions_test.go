package main

import (
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func sqlColumnList(t *testing.T, query, from, to string) []string {
	t.Helper()
	start := strings.Index(query, from)
	if start < 0 {
		t.Fatalf("expected %q in query: %s", from, query)
	}
	rest := query[start+len(from):]
	end := strings.Index(rest, to)
	if end < 0 {
		t.Fatalf("expected %q after %q in query: %s", to, from, query)
	}
	var columns []string
	for _, column := range strings.Split(rest[:end], ",") {
		columns = append(columns, strings.TrimSpace(column))
	}
	return columns
}

func TestInsertSubmissionSQLMatchesArgs(t *testing.T) {
	backendID := 42
	submission := Submission{
		PublicID:       "7d7f3d4e-8a3c-4b5e-9a57-2f1e0c6b9d11",
		Status:         submissionStatusCreated,
		BackendPointID: &backendID,
		Payload: PointPayload{
			Name:  "Acme",
			Email: "a@b.com",
			UF:    "SP",
			City:  "Campinas",
			Items: []int{1, 2},
		},
	}

	args, err := submissionInsertArgs(submission)
	if err != nil {
		t.Fatalf("expected args to build: %v", err)
	}

	columns := sqlColumnList(t, insertSubmissionSQL, "point_submissions (", ")")
	wantColumns := []string{"public_id", "status", "payload", "backend_point_id", "error_message", "uf", "city"}
	if strings.Join(columns, ",") != strings.Join(wantColumns, ",") {
		t.Fatalf("unexpected insert columns: %v", columns)
	}
	if len(args) != len(columns) {
		t.Fatalf("unexpected arg count: got %d want %d", len(args), len(columns))
	}
	if !strings.Contains(insertSubmissionSQL, "$7") || strings.Contains(insertSubmissionSQL, "$8") {
		t.Fatalf("expected seven placeholders, got: %s", insertSubmissionSQL)
	}
	if !strings.Contains(insertSubmissionSQL, "RETURNING id, created_at") {
		t.Fatalf("expected id and created_at to be returned, got: %s", insertSubmissionSQL)
	}

	if args[0] != submission.PublicID || args[1] != submissionStatusCreated {
		t.Fatalf("unexpected id/status args: %#v %#v", args[0], args[1])
	}
	var payload PointPayload
	if err := json.Unmarshal(args[2].([]byte), &payload); err != nil {
		t.Fatalf("expected payload json: %v", err)
	}
	if payload.City != "Campinas" || len(payload.Items) != 2 {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if got := args[3].(sql.NullInt64); !got.Valid || got.Int64 != 42 {
		t.Fatalf("unexpected backend point id: %#v", got)
	}
	if got := args[4].(sql.NullString); got.Valid {
		t.Fatalf("expected null error message, got %#v", got)
	}
	if args[5] != "SP" || args[6] != "Campinas" {
		t.Fatalf("unexpected uf/city args: %#v %#v", args[5], args[6])
	}
}

func TestInsertArgsOfFailedSubmission(t *testing.T) {
	message := "backend error (500): boom"
	args, err := submissionInsertArgs(Submission{PublicID: "p1", Status: submissionStatusFailed, Error: &message})
	if err != nil {
		t.Fatalf("expected args to build: %v", err)
	}
	if got := args[3].(sql.NullInt64); got.Valid {
		t.Fatalf("expected null backend point id, got %#v", got)
	}
	if got := args[4].(sql.NullString); !got.Valid || got.String != message {
		t.Fatalf("unexpected error message: %#v", got)
	}
}

func TestSelectSubmissionSQLMatchesScanTargets(t *testing.T) {
	columns := sqlColumnList(t, selectSubmissionByPublicIDSQL, "SELECT", "FROM")
	wantColumns := []string{"id", "public_id", "status", "payload", "backend_point_id", "error_message", "created_at"}
	if strings.Join(columns, ",") != strings.Join(wantColumns, ",") {
		t.Fatalf("unexpected select columns: %v", columns)
	}

	var row submissionRow
	if got := len(row.scanTargets()); got != len(columns) {
		t.Fatalf("unexpected scan target count: got %d want %d", got, len(columns))
	}
	if !strings.Contains(selectSubmissionByPublicIDSQL, "WHERE public_id = $1") {
		t.Fatalf("expected lookup by public id, got: %s", selectSubmissionByPublicIDSQL)
	}
}

func TestSubmissionRowMapping(t *testing.T) {
	createdAt := time.Date(2026, 3, 1, 9, 30, 0, 0, time.FixedZone("BRT", -3*3600))
	row := submissionRow{
		ID:             7,
		PublicID:       "7d7f3d4e-8a3c-4b5e-9a57-2f1e0c6b9d11",
		Status:         submissionStatusCreated,
		Payload:        []byte(`{"name":"Acme","email":"a@b.com","whatsapp":"123","uf":"SP","city":"Campinas","latitude":-23.5,"longitude":-46.6,"items":[1,2]}`),
		BackendPointID: sql.NullInt64{Int64: 42, Valid: true},
		CreatedAt:      createdAt,
	}

	submission, err := row.submission()
	if err != nil {
		t.Fatalf("expected row to map: %v", err)
	}
	if submission.ID != 7 || submission.PublicID != row.PublicID || submission.Status != submissionStatusCreated {
		t.Fatalf("unexpected identity: %+v", submission)
	}
	if submission.CreatedAt != "2026-03-01T12:30:00Z" {
		t.Fatalf("expected UTC timestamp, got %s", submission.CreatedAt)
	}
	if submission.BackendPointID == nil || *submission.BackendPointID != 42 {
		t.Fatalf("unexpected backend point id: %v", submission.BackendPointID)
	}
	if submission.Error != nil {
		t.Fatalf("expected no error message, got %q", *submission.Error)
	}
	if submission.Payload.City != "Campinas" || submission.Payload.Latitude != -23.5 {
		t.Fatalf("unexpected payload: %+v", submission.Payload)
	}

	row.BackendPointID = sql.NullInt64{}
	row.ErrorMessage = sql.NullString{String: "boom", Valid: true}
	submission, err = row.submission()
	if err != nil {
		t.Fatalf("expected row to map: %v", err)
	}
	if submission.BackendPointID != nil {
		t.Fatalf("expected null backend point id, got %d", *submission.BackendPointID)
	}
	if submission.Error == nil || *submission.Error != "boom" {
		t.Fatalf("unexpected error message: %v", submission.Error)
	}
}

func TestSubmissionRowRejectsBrokenPayload(t *testing.T) {
	row := submissionRow{PublicID: "p1", Payload: []byte(`{not json`)}
	if _, err := row.submission(); err == nil {
		t.Fatal("expected broken payload to fail")
	}
}
