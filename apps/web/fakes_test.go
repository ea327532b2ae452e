package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"ecoleta/libs/mailer"

	"github.com/gin-gonic/gin"
)

type fakeGeography struct {
	mu         sync.Mutex
	regions    []string
	cities     map[string][]string
	gates      map[string]chan struct{}
	regionsErr error
	citiesErr  error
	cityCalls  []string
	regionHits int
}

func newFakeGeography() *fakeGeography {
	return &fakeGeography{
		regions: []string{"MG", "RJ", "SP"},
		cities: map[string][]string{
			"MG": {"Belo Horizonte", "Uberlândia"},
			"RJ": {"Niterói", "Rio de Janeiro"},
			"SP": {"Campinas", "São Paulo"},
		},
		gates: map[string]chan struct{}{},
	}
}

func (g *fakeGeography) Regions(ctx context.Context) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.regionHits++
	if g.regionsErr != nil {
		return nil, g.regionsErr
	}
	return append([]string(nil), g.regions...), nil
}

func (g *fakeGeography) Cities(ctx context.Context, uf string) ([]string, error) {
	g.mu.Lock()
	g.cityCalls = append(g.cityCalls, uf)
	gate := g.gates[uf]
	cities := append([]string(nil), g.cities[uf]...)
	err := g.citiesErr
	g.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return cities, nil
}

func (g *fakeGeography) calls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cityCalls...)
}

type fakeBackend struct {
	mu        sync.Mutex
	items     []Item
	itemsErr  error
	createErr error
	createdID int
	payloads  []PointPayload
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		items: []Item{
			{ID: 1, Title: "Lâmpadas", ImageURL: "http://localhost:3333/uploads/lampadas.svg"},
			{ID: 2, Title: "Pilhas e Baterias", ImageURL: "http://localhost:3333/uploads/baterias.svg"},
			{ID: 3, Title: "Papéis e Papelão", ImageURL: "http://localhost:3333/uploads/papeis-papelao.svg"},
		},
		createdID: 42,
	}
}

func (b *fakeBackend) Items(ctx context.Context) ([]Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.itemsErr != nil {
		return nil, b.itemsErr
	}
	return append([]Item(nil), b.items...), nil
}

func (b *fakeBackend) CreatePoint(ctx context.Context, payload PointPayload) (*CreatedPoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.payloads = append(b.payloads, payload)
	if b.createErr != nil {
		return nil, b.createErr
	}
	return &CreatedPoint{ID: b.createdID}, nil
}

func (b *fakeBackend) created() []PointPayload {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]PointPayload(nil), b.payloads...)
}

type fakeGeocoder struct {
	hint *AddressHint
	err  error
}

func (g *fakeGeocoder) Geocode(ctx context.Context, at Coordinate) (*AddressHint, error) {
	return g.hint, g.err
}

type recordingMailProvider struct {
	sent chan mailer.Message
}

func (p *recordingMailProvider) Name() string { return "recording" }

func (p *recordingMailProvider) Send(ctx context.Context, msg mailer.Message) (mailer.SendResult, error) {
	p.sent <- msg
	return mailer.SendResult{ProviderMessageID: "rec-1"}, nil
}

type submissionLog struct {
	mu          sync.Mutex
	submissions []Submission
	failWith    error
}

func (l *submissionLog) record(ctx context.Context, s Submission) (Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failWith != nil {
		return s, l.failWith
	}
	s.ID = len(l.submissions) + 1
	s.CreatedAt = "2026-03-01T12:30:00Z"
	l.submissions = append(l.submissions, s)
	return s, nil
}

func (l *submissionLog) load(ctx context.Context, publicID string) (*Submission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, s := range l.submissions {
		if s.PublicID == publicID {
			found := s
			return &found, nil
		}
	}
	return nil, nil
}

func (l *submissionLog) all() []Submission {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Submission(nil), l.submissions...)
}

var errUpstreamDown = errors.New("connection refused")

type testApp struct {
	*App
	geo         *fakeGeography
	points      *fakeBackend
	submissions *submissionLog
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	geography := newFakeGeography()
	backend := newFakeBackend()
	submissions := &submissionLog{}

	app := &App{
		cfg: &Config{
			Env:              "test",
			PublicBaseURL:    "https://ecoleta.example",
			AppSigningSecret: "0123456789abcdef",
			DraftTTL:         time.Hour,
		},
		log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		geography: geography,
		backend:   backend,
		drafts:    newDraftStore(time.Hour),
		templates: newPageTemplateRenderer("test"),
	}
	app.recordSubmission = submissions.record
	app.loadSubmission = submissions.load

	return &testApp{App: app, geo: geography, points: backend, submissions: submissions}
}

// fillDraft puts a draft into a state that passes validation.
// testClientIP is what httptest requests report as the client address.
const testClientIP = "192.0.2.1"

func fillDraft(t *testing.T, app *testApp, draft *Draft) {
	t.Helper()
	ctx := context.Background()
	draft.SetFields(FormData{Name: "Acme", Email: "a@b.com", Whatsapp: "123"})
	if err := app.loadRegions(ctx, draft); err != nil {
		t.Fatalf("load regions: %v", err)
	}
	sp := "SP"
	if err := app.selectRegion(ctx, draft, &sp); err != nil {
		t.Fatalf("select region: %v", err)
	}
	city := "Campinas"
	if err := app.selectCity(ctx, draft, &city); err != nil {
		t.Fatalf("select city: %v", err)
	}
	if err := app.selectPosition(draft, Coordinate{Latitude: -23.5, Longitude: -46.6}); err != nil {
		t.Fatalf("select position: %v", err)
	}
	for _, id := range []int{1, 2} {
		if _, err := app.toggleItem(ctx, draft, id); err != nil {
			t.Fatalf("toggle item %d: %v", id, err)
		}
	}
}
