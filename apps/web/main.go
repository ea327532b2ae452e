package main

import (
	"context"
	"database/sql"
	"ecoleta/libs/mailer"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const (
	draftCookieName          = "ecoleta_draft"
	defaultDraftTTL          = 2 * time.Hour
	defaultLookupCacheTTL    = 6 * time.Hour
	defaultHTTPTimeout       = 10 * time.Second
	draftCleanupInterval     = time.Minute
	addressHintTimeout       = 15 * time.Second
	confirmationMailTimeout  = 15 * time.Second
	maxEntityNameLength      = 120
	maxWhatsappDigits        = 15
	devCORSOriginLocalhost   = "http://localhost:3000"
	devCORSOriginLoopback    = "http://127.0.0.1:3000"
	trustedProxyLoopbackIPv4 = "127.0.0.1"
	trustedProxyLoopbackIPv6 = "::1"
	defaultGeographyBaseURL  = "https://servicodados.ibge.gov.br/api/v1/localidades"
	defaultBackendBaseURL    = "http://localhost:3333"
)

type Config struct {
	Addr                string
	Env                 string
	DatabaseURL         string
	PublicBaseURL       string
	AppSigningSecret    string
	BackendBaseURL      string
	GeographyBaseURL    string
	GeocoderProvider    string
	MapboxAccessToken   string
	ResendAPIKey        string
	MailerFromAddresses map[string]string
	MailerReplyTo       string
	DraftTTL            time.Duration
	LookupCacheTTL      time.Duration
	HTTPTimeout         time.Duration
}

type App struct {
	cfg *Config
	db  *sql.DB
	log *slog.Logger

	geography Geography
	backend   PointsBackend
	geocoder  Geocoder
	mailer    *mailer.Mailer

	drafts        *draftStore
	submitLimiter *rateLimiter
	templates     *pageTemplateRenderer

	// test hooks for the submission log
	recordSubmission func(ctx context.Context, submission Submission) (Submission, error)
	loadSubmission   func(ctx context.Context, publicID string) (*Submission, error)
}

type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string { return e.Message }

func main() {
	if err := loadDotEnvFile(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		panic(err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		panic(err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		panic(err)
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	var geocoder Geocoder
	mapbox := &MapboxGeocoder{AccessToken: cfg.MapboxAccessToken, Client: httpClient}
	nominatim := &NominatimGeocoder{UserAgent: "Ecoleta-Web/1.0", Client: httpClient}
	switch cfg.GeocoderProvider {
	case "mapbox":
		geocoder = mapbox
	case "nominatim":
		geocoder = nominatim
	case "none":
		geocoder = nil
	default:
		geocoder = &FallbackGeocoder{Primary: mapbox, Secondary: nominatim}
	}

	var mailProvider mailer.Provider
	if cfg.ResendAPIKey != "" {
		mailProvider = mailer.NewResendProvider(cfg.ResendAPIKey)
		logger.Info("mailer initialized", "provider", "resend")
	} else {
		mailProvider = mailer.NewLogProvider(logger)
		logger.Info("mailer initialized", "provider", "log")
	}
	mailClient := newMailer(cfg, mailProvider)

	ibge := &IBGEClient{BaseURL: cfg.GeographyBaseURL, Client: httpClient}
	backend := &EcoletaBackend{BaseURL: cfg.BackendBaseURL, Client: httpClient}

	app := &App{
		cfg:       cfg,
		db:        db,
		log:       logger,
		geography: newCachedGeography(ibge, cfg.LookupCacheTTL),
		backend:   newCachedCatalog(backend, cfg.LookupCacheTTL),
		geocoder:  geocoder,
		mailer:    mailClient,
		drafts:    newDraftStore(cfg.DraftTTL),
		templates: newPageTemplateRenderer(cfg.Env),

		submitLimiter: newRateLimiter(submitRateLimitRequests, submitRateLimitWindow),
	}
	app.recordSubmission = app.storeRecordSubmission
	app.loadSubmission = app.storeGetSubmissionByPublicID

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	app.drafts.startCleanup(cleanupCtx, draftCleanupInterval, logger)
	app.submitLimiter.startCleanup(cleanupCtx, draftCleanupInterval)

	logger.Info(
		"runtime configuration",
		"env", cfg.Env,
		"addr", cfg.Addr,
		"backend_base_url", cfg.BackendBaseURL,
		"geography_base_url", cfg.GeographyBaseURL,
		"draft_ttl", cfg.DraftTTL.String(),
	)

	if err := app.runMigrations(ctx); err != nil {
		panic(err)
	}

	r, err := app.newRouter()
	if err != nil {
		panic(err)
	}

	app.log.Info("starting ecoleta web", "addr", cfg.Addr)
	if err := r.Run(cfg.Addr); err != nil {
		panic(err)
	}
}

func (a *App) newRouter() (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies([]string{trustedProxyLoopbackIPv4, trustedProxyLoopbackIPv6}); err != nil {
		return nil, err
	}
	r.Use(gin.Recovery())
	r.Use(a.loggingMiddleware())
	r.Use(a.corsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if err := a.registerPageRoutes(r); err != nil {
		return nil, err
	}

	api := r.Group("/api/v1")
	{
		api.GET("/regions", a.regionsHandler)
		api.GET("/regions/:uf/cities", a.citiesHandler)
		api.GET("/items", a.itemsHandler)

		draft := api.Group("/draft")
		{
			draft.GET("", a.draftHandler)
			draft.PUT("/fields", a.draftFieldsHandler)
			draft.PUT("/region", a.draftRegionHandler)
			draft.PUT("/city", a.draftCityHandler)
			draft.PUT("/position", a.draftPositionHandler)
			draft.POST("/geolocation", a.draftGeolocationHandler)
			draft.POST("/items/:id/toggle", a.draftToggleItemHandler)
			draft.POST("/submit", a.draftSubmitHandler)
		}
	}
	return r, nil
}

// newMailer picks the sender address for the provider and points replies at
// the contact inbox when one is configured.
func newMailer(cfg *Config, provider mailer.Provider) *mailer.Mailer {
	client := mailer.New(provider, cfg.MailerFromAddresses[provider.Name()])
	if cfg.MailerReplyTo != "" {
		client = client.WithReplyTo(cfg.MailerReplyTo)
	}
	return client
}

func loadConfig() (*Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		host := valueFromEnvKeys("PGHOST", "POSTGRES_HOST")
		if host == "" {
			host = "127.0.0.1"
		}
		port := valueFromEnvKeys("PGPORT", "POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		dbname := valueFromEnvKeys("PGDATABASE", "POSTGRES_DB")
		user := valueFromEnvKeys("PGUSER", "POSTGRES_USER")
		password := valueFromEnvKeys("PGPASSWORD", "POSTGRES_PASSWORD")
		sslmode := valueFromEnvKeys("PGSSLMODE", "POSTGRES_SSLMODE")
		if sslmode == "" {
			sslmode = "disable"
		}
		if dbname != "" && user != "" {
			databaseURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, dbname, sslmode)
		}
	}
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or PG*/POSTGRES_* variables must be configured")
	}

	secret := strings.TrimSpace(os.Getenv("APP_SIGNING_SECRET"))
	if len(secret) < 16 {
		return nil, fmt.Errorf("APP_SIGNING_SECRET must be at least 16 characters")
	}

	publicBase := strings.TrimRight(valueOrDefault("PUBLIC_BASE_URL", "http://localhost:8080"), "/")

	env := strings.TrimSpace(os.Getenv("APP_ENV"))
	if env == "" {
		env = "development"
	}

	cfg := &Config{
		Addr:              valueOrDefault("GIN_ADDR", ":8080"),
		Env:               env,
		DatabaseURL:       databaseURL,
		PublicBaseURL:     publicBase,
		AppSigningSecret:  secret,
		BackendBaseURL:    strings.TrimRight(valueOrDefault("BACKEND_BASE_URL", defaultBackendBaseURL), "/"),
		GeographyBaseURL:  strings.TrimRight(valueOrDefault("GEOGRAPHY_BASE_URL", defaultGeographyBaseURL), "/"),
		GeocoderProvider:  strings.TrimSpace(os.Getenv("GEOCODER_PROVIDER")),
		MapboxAccessToken: strings.TrimSpace(os.Getenv("MAPBOX_ACCESS_TOKEN")),
		ResendAPIKey:      strings.TrimSpace(os.Getenv("RESEND_API_KEY")),
		MailerFromAddresses: map[string]string{
			"resend": valueOrDefault("MAILER_FROM_ADDRESS_RESEND", "noreply@mail.ecoleta.app"),
			"log":    valueOrDefault("MAILER_FROM_ADDRESS_LOG", "noreply@ecoleta.local"),
		},
		MailerReplyTo:  strings.TrimSpace(os.Getenv("MAILER_REPLY_TO")),
		DraftTTL:       defaultDraftTTL,
		LookupCacheTTL: defaultLookupCacheTTL,
		HTTPTimeout:    defaultHTTPTimeout,
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"DRAFT_TTL", &cfg.DraftTTL},
		{"LOOKUP_CACHE_TTL", &cfg.LookupCacheTTL},
		{"HTTP_TIMEOUT", &cfg.HTTPTimeout},
	}
	for _, d := range durations {
		raw := strings.TrimSpace(os.Getenv(d.key))
		if raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%s must be a valid duration", d.key)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("%s must be > 0", d.key)
		}
		*d.target = parsed
	}

	switch cfg.GeocoderProvider {
	case "", "mapbox", "nominatim", "none":
	default:
		return nil, fmt.Errorf("GEOCODER_PROVIDER must be one of mapbox, nominatim, none")
	}

	return cfg, nil
}

func loadDotEnvFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, raw := range strings.Split(string(content), "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			continue
		}
		key := strings.TrimSpace(line[:idx])
		value := strings.Trim(strings.TrimSpace(line[idx+1:]), "\"")
		if os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
	return nil
}

func valueOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func valueFromEnvKeys(keys ...string) string {
	for _, key := range keys {
		value := strings.TrimSpace(os.Getenv(key))
		if value != "" {
			return value
		}
	}
	return ""
}

func (a *App) runMigrations(ctx context.Context) error {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return err
	}

	if _, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		files = append(files, entry.Name())
	}
	sort.Strings(files)

	for _, file := range files {
		var exists bool
		if err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, file).Scan(&exists); err != nil {
			return err
		}
		if exists {
			continue
		}

		content, err := migrationFiles.ReadFile(filepath.Join("migrations", file))
		if err != nil {
			return err
		}

		tx, err := a.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %s failed: %w", file, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (filename) VALUES ($1)`, file); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		a.log.Info("applied migration", "file", file)
	}

	return nil
}

func (a *App) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"ip", c.ClientIP(),
		)
	}
}

func (a *App) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimSpace(c.GetHeader("Origin"))
		if a.isAllowedCORSOrigin(origin) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Headers", "Content-Type")
			c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,OPTIONS")
			c.Header("Vary", "Origin")
		}
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (a *App) isAllowedCORSOrigin(origin string) bool {
	if origin == "" || a.cfg == nil {
		return false
	}
	if a.cfg.PublicBaseURL != "" && origin == a.cfg.PublicBaseURL {
		return true
	}
	if !strings.EqualFold(a.cfg.Env, "development") {
		return false
	}
	return origin == devCORSOriginLocalhost || origin == devCORSOriginLoopback
}

func (a *App) isProduction() bool {
	return a.cfg != nil && strings.EqualFold(a.cfg.Env, "production")
}

func writeAPIError(c *gin.Context, err error) {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, gin.H{"error": apiErr.Code, "message": apiErr.Message})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
}
