package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/stocktake-backend/api/controllers"
	authcontrollers "github.com/angelmondragon/stocktake-backend/api/controllers/auth"
	"github.com/angelmondragon/stocktake-backend/api/middleware"
	"github.com/angelmondragon/stocktake-backend/internal/auth"
	"github.com/angelmondragon/stocktake-backend/internal/catalog"
	"github.com/angelmondragon/stocktake-backend/internal/projection"
	"github.com/angelmondragon/stocktake-backend/internal/records"
	"github.com/angelmondragon/stocktake-backend/internal/users"
	"github.com/angelmondragon/stocktake-backend/pkg/auth/session"
	"github.com/angelmondragon/stocktake-backend/pkg/calendar"
	"github.com/angelmondragon/stocktake-backend/pkg/config"
	"github.com/angelmondragon/stocktake-backend/pkg/enums"
	"github.com/angelmondragon/stocktake-backend/pkg/logger"
	"github.com/angelmondragon/stocktake-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/stocktake-backend/pkg/redis"
)

type rateLimitStore interface {
	IncrWithTTL(context.Context, string, time.Duration) (int64, error)
}

// Deps carries everything the HTTP surface is wired to. Nil stores disable
// the middleware that depends on them.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	Calendar *calendar.Calendar

	DBPinger    controllers.Pinger
	RedisPinger controllers.Pinger

	Sessions    session.AccessSessionChecker
	RateLimits  rateLimitStore
	Idempotency pkgredis.IdempotencyStore
	Metrics     *metrics.WorkflowMetrics
	Gatherer    prometheus.Gatherer

	Auth       auth.Service
	Users      users.Service
	Catalog    catalog.Service
	Records    records.Service
	Projection projection.Service
}

func NewRouter(d Deps) http.Handler {
	cfg, logg := d.Config, d.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSOrigins),
		middleware.Logging(logg),
		middleware.Metrics(d.Metrics),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginNameLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": d.DBPinger,
			"redis":    d.RedisPinger,
		}))
	})

	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(loginPolicy, d.RateLimits, logg)).Post("/login", authcontrollers.AuthLogin(d.Auth, logg))
		r.Post("/refresh", authcontrollers.AuthRefresh(d.Auth, logg))
		r.Post("/logout", authcontrollers.AuthLogout(d.Auth, cfg.JWT, logg))
		r.With(middleware.Auth(cfg.JWT, d.Sessions, logg)).Post("/change-password", authcontrollers.AuthChangePassword(d.Auth, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))

		r.Get("/me", controllers.Me(d.Users, logg))
		r.Get("/worklist", controllers.Worklist(d.Projection, logg))
		r.Get("/status-grid", controllers.StatusGrid(d.Projection, d.Calendar, logg))

		r.Route("/records", func(r chi.Router) {
			r.Get("/", controllers.RecordList(d.Records, d.Calendar, logg))
			r.Post("/", controllers.RecordCreate(d.Records, logg))
			r.Post("/batch/submit", controllers.RecordSubmitBatch(d.Records, logg))
			r.Get("/{recordId}", controllers.RecordGet(d.Records, logg))
			r.Put("/{recordId}", controllers.RecordUpdate(d.Records, logg))
			r.Delete("/{recordId}", controllers.RecordDelete(d.Records, logg))
			r.Post("/{recordId}/submit", controllers.RecordSubmit(d.Records, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, d.Sessions, logg))
		r.Use(middleware.RequireRole(logg, enums.RoleAdmin))
		r.Use(middleware.Idempotency(d.Idempotency, cfg.Idempotency.TTL, cfg.Stocktake.MaxUploadBytes(), logg))

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/ingest", controllers.CatalogIngest(d.Catalog, d.Calendar, logg))
			r.Post("/upload", controllers.CatalogUpload(d.Catalog, d.Calendar, cfg.Stocktake.MaxUploadBytes(), logg))
			r.Get("/template", controllers.CatalogTemplate(logg))
			r.Get("/items", controllers.CatalogItems(d.Catalog, d.Calendar, logg))
			r.Delete("/days/{day}", controllers.CatalogPurge(d.Catalog, d.Calendar, logg))
		})
		r.Get("/summary", controllers.Summary(d.Projection, d.Calendar, logg))
		r.Get("/progress", controllers.Progress(d.Projection, d.Calendar, logg))
		r.Route("/users", func(r chi.Router) {
			r.Get("/", controllers.UserList(d.Users, logg))
			r.Post("/", controllers.UserCreate(d.Users, logg))
			r.Get("/{userId}", controllers.UserGet(d.Users, logg))
			r.Patch("/{userId}", controllers.UserUpdate(d.Users, logg))
			r.Delete("/{userId}", controllers.UserDelete(d.Users, logg))
		})
	})

	return r
}
