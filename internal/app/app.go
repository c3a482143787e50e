// Package app assembles the organizer pipeline from configuration.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fruitsalade/fruitsalade/organizer/internal/access"
	"github.com/fruitsalade/fruitsalade/organizer/internal/classify"
	"github.com/fruitsalade/fruitsalade/organizer/internal/config"
	"github.com/fruitsalade/fruitsalade/organizer/internal/guardrail"
	"github.com/fruitsalade/fruitsalade/organizer/internal/logging"
	"github.com/fruitsalade/fruitsalade/organizer/internal/metadata"
	"github.com/fruitsalade/fruitsalade/organizer/internal/models"
	"github.com/fruitsalade/fruitsalade/organizer/internal/pipeline"
	"github.com/fruitsalade/fruitsalade/organizer/internal/planner"
	"github.com/fruitsalade/fruitsalade/organizer/internal/quota"
	"github.com/fruitsalade/fruitsalade/organizer/internal/retry"
	"github.com/fruitsalade/fruitsalade/organizer/internal/rules"
	"github.com/fruitsalade/fruitsalade/organizer/internal/scope"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage"
	"github.com/fruitsalade/fruitsalade/organizer/internal/storage/drivers"
	"github.com/fruitsalade/fruitsalade/organizer/internal/sysprobe"
)

// usageTracker is both the gate's usage source and the job recorder.
type usageTracker interface {
	guardrail.UsageTracker
	quota.Recorder
}

// App holds the assembled stages.
type App struct {
	Rules      *rules.Rules
	Storage    *storage.Router
	Enumerator *scope.Enumerator
	Gate       *guardrail.Gate
	Extractor  *metadata.Extractor
	Classifier *classify.Classifier
	Planner    *planner.Planner
	Runner     *pipeline.Runner

	db         *sql.DB
	redis      *redis.Client
	usageStore *quota.Store
}

// New builds every stage from cfg. Postgres and Redis connections are
// opened only when a backend asks for them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	r := rules.Default()
	if cfg.RulesFile != "" {
		loaded, err := rules.Load(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		r = loaded
	}
	a.Rules = r

	router, err := drivers.NewRouter(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.Storage = router

	perms, err := a.permissions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	usage, err := a.usage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var probe guardrail.ResourceProbe
	if sysprobe.Supported {
		probe = sysprobe.New("/", cfg.ProbeLatencyAddr)
	} else {
		logging.Warn("system resource probe unavailable on this platform")
	}

	a.Enumerator = scope.New(router, r, scope.Options{DefaultLimit: cfg.PageLimit, MaxLimit: cfg.MaxPageLimit})
	a.Gate = guardrail.New(r, perms, usage, a.Enumerator, probe)
	a.Extractor = metadata.New(router, r, cfg.ExifMaxReadBytes)
	a.Planner = planner.New(r)
	a.Classifier = classify.New(r, a.Planner)

	rc := retry.DefaultConfig()
	if cfg.RetryAttempts > 0 {
		rc.MaxAttempts = cfg.RetryAttempts
	}
	a.Runner = pipeline.New(a.Gate, a.Enumerator, a.Extractor, a.Classifier, a.Planner, usage, pipeline.Config{
		Workers:   cfg.Workers,
		PageLimit: cfg.PageLimit,
		Retry:     rc,
	})

	logging.Info("pipeline assembled",
		zap.String("permissions", cfg.PermissionsBackend),
		zap.String("usage", cfg.UsageBackend),
		zap.String("object_store", cfg.ObjectStoreDriver),
		zap.Int("workers", cfg.Workers))
	ok = true
	return a, nil
}

func (a *App) database(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if a.db != nil {
		return a.db, nil
	}
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	a.db = db
	return db, nil
}

func (a *App) permissions(ctx context.Context, cfg *config.Config) (guardrail.PermissionChecker, error) {
	if cfg.PermissionsBackend != "postgres" {
		return access.NewStatic(cfg.AdminUsers), nil
	}
	db, err := a.database(ctx, cfg)
	if err != nil {
		return nil, err
	}
	store := access.NewStore(db, cfg.AdminUsers)
	if err := store.Migrate(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (a *App) usage(ctx context.Context, cfg *config.Config) (usageTracker, error) {
	switch cfg.UsageBackend {
	case "postgres":
		db, err := a.database(ctx, cfg)
		if err != nil {
			return nil, err
		}
		store := quota.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		a.usageStore = store
		return store, nil
	case "redis":
		client, err := quota.DialRedis(ctx, quota.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.redis = client
		return quota.NewRedisStore(client, ""), nil
	default:
		return quota.NewStatic(models.Usage{}), nil
	}
}

// RunMaintenance prunes old usage rows hourly until ctx is done. It is a
// no-op unless usage lives in Postgres.
func (a *App) RunMaintenance(ctx context.Context) {
	if a.usageStore == nil {
		return
	}
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := a.usageStore.CleanupOld(ctx, 30*24*time.Hour)
			if err != nil {
				logging.Error("usage cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				logging.Info("cleaned up old usage records", zap.Int64("deleted", n))
			}
		}
	}
}

// Close releases storage clients and database connections.
func (a *App) Close() {
	if a.Storage != nil {
		a.Storage.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
