package engine

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"time"

	"certline/internal/app"
	"certline/internal/compliance"
	"certline/internal/config"
	"certline/internal/domain"
	"certline/internal/engine/auth"
	"certline/internal/events"
	"certline/internal/metrics"
	"certline/internal/overrides"
	"certline/internal/repo"
)

// ErrActorRequired is returned by writes that carry no actor.
var ErrActorRequired = errors.New("actor_id required")

// Engine evaluates one tenant. Derived tasks and compliance records are
// recomputed from the stored snapshot on every call; only overrides persist.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Auth      auth.Service
	Config    *config.Config
	Overrides *overrides.Store
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
	Now       func() time.Time
}

type Option func(*Engine)

// WithClock fixes the clock used for the reference date and for timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.Now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.Logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.Metrics = m }
}

func New(db *sql.DB, cfg *config.Config, opts ...Option) Engine {
	e := Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.Metrics == nil {
		e.Metrics = metrics.New()
	}
	if e.Logger == nil {
		e.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.Auth = auth.Service{Repo: e.Repo}
	e.Events = events.Writer{DB: db, Now: e.Now}
	e.Overrides = overrides.New(
		overrides.WithPersister(e.Repo.Overrides(e.TenantID())),
		overrides.WithClock(e.Now),
	)
	return e
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) TenantID() string {
	if e.Config == nil {
		return ""
	}
	return e.Config.Tenant.ID
}

func (e Engine) location() *time.Location {
	if e.Config == nil {
		return time.UTC
	}
	loc, err := e.Config.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

// ReferenceDate is midnight of the current day in the tenant's timezone.
func (e Engine) ReferenceDate() time.Time {
	n := e.now().In(e.location())
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, n.Location())
}

// Hydrate loads persisted overrides into the in-memory store.
func (e Engine) Hydrate(ctx context.Context) error {
	items, err := e.Repo.ListOverrides(ctx, e.TenantID())
	if err != nil {
		return err
	}
	e.Overrides.Load(items)
	e.Logger.Debug("overrides hydrated", "tenant_id", e.TenantID(), "count", len(items))
	return nil
}

// InitTenant creates a tenant with the default config and makes actorID its admin.
func (e Engine) InitTenant(ctx context.Context, tenantID, name, actorID string) (domain.Tenant, error) {
	cfg := config.Default(tenantID)
	if name != "" {
		cfg.Tenant.Name = name
	}
	if err := app.CreateTenant(ctx, e.Repo, tenantID, cfg, actorID); err != nil {
		return domain.Tenant{}, err
	}
	if err := e.Events.AppendNow(ctx, events.Entry{
		Type: events.TenantInit, TenantID: tenantID, EntityKind: "tenant", EntityID: tenantID, ActorID: actorID,
	}); err != nil {
		return domain.Tenant{}, err
	}
	return e.Repo.GetTenant(ctx, tenantID)
}

func (e Engine) snapshot(ctx context.Context) (domain.Snapshot, error) {
	return e.Repo.LoadSnapshot(ctx, e.TenantID())
}

func (e Engine) labels() map[domain.Category]string {
	if e.Config == nil {
		return nil
	}
	return e.Config.Labels()
}

func (e Engine) reportWarnings(warnings []compliance.Warning) {
	for _, w := range warnings {
		e.Metrics.IncWarning(w.Code)
		e.Logger.Warn("data quality", "code", w.Code, "person_id", w.PersonID,
			"certification_id", w.CertificationID, "position_id", w.PositionID, "message", w.Message)
	}
}

// derive produces the current task list, without overrides applied, and the
// data-quality warnings of the pass.
func (e Engine) derive(ctx context.Context) ([]domain.Task, []compliance.Warning, error) {
	start := time.Now()
	defer e.Metrics.ObserveEvaluation(start)
	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, nil, err
	}
	tasks, warnings := compliance.DeriveTasks(snap, e.ReferenceDate(), e.labels())
	e.reportWarnings(warnings)
	for _, t := range tasks {
		e.Metrics.IncTaskDerived(string(t.Type))
	}
	return tasks, warnings, nil
}

func (e Engine) requireActor(ctx context.Context, actorID, perm string) error {
	if actorID == "" {
		return ErrActorRequired
	}
	return e.Auth.Require(ctx, nil, e.TenantID(), actorID, perm)
}

func (e Engine) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	return e.Repo.LatestEvents(ctx, repo.EventFilter{TenantID: e.TenantID(), Limit: limit})
}
