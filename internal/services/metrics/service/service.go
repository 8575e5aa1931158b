// Package service contains the metrics read workflows
package service

import (
	"context"
	"time"

	"gitpulse/internal/modkit/repokit"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/services/metrics/domain"
	"gitpulse/internal/services/metrics/repo"
)

// Limit bounds for the ranked reads
const (
	limitMax             = 100
	defaultRankedLimit   = 50
	defaultCategoryLimit = 20
)

// now is a seam for tests
var now = time.Now

// Config carries the read side settings
type Config struct {
	// WindowsCSV names the query windows, for example "1h,6h,24h,7d".
	// Empty falls back to the built-in default set
	WindowsCSV string
}

// Service defines the metrics read contract
type Service interface {
	domain.ReaderPort
}

// Svc implements the metrics read service
type Svc struct {
	Repo    repo.Storage
	binder  repokit.Binder[repo.Storage]
	db      repokit.TxRunner
	windows domain.WindowSet
}

// New constructs a metrics read service
//
// Panics on nil dependencies or an unparseable window list; both are
// startup wiring mistakes
func New(db repokit.TxRunner, binder repokit.Binder[repo.Storage], cfg Config) *Svc {
	if db == nil {
		panic("metrics.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("metrics.Service requires a non nil Storage binder")
	}
	csv := cfg.WindowsCSV
	if csv == "" {
		csv = domain.DefaultWindowsCSV
	}
	ws, err := domain.ParseWindows(csv)
	if err != nil {
		panic("metrics.Service windows: " + err.Error())
	}
	return &Svc{Repo: binder.Bind(db), binder: binder, db: db, windows: ws}
}

// Trending returns the top entities by velocity sum inside the window
func (s *Svc) Trending(ctx context.Context, q domain.TrendingQuery) ([]domain.TrendingRow, error) {
	w, err := s.resolve(q.Window)
	if err != nil {
		return nil, err
	}
	return s.Repo.Trending(ctx, w, q.Category, clampLimit(q.Limit, defaultRankedLimit))
}

// Rising returns the top entities by net size delta inside the window
func (s *Svc) Rising(ctx context.Context, q domain.TrendingQuery) ([]domain.TrendingRow, error) {
	w, err := s.resolve(q.Window)
	if err != nil {
		return nil, err
	}
	return s.Repo.Rising(ctx, w, q.Category, clampLimit(q.Limit, defaultRankedLimit))
}

// CategoryTotals returns per-category activity inside the window
func (s *Svc) CategoryTotals(ctx context.Context, q domain.CategoryQuery) ([]domain.CategoryRow, error) {
	w, err := s.resolve(q.Window)
	if err != nil {
		return nil, err
	}
	return s.Repo.CategoryTotals(ctx, w, clampLimit(q.Limit, defaultCategoryLimit))
}

// EntityByID returns one entity by its source identifier
func (s *Svc) EntityByID(ctx context.Context, id int64) (domain.Entity, error) {
	if id <= 0 {
		return domain.Entity{}, perr.InvalidArgf("entity id must be positive, got %d", id)
	}
	return s.Repo.EntityByID(ctx, id)
}

// Windows returns the configured window names in declaration order
func (s *Svc) Windows() []string { return s.windows.Names() }

// resolve turns a window name into a concrete half-open range ending now
func (s *Svc) resolve(name string) (domain.Window, error) {
	span, ok := s.windows.Resolve(name)
	if !ok {
		return domain.Window{}, perr.InvalidArgf("unknown window %q", name)
	}
	until := now().UTC()
	return domain.Window{Since: until.Add(-span), Until: until}, nil
}

// clampLimit forces a sane page size; zero and negatives take the default
func clampLimit(n, def int) int {
	if n <= 0 {
		return def
	}
	return min(n, limitMax)
}
