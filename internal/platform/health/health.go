// Package health exposes the per-worker liveness and readiness surface
package health

import (
	stdctx "context"
	"net/http"
	"sync"
	"time"

	phttp "gitpulse/internal/platform/net/http"
)

// checkTimeout bounds a single readiness pass
const checkTimeout = 2 * time.Second

// Pinger is satisfied by adapters that expose Ping
type Pinger interface {
	Ping(stdctx.Context) error
}

// CheckFunc probes one dependency; nil means healthy
type CheckFunc func(ctx stdctx.Context) error

// Registry holds named readiness checks plus a worker-level degraded flag
type Registry struct {
	service   string
	startedAt time.Time

	mu       sync.Mutex
	names    []string
	checks   map[string]CheckFunc
	degraded string
}

// NewRegistry constructs a Registry for the named worker
func NewRegistry(service string) *Registry {
	return &Registry{
		service:   service,
		startedAt: time.Now(),
		checks:    map[string]CheckFunc{},
	}
}

// Register adds a named readiness check; re-registering a name replaces it
func (g *Registry) Register(name string, fn CheckFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.checks[name]; !ok {
		g.names = append(g.names, name)
	}
	g.checks[name] = fn
}

// RegisterPinger registers a check backed by an adapter's Ping.
// A nil Pinger registers a skipped check so the name still shows up.
func (g *Registry) RegisterPinger(name string, p Pinger) {
	if p == nil {
		g.Register(name, nil)
		return
	}
	g.Register(name, p.Ping)
}

// Degrade marks the worker not-ready with a reason until Clear
func (g *Registry) Degrade(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.degraded = reason
}

// Clear removes the degraded flag
func (g *Registry) Clear() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.degraded = ""
}

// Liveness is the healthz payload
type Liveness struct {
	OK      bool   `json:"ok"      example:"true"`
	Service string `json:"service" example:"gitpulse-ingest"`
	Started string `json:"started" example:"2026-08-25T13:00:00Z"`
	Now     string `json:"now"     example:"2026-08-25T13:05:00Z"`
}

// Check describes a single dependency check
type Check struct {
	Name   string `json:"name"   example:"pg"`
	Status string `json:"status" example:"ok"` // ok fail skipped
	Error  string `json:"error,omitempty" example:"dial tcp 127.0.0.1:5432: connection refused"`
}

// Readiness summarizes readiness
type Readiness struct {
	Status string  `json:"status" example:"ok"` // ok fail
	Checks []Check `json:"checks"`
	Now    string  `json:"now"    example:"2026-08-25T13:05:00Z"`
}

// Mount registers the probe routes
func (g *Registry) Mount(r phttp.Router) {
	r.Get("/healthz", phttp.Handle(g.healthz))
	r.Get("/readyz", phttp.Handle(g.readyz))
}

func (g *Registry) healthz(_ *http.Request) phttp.Response {
	return phttp.OK(Liveness{
		OK:      true,
		Service: g.service,
		Started: g.startedAt.UTC().Format(time.RFC3339),
		Now:     time.Now().UTC().Format(time.RFC3339),
	})
}

func (g *Registry) readyz(r *http.Request) phttp.Response {
	ctx, cancel := stdctx.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	g.mu.Lock()
	names := append([]string(nil), g.names...)
	checks := make(map[string]CheckFunc, len(g.checks))
	for k, v := range g.checks {
		checks[k] = v
	}
	degraded := g.degraded
	g.mu.Unlock()

	run := func(name string, fn CheckFunc) Check {
		if fn == nil {
			return Check{Name: name, Status: "skipped"}
		}
		if err := fn(ctx); err != nil {
			return Check{Name: name, Status: "fail", Error: err.Error()}
		}
		return Check{Name: name, Status: "ok"}
	}

	out := make([]Check, 0, len(names)+1)
	ready := true
	for _, n := range names {
		c := run(n, checks[n])
		if c.Status == "fail" {
			ready = false
		}
		out = append(out, c)
	}
	if degraded != "" {
		ready = false
		out = append(out, Check{Name: "worker", Status: "fail", Error: degraded})
	}

	body := Readiness{
		Status: "ok",
		Checks: out,
		Now:    time.Now().UTC().Format(time.RFC3339),
	}
	if !ready {
		body.Status = "fail"
		return phttp.Response{Status: http.StatusServiceUnavailable, Body: body}
	}
	return phttp.OK(body)
}
