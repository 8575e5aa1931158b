package github

import (
	"sync"
	"time"

	perr "gitpulse/internal/platform/errors"
)

// defaultBudget seeds fresh credentials; the real numbers arrive with the
// first response's rate headers
const defaultBudget = 5000

var errNoCredentials = perr.New(perr.ErrorCodeUnauthorized, "github: no usable credentials remain")

// credential is one personal access token with its quota window.
// The token itself never appears in logs; idx does
type credential struct {
	idx       int
	token     string
	remaining int
	reset     time.Time
	dead      bool
}

// pool rotates credentials by remaining budget. Methods are safe for
// concurrent use, though Poll is the only production caller
type pool struct {
	mu    sync.Mutex
	creds []*credential
}

func newPool(tokens []string) *pool {
	p := &pool{}
	for i, t := range tokens {
		p.creds = append(p.creds, &credential{idx: i, token: t, remaining: defaultBudget})
	}
	return p
}

// pick returns the live credential with the most remaining budget.
// When every live credential is exhausted it returns a nil credential and
// the wait until the earliest reset; when none are left alive it returns
// errNoCredentials
func (p *pool) pick(at time.Time) (*credential, time.Duration, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var best *credential
	var soonest time.Time
	alive := 0
	for _, c := range p.creds {
		if c.dead {
			continue
		}
		alive++
		// a passed reset restores the window
		if c.remaining == 0 && !c.reset.IsZero() && !at.Before(c.reset) {
			c.remaining = defaultBudget
			c.reset = time.Time{}
		}
		if c.remaining > 0 {
			if best == nil || c.remaining > best.remaining {
				best = c
			}
			continue
		}
		if soonest.IsZero() || (!c.reset.IsZero() && c.reset.Before(soonest)) {
			soonest = c.reset
		}
	}
	if alive == 0 {
		return nil, 0, errNoCredentials
	}
	if best != nil {
		return best, 0, nil
	}
	wait := soonest.Sub(at)
	if wait <= 0 {
		wait = time.Second
	}
	return nil, wait, nil
}

// update records the budget a response reported for c
func (p *pool) update(c *credential, remaining int, reset time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.remaining = remaining
	if !reset.IsZero() {
		c.reset = reset
	}
}

// markDead removes c from rotation for the rest of the process lifetime
func (p *pool) markDead(c *credential) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c.dead = true
}

func (p *pool) alive() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.creds {
		if !c.dead {
			n++
		}
	}
	return n
}
