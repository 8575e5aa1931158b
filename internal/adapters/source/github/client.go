// Package github implements the event feed source against the GitHub REST
// v3 API with credential rotation, conditional fetch and capped retries
package github

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gitpulse/internal/core/event"
	perr "gitpulse/internal/platform/errors"
	"gitpulse/internal/platform/logger"
)

const (
	feedURLDefault   = "https://api.github.com/events"
	defaultTimeout   = 10 * time.Second
	defaultUA        = "gitpulse/1.0"
	defaultPageSize  = 100
	defaultMaxRetry  = 3
	defaultRetryBase = time.Second
	defaultRetryMax  = 60 * time.Second

	apiVersion = "2022-11-28"
)

// Clock and sleep seams for tests
var (
	now   = time.Now
	sleep = sleepCtx
)

// Options configures the Client
type Options struct {
	FeedURL   string
	UserAgent string
	Timeout   time.Duration

	// Comma separated personal access tokens. At least one is expected;
	// the anonymous quota cannot sustain the poll cadence
	TokensCSV string

	PageSize   int
	MaxRetries int
	RetryBase  time.Duration
	RetryMax   time.Duration
}

// Client polls the public event feed. One Poll returns at most one page.
// Not safe for concurrent Poll calls; the ingest loop is the single caller
type Client struct {
	http  *http.Client
	opts  Options
	url   string
	creds *pool
	etag  string
	log   logger.Logger
}

// NewClient builds a Client with defaults filled in
func NewClient(o Options) *Client {
	if o.FeedURL == "" {
		o.FeedURL = feedURLDefault
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUA
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = defaultPageSize
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetry
	}
	if o.RetryBase <= 0 {
		o.RetryBase = defaultRetryBase
	}
	if o.RetryMax <= 0 {
		o.RetryMax = defaultRetryMax
	}
	var toks []string
	if s := strings.TrimSpace(o.TokensCSV); s != "" {
		for t := range strings.SplitSeq(s, ",") {
			t = strings.TrimSpace(t)
			if t != "" {
				toks = append(toks, t)
			}
		}
	}
	sep := "?"
	if strings.Contains(o.FeedURL, "?") {
		sep = "&"
	}
	return &Client{
		http:  &http.Client{Timeout: o.Timeout},
		opts:  o,
		url:   o.FeedURL + sep + "per_page=" + strconv.Itoa(o.PageSize),
		creds: newPool(toks),
		log:   *logger.Named("github"),
	}
}

// Poll fetches at most one page of events. Transient trouble is absorbed:
// once retries run out the cycle returns an empty page and the next tick
// tries again. The errors that do come back are context cancellation and
// the fatal case of zero usable credentials
func (c *Client) Poll(ctx context.Context) ([]event.Raw, error) {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cred, wait, err := c.creds.pick(now())
		if err != nil {
			return nil, err
		}
		if cred == nil {
			c.log.Info().Dur("sleep", wait).Msg("github budgets exhausted waiting for reset")
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
		if err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "github new request failed")
		}
		req.Header.Set("User-Agent", c.opts.UserAgent)
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", apiVersion)
		req.Header.Set("Authorization", "Bearer "+cred.token)
		if c.etag != "" {
			req.Header.Set("If-None-Match", c.etag)
		}

		start := now()
		resp, err := c.http.Do(req)
		lat := now().Sub(start)
		if err != nil {
			if attempts >= c.opts.MaxRetries {
				c.log.Error().Err(err).Int("attempts", attempts).Msg("github transport failed giving up this cycle")
				return nil, nil
			}
			back := c.backoff(attempts)
			attempts++
			c.log.Warn().Err(err).Dur("retry_in", back).Int("attempt", attempts).Msg("github transport error retrying")
			if err := sleep(ctx, back); err != nil {
				return nil, err
			}
			continue
		}

		rem, reset, retryAfter, budget := parseRateHeaders(resp.Header)
		if budget {
			c.creds.update(cred, rem, reset)
		}
		c.log.Debug().
			Int("cred", cred.idx).
			Int("status", resp.StatusCode).
			Int("attempt", attempts).
			Dur("latency", lat).
			Int("rate_remaining", rem).
			Time("rate_reset", reset).
			Msg("github feed response")

		switch resp.StatusCode {
		case http.StatusOK:
			events, derr := decodeFeed(resp.Body, c.log)
			if cerr := resp.Body.Close(); cerr != nil {
				c.log.Error().Err(cerr).Msg("github close body failed")
			}
			if derr != nil {
				c.log.Error().Err(derr).Msg("github feed decode failed dropping page")
				return nil, nil
			}
			c.etag = resp.Header.Get("ETag")
			return events, nil

		case http.StatusNotModified:
			_ = drainAndClose(resp.Body)
			return nil, nil

		case http.StatusUnauthorized:
			_ = drainAndClose(resp.Body)
			c.creds.markDead(cred)
			c.log.Warn().Int("cred", cred.idx).Msg("github credential revoked removing from rotation")
			continue

		case http.StatusForbidden, http.StatusTooManyRequests:
			_ = drainAndClose(resp.Body)
			if budget && rem == 0 {
				// primary quota ran dry mid flight; pick rotates or waits
				continue
			}
			if attempts >= c.opts.MaxRetries {
				c.log.Error().Int("attempts", attempts).Msg("github throttled giving up this cycle")
				return nil, nil
			}
			wait := time.Duration(retryAfter) * time.Second
			if wait <= 0 {
				wait = c.backoff(attempts)
			}
			attempts++
			c.log.Warn().Dur("sleep", wait).Int("attempt", attempts).Msg("github secondary throttle backing off")
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue

		case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			_ = drainAndClose(resp.Body)
			if attempts >= c.opts.MaxRetries {
				c.log.Error().Int("status", resp.StatusCode).Int("attempts", attempts).Msg("github server errors giving up this cycle")
				return nil, nil
			}
			back := c.backoff(attempts)
			attempts++
			c.log.Warn().Int("status", resp.StatusCode).Dur("retry_in", back).Int("attempt", attempts).Msg("github transient error retrying")
			if err := sleep(ctx, back); err != nil {
				return nil, err
			}
			continue

		default:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			_ = resp.Body.Close()
			c.log.Error().Int("status", resp.StatusCode).Str("body", string(body)).Msg("github unexpected status dropping cycle")
			return nil, nil
		}
	}
}

// backoff is exponential from RetryBase with a half jitter, capped at RetryMax
func (c *Client) backoff(attempt int) time.Duration {
	d := min(c.opts.RetryBase<<uint(attempt), c.opts.RetryMax)
	if d < 2 {
		return d
	}
	return d/2 + time.Duration(rand.Int63n(int64(d/2)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
