package domain

import (
	"strconv"
	"strings"
	"time"

	perr "gitpulse/internal/platform/errors"
)

// DefaultWindowsCSV is the stock window set
const DefaultWindowsCSV = "1h,6h,12h,24h,7d,30d"

// WindowSet maps window names onto spans. The token is both the name and
// the duration; a d suffix counts days, everything else parses as a
// plain duration
type WindowSet struct {
	names []string
	spans map[string]time.Duration
}

// ParseWindows parses a window CSV such as "1h,6h,24h,7d"
func ParseWindows(csv string) (WindowSet, error) {
	ws := WindowSet{spans: map[string]time.Duration{}}
	for tok := range strings.SplitSeq(csv, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		d, err := parseSpan(tok)
		if err != nil {
			return WindowSet{}, err
		}
		if _, dup := ws.spans[tok]; dup {
			return WindowSet{}, perr.InvalidArgf("windows: duplicate window %q", tok)
		}
		ws.names = append(ws.names, tok)
		ws.spans[tok] = d
	}
	if len(ws.names) == 0 {
		return WindowSet{}, perr.InvalidArgf("windows: empty window list")
	}
	return ws, nil
}

func parseSpan(tok string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(tok, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, perr.InvalidArgf("windows: bad day window %q", tok)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(tok)
	if err != nil || d <= 0 {
		return 0, perr.InvalidArgf("windows: bad window %q", tok)
	}
	return d, nil
}

// Resolve returns the span for a window name
func (ws WindowSet) Resolve(name string) (time.Duration, bool) {
	d, ok := ws.spans[name]
	return d, ok
}

// Names returns the window names in declaration order
func (ws WindowSet) Names() []string { return ws.names }
