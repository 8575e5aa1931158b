package github

import (
	"io"
	"net/http"
	"strconv"
	"time"
)

// parseRateHeaders reads the primary quota headers. ok is false when the
// response carried no budget information; callers must not zero a budget
// off a header-less response
func parseRateHeaders(h http.Header) (remaining int, reset time.Time, retryAfter int, ok bool) {
	rem := h.Get("X-RateLimit-Remaining")
	ok = rem != ""
	remaining = atoi(rem)
	if rs := h.Get("X-RateLimit-Reset"); rs != "" {
		if sec := atoi(rs); sec > 0 {
			reset = time.Unix(int64(sec), 0).UTC()
		}
	}
	retryAfter = atoi(h.Get("Retry-After"))
	return
}

func atoi(s string) int {
	if s == "" {
		return 0
	}
	i, _ := strconv.Atoi(s)
	return i
}

func drainAndClose(rc io.ReadCloser) error {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 512))
	return rc.Close()
}
