package api

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// clientIP returns the address used as the rate-limit key. The first hop of
// X-Forwarded-For wins when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// fingerprint identifies a submission body for Idempotency-Key checks.
func fingerprint(playerID, name string, score float64) string {
	d := xxhash.New()
	_, _ = d.WriteString(playerID)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(name)
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(strconv.FormatFloat(score, 'g', -1, 64))
	return strconv.FormatUint(d.Sum64(), 16)
}

// parseLimit reads ?limit=N. Missing, malformed or non-positive values give
// def; values above maxLimit are capped.
func parseLimit(raw string, def, maxLimit int) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		n = def
	}
	if n > maxLimit {
		n = maxLimit
	}
	return n
}
