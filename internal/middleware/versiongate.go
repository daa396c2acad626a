package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

// VersionGate rejects a request whose `:v` path parameter names an API
// version numerically greater than the daemon's own, mirroring the
// daemon's "vX.Y" versioned route prefixes (e.g. "v0.13").
//
// This middleware has no analogue in the teacher — the teacher's API is
// unversioned — but it is written in the same gin.HandlerFunc idiom as
// the rest of this package.
func VersionGate(daemonVersion string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !VersionSupported(daemonVersion, c.Param("v")) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"msg": "unsupported API version"})
			return
		}
		c.Next()
	}
}

// VersionSupported reports whether requested is safe to serve against
// daemonVersion — i.e. not numerically greater than it. A malformed
// daemonVersion or requested version is treated as supported (the gate
// only rejects versions it can parse and compare), matching VersionGate's
// pass-through behavior for non-numeric version strings.
//
// Exported so callers outside this package's HTTP middleware chain (for
// instance a peer binary picking its own default requested version) can
// check compatibility against a daemon version at startup instead of
// discovering a mismatch from a 404 at request time.
func VersionSupported(daemonVersion, requested string) bool {
	daemon, ok := parseAPIVersion(daemonVersion)
	if !ok {
		return true
	}
	req, ok := parseAPIVersion(requested)
	if !ok {
		return true
	}
	return req <= daemon
}

// parseAPIVersion turns "v0.13" into 0.13 for numeric comparison.
func parseAPIVersion(raw string) (float64, bool) {
	raw = strings.TrimPrefix(raw, "v")
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
