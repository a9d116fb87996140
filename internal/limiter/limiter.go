// Package limiter implements per-(user, operation) sliding-window throttling.
package limiter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Limiter decides whether a user may perform an operation now.
type Limiter interface {
	// Allow records the attempt if it fits in the window and reports whether it was allowed.
	// Denied attempts are not recorded; retryAfter tells when the next slot opens.
	Allow(ctx context.Context, userID int64, op string) (allowed bool, retryAfter time.Duration, err error)
}

// Limit defines window and max count for an operation.
type Limit struct {
	Max    int
	Window time.Duration
}

// DefaultKey names the fallback entry in Limits.
const DefaultKey = "default"

var fallback = Limit{Max: 100, Window: time.Minute}

// Limits maps operation names to limits, with an optional "default" entry.
type Limits map[string]Limit

// For returns the limit for op, falling back to "default" and then to 100/min.
func (l Limits) For(op string) Limit {
	if v, ok := l[op]; ok {
		return v
	}
	if v, ok := l[DefaultKey]; ok {
		return v
	}
	return fallback
}

// ParseLimits parses "op=max/window,..." such as "check=5/1h,redeem=10/1m".
func ParseLimits(s string) (Limits, error) {
	out := Limits{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		op, spec, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(op) == "" {
			return nil, fmt.Errorf("limit %q: want op=max/window", part)
		}
		maxStr, winStr, ok := strings.Cut(spec, "/")
		if !ok {
			return nil, fmt.Errorf("limit %q: want op=max/window", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(maxStr))
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("limit %q: bad max", part)
		}
		win, err := time.ParseDuration(strings.TrimSpace(winStr))
		if err != nil || win <= 0 {
			return nil, fmt.Errorf("limit %q: bad window", part)
		}
		out[strings.TrimSpace(op)] = Limit{Max: n, Window: win}
	}
	return out, nil
}

func bucketKey(userID int64, op string) string {
	return strconv.FormatInt(userID, 10) + ":" + op
}
