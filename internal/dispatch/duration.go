package dispatch

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/keygate/internal/errs"
)

const (
	day     = 24 * time.Hour
	maxDays = math.MaxInt64 / int64(day)
)

// ParseDuration accepts Go durations ("90m", "1h") plus whole days ("3d", "30d").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	var (
		d   time.Duration
		err error
	)
	if n, ok := strings.CutSuffix(s, "d"); ok {
		var days int64
		days, err = strconv.ParseInt(n, 10, 64)
		if err == nil && days > maxDays {
			return 0, fmt.Errorf("%w: %q exceeds %dd", errs.ErrInvalidDuration, s, maxDays)
		}
		d = time.Duration(days) * day
	} else {
		d, err = time.ParseDuration(s)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errs.ErrInvalidDuration, s)
	}
	if d <= 0 {
		return 0, errs.ErrInvalidDuration
	}
	return d, nil
}

// FormatDuration prints whole days as "3d" and everything else as a Go duration.
func FormatDuration(d time.Duration) string {
	if d > 0 && d%day == 0 {
		return strconv.FormatInt(int64(d/day), 10) + "d"
	}
	return d.String()
}
