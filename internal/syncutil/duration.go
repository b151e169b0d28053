// Package syncutil contains the pure helpers used by reconciliation: ISO-8601
// duration parsing, short-form classification and content fingerprints.
package syncutil

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ShortMaxSeconds is the longest duration still classified as a short.
const ShortMaxSeconds = 60

// MaxDurationSeconds is the largest duration accepted; it fits the
// duration_seconds column.
const MaxDurationSeconds = math.MaxInt32

// ErrInvalidDuration is returned for strings that are not ISO-8601 durations.
var ErrInvalidDuration = errors.New("invalid ISO-8601 duration")

var durationPattern = regexp.MustCompile(
	`^P(?:(\d+)W)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)(?:\.\d+)?S)?)?$`,
)

// ParseISODuration converts an ISO-8601 duration such as "PT4M13S" or
// "P1DT2H" to whole seconds. Fractional seconds are truncated.
func ParseISODuration(s string) (int, error) {
	m := durationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}
	hasTime := m[3] != "" || m[4] != "" || m[5] != ""
	if !hasTime && (strings.Contains(s, "T") || (m[1] == "" && m[2] == "")) {
		return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, s)
	}

	units := [...]int{7 * 24 * 3600, 24 * 3600, 3600, 60, 1}
	total := 0
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n > (MaxDurationSeconds-total)/unit {
			return 0, fmt.Errorf("%w: %q out of range", ErrInvalidDuration, s)
		}
		total += n * unit
	}
	return total, nil
}

// IsShort reports whether a video of the given length counts as a short.
// Zero means the duration is unknown (live streams, premieres) and is not a short.
func IsShort(seconds int) bool {
	return seconds > 0 && seconds <= ShortMaxSeconds
}
