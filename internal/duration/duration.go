// Package duration converts short duration tokens such as "10m" or "2d"
// into seconds and renders second counts as English phrases.
package duration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var ErrInvalidFormat = errors.New("invalid duration format")

// MaxSeconds is the longest span a time.Duration can hold.
const MaxSeconds = math.MaxInt64 / int64(time.Second)

var multipliers = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 604800,
}

type unit struct {
	seconds int64
	name    string
}

var units = []unit{
	{604800, "week"},
	{86400, "day"},
	{3600, "hour"},
	{60, "minute"},
	{1, "second"},
}

// Parse converts token to seconds. A token ending in s, m, h, d or w scales
// its integer prefix by that unit; anything else is read as a bare second
// count. Unparseable input returns 0 together with ErrInvalidFormat. Zero
// and negative counts parse without error, so callers must still reject
// results <= 0 (see Valid and ParsePositive).
func Parse(token string) (int64, error) {
	token = strings.ToLower(strings.TrimSpace(token))
	if token == "" {
		return 0, ErrInvalidFormat
	}

	number, mult := token, int64(1)
	if m, ok := multipliers[token[len(token)-1]]; ok {
		number, mult = token[:len(token)-1], m
	}
	n, err := strconv.ParseInt(number, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, token)
	}
	if n > math.MaxInt64/mult || n < math.MinInt64/mult {
		return 0, fmt.Errorf("%w: %q overflows", ErrInvalidFormat, token)
	}
	return n * mult, nil
}

// ParsePositive is Parse plus the caller-side rejection of values <= 0 and
// of values above MaxSeconds.
func ParsePositive(token string) (int64, error) {
	seconds, err := Parse(token)
	if err != nil {
		return 0, err
	}
	if !Valid(seconds) || seconds > MaxSeconds {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFormat, token)
	}
	return seconds, nil
}

func Valid(seconds int64) bool {
	return seconds > 0
}

// Format renders seconds largest unit first, e.g. "1 hour and 5 minutes"
// or "2 days, 3 hours, and 10 seconds".
func Format(seconds int64) string {
	if seconds <= 0 {
		return "0 seconds"
	}

	var parts []string
	for _, u := range units {
		count := seconds / u.seconds
		if count == 0 {
			continue
		}
		seconds -= count * u.seconds
		name := u.name
		if count != 1 {
			name += "s"
		}
		parts = append(parts, strconv.FormatInt(count, 10)+" "+name)
	}

	switch len(parts) {
	case 1:
		return parts[0]
	case 2:
		return parts[0] + " and " + parts[1]
	default:
		return strings.Join(parts[:len(parts)-1], ", ") + ", and " + parts[len(parts)-1]
	}
}
