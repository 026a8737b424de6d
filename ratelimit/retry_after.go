package ratelimit

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultRetryAfter is used when a throttled response carries no usable hint.
const DefaultRetryAfter = 3 * time.Second

// MaxRetryAfter caps advised waits, including hints too large to represent.
const MaxRetryAfter = 24 * time.Hour

// ParseRetryAfter extracts the server-advised wait from a throttled response.
// The trailing integer token of the description wins ("Too Many Requests:
// retry after 7"), then the Retry-After header as seconds or an HTTP date,
// then DefaultRetryAfter. The result never exceeds MaxRetryAfter.
func ParseRetryAfter(description string, headers map[string]string, now time.Time) time.Duration {
	if seconds, ok := trailingSeconds(description); ok {
		return secondsDuration(seconds)
	}
	if delay, ok := headerRetryAfter(headers, now); ok {
		return min(delay, MaxRetryAfter)
	}
	return DefaultRetryAfter
}

func trailingSeconds(description string) (int64, bool) {
	fields := strings.Fields(description)
	if len(fields) == 0 {
		return 0, false
	}
	return parseSeconds(strings.TrimRight(fields[len(fields)-1], ".;,)"))
}

// parseSeconds accepts non-negative integers; values beyond int64 saturate.
func parseSeconds(raw string) (int64, bool) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) && !strings.HasPrefix(raw, "-") {
			return seconds, true
		}
		return 0, false
	}
	if seconds < 0 {
		return 0, false
	}
	return seconds, true
}

func secondsDuration(seconds int64) time.Duration {
	if seconds >= int64(MaxRetryAfter/time.Second) {
		return MaxRetryAfter
	}
	return time.Duration(seconds) * time.Second
}

func headerRetryAfter(headers map[string]string, now time.Time) (time.Duration, bool) {
	raw := HeaderValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	if seconds, ok := parseSeconds(raw); ok {
		return secondsDuration(seconds), true
	}
	if retryAt, err := httpDate(raw); err == nil && retryAt.After(now) {
		return retryAt.Sub(now), true
	}
	return 0, false
}

func httpDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC1123, value); err == nil {
		return parsed.UTC(), nil
	}
	parsed, err := time.Parse(time.RFC1123Z, value)
	if err != nil {
		return time.Time{}, err
	}
	return parsed.UTC(), nil
}

// HeaderValue looks a header up case-insensitively.
func HeaderValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
