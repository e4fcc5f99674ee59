package xquery

import (
	"net/url"
	"strconv"
)

// ParseInt returns the named query parameter as int or defaultValue if it is missing or
// malformed.
func ParseInt(query url.Values, name string, defaultValue int) int {
	value := query.Get(name)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// ParseLimit is ParseInt clamped to [0, maxValue]. 0 means no limit.
func ParseLimit(query url.Values, name string, maxValue int) int {
	limit := ParseInt(query, name, 0)
	if limit < 0 {
		return 0
	}
	return min(limit, maxValue)
}
