package api

import (
	"net/url"
	"strings"
)

// sensitiveParams are key substrings that always trigger redaction.
var sensitiveParams = []string{
	"token",
	"key",
	"secret",
	"password",
	"authorization",
	"cookie",
	"credential",
}

const redactedValue = "[REDACTED]"

// redactQuery flattens query parameters for storage on a trace, replacing
// sensitive values with [REDACTED]. Repeated parameters keep their first
// value. It returns nil for an empty query.
func redactQuery(q url.Values) map[string]string {
	if len(q) == 0 {
		return nil
	}
	out := make(map[string]string, len(q))
	for key, vals := range q {
		switch {
		case shouldRedact(key):
			out[key] = redactedValue
		case len(vals) > 0:
			out[key] = vals[0]
		default:
			out[key] = ""
		}
	}
	return out
}

// shouldRedact checks if a key matches any sensitive pattern.
func shouldRedact(key string) bool {
	lower := strings.ToLower(key)
	for _, pattern := range sensitiveParams {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}
