package httpclient

import (
	"net/url"
	"strings"
)

// sensitiveParams are query parameter name fragments redacted from logs,
// matched case-insensitively.
var sensitiveParams = []string{
	"key",
	"token",
	"secret",
	"password",
	"signature",
	"credential",
	"auth",
}

const redacted = "[REDACTED]"

// sanitizeURL renders u for logging with credentials and sensitive query
// values replaced.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	safe := *u
	if safe.User != nil {
		safe.User = url.User(safe.User.Username())
	}
	if safe.RawQuery != "" {
		q := safe.Query()
		for name := range q {
			if isSensitiveParam(name) {
				q.Set(name, redacted)
			}
		}
		safe.RawQuery = q.Encode()
	}
	return safe.String()
}

func isSensitiveParam(name string) bool {
	lower := strings.ToLower(name)
	for _, s := range sensitiveParams {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
