package generation

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ClassifyStatus maps an upstream HTTP status plus the provider's error text
// to a failure kind. Adapters call it so every provider is classified by the
// same rules.
func ClassifyStatus(status int, detail ...string) Kind {
	text := strings.ToLower(strings.Join(detail, " "))

	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusBadRequest && mentionsAPIKey(text):
		// Gemini reports a bad key as INVALID_ARGUMENT.
		return KindAuth
	case status == http.StatusTooManyRequests:
		if strings.Contains(text, "quota") || strings.Contains(text, "billing") {
			return KindQuotaExceeded
		}
		return KindRateLimited
	case status == http.StatusPaymentRequired:
		return KindQuotaExceeded
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return KindTimeout
	case status >= 500:
		return KindUnavailable
	default:
		return KindUnknown
	}
}

func mentionsAPIKey(text string) bool {
	return strings.Contains(text, "api key") ||
		strings.Contains(text, "api_key") ||
		strings.Contains(text, "credential")
}

// ClassifyTransport maps an error that carries no HTTP status, such as a
// dial failure or a deadline, to a failure kind.
func ClassifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindUnavailable
	}
	return KindUnknown
}

// ParseRetryAfter reads a Retry-After header value given either as seconds
// or as an HTTP date. It returns zero when the value is absent or unusable.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}
