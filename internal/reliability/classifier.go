package reliability

import (
	"time"

	"github.com/gorilla/websocket"
)

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// IsRetryableCloseCode classifies upstream websocket close codes worth an
// automatic reconnect. Normal closes and policy rejections are not.
func IsRetryableCloseCode(code int) bool {
	switch code {
	case websocket.CloseAbnormalClosure,
		websocket.CloseInternalServerErr,
		websocket.CloseServiceRestart,
		websocket.CloseTryAgainLater,
		websocket.CloseGoingAway:
		return true
	default:
		return false
	}
}

// IsRetryableUpstreamErrorCode classifies retryable vendor error event codes.
func IsRetryableUpstreamErrorCode(code string) bool {
	switch code {
	case "rate_limit_exceeded", "server_error", "session_overloaded", "connection_reset":
		return true
	default:
		return false
	}
}

// ExponentialBackoff computes a deterministic capped backoff duration.
// Attempt 1 waits base, attempt n waits 2^(n-1)*base.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 1 {
		return base
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
