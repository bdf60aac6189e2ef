package sdk

import (
	"context"
	"net/http"
	"time"

	"github.com/Oudwins/wocs/internals/timeouts"
)

const (
	startAttempts = 8
	startBackoff  = 150 * time.Millisecond
)

func IsRunning(baseURL string) bool {
	return IsRunningWithTimeout(baseURL, timeouts.Probe)
}

func IsRunningWithTimeout(baseURL string, timeout time.Duration) bool {
	if baseURL == "" {
		return false
	}
	if timeout <= 0 {
		timeout = timeouts.Probe
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	client := NewClient(
		WithBaseURL(baseURL),
		WithHTTPClient(&http.Client{Timeout: timeout}),
	)
	_, err := client.Version(ctx)
	return err == nil
}

// WaitForStart polls the server with a linear backoff and reports whether it
// came up.
func WaitForStart(baseURL string) bool {
	for i := range startAttempts {
		if IsRunning(baseURL) {
			return true
		}
		time.Sleep(time.Duration(i+1) * startBackoff)
	}
	return false
}
