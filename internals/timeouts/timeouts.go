package timeouts

import "time"

const (
	// Probe bounds a liveness check against a server that may not be running.
	Probe = 300 * time.Millisecond
	// Request is the default budget of one SDK call.
	Request = 5 * time.Second
	// ReadHeader bounds how long the HTTP server waits for request headers.
	ReadHeader = 10 * time.Second
	// Shutdown is the grace period for in-flight requests on exit.
	Shutdown = 5 * time.Second
)
