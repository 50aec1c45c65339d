package telemetry

import (
	"context"
	"time"
)

// Recorder receives the agent's own operational events. Implementations must
// be safe for concurrent use.
type Recorder interface {
	ObserveCycle(outcome string, took time.Duration)
	ObserveRegistration(ok bool)
	MarkDelivered(at time.Time)
}

// Service is a Recorder that may own a listener.
type Service interface {
	Recorder
	// Addr is the bound listen address, empty when the endpoint is disabled.
	Addr() string
	Close(ctx context.Context) error
}
