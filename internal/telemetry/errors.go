package telemetry

import "github.com/vpsmonitor/vps-agent/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")
	ErrInvalidAddr   = errors.ErrorCode("telemetry_invalid_addr")

	// Endpoint Errors
	ErrListen          = errors.ErrorCode("telemetry_listen_failed")
	ErrServiceShutdown = errors.ErrorCode("telemetry_service_shutdown_failed")
)
