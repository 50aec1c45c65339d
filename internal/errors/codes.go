package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrAlreadyRunning  ErrorCode = "already_running"

	// Configuration errors
	ErrInvalidConfig   ErrorCode = "invalid_configuration"
	ErrMissingConfig   ErrorCode = "missing_configuration"
	ErrReadConfig      ErrorCode = "read_config_failed"
	ErrInvalidLogLevel ErrorCode = "invalid_log_level"

	// Initialization errors
	ErrInitFailed ErrorCode = "initialization_failed"

	// Collection errors
	ErrCollectMetrics ErrorCode = "collect_metrics_failed"

	// Delivery errors
	ErrEncodeSnapshot ErrorCode = "encode_snapshot_failed"
	ErrDeliveryFailed ErrorCode = "delivery_failed"

	// Registration errors
	ErrRegistrationFailed ErrorCode = "registration_failed"

	// Loop errors
	ErrUnexpected ErrorCode = "unexpected_error"
)

var errorMessages = map[ErrorCode]string{
	ErrInternal:           "Internal error occurred",
	ErrInvalidArgument:    "Invalid argument provided",
	ErrAlreadyRunning:     "Another agent instance is already running",
	ErrInvalidConfig:      "Invalid configuration",
	ErrMissingConfig:      "Missing configuration",
	ErrReadConfig:         "Failed to read configuration",
	ErrInvalidLogLevel:    "Invalid log level",
	ErrInitFailed:         "Initialization failed",
	ErrCollectMetrics:     "Failed to collect system metrics",
	ErrEncodeSnapshot:     "Failed to encode snapshot",
	ErrDeliveryFailed:     "Failed to deliver snapshot",
	ErrRegistrationFailed: "Failed to register agent",
	ErrUnexpected:         "Unexpected error in monitoring cycle",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
