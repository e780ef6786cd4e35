package log

// Shared structured-log field names.
const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor (matches internal/auth context keys)
	FieldUsername = "username"

	// Domain
	FieldRoom    = "room"
	FieldService = "service"
)
