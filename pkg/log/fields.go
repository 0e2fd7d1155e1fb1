package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Relay
	FieldConnID    = "conn_id"
	FieldUsername  = "username"
	FieldRoom      = "room"
	FieldMessageID = "message_id"
	FieldEvent     = "event"

	// Service
	FieldService = "service"
)
