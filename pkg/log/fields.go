package log

const (
	// Request
	FieldRequestID = "request_id"
	FieldMethod    = "method"
	FieldPath      = "path"
	FieldStatus    = "status"
	FieldLatency   = "latency_ms"
	FieldClientIP  = "client_ip"

	// Actor
	FieldUserID = "user_id"

	// Chat
	FieldGroupID   = "group_id"
	FieldMessageID = "message_id"
	FieldChannelID = "channel_id"

	// Service
	FieldService = "service"
)
