package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"
	FieldCategory   = "category"
	FieldRecordID   = "record_id"
	FieldRecords    = "records"
	FieldRevision   = "revision"
	FieldBackend    = "backend"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentTracker   = "tracker"
	ComponentStorage   = "storage"
	ComponentRemote    = "remote"
	ComponentReplay    = "replay"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentCatalog   = "catalog"
	ComponentCache     = "cache"
	ComponentSecurity  = "security"
	ComponentRateLimit = "rate_limit"
	ComponentBackend   = "backend"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpDelete    = "delete"
	OpReplace   = "replace"
	OpSave      = "save"
	OpLoad      = "load"
	OpSubscribe = "subscribe"
	OpReplay    = "replay"
	OpSeed      = "seed"
	OpRefresh   = "refresh"
	OpShutdown  = "shutdown"
	OpStartup   = "startup"
	OpReconnect = "reconnect"
)
