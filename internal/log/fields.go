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
	FieldStudentID  = "student_id"
	FieldTeacherID  = "teacher_id"
	FieldAmount     = "amount"
	FieldYearMonth  = "year_month"
	FieldTopic      = "topic"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentLedger     = "ledger"
	ComponentAttendance = "attendance"
	ComponentDirectory  = "directory"
	ComponentCatalog    = "catalog"
	ComponentStorage    = "storage"
	ComponentQueue      = "queue"
	ComponentLive       = "live"
	ComponentWorker     = "worker"
)

// Operations defines standard operation names
const (
	OpRecordPayment = "record_payment"
	OpPaySalary     = "pay_salary"
	OpNextCode      = "next_code"
	OpMarkDaily     = "mark_daily"
	OpMarkBatch     = "mark_batch"
	OpRegister      = "register"
	OpBroadcast     = "broadcast"
	OpStartup       = "startup"
	OpShutdown      = "shutdown"
)
