package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldInvoiceID   = "invoice_id"
	FieldAggregateID = "aggregate_id"
	FieldUtilityType = "utility_type"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldUsageUnit   = "usage_unit"
	FieldAmountCents = "amount_cents"
	FieldReference   = "payment_reference"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentIngest    = "ingest"
	ComponentExtract   = "extract"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentWorker    = "worker"
	ComponentPayment   = "payment"
	ComponentAuth      = "auth"
	ComponentRateLimit = "rate_limit"
)

// Operations defines standard operation names
const (
	OpCreate      = "create"
	OpRead        = "read"
	OpUpdate      = "update"
	OpList        = "list"
	OpIngest      = "ingest"
	OpConsolidate = "consolidate"
	OpCheckout    = "checkout"
	OpSettle      = "settle"
	OpShutdown    = "shutdown"
	OpStartup     = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithAggregate(userID int64, year, month int, unit string) LogFields {
	f[FieldUserID] = userID
	f[FieldYear] = year
	f[FieldMonth] = month
	f[FieldUsageUnit] = unit
	return f
}

// ToArgs flattens the fields into alternating key/value pairs for slog.
func (f LogFields) ToArgs() []any {
	args := make([]any, 0, len(f)*2)
	for k, v := range f {
		args = append(args, k, v)
	}
	return args
}
