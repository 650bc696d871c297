package dbx

// ManagerOption configures a DatabaseManager.
type ManagerOption func(*DatabaseManager)

// WithAutoDispose sets whether the connection is disposed after each call made outside a
// transaction. It defaults to true.
func WithAutoDispose(enabled bool) ManagerOption {
	return func(m *DatabaseManager) {
		m.autoDispose = enabled
	}
}

// WithQuerySpecification binds the manager to a query specification.
func WithQuerySpecification(q *QuerySpecification) ManagerOption {
	return func(m *DatabaseManager) {
		m.query = q
	}
}

// WithConnectionContext makes the manager use an existing connection context, e.g. to share
// a transaction between managers.
func WithConnectionContext(c *ConnectionContext) ManagerOption {
	return func(m *DatabaseManager) {
		m.conn = c
	}
}

type execOptions struct {
	capture      **Command
	mapUdtAsJson bool
	mapUdtAsXml  bool
	outputFields string
	timeout      int
}

// ExecOption tunes a single Exec call.
type ExecOption func(*execOptions)

// WithCommandCapture stores the built command in *dest, so the caller can inspect it and read
// output parameters after execution.
func WithCommandCapture(dest **Command) ExecOption {
	return func(o *execOptions) {
		o.capture = dest
	}
}

// WithUdtMapping binds structured parameters as serialized JSON or XML instead of native UDTs.
func WithUdtMapping(asJson bool, asXml bool) ExecOption {
	return func(o *execOptions) {
		o.mapUdtAsJson = asJson
		o.mapUdtAsXml = asXml
	}
}

// WithOutputFields sets the output-field descriptor used to correct integer columns.
func WithOutputFields(outputFields string) ExecOption {
	return func(o *execOptions) {
		o.outputFields = outputFields
	}
}

// WithTimeout overrides the command timeout, in seconds.
func WithTimeout(seconds int) ExecOption {
	return func(o *execOptions) {
		o.timeout = seconds
	}
}

func collectExecOptions(opts []ExecOption) execOptions {
	var o execOptions
	for _, opt := range opts {
		opt(&o)
	}

	return o
}

func specExecOptions(q *QuerySpecification, opts []ExecOption) []ExecOption {
	all := make([]ExecOption, 0, len(opts)+3)
	all = append(all,
		WithUdtMapping(q.MapUdtAsJson, q.MapUdtAsXml),
		WithOutputFields(q.OutputFields),
		WithTimeout(q.Timeout),
	)

	return append(all, opts...)
}
