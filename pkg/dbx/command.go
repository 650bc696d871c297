package dbx

import (
	"context"
	"database/sql"
	"reflect"
	"strings"
	"time"

	"github.com/marcodd23/go-dal-core/pkg/errorx"
)

// Command is a bound, executable query or procedure call.
//
// Text is what is sent to the driver (a procedure call is already wrapped in the provider's
// call syntax). Args are the driver arguments in order. Binders run right before execution,
// once a live connection exists: large object writes and UDT registration happen there, so
// configuration errors such as a missing type name surface at execution, not at build time.
type Command struct {
	Text       string
	CallType   CallType
	Timeout    time.Duration
	Parameters []*BoundParameter
	Args       []any
	Provider   string

	binders []Binder
	outputs []*outputBinding
}

// BoundParameter links a Parameter to its marker-normalized name and driver argument.
type BoundParameter struct {
	Name      string
	Parameter *Parameter
	Arg       any
	DbType    string
}

// Binder prepares part of a command against a live connection.
type Binder func(ctx context.Context, h Handle) error

// OutputCollector reads the value of an output parameter after execution.
type OutputCollector func(ctx context.Context, h Handle) (Value, error)

type outputBinding struct {
	param   *Parameter
	dest    any
	collect OutputCollector
}

// CommandOptions carries the per-call build switches.
type CommandOptions struct {
	MapUdtAsJson bool
	MapUdtAsXml  bool
	Timeout      time.Duration
}

// NewCommand returns an empty command for the given provider.
func NewCommand(provider string, text string, callType CallType, timeout time.Duration) *Command {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}

	return &Command{Text: text, CallType: callType, Timeout: timeout, Provider: provider}
}

// Parameter returns the bound parameter with the given name, ignoring marker characters and case.
func (c *Command) Parameter(name string) *BoundParameter {
	want := strings.ToLower(strings.TrimLeft(name, "@:"))
	for _, bp := range c.Parameters {
		if strings.ToLower(strings.TrimLeft(bp.Name, "@:")) == want {
			return bp
		}
	}

	return nil
}

// Bind appends a bound parameter and its driver argument.
func (c *Command) Bind(bp *BoundParameter) {
	c.Parameters = append(c.Parameters, bp)
	if bp.Arg != nil {
		c.Args = append(c.Args, bp.Arg)
	}
}

// AddBinder registers a step that runs against the live connection before execution.
func (c *Command) AddBinder(b Binder) {
	c.binders = append(c.binders, b)
}

// AddOutput registers an output parameter whose value is read from dest after execution.
// A nil collector dereferences dest.
func (c *Command) AddOutput(p *Parameter, dest any, collect OutputCollector) {
	c.outputs = append(c.outputs, &outputBinding{param: p, dest: dest, collect: collect})
}

// HasOutputs reports whether the command carries output parameters.
func (c *Command) HasOutputs() bool {
	return len(c.outputs) > 0
}

// Prepare runs the registered binders.
func (c *Command) Prepare(ctx context.Context, h Handle) error {
	for _, b := range c.binders {
		if err := b(ctx, h); err != nil {
			return errorx.NewDatabaseErrorWrapper(err, "error binding parameters of '%s'", c.Text)
		}
	}

	return nil
}

// CollectOutputs copies output values back into their Parameters.
func (c *Command) CollectOutputs(ctx context.Context, h Handle) error {
	for _, out := range c.outputs {
		if out.collect != nil {
			v, err := out.collect(ctx, h)
			if err != nil {
				return errorx.NewDatabaseErrorWrapper(err, "error reading output parameter '%s'", out.param.Name)
			}

			out.param.Value = v

			continue
		}

		out.param.Value = derefValue(out.dest)
	}

	return nil
}

// NormalizeParameterName trims every leading marker from name and, unless strip is set,
// prefixes exactly one.
func NormalizeParameterName(name string, marker byte, strip bool) string {
	bare := strings.TrimLeft(strings.TrimSpace(name), string(marker))
	if strip {
		return bare
	}

	return string(marker) + bare
}

// NamedArg returns a database/sql named argument for a marker-normalized name.
func NamedArg(name string, marker byte, value any) sql.NamedArg {
	return sql.Named(strings.TrimLeft(name, string(marker)), value)
}

// OutputHolder returns a pointer suitable as sql.Out destination for the logical type.
func OutputHolder(t LogicalType) any {
	switch t {
	case Boolean:
		return new(sql.NullBool)
	case Byte, Int16, Int32, Int64:
		return new(sql.NullInt64)
	case Double:
		return new(sql.NullFloat64)
	case DateTime, Date:
		return new(sql.NullTime)
	case Binary:
		return new([]byte)
	}

	return new(sql.NullString)
}

func derefValue(dest any) Value {
	if dest == nil {
		return Null()
	}

	rv := reflect.ValueOf(dest)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return Null()
		}

		return ValueOf(rv.Elem().Interface())
	}

	return ValueOf(dest)
}

// CoerceValue converts the parameter value to the Go type bound for its logical type.
// UnKnown and Object pass the value through so the driver infers the type.
func CoerceValue(t LogicalType, v Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}

	switch t {
	case String, AnsiString, Xml, Guid:
		return v.AsString(), nil
	case Boolean:
		return v.AsBool()
	case Byte, Int16, Int32, Int64:
		return v.AsInt64()
	case Decimal:
		d, err := v.AsDecimal()
		if err != nil {
			return nil, err
		}

		return d.AsString(), nil
	case Double:
		return v.AsFloat()
	case DateTime, Date:
		return v.AsTime()
	case Binary:
		return v.AsBytes()
	}

	return v.Interface(), nil
}
