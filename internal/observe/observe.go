// Package observe bundles the structured logger and tracer every archivist
// component receives. One Observer serves a whole process.
package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("archivist")

// Observer hands out the process logger and tracer.
type Observer struct {
	log      *bolt.Logger
	shutdown func(context.Context) error
}

// New creates an Observer with human-readable console output. Quiet mode
// (verbose false) keeps the interview transcript clean: only warnings and
// errors get through.
func New(out io.Writer, verbose bool) *Observer {
	return wrap(bolt.New(bolt.NewConsoleHandler(out)), verbose)
}

// NewJSON creates an Observer emitting JSON lines, for CI runs and log
// shippers.
func NewJSON(out io.Writer, verbose bool) *Observer {
	return wrap(bolt.New(bolt.NewJSONHandler(out)), verbose)
}

func wrap(l *bolt.Logger, verbose bool) *Observer {
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// Log returns the process logger.
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// Component returns a logger tagged with a subsystem name, so interleaved
// output stays attributable.
func (o *Observer) Component(name string) *bolt.Logger {
	return o.log.With().Str("component", name).Logger()
}

// StartSpan starts an OTel span under the archivist tracer.
func (o *Observer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// SetShutdown registers a flush hook, typically a tracer provider's Shutdown.
func (o *Observer) SetShutdown(fn func(context.Context) error) {
	o.shutdown = fn
}

// Close runs the registered flush hook, if any.
func (o *Observer) Close() error {
	if o.shutdown == nil {
		return nil
	}
	return o.shutdown(context.Background())
}
