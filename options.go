package segvec

import (
	"log/slog"

	"github.com/hupe1980/segvec/codec"
	"github.com/hupe1980/segvec/resource"
)

type options struct {
	segmentCapacity int
	acquirer        MemoryAcquirer
	controller      *resource.Controller
	codec           codec.Codec
	logger          *Logger
}

// Option configures vector construction and snapshot loading.
type Option func(*options)

// WithSegmentCapacity sets the capacity of the first segment; each later
// segment doubles the previous one. The value is rounded up to a power of
// two. Values <= 0 select DefaultSegmentCapacity.
//
// Small first segments keep empty vectors cheap; large ones reduce segment
// count for vectors whose rough size is known up front.
func WithSegmentCapacity(n int) Option {
	return func(o *options) {
		o.segmentCapacity = n
	}
}

// WithMemoryAcquirer configures a memory budget consulted before every
// segment allocation. When the acquirer denies a reservation, Push panics
// and TryPush returns an error wrapping ErrMemoryBudget.
func WithMemoryAcquirer(acquirer MemoryAcquirer) Option {
	return func(o *options) {
		o.acquirer = acquirer
	}
}

// WithResourceController attaches a resource.Controller: its memory budget
// gates segment allocation, and its background-worker and IO limits apply
// to snapshot saves. A controller set here is the default for snapshot
// calls that do not override it.
func WithResourceController(c *resource.Controller) Option {
	return func(o *options) {
		o.controller = c
		if c != nil {
			o.acquirer = c
		}
	}
}

// WithCodec configures the codec used for snapshot sections.
//
// If nil is passed, codec.Default is used. On load, a codec set here must
// match the codec recorded in the snapshot header.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithLogger configures structured logging for growth and snapshot
// operations. Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	var o options
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

func (o options) loggerOrNoop() *Logger {
	if o.logger != nil {
		return o.logger
	}
	return noopLogger
}
