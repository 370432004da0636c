package timer

import (
	"time"
)

// Default configuration values.
const (
	// DefaultTimeout bounds every read and write on a connection.
	DefaultTimeout = 5 * time.Second
	// DefaultAcceptTimeout bounds each accept so the running flag is re-checked.
	DefaultAcceptTimeout = 5 * time.Second
	// defaultMaxPackageLength is the default maximum size of a length-prefixed message (1MB).
	defaultMaxPackageLength = 1024 * 1024
)

// options holds the configuration of a server or a client.
type options struct {
	codec  Codec
	logger Logger

	timeout        time.Duration // read/write deadline per operation
	acceptTimeout  time.Duration // server only
	maxConnections int           // server only, <= 0 means unbounded

	source     MessageSource                    // client only
	onResponse func(sent string, resp Response) // client only
}

// Option configures a Server or a Client.
type Option func(*options)

func newOptions(opt ...Option) options {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)
	return opts
}

// checkOptions sets default values for unset options.
func checkOptions(opts *options) {
	if opts.codec == nil {
		opts.codec = NewRawCodec(DefaultReadBufferSize)
	}

	if opts.logger == nil {
		opts.logger = defaultLogger()
	}

	if opts.timeout <= 0 {
		opts.timeout = DefaultTimeout
	}

	if opts.acceptTimeout <= 0 {
		opts.acceptTimeout = DefaultAcceptTimeout
	}

	if opts.source == nil {
		opts.source = UUIDSource()
	}
}

// CodecOption returns an Option that sets the message codec.
// The default is a RawCodec with a 1024 byte read buffer.
func CodecOption(codec Codec) Option {
	return func(o *options) {
		o.codec = codec
	}
}

// TimeoutOption sets the deadline applied to every read and write.
// On the server it also bounds how long a handler waits for the next message,
// and so how long Shutdown can take.
func TimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.timeout = timeout
	}
}

// AcceptTimeoutOption sets how long the listener blocks in accept before
// checking the running flag again.
func AcceptTimeoutOption(timeout time.Duration) Option {
	return func(o *options) {
		o.acceptTimeout = timeout
	}
}

// MaxConnectionsOption bounds the number of concurrently handled connections.
// Connections beyond the bound are closed right after accept.
// Zero or a negative value leaves the server unbounded.
func MaxConnectionsOption(n int) Option {
	return func(o *options) {
		o.maxConnections = n
	}
}

// MessageSourceOption sets the payload generator of a client.
func MessageSourceOption(source MessageSource) Option {
	return func(o *options) {
		o.source = source
	}
}

// OnResponseOption sets a callback invoked by the client after each round trip.
func OnResponseOption(cb func(sent string, resp Response)) Option {
	return func(o *options) {
		o.onResponse = cb
	}
}

// LoggerOption returns an Option that sets the logger.
// If not set, the default slog logger will be used.
func LoggerOption(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
