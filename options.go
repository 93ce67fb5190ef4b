package granc

import (
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/keepalive"

	"github.com/JasterV/granc/internal/logging"
)

type config struct {
	logger       *slog.Logger
	dialTimeout  time.Duration
	keepalive    keepalive.ClientParameters
	creds        credentials.TransportCredentials
	dialOptions  []grpc.DialOption
}

func defaultConfig() config {
	return config{
		logger: logging.Nop(),
		keepalive: keepalive.ClientParameters{
			Time:                10 * time.Second,
			Timeout:             3 * time.Second,
			PermitWithoutStream: true,
		},
	}
}

// Option configures a Connect call.
type Option func(*config)

// WithLogger sets the structured logger components use. Defaults to a
// logger that discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithTransportCredentials sets the channel's transport security. Defaults
// to plaintext (insecure.NewCredentials()) when not set.
func WithTransportCredentials(creds credentials.TransportCredentials) Option {
	return func(c *config) { c.creds = creds }
}

// WithDialTimeout bounds how long Connect waits for the initial dial.
func WithDialTimeout(d time.Duration) Option {
	return func(c *config) { c.dialTimeout = d }
}

// WithKeepalive overrides the channel's keepalive ping parameters. Defaults
// to a 10s ping / 3s ack timeout, permitted while idle.
func WithKeepalive(params keepalive.ClientParameters) Option {
	return func(c *config) { c.keepalive = params }
}

// WithDialOptions appends raw grpc.DialOptions, for anything this package
// doesn't expose a dedicated option for.
func WithDialOptions(opts ...grpc.DialOption) Option {
	return func(c *config) { c.dialOptions = append(c.dialOptions, opts...) }
}
