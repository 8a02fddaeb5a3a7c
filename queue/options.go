package queue

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/xraph/conveyor/middleware"
	"github.com/xraph/conveyor/stream"
)

// options holds constructor configuration for a Queue.
type options struct {
	logger      *slog.Logger
	events      *stream.Broker
	limiter     *rate.Limiter
	middlewares []middleware.Middleware
}

func defaultOptions() options {
	return options{logger: slog.Default()}
}

// Option configures a Queue.
type Option func(*options)

// WithLogger sets the structured logger for the queue.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithEvents sets a shared notification broker. Without it the queue
// creates its own instance-scoped broker.
func WithEvents(b *stream.Broker) Option {
	return func(o *options) { o.events = b }
}

// WithMiddleware adds middleware around consumer execution. Middleware runs
// outermost-first in the order given, outside the built-in panic recovery.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(o *options) { o.middlewares = append(o.middlewares, mws...) }
}

// WithRateLimit caps the sustained rate of job starts with a token bucket.
// Draining stays strictly serial; the limiter only spaces out consecutive
// job activations. Zero or negative perSecond disables the limit.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			return
		}
		if burst <= 0 {
			burst = 1
		}
		o.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}
