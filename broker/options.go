package broker

import (
	"log/slog"

	"github.com/xraph/conveyor"
	"github.com/xraph/conveyor/queue"
)

// options holds constructor configuration for a Broker.
type options struct {
	logger    *slog.Logger
	config    conveyor.Config
	queueOpts []queue.Option
}

func defaultOptions() options {
	return options{
		logger: slog.Default(),
		config: conveyor.DefaultConfig(),
	}
}

// Option configures a Broker.
type Option func(*options)

// WithLogger sets the structured logger shared by the broker and its queues.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithConfig overrides the default configuration.
func WithConfig(cfg conveyor.Config) Option {
	return func(o *options) { o.config = cfg }
}

// WithQueueOptions sets options applied to every queue the broker creates,
// such as middleware or a rate limit.
func WithQueueOptions(opts ...queue.Option) Option {
	return func(o *options) { o.queueOpts = append(o.queueOpts, opts...) }
}
