package conveyor

import "errors"

var (
	// Lookup errors.
	ErrJobNotFound   = errors.New("conveyor: job not found")
	ErrQueueNotFound = errors.New("conveyor: queue not found")

	// Configuration errors.
	ErrConsumerRegistered = errors.New("conveyor: consumer already registered")
	ErrNilConsumer        = errors.New("conveyor: nil consumer")

	// Lifecycle errors.
	ErrQueueClosed  = errors.New("conveyor: queue closed")
	ErrBrokerClosed = errors.New("conveyor: broker closed")
)
