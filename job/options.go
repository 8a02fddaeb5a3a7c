package job

// Options carries opaque per-job configuration. The queue core stores it on
// the job record and hands it back to observers; it never interprets it.
type Options struct {
	// Name is an optional display name for the job.
	Name string `json:"name,omitempty"`

	// Metadata is arbitrary caller-owned key/value data.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DefaultOptions returns empty Options.
func DefaultOptions() Options {
	return Options{}
}

// clone deep-copies the options so queue-internal state stays private.
func (o Options) clone() Options {
	cp := o
	if o.Metadata != nil {
		cp.Metadata = make(map[string]string, len(o.Metadata))
		for k, v := range o.Metadata {
			cp.Metadata[k] = v
		}
	}
	return cp
}

// Option is a functional option for configuring an enqueued job.
type Option func(*Options)

// WithName sets a display name for the job.
func WithName(name string) Option {
	return func(o *Options) {
		o.Name = name
	}
}

// WithMetadata attaches arbitrary key/value data to the job.
func WithMetadata(md map[string]string) Option {
	return func(o *Options) {
		o.Metadata = md
	}
}
