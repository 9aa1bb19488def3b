package transport

// Capabilities describes the broker features the engine relies on.
type Capabilities struct {
	// Name is the registry name of the transport.
	Name string

	// SupportsDelayedRedelivery indicates Nak can carry a delay. The schedule
	// loop and job retries need it.
	SupportsDelayedRedelivery bool

	// SupportsDeduplication indicates the broker drops a second publish with
	// the same message id inside its duplicate window.
	SupportsDeduplication bool

	// SupportsExpectedStream indicates publishes can be guarded by a stream name.
	SupportsExpectedStream bool

	// SupportsTerm indicates a message can be removed without redelivery.
	SupportsTerm bool

	// Persistent indicates messages survive a process restart.
	Persistent bool

	// MaxMessageSize is the maximum message size in bytes (0 = unlimited/unknown).
	MaxMessageSize int64
}

// SupportsJobs reports whether the job processor can run on this transport:
// retries and delayed jobs both ride on delayed redelivery.
func (c Capabilities) SupportsJobs() bool {
	return c.SupportsDelayedRedelivery && c.SupportsTerm
}

// Predefined capability sets for the built-in transports.
var (
	// NATSJetStreamCapabilities for NATS JetStream.
	NATSJetStreamCapabilities = Capabilities{
		Name:                      "nats-jetstream",
		SupportsDelayedRedelivery: true,
		SupportsDeduplication:     true,
		SupportsExpectedStream:    true,
		SupportsTerm:              true,
		Persistent:                true,
		MaxMessageSize:            1048576, // Default 1MB
	}

	// MemoryCapabilities for the in-process broker.
	MemoryCapabilities = Capabilities{
		Name:                      "memory",
		SupportsDelayedRedelivery: true,
		SupportsDeduplication:     true,
		SupportsExpectedStream:    true,
		SupportsTerm:              true,
		Persistent:                false,
	}
)

// GetCapabilities returns the capabilities for a transport by name.
// Returns a zero Capabilities struct if the transport is unknown.
func GetCapabilities(transportName string) Capabilities {
	return DefaultRegistry.GetCapabilities(transportName)
}
