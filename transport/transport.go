// Package transport holds the registry of broker client builders. Each
// implementation (nats-jetstream, memory) lives in its own sub-package and
// registers itself on import.
package transport

import (
	"context"

	"github.com/drblury/jetflow/internal/runtime/broker"
	"github.com/drblury/jetflow/internal/runtime/config"
	"github.com/drblury/jetflow/internal/runtime/logging"
)

// Builder creates a broker client from the process configuration.
type Builder func(ctx context.Context, cfg *config.Config, logger logging.ServiceLogger) (broker.Client, error)

// CapabilitiesProvider is implemented by clients that can report their capabilities.
type CapabilitiesProvider interface {
	Capabilities() Capabilities
}

// StreamUpdater is implemented by clients that can apply a changed stream
// configuration to an existing stream. Setup mode prefers it over
// broker.Client.EnsureStream, which never touches an existing stream.
type StreamUpdater interface {
	UpdateStream(ctx context.Context, name string, spec config.StreamSpec) error
}

// StreamInspector is implemented by clients that can report stream state,
// used by the CLI to print what setup created.
type StreamInspector interface {
	StreamState(ctx context.Context, name string) (StreamState, error)
}

// StreamState summarises a broker stream.
type StreamState struct {
	Name      string
	Subjects  []string
	Messages  uint64
	Consumers int
}
