/*
Package runtime provides the engine that runs jetflow's job and stream
processors.

# Architecture Overview

Work flows from a publisher through the broker into one of two processors.
Both pull from durable consumers, hand work to a shared worker pool, and
settle every message with ack, nak (optionally delayed) or term. A single
running flag is the only cancellation signal; the Engine clears it on
shutdown and then drains the pool for up to Config.Timeout.

# Package Structure

## Engine (engine.go)

The Engine is the composition root. It:
  - builds the broker client from the transport registry
  - sizes the worker pool from Config.Concurrency
  - creates the running flag shared by every processor
  - creates streams on Setup
  - traps SIGINT/SIGTERM and runs the shutdown sequence once
  - serves /metrics when metrics are enabled

## Metrics (metrics.go)

Prometheus counters and histograms for jobs and stream batches, plus an
in-memory per-class snapshot. Metrics.JobHooks and Metrics.BatchObserver
plug them into the processors.

# Sub-packages

  - broker/: the broker client contract
  - config/: Config, defaults, validation and the viper-backed Store
  - errors/: sentinel errors and error types
  - ids/: ULID job ids
  - jobs/: job envelope, registry, publisher and the job processor
  - jsoncodec/: JSON wire codec
  - logging/: logger interface and adapters
  - metadata/: message headers
  - naming/: class name normalization and subject derivation
  - pool/: bounded worker pool
  - processor/: running flag and shared processor state
  - streams/: stream messages, serializers, registry, publisher and processor
  - tracing/: OpenTelemetry span helpers

# Usage Example

	cfg := config.Default()
	engine, err := runtime.NewEngine(ctx, &cfg, logger, runtime.EngineDependencies{Jobs: registry})
	if err != nil {
		return err
	}
	if err := engine.Setup(ctx); err != nil {
		return err
	}
	jp, err := engine.JobProcessor()
	if err != nil {
		return err
	}
	return engine.Run(ctx, jp)
*/
package runtime
