// Package jetflow is a job queue and stream processing engine on top of NATS
// JetStream. Applications register background jobs and stream handlers, and
// the Engine runs them with bounded concurrency, retries with backoff,
// dead-lettering and graceful shutdown.
//
// A job is a class name plus positional JSON arguments. Publishing builds a
// JobEnvelope with a fresh ULID job id and sends it to "<stream>.<class>",
// where the class is normalized ("Admin::UserProfile" becomes
// "admin-user_profile"). The job id doubles as the broker deduplication key.
// PublishAt and PublishIn park the envelope on the "scheduled" stream; the job
// processor republishes it once it is due, using delayed redelivery as its
// only timer.
//
// Failed jobs are redelivered after (attempt^4 + 15) seconds until the retry
// budget is spent. They then go to "jobs.dead.<class>" or, with WithDead(false),
// are terminated.
//
// Stream handlers receive batches of messages from a durable consumer. Each
// stream is configured from the handler's registered options merged with the
// operator's consumers.streams overrides.
//
// # Transports
//
// Two transports ship with jetflow:
//   - nats-jetstream: the production broker client
//   - memory: an in-process broker with the same ack, nak and term semantics, for tests
//
// # Job Hooks
//
// JobHooks provides OnJobStart, OnJobDone, OnJobError, OnJobRetry, OnJobDead
// and OnJobUnresolved callbacks. LoggingHooks, MetricsHooks and AlertingHooks
// cover the common cases, and Metrics.JobHooks feeds Prometheus.
//
// A minimal setup fills Config, registers jobs on a JobRegistry, creates an
// Engine and calls Run with the processors it returns; see examples/simple.
package jetflow
