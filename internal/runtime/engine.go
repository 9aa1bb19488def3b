package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/drblury/jetflow/internal/runtime/broker"
	configpkg "github.com/drblury/jetflow/internal/runtime/config"
	runtimeerrors "github.com/drblury/jetflow/internal/runtime/errors"
	"github.com/drblury/jetflow/internal/runtime/jobs"
	loggingpkg "github.com/drblury/jetflow/internal/runtime/logging"
	"github.com/drblury/jetflow/internal/runtime/pool"
	"github.com/drblury/jetflow/internal/runtime/processor"
	"github.com/drblury/jetflow/internal/runtime/streams"
	"github.com/drblury/jetflow/transport"
)

// MetricsPath is where the prometheus handler is mounted.
const MetricsPath = "/metrics"

// EngineDependencies holds the optional collaborators of an Engine. Leave
// fields nil to get the defaults.
type EngineDependencies struct {
	// Client is built from the transport registry when nil.
	Client     broker.Client
	Transports *transport.Registry
	Jobs       *jobs.Registry
	Streams    *streams.Registry
	// JobHooks are merged after the logging and metrics hooks.
	JobHooks jobs.Hooks
	// Metrics are created against Registerer when nil and metrics are enabled.
	Metrics    *Metrics
	Registerer prometheus.Registerer
	// Signals that trigger shutdown. Defaults to SIGINT and SIGTERM.
	Signals []os.Signal
}

// Engine owns the broker client, the worker pool and the running flag shared
// by every processor, and sequences shutdown.
type Engine struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	client    broker.Client
	jobs      *jobs.Registry
	streams   *streams.Registry
	jobHooks  jobs.Hooks
	metrics   *Metrics
	signals   []os.Signal
	pool      *pool.Pool
	running   *processor.Flag
	publisher *jobs.Publisher
	streamPub *streams.Publisher

	shutdownOnce sync.Once
	drained      bool

	httpServers   map[int]*http.ServeMux
	httpServersMu sync.Mutex
	servers       []*http.Server
}

// NewEngine constructs an Engine for conf. The worker pool is sized by
// conf.Concurrency and the running flag starts cleared.
func NewEngine(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps EngineDependencies) (*Engine, error) {
	if conf == nil {
		return nil, runtimeerrors.ErrConfigRequired
	}
	if log == nil {
		return nil, runtimeerrors.ErrLoggerRequired
	}
	log.Info("Creating engine", loggingpkg.LogFields{
		"broker":      conf.Broker,
		"concurrency": conf.Concurrency,
		"config":      conf.String(),
	})

	client := deps.Client
	if client == nil {
		registry := deps.Transports
		if registry == nil {
			registry = transport.DefaultRegistry
		}
		var err error
		if client, err = registry.Build(ctx, conf, log); err != nil {
			return nil, fmt.Errorf("engine: build broker client: %w", err)
		}
	}

	e := &Engine{
		Conf:     conf,
		Logger:   log,
		client:   client,
		jobs:     deps.Jobs,
		streams:  deps.Streams,
		jobHooks: deps.JobHooks,
		metrics:  deps.Metrics,
		signals:  deps.Signals,
		pool:     pool.New(conf.Concurrency),
		running:  processor.NewFlag(),
	}
	if e.jobs == nil {
		e.jobs = jobs.NewRegistry()
	}
	if e.streams == nil {
		e.streams = streams.NewRegistry()
	}
	if len(e.signals) == 0 {
		e.signals = []os.Signal{syscall.SIGINT, syscall.SIGTERM}
	}
	if e.metrics == nil && conf.MetricsEnabled {
		e.metrics = NewMetrics(deps.Registerer)
	}
	if e.metrics != nil {
		if err := e.metrics.Register(); err != nil {
			return nil, fmt.Errorf("engine: register metrics: %w", err)
		}
		if conf.MetricsEnabled {
			e.RegisterHTTPHandler(conf.MetricsPort, MetricsPath, promhttp.Handler())
		}
	}
	e.publisher = jobs.NewPublisher(client, e.jobs, log)
	e.streamPub = streams.NewPublisher(client, e.streams, log)
	return e, nil
}

// Client returns the broker client.
func (e *Engine) Client() broker.Client { return e.client }

// Metrics returns the engine metrics, or nil when disabled.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Pool returns the shared worker pool.
func (e *Engine) Pool() *pool.Pool { return e.pool }

// Running reports whether processors are still polling.
func (e *Engine) Running() bool { return e.running.IsTrue() }

// JobPublisher publishes jobs against the engine's registry.
func (e *Engine) JobPublisher() *jobs.Publisher { return e.publisher }

// StreamPublisher publishes stream values against the engine's registry.
func (e *Engine) StreamPublisher() *streams.Publisher { return e.streamPub }

// Setup creates every configured stream that does not exist yet.
func (e *Engine) Setup(ctx context.Context) error {
	return e.eachStream(func(name string, spec configpkg.StreamSpec) error {
		return e.client.EnsureStream(ctx, name, spec)
	})
}

// UpdateStreams creates every configured stream and applies the configuration
// to the ones that already exist. Clients without transport.StreamUpdater
// fall back to Setup.
func (e *Engine) UpdateStreams(ctx context.Context) error {
	updater, ok := e.client.(transport.StreamUpdater)
	if !ok {
		e.Logger.Debug("broker client cannot update streams, creating missing ones only", nil)
		return e.Setup(ctx)
	}
	return e.eachStream(func(name string, spec configpkg.StreamSpec) error {
		return updater.UpdateStream(ctx, name, spec)
	})
}

func (e *Engine) eachStream(apply func(name string, spec configpkg.StreamSpec) error) error {
	names := make([]string, 0, len(e.Conf.Streams))
	for name := range e.Conf.Streams {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := apply(name, e.Conf.Streams[name]); err != nil {
			errs = append(errs, fmt.Errorf("stream %s: %w", name, err))
			continue
		}
		e.Logger.Debug("stream ready", loggingpkg.LogFields{"stream": name})
	}
	return errors.Join(errs...)
}

// JobProcessor creates the job processor on the shared pool and flag. It
// fails when the client reports it cannot delay or terminate messages.
func (e *Engine) JobProcessor() (*jobs.Processor, error) {
	if provider, ok := e.client.(transport.CapabilitiesProvider); ok {
		if caps := provider.Capabilities(); !caps.SupportsJobs() {
			return nil, fmt.Errorf("engine: transport %s cannot run jobs: %w", caps.Name, runtimeerrors.ErrNotImplemented)
		}
	}
	hooks := jobs.LoggingHooks(e.Logger)
	if e.metrics != nil {
		hooks = hooks.Merge(e.metrics.JobHooks())
	}
	hooks = hooks.Merge(e.jobHooks)
	return jobs.NewProcessor(jobs.ProcessorDependencies{
		Client:   e.client,
		Registry: e.jobs,
		Config:   e.Conf,
		Pool:     e.pool,
		Running:  e.running,
		Logger:   e.Logger.With(loggingpkg.LogFields{"processor": jobs.ProcessorName}),
		Hooks:    hooks,
	})
}

// StreamProcessor creates the stream processor on the shared pool and flag.
func (e *Engine) StreamProcessor() (*streams.Processor, error) {
	var observer streams.BatchObserver
	if e.metrics != nil {
		observer = e.metrics.BatchObserver()
	}
	return streams.NewProcessor(streams.ProcessorDependencies{
		Client:    e.client,
		Registry:  e.streams,
		Config:    e.Conf,
		Pool:      e.pool,
		Running:   e.running,
		Logger:    e.Logger.With(loggingpkg.LogFields{"processor": streams.ProcessorName}),
		Publisher: e.streamPub,
		Observer:  observer,
	})
}

// Run starts every processor and blocks until a shutdown signal arrives or
// ctx is cancelled, then shuts down. A processor failing to start shuts the
// others down and is returned.
func (e *Engine) Run(ctx context.Context, processors ...processor.Processor) error {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, e.signals...)
	defer signal.Stop(sigs)

	e.startHTTPServers()

	var started []processor.Processor
	for _, p := range processors {
		if err := p.Run(); err != nil {
			e.Logger.Error("Failed to start processor", err, loggingpkg.LogFields{"processor": p.Name()})
			e.Shutdown()
			e.wait(started)
			return fmt.Errorf("engine: start %s: %w", p.Name(), err)
		}
		started = append(started, p)
	}

	select {
	case sig := <-sigs:
		e.Logger.Info("Shutting down", loggingpkg.LogFields{"signal": sig.String()})
	case <-ctx.Done():
		e.Logger.Info("Shutting down", loggingpkg.LogFields{"signal": "context", "reason": ctx.Err().Error()})
	}
	e.Shutdown()
	e.wait(started)
	return nil
}

func (e *Engine) wait(started []processor.Processor) {
	for _, p := range started {
		p.Wait()
	}
}

// Shutdown clears the running flag, stops the pool from accepting work and
// waits up to Conf.Timeout for in-flight tasks. Only the first call does
// anything.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		e.running.MakeFalse()
		e.pool.Shutdown()
		started := time.Now()
		e.drained = e.pool.WaitForTermination(e.Conf.Timeout)
		fields := loggingpkg.LogFields{
			"active":  e.pool.Active(),
			"elapsed": time.Since(started).Seconds(),
		}
		if e.drained {
			e.Logger.Info("Worker pool drained", fields)
		} else {
			e.Logger.Info("Worker pool drain timed out", fields)
		}
		e.stopHTTPServers()
	})
}

// Drained reports whether the last shutdown finished every in-flight task
// before the timeout.
func (e *Engine) Drained() bool { return e.drained }

// Close releases the broker client.
func (e *Engine) Close() error {
	return e.client.Close()
}

// RegisterHTTPHandler mounts handler on the server for port. Servers start
// with Run.
func (e *Engine) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	e.httpServersMu.Lock()
	defer e.httpServersMu.Unlock()

	if e.httpServers == nil {
		e.httpServers = make(map[int]*http.ServeMux)
	}

	mux, ok := e.httpServers[port]
	if !ok {
		mux = http.NewServeMux()
		e.httpServers[port] = mux
	}

	mux.Handle(pattern, handler)
}

func (e *Engine) startHTTPServers() {
	e.httpServersMu.Lock()
	defer e.httpServersMu.Unlock()

	for port, mux := range e.httpServers {
		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		e.servers = append(e.servers, srv)
		e.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.Logger.Error("Failed to start HTTP server", err, loggingpkg.LogFields{"address": srv.Addr})
			}
		}()
	}
}

func (e *Engine) stopHTTPServers() {
	e.httpServersMu.Lock()
	defer e.httpServersMu.Unlock()

	for _, srv := range e.servers {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	}
	e.servers = nil
}
