package jetflow

import (
	runtimepkg "github.com/drblury/jetflow/internal/runtime"
	configpkg "github.com/drblury/jetflow/internal/runtime/config"
	errspkg "github.com/drblury/jetflow/internal/runtime/errors"
	idspkg "github.com/drblury/jetflow/internal/runtime/ids"
	jobspkg "github.com/drblury/jetflow/internal/runtime/jobs"
	jsoncodec "github.com/drblury/jetflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/jetflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/jetflow/internal/runtime/metadata"
	namingpkg "github.com/drblury/jetflow/internal/runtime/naming"
	streamspkg "github.com/drblury/jetflow/internal/runtime/streams"
	transportpkg "github.com/drblury/jetflow/transport"
)

type (
	Config             = configpkg.Config
	ConfigStore        = configpkg.Store
	StreamSpec         = configpkg.StreamSpec
	ConsumerPolicy     = configpkg.ConsumerPolicy
	JobConsumerSpec    = configpkg.JobConsumerSpec
	StreamConsumerSpec = configpkg.StreamConsumerSpec
	UnresolvedPolicy   = configpkg.UnresolvedPolicy

	Engine             = runtimepkg.Engine
	EngineDependencies = runtimepkg.EngineDependencies
	Metrics            = runtimepkg.Metrics
	JobClassMetrics    = runtimepkg.JobClassMetrics
	MetricsSnapshot    = runtimepkg.MetricsSnapshot

	// Jobs
	Job           = jobspkg.Handler
	JobFunc       = jobspkg.HandlerFunc
	JobFactory    = jobspkg.Factory
	JobContext    = jobspkg.Context
	JobArgs       = jobspkg.Args
	JobOption     = jobspkg.Option
	JobOptions    = jobspkg.Options
	JobEnvelope   = jobspkg.Envelope
	JobRegistry   = jobspkg.Registry
	JobPublisher  = jobspkg.Publisher
	JobProcessor  = jobspkg.Processor
	JobHooks      = jobspkg.Hooks
	JobInfo       = jobspkg.JobInfo
	JobDefinition = jobspkg.Definition

	// Streams
	StreamHandler       = streamspkg.Handler
	StreamHandlerFunc   = streamspkg.HandlerFunc
	StreamOneHandler    = streamspkg.OneHandler
	StreamOneFunc       = streamspkg.OneHandlerFunc
	StreamFactory       = streamspkg.Factory
	StreamContext       = streamspkg.Context
	StreamMessage       = streamspkg.Message
	StreamOption        = streamspkg.Option
	StreamOptions       = streamspkg.Options
	StreamRegistry      = streamspkg.Registry
	StreamPublisher     = streamspkg.Publisher
	StreamPublishOption = streamspkg.PublishOption
	StreamProcessor     = streamspkg.Processor
	BatchObserver       = streamspkg.BatchObserver
	Serializer          = streamspkg.Serializer
	JSONSerializer      = streamspkg.JSONSerializer
	ProtoSerializer     = streamspkg.ProtoSerializer
	ProtoJSONSerializer = streamspkg.ProtoJSONSerializer

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	ConfigNotFoundError       = errspkg.ConfigNotFoundError
	StreamNotFoundError       = errspkg.StreamNotFoundError
	HandlerNotRegisteredError = errspkg.HandlerNotRegisteredError

	// Transport registry
	TransportBuilder      = transportpkg.Builder
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
	StreamUpdater         = transportpkg.StreamUpdater
	StreamInspector       = transportpkg.StreamInspector
)

var (
	NewEngine      = runtimepkg.NewEngine
	NewMetrics     = runtimepkg.NewMetrics
	DefaultConfig  = configpkg.Default
	NewConfigStore = configpkg.NewStore
	ValidateConfig = configpkg.ValidateConfig

	// Jobs
	NewJobRegistry  = jobspkg.NewRegistry
	NewJobPublisher = jobspkg.NewPublisher
	NewJobProcessor = jobspkg.NewProcessor
	DecodeEnvelope  = jobspkg.DecodeEnvelope
	WithJobStream   = jobspkg.WithStream
	WithRetry       = jobspkg.WithRetry
	WithDead        = jobspkg.WithDead
	Backoff         = jobspkg.Backoff
	LoggingHooks    = jobspkg.LoggingHooks
	MetricsHooks    = jobspkg.MetricsHooks
	AlertingHooks   = jobspkg.AlertingHooks

	// Streams
	NewStreamRegistry  = streamspkg.NewRegistry
	NewStreamPublisher = streamspkg.NewPublisher
	NewStreamProcessor = streamspkg.NewProcessor
	Each               = streamspkg.Each
	WithStream         = streamspkg.WithStream
	WithSubjects       = streamspkg.WithSubjects
	WithPublishSubject = streamspkg.WithPublishSubject
	WithBatchSize      = streamspkg.WithBatchSize
	WithFetchTimeout   = streamspkg.WithFetchTimeout
	WithStartPosition  = streamspkg.WithStartPosition
	WithConsumer       = streamspkg.WithConsumer
	WithSerializer     = streamspkg.WithSerializer
	PublishTo          = streamspkg.PublishTo
	PublishHeaders     = streamspkg.PublishHeaders
	PublishMsgID       = streamspkg.PublishMsgID

	// Subject naming
	Underscore  = namingpkg.Underscore
	Subject     = namingpkg.Subject
	DeadSubject = namingpkg.DeadSubject

	// Transport registry
	// Import individual transports via: _ "github.com/drblury/jetflow/transport/jetstream"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal

	ErrNoMessages           = errspkg.ErrNoMessages
	ErrRejected             = errspkg.ErrRejected
	ErrMalformedPayload     = errspkg.ErrMalformedPayload
	ErrHandlerNotRegistered = errspkg.ErrHandlerNotRegistered
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrClassRequired        = errspkg.ErrClassRequired
	ErrStreamRequired       = errspkg.ErrStreamRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrClientRequired       = errspkg.ErrClientRequired

	ErrSchedulerNotConfigured = errspkg.ErrSchedulerNotConfigured

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewNopServiceLogger  = loggingpkg.NewNopServiceLogger

	NewMetadata = metadatapkg.New

	NewJID = idspkg.NewJID
)

// Unresolved message policies.
const (
	UnresolvedLeave = configpkg.UnresolvedLeave
	UnresolvedTerm  = configpkg.UnresolvedTerm
)

// Scheduled job headers.
const (
	HeaderStream    = metadatapkg.HeaderStream
	HeaderSubject   = metadatapkg.HeaderSubject
	HeaderExecuteAt = metadatapkg.HeaderExecuteAt
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
