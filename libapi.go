package asyncflow

import (
	runtimepkg "github.com/drblury/asyncflow/internal/runtime"
	configpkg "github.com/drblury/asyncflow/internal/runtime/config"
	documentpkg "github.com/drblury/asyncflow/internal/runtime/document"
	errspkg "github.com/drblury/asyncflow/internal/runtime/errors"
	exprpkg "github.com/drblury/asyncflow/internal/runtime/expression"
	idspkg "github.com/drblury/asyncflow/internal/runtime/ids"
	jsoncodec "github.com/drblury/asyncflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/asyncflow/internal/runtime/logging"
	metadatapkg "github.com/drblury/asyncflow/internal/runtime/metadata"
	schemapkg "github.com/drblury/asyncflow/internal/runtime/schema"
	telemetrypkg "github.com/drblury/asyncflow/internal/runtime/telemetry"
	transportpkg "github.com/drblury/asyncflow/transport"
)

type (
	Config             = configpkg.Config
	Client             = runtimepkg.Client
	ClientDependencies = runtimepkg.ClientDependencies
	PublishRequest     = runtimepkg.PublishRequest
	SubscribeRequest   = runtimepkg.SubscribeRequest

	Document  = documentpkg.Document
	Server    = documentpkg.Server
	Channel   = documentpkg.Channel
	Operation = documentpkg.Operation
	Message   = documentpkg.Message
	Binding   = documentpkg.Binding

	Expression = exprpkg.Expression

	SchemaHandler    = schemapkg.Handler
	SchemaRegistry   = schemapkg.Registry
	SchemaDefinition = schemapkg.Definition
	SchemaResult     = schemapkg.Result

	Metadata = metadatapkg.Metadata

	LogFields                 = loggingpkg.LogFields
	ServiceLogger             = loggingpkg.ServiceLogger
	EntryLogger               = loggingpkg.EntryLogger
	EntryLoggerAdapter[T any] = loggingpkg.EntryLoggerAdapter[T]

	// Dispatch lifecycle hooks
	DispatchContext = runtimepkg.DispatchContext
	DispatchHooks   = runtimepkg.DispatchHooks

	MetricsSnapshot = telemetrypkg.Snapshot

	// Typed errors
	NotFoundError            = errspkg.NotFoundError
	ActionMismatchError      = errspkg.ActionMismatchError
	AmbiguousMessageError    = errspkg.AmbiguousMessageError
	ValidationError          = errspkg.ValidationError
	Violation                = errspkg.Violation
	UnsupportedProtocolError = errspkg.UnsupportedProtocolError
	ConfigValidationError    = errspkg.ConfigValidationError

	// Protocol handlers
	ProtocolHandler  = transportpkg.ProtocolHandler
	OperationContext = transportpkg.OperationContext
	ContextParams    = transportpkg.ContextParams
	Result           = transportpkg.Result
	InboundMessage   = transportpkg.Message
	Verb             = transportpkg.Verb

	TransportBuilder      = transportpkg.Builder
	TransportConfig       = transportpkg.Config
	TransportRegistry     = transportpkg.Registry
	TransportCapabilities = transportpkg.Capabilities
)

var (
	NewClient      = runtimepkg.NewClient
	MustNewClient  = runtimepkg.MustNewClient
	ValidateConfig = configpkg.ValidateConfig
	LoadConfig     = configpkg.Load
	LoadConfigFile = configpkg.LoadFile

	LoadDocument     = documentpkg.Load
	LoadDocumentFile = documentpkg.LoadFile

	ParseExpression    = exprpkg.Parse
	EvaluateExpression = exprpkg.Evaluate

	NewSchemaRegistry        = schemapkg.NewRegistry
	NewDefaultSchemaRegistry = schemapkg.NewDefaultRegistry

	// Dispatch lifecycle hooks
	LoggingHooks  = runtimepkg.LoggingHooks
	MetricsHooks  = runtimepkg.MetricsHooks
	AlertingHooks = runtimepkg.AlertingHooks

	// Protocol handler registry.
	// Import the adapters via: _ "github.com/drblury/asyncflow/transport/transports"
	DefaultTransportRegistry = transportpkg.DefaultRegistry
	NewTransportRegistry     = transportpkg.NewRegistry
	RegisterTransport        = transportpkg.Register
	BuildTransport           = transportpkg.Build
	GetCapabilities          = transportpkg.GetCapabilities
	NewOperationContext      = transportpkg.NewOperationContext

	Marshal       = jsoncodec.Marshal
	MarshalIndent = jsoncodec.MarshalIndent
	Unmarshal     = jsoncodec.Unmarshal
	Encode        = jsoncodec.Encode
	Decode        = jsoncodec.Decode

	ErrDocumentRequired     = errspkg.ErrDocumentRequired
	ErrOperationIDRequired  = errspkg.ErrOperationIDRequired
	ErrHandlerRequired      = errspkg.ErrHandlerRequired
	ErrConfigRequired       = errspkg.ErrConfigRequired
	ErrLoggerRequired       = errspkg.ErrLoggerRequired
	ErrInvalidExpression    = errspkg.ErrInvalidExpression
	ErrInvalidReference     = errspkg.ErrInvalidReference
	ErrNotFound             = errspkg.ErrNotFound
	ErrActionMismatch       = errspkg.ErrActionMismatch
	ErrAmbiguousMessage     = errspkg.ErrAmbiguousMessage
	ErrValidation           = errspkg.ErrValidation
	ErrUnsupportedProtocol  = errspkg.ErrUnsupportedProtocol
	ErrSubscribeUnsupported = transportpkg.ErrSubscribeUnsupported

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NewNopLogger              = loggingpkg.NewNopLogger

	// NewMessageID generates a unique message ID using ULID.
	NewMessageID = idspkg.NewMessageID
)

// Verbs of a dispatch.
const (
	VerbPublish   = transportpkg.VerbPublish
	VerbSubscribe = transportpkg.VerbSubscribe
)

// Metadata keys set on every outbound message.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyContentType   = metadatapkg.KeyContentType
	MetadataKeyMessageName   = metadatapkg.KeyMessageName
	MetadataKeyOperationID   = metadatapkg.KeyOperationID
	MetadataKeyReplyTo       = metadatapkg.KeyReplyTo
)

func NewEntryServiceLogger[T EntryLoggerAdapter[T]](entry T) ServiceLogger {
	return loggingpkg.NewEntryServiceLogger(entry)
}
