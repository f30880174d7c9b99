// Package ingest assembles the webhook ingestion pipeline: signature
// verification with secret rotation, an idempotent processing ledger, and
// event-type routing behind a single HTTP surface.
package ingest

import (
	"fmt"
	"net/http"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-webhook-ingest/core"
	"github.com/goliatone/go-webhook-ingest/dedup"
	"github.com/goliatone/go-webhook-ingest/dispatch"
	"github.com/goliatone/go-webhook-ingest/pipeline"
	"github.com/goliatone/go-webhook-ingest/signature"
	"github.com/goliatone/go-webhook-ingest/transport"
)

// Service owns a fully wired ingestion pipeline. Construct it with New and
// mount HTTPHandler under the webhook route.
type Service struct {
	config    core.Config
	logger    glog.Logger
	metrics   core.MetricsRecorder
	secrets   core.SecretSource
	ledger    dedup.Ledger
	router    *dispatch.Router
	burst     pipeline.BurstController
	processor *pipeline.Processor
	handler   *transport.WebhookHandler
	handlers  []core.EventHandler
}

type Option func(*Service)

func WithLogger(logger glog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithLoggerProvider(provider glog.LoggerProvider) Option {
	return func(s *Service) {
		if provider != nil {
			_, s.logger = glog.Resolve("webhook-ingest", provider, s.logger)
		}
	}
}

func WithMetrics(metrics core.MetricsRecorder) Option {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithSecretSource overrides the config-provided static secrets, e.g. with a
// rotation keyring or an encrypted source.
func WithSecretSource(source core.SecretSource) Option {
	return func(s *Service) {
		if source != nil {
			s.secrets = source
		}
	}
}

// WithLedger swaps the embedded in-memory ledger for a shared one, typically
// the SQL-backed store.
func WithLedger(ledger dedup.Ledger) Option {
	return func(s *Service) {
		if ledger != nil {
			s.ledger = ledger
		}
	}
}

func WithHandlers(handlers ...core.EventHandler) Option {
	return func(s *Service) {
		s.handlers = append(s.handlers, handlers...)
	}
}

func WithBurstController(controller pipeline.BurstController) Option {
	return func(s *Service) {
		if controller != nil {
			s.burst = controller
		}
	}
}

func New(cfg core.Config, opts ...Option) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	service := &Service{
		config:  cfg,
		logger:  glog.Nop(),
		metrics: core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(service)
	}

	if service.secrets == nil {
		secrets := cfg.SecretBytes()
		if len(secrets) == 0 {
			return nil, fmt.Errorf("ingest: signature secrets are required (config or WithSecretSource)")
		}
		service.secrets = signature.StaticSecrets(secrets)
	}
	if service.ledger == nil {
		service.ledger = dedup.NewMemoryLedger(cfg.RetentionWindow())
	}

	verifier := signature.NewVerifier(cfg.Signature.Header, service.secrets)
	verifier.Tolerance = cfg.Tolerance()

	service.router = dispatch.NewRouter()
	service.router.Fallback = dispatch.NoopHandler{Logger: service.logger}
	for _, handler := range service.handlers {
		if err := service.router.Register(handler); err != nil {
			return nil, err
		}
	}

	service.processor = pipeline.NewProcessor(verifier, service.ledger, service.router)
	service.processor.ClaimLease = cfg.StaleProcessingThreshold()
	service.processor.Burst = service.burst
	service.processor.Observer = core.Observer{
		Logger:  service.logger,
		Metrics: service.metrics,
	}

	service.handler = transport.NewWebhookHandler(service.processor)
	service.handler.Logger = service.logger

	return service, nil
}

// Register adds an event handler after construction. Registration is safe
// while the pipeline is serving.
func (s *Service) Register(handler core.EventHandler) error {
	if s == nil || s.router == nil {
		return fmt.Errorf("ingest: service is not configured")
	}
	return s.router.Register(handler)
}

func (s *Service) Processor() *pipeline.Processor {
	if s == nil {
		return nil
	}
	return s.processor
}

// HTTPHandler returns the inbound webhook endpoint. Mount it so the source
// identifier is the trailing path segment, e.g. /webhooks/{source}.
func (s *Service) HTTPHandler() http.Handler {
	if s == nil {
		return nil
	}
	return s.handler
}

func (s *Service) Ledger() dedup.Ledger {
	if s == nil {
		return nil
	}
	return s.ledger
}

// Maintainer returns the ledger upkeep runner for job-queue scheduling.
func (s *Service) Maintainer() *dedup.Maintainer {
	if s == nil {
		return nil
	}
	return dedup.NewMaintainer(s.ledger, s.logger)
}

func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}
