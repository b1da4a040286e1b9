package v1

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/internal/certification/issuance"
	"agrocert/certification-backend/internal/certification/verification"
	"agrocert/certification-backend/internal/config"
	"agrocert/certification-backend/internal/ledger"
	"agrocert/certification-backend/internal/ledger/hashgraph"
	"agrocert/certification-backend/internal/ledger/memledger"
	"agrocert/certification-backend/internal/ledger/mirror"
	"agrocert/certification-backend/internal/metrics"
	"agrocert/certification-backend/internal/notifications/websocket"
	"agrocert/certification-backend/pkg/pdf"
)

// CertificationAPI holds the certification API dependencies
type CertificationAPI struct {
	Network  ledger.Network
	Identity ledger.Identity
	TopicID  string
	Codec    certification.ReferenceCodec

	Submitter ledger.Submitter
	Records   ledger.PublicRecords

	// Pipeline is nil when no signing identity is configured
	Pipeline *issuance.Pipeline
	Resolver *verification.Resolver
	Cache    *verification.RecordCache
	Events   *websocket.Manager
	Metrics  *metrics.Metrics
	Handler  *Handler

	closers []func()
}

// SetupOptions selects optional components
type SetupOptions struct {
	// Registerer receives the service metrics; nil disables them
	Registerer prometheus.Registerer
	// Events enables the WebSocket event stream
	Events bool
	// ReadOnly skips the signing identity even when one is configured
	ReadOnly bool
}

// SetupCertificationAPI builds the ledger stack, pipeline and resolver from cfg
func SetupCertificationAPI(cfg *config.Config, opts SetupOptions, logger *zap.Logger) (*CertificationAPI, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	network, _ := ledger.ParseNetwork(cfg.Ledger.Network)

	api := &CertificationAPI{
		Network: network,
		TopicID: cfg.Ledger.TopicID,
		Codec: certification.ReferenceCodec{
			ExplorerURL: cfg.Ledger.ExplorerURL,
			Network:     network.String(),
		},
	}

	if network == ledger.Local {
		l := memledger.New()
		api.Submitter = l
		api.Records = l
		if !opts.ReadOnly {
			api.Identity = l.NewIdentity()
			if api.TopicID == "" {
				api.TopicID = l.CreateTopic()
			}
		}
		logger.Info("Using in-process ledger",
			zap.String("operator", api.Identity.AccountID),
			zap.String("topic_id", api.TopicID))
	} else {
		api.Records = mirror.NewClient(cfg.Ledger.MirrorURL(), nil, logger.Named("mirror"))
		if !opts.ReadOnly && cfg.ValidateIssuer() == nil {
			gateway, err := hashgraph.NewGateway(hashgraph.Config{
				Network:        network,
				AccountID:      cfg.Ledger.AccountID,
				PrivateKey:     cfg.Ledger.PrivateKey,
				RequestTimeout: cfg.Issuance.StepTimeout,
				DefaultMaxFee:  cfg.Ledger.MaxFeeTinybars(),
			}, logger.Named("hashgraph"))
			if err != nil {
				return nil, fmt.Errorf("failed to connect to %s: %w", network, err)
			}
			api.Submitter = gateway
			api.Identity = gateway.Operator()
			api.closers = append(api.closers, func() { gateway.Close() })
		}
	}

	if opts.Registerer != nil {
		m, err := metrics.New(opts.Registerer)
		if err != nil {
			api.Close()
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
		api.Metrics = m
	}
	if opts.Events {
		api.Events = websocket.NewManager(logger.Named("events"))
		api.closers = append(api.closers, api.Events.Close)
	}

	resolverOpts := []verification.Option{}
	if cfg.Issuance.VerifyCacheTTL > 0 {
		api.Cache = verification.NewRecordCache(cfg.Issuance.VerifyCacheTTL)
		api.closers = append(api.closers, api.Cache.Close)
		resolverOpts = append(resolverOpts, verification.WithCache(api.Cache))
	}
	api.Resolver = verification.NewResolver(api.Records, api.Codec, logger.Named("resolver"), resolverOpts...)

	if api.Submitter != nil && api.Identity.AccountID != "" {
		maxFee := cfg.Ledger.MaxFeeTinybars()
		pipelineOpts := []issuance.Option{issuance.WithUnitLookup(api.Resolver)}
		if api.Metrics != nil {
			pipelineOpts = append(pipelineOpts, issuance.WithObserver(api.Metrics))
		}
		if api.Events != nil {
			pipelineOpts = append(pipelineOpts, issuance.WithObserver(api.Events))
		}
		api.Pipeline = issuance.NewPipeline(
			issuance.NewPublisher(api.Submitter, api.Identity, api.TopicID, maxFee, logger.Named("publisher")),
			issuance.NewClassFactory(api.Submitter, api.Identity, maxFee, logger.Named("factory")),
			issuance.NewMinter(api.Submitter, api.Identity, api.Codec, ledger.MaxUnitMetadataBytes, maxFee, logger.Named("minter")),
			issuance.Config{Symbol: cfg.Issuance.Symbol, StepTimeout: cfg.Issuance.StepTimeout},
			logger.Named("pipeline"),
			pipelineOpts...,
		)
	}

	var issuer Issuer
	if api.Pipeline != nil {
		issuer = api.Pipeline
	}
	api.Handler = NewHandler(issuer, api.Resolver, pdf.NewGenerator(pdf.DefaultOptions()),
		api.Events, api.Metrics, cfg.Security.JWTSecret, logger.Named("handler"))

	return api, nil
}

// CreateTopic opens a new attestation log signed by the configured identity
func (a *CertificationAPI) CreateTopic(ctx context.Context, memo string, maxFee int64) (string, error) {
	if a.Submitter == nil || a.Identity.AccountID == "" {
		return "", certification.NewError(certification.KindConfig, "create_topic", "issuer credentials are not configured", nil)
	}
	receipt, err := a.Submitter.Submit(ctx, &ledger.Transaction{
		Kind:   ledger.OpCreateTopic,
		Signer: a.Identity,
		MaxFee: maxFee,
		Memo:   memo,
	})
	if err != nil {
		return "", certification.ClassifySubmit("create_topic", err)
	}
	return receipt.TopicID, nil
}

// RegisterCertificationRoutes registers the certification routes on the router group
func RegisterCertificationRoutes(router *gin.RouterGroup, api *CertificationAPI) {
	api.Handler.RegisterRoutes(router)
}

// Close releases ledger connections and background loops
func (a *CertificationAPI) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
