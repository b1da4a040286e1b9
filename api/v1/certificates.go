package v1

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"agrocert/certification-backend/internal/auth"
	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/internal/metrics"
	"agrocert/certification-backend/internal/notifications/websocket"
	"agrocert/certification-backend/pkg/pdf"
)

// Issuer runs and resumes issuances
type Issuer interface {
	Issue(ctx context.Context, payload certification.Payload) (*certification.IssuanceResult, error)
	Resume(ctx context.Context, checkpoint certification.Checkpoint, productName string) (*certification.IssuanceResult, error)
}

// Verifier resolves units and attestations from public records
type Verifier interface {
	Verify(ctx context.Context, assetID string, serial int64) (*certification.VerificationRecord, error)
	Attestation(ctx context.Context, locator certification.AttestationLocator) (*certification.Attestation, error)
}

// ResumeRequest is the body of POST /certify/resume
type ResumeRequest struct {
	Checkpoint  certification.Checkpoint `json:"checkpoint"`
	ProductName string                   `json:"productName"`
}

// AttestationResponse pairs a verified unit with the attestation it references
type AttestationResponse struct {
	Record      *certification.VerificationRecord `json:"record"`
	Payload     certification.Payload             `json:"payload,omitempty"`
	ContentID   string                            `json:"contentId"`
	PublishedAt time.Time                         `json:"publishedAt"`
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error          string                    `json:"error"`
	Kind           certification.Kind        `json:"kind,omitempty"`
	IssuanceID     string                    `json:"issuanceId,omitempty"`
	Stage          certification.Stage       `json:"stage,omitempty"`
	Checkpoint     *certification.Checkpoint `json:"checkpoint,omitempty"`
	OutcomeUnknown bool                      `json:"outcomeUnknown,omitempty"`
}

// Handler handles HTTP requests for certification operations
type Handler struct {
	issuer    Issuer
	verifier  Verifier
	pdf       *pdf.Generator
	events    *websocket.Manager
	metrics   *metrics.Metrics
	jwtSecret string
	logger    *zap.Logger
}

// NewHandler creates a new certification handler. issuer may be nil when
// the service runs without signing credentials; write routes then fail with FATAL_CONFIG.
func NewHandler(issuer Issuer, verifier Verifier, generator *pdf.Generator, events *websocket.Manager, m *metrics.Metrics, jwtSecret string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		issuer:    issuer,
		verifier:  verifier,
		pdf:       generator,
		events:    events,
		metrics:   m,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
}

// RegisterRoutes registers certification routes
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	certify := router.Group("/certify", auth.RequireToken(h.jwtSecret))
	{
		certify.POST("", h.certify)
		certify.POST("/resume", h.resume)
	}

	verify := router.Group("/verify")
	{
		verify.GET("/:assetId", h.verify)
		verify.GET("/:assetId/attestation", h.attestation)
		verify.GET("/:assetId/certificate.pdf", h.certificate)
	}

	if h.events != nil {
		router.GET("/issuances/events", auth.RequireToken(h.jwtSecret), h.streamEvents)
	}
}

// certify handles POST /api/v1/certify
func (h *Handler) certify(c *gin.Context) {
	if h.issuer == nil {
		h.writeError(c, certification.NewError(certification.KindConfig, "certify", "issuer credentials are not configured", nil))
		return
	}
	payload, err := certification.DecodePayload(c.Request.Body)
	if err != nil {
		h.writeError(c, certification.NewError(certification.KindValidation, "certify", "request body must be a JSON object", err))
		return
	}

	result, err := h.issuer.Issue(c.Request.Context(), payload)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// resume handles POST /api/v1/certify/resume
func (h *Handler) resume(c *gin.Context) {
	if h.issuer == nil {
		h.writeError(c, certification.NewError(certification.KindConfig, "resume", "issuer credentials are not configured", nil))
		return
	}
	var req ResumeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.writeError(c, certification.NewError(certification.KindValidation, "resume", "invalid resume request", err))
		return
	}

	result, err := h.issuer.Resume(c.Request.Context(), req.Checkpoint, req.ProductName)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

// verify handles GET /api/v1/verify/:assetId
func (h *Handler) verify(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, record)
}

// attestation handles GET /api/v1/verify/:assetId/attestation
func (h *Handler) attestation(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	attestation, err := h.verifier.Attestation(c.Request.Context(), record.Locator)
	if err != nil {
		h.writeError(c, err)
		return
	}

	response := AttestationResponse{
		Record:      record,
		ContentID:   attestation.ContentID,
		PublishedAt: attestation.Locator.ConsensusTimestamp,
	}
	response.Payload = h.decodeAttestation(attestation)
	c.JSON(http.StatusOK, response)
}

// decodeAttestation parses the attestation bytes for display. The content id
// already matched, so a payload that is not a JSON object is logged and shown empty.
func (h *Handler) decodeAttestation(attestation *certification.Attestation) certification.Payload {
	payload, err := certification.DecodePayload(bytes.NewReader(attestation.Bytes))
	if err != nil {
		h.logger.Warn("Attestation is not a JSON object",
			zap.String("locator", attestation.Locator.String()),
			zap.String("content_id", attestation.ContentID),
			zap.Error(err))
		return nil
	}
	return payload
}

// certificate handles GET /api/v1/verify/:assetId/certificate.pdf
func (h *Handler) certificate(c *gin.Context) {
	record, ok := h.lookup(c)
	if !ok {
		return
	}
	attestation, err := h.verifier.Attestation(c.Request.Context(), record.Locator)
	if err != nil {
		h.writeError(c, err)
		return
	}
	payload := h.decodeAttestation(attestation)

	doc, err := h.pdf.Certificate(pdf.CertificateData{
		ProductName: payload.ProductName(),
		AssetID:     record.AssetID,
		Serial:      record.Serial,
		Reference:   record.AttestationReference,
		Locator:     record.Locator.String(),
		ContentID:   attestation.ContentID,
		MintedAt:    record.MintedAt,
		Owner:       record.Owner,
		Attestation: payload,
		GeneratedAt: time.Now(),
	})
	if err != nil {
		h.logger.Error("Failed to render certificate", zap.String("asset_id", record.AssetID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to render certificate"})
		return
	}

	c.Header("Content-Disposition", `inline; filename="certificate-`+record.AssetID+`.pdf"`)
	c.Data(http.StatusOK, "application/pdf", doc)
}

// streamEvents handles GET /api/v1/issuances/events
func (h *Handler) streamEvents(c *gin.Context) {
	if _, err := h.events.HandleConnection(c.Writer, c.Request); err != nil {
		h.logger.Warn("Failed to open event stream", zap.Error(err))
	}
}

func (h *Handler) lookup(c *gin.Context) (*certification.VerificationRecord, bool) {
	serial := int64(1)
	if s := c.Query("serial"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			h.writeError(c, certification.NewError(certification.KindValidation, "verify", "serial must be an integer", err))
			return nil, false
		}
		serial = parsed
	}

	record, err := h.verifier.Verify(c.Request.Context(), c.Param("assetId"), serial)
	if h.metrics != nil {
		h.metrics.ObserveVerification(err)
	}
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return record, true
}

func (h *Handler) writeError(c *gin.Context, err error) {
	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", string(body.Kind)),
			zap.Error(err))
	}
	c.JSON(status, body)
}

// errorResponse maps a classified error to an HTTP status and body
func errorResponse(err error) (int, ErrorResponse) {
	body := ErrorResponse{Error: err.Error(), Kind: certification.KindOf(err)}

	var partial *certification.PartialIssuanceError
	if errors.As(err, &partial) {
		checkpoint := partial.Checkpoint
		body.IssuanceID = partial.IssuanceID
		body.Stage = partial.Stage
		body.Checkpoint = &checkpoint
	}
	var classified *certification.Error
	if errors.As(err, &classified) {
		body.OutcomeUnknown = classified.OutcomeUnknown()
	}

	switch {
	case partial != nil:
		return http.StatusBadGateway, body
	case errors.Is(err, context.Canceled):
		return 499, body
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, body
	}

	switch body.Kind {
	case certification.KindValidation:
		return http.StatusBadRequest, body
	case certification.KindNotFound:
		return http.StatusNotFound, body
	case certification.KindMalformedMetadata:
		return http.StatusUnprocessableEntity, body
	case certification.KindCapacityExceeded:
		return http.StatusConflict, body
	case certification.KindTransient:
		return http.StatusServiceUnavailable, body
	case certification.KindUpstreamUnavailable, certification.KindAuth:
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}
