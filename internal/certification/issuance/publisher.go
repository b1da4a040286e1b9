package issuance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/internal/ledger"
	"agrocert/certification-backend/pkg/cidutil"
)

// Publisher appends canonical payloads to the attestation log
type Publisher struct {
	submitter ledger.Submitter
	signer    ledger.Identity
	topicID   string
	maxFee    int64
	logger    *zap.Logger
}

// NewPublisher creates a publisher for one attestation log
func NewPublisher(submitter ledger.Submitter, signer ledger.Identity, topicID string, maxFee int64, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		submitter: submitter,
		signer:    signer,
		topicID:   strings.TrimSpace(topicID),
		maxFee:    maxFee,
		logger:    logger,
	}
}

// Publish commits payload to the log and returns where it landed.
// Every call appends a new entry; the log has no deduplication key.
func (p *Publisher) Publish(ctx context.Context, payload certification.Payload) (*certification.Attestation, error) {
	const op = "publish"

	if p.topicID == "" {
		return nil, certification.NewError(certification.KindConfig, op, "attestation topic id is not configured", nil)
	}
	if p.signer.AccountID == "" {
		return nil, certification.NewError(certification.KindConfig, op, "signing identity is not configured", nil)
	}

	message, err := certification.Canonicalize(payload)
	if err != nil {
		return nil, certification.NewError(certification.KindValidation, op, "payload cannot be published", err)
	}
	contentID, err := cidutil.ContentID(message)
	if err != nil {
		return nil, certification.NewError(certification.KindValidation, op, "payload cannot be hashed", err)
	}

	receipt, err := p.submitter.Submit(ctx, &ledger.Transaction{
		Kind:    ledger.OpPublish,
		Signer:  p.signer,
		MaxFee:  p.maxFee,
		TopicID: p.topicID,
		Message: message,
	})
	if err != nil {
		return nil, certification.ClassifySubmit(op, err)
	}

	topicID := receipt.TopicID
	if topicID == "" {
		topicID = p.topicID
	}
	locator := certification.AttestationLocator{
		TopicID:            topicID,
		SequenceNumber:     receipt.TopicSequence,
		TransactionID:      receipt.TransactionID,
		ConsensusTimestamp: receipt.ConsensusTimestamp,
	}
	if err := locator.Validate(); err != nil {
		return nil, certification.NewError(certification.KindTransient, op, "receipt does not identify the log entry", ledger.ErrOutcomeUnknown)
	}

	p.logger.Info("Attestation published",
		zap.String("locator", locator.String()),
		zap.String("content_id", contentID),
		zap.Int("bytes", len(message)))

	return &certification.Attestation{
		Locator:   locator,
		ContentID: contentID,
		Bytes:     message,
	}, nil
}
