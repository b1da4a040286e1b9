package verification

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/internal/ledger"
	"agrocert/certification-backend/pkg/cidutil"
)

// Resolver answers public verification queries. It needs no signing identity
// and reads nothing but public ledger records.
type Resolver struct {
	records ledger.PublicRecords
	codec   certification.ReferenceCodec
	cache   *RecordCache
	logger  *zap.Logger
}

// Option configures a Resolver
type Option func(*Resolver)

// WithCache serves repeated lookups of the same unit from memory
func WithCache(cache *RecordCache) Option {
	return func(r *Resolver) { r.cache = cache }
}

// NewResolver creates a resolver over a public record source
func NewResolver(records ledger.PublicRecords, codec certification.ReferenceCodec, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		records: records,
		codec:   codec,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Verify reads unit serial of asset assetID and decodes its attestation reference.
// It never writes to the ledger.
func (r *Resolver) Verify(ctx context.Context, assetID string, serial int64) (*certification.VerificationRecord, error) {
	const op = "verify"

	assetID = strings.TrimSpace(assetID)
	if assetID == "" || serial < 1 {
		return nil, certification.NewError(certification.KindNotFound, op,
			fmt.Sprintf("no unit %d of asset %q", serial, assetID), ledger.ErrNotFound)
	}

	if r.cache != nil {
		if record, ok := r.cache.Get(assetID, serial); ok {
			return record, nil
		}
	}

	rec, err := r.records.Query(ctx, ledger.UnitKey(assetID, serial))
	if err != nil {
		classified := certification.ClassifyQuery(op, err)
		if certification.IsKind(classified, certification.KindUpstreamUnavailable) {
			r.logger.Warn("Public record lookup failed",
				zap.String("asset_id", assetID),
				zap.Int64("serial", serial),
				zap.Error(err))
		}
		return nil, classified
	}
	if rec.Deleted {
		return nil, certification.NewError(certification.KindNotFound, op,
			fmt.Sprintf("unit %d of asset %s has been burned", serial, assetID), ledger.ErrNotFound)
	}

	reference, err := r.decodeMetadata(rec.Data)
	if err != nil {
		r.logger.Info("Unit metadata is not an attestation reference",
			zap.String("asset_id", assetID),
			zap.Int64("serial", serial),
			zap.Error(err))
		return nil, certification.NewError(certification.KindMalformedMetadata, op,
			fmt.Sprintf("unit %d of asset %s does not carry an attestation reference", serial, assetID), err)
	}
	locator, err := r.codec.Decode(reference)
	if err != nil {
		return nil, certification.NewError(certification.KindMalformedMetadata, op,
			fmt.Sprintf("unit %d of asset %s does not carry an attestation reference", serial, assetID), err)
	}

	record := &certification.VerificationRecord{
		AssetID:              assetID,
		Serial:               serial,
		AttestationReference: reference,
		Locator:              locator,
		MintedAt:             rec.ConsensusTimestamp,
		Owner:                rec.Owner,
	}
	if r.cache != nil {
		r.cache.Set(record)
	}
	return record, nil
}

// Attestation re-fetches the published bytes at locator's log position and
// recomputes their content id.
func (r *Resolver) Attestation(ctx context.Context, locator certification.AttestationLocator) (*certification.Attestation, error) {
	const op = "attestation"

	if err := locator.Validate(); err != nil {
		return nil, certification.NewError(certification.KindValidation, op, "invalid attestation locator", err)
	}

	rec, err := r.records.Query(ctx, ledger.MessageKey(locator.TopicID, locator.SequenceNumber))
	if err != nil {
		return nil, certification.ClassifyQuery(op, err)
	}
	contentID, err := cidutil.ContentID(rec.Data)
	if err != nil {
		return nil, certification.NewError(certification.KindMalformedMetadata, op, "attestation cannot be hashed", err)
	}

	locator.ConsensusTimestamp = rec.ConsensusTimestamp
	return &certification.Attestation{
		Locator:   locator,
		ContentID: contentID,
		Bytes:     rec.Data,
	}, nil
}

// Resolve verifies a unit and fetches the attestation it references
func (r *Resolver) Resolve(ctx context.Context, assetID string, serial int64) (*certification.VerificationRecord, *certification.Attestation, error) {
	record, err := r.Verify(ctx, assetID, serial)
	if err != nil {
		return nil, nil, err
	}
	attestation, err := r.Attestation(ctx, record.Locator)
	if err != nil {
		return record, nil, err
	}
	return record, attestation, nil
}

func (r *Resolver) decodeMetadata(data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("metadata is empty")
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("metadata is not valid UTF-8")
	}
	return strings.TrimSpace(string(data)), nil
}
