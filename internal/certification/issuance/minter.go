package issuance

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/internal/ledger"
)

// Minter mints the single unit of a certificate class
type Minter struct {
	submitter   ledger.Submitter
	issuer      ledger.Identity
	codec       certification.ReferenceCodec
	maxMetadata int
	maxFee      int64
	logger      *zap.Logger
}

// NewMinter creates a minter. maxMetadata <= 0 selects the ledger limit.
func NewMinter(submitter ledger.Submitter, issuer ledger.Identity, codec certification.ReferenceCodec, maxMetadata int, maxFee int64, logger *zap.Logger) *Minter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxMetadata <= 0 {
		maxMetadata = ledger.MaxUnitMetadataBytes
	}
	return &Minter{
		submitter:   submitter,
		issuer:      issuer,
		codec:       codec,
		maxMetadata: maxMetadata,
		maxFee:      maxFee,
		logger:      logger,
	}
}

// Mint writes the encoded attestation reference as the unit's immutable metadata.
// Oversize metadata is rejected, never truncated.
func (m *Minter) Mint(ctx context.Context, classID string, locator certification.AttestationLocator) (*certification.Unit, error) {
	const op = "mint"

	if strings.TrimSpace(classID) == "" {
		return nil, certification.NewError(certification.KindValidation, op, "class id is required", nil)
	}
	reference, err := m.codec.Encode(locator)
	if err != nil {
		return nil, certification.NewError(certification.KindValidation, op, "attestation locator cannot be encoded", err)
	}
	if len(reference) > m.maxMetadata {
		return nil, certification.NewError(certification.KindValidation, op,
			fmt.Sprintf("reference is %d bytes, metadata limit is %d", len(reference), m.maxMetadata),
			ledger.ErrMetadataTooLarge)
	}

	receipt, err := m.submitter.Submit(ctx, &ledger.Transaction{
		Kind:     ledger.OpMint,
		Signer:   m.issuer,
		MaxFee:   m.maxFee,
		ClassID:  classID,
		Metadata: [][]byte{[]byte(reference)},
	})
	if err != nil {
		return nil, certification.ClassifySubmit(op, err)
	}
	if len(receipt.Serials) != 1 {
		return nil, certification.NewError(certification.KindTransient, op,
			fmt.Sprintf("receipt carries %d serials, want 1", len(receipt.Serials)), ledger.ErrOutcomeUnknown)
	}

	unit := &certification.Unit{
		ClassID:   classID,
		Serial:    receipt.Serials[0],
		Reference: reference,
		Locator:   locator,
		MintedAt:  receipt.ConsensusTimestamp,
	}

	m.logger.Info("Unit minted",
		zap.String("class_id", classID),
		zap.Int64("serial", unit.Serial),
		zap.String("reference", reference),
		zap.String("transaction_id", receipt.TransactionID))

	return unit, nil
}
