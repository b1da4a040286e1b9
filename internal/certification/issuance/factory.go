package issuance

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/internal/ledger"
)

// maxClassFieldBytes is the ledger limit for token name and symbol
const maxClassFieldBytes = 100

// ClassName derives the asset class name from a product name
func ClassName(productName string) string {
	return "Certificate for " + strings.TrimSpace(productName)
}

// ClassFactory registers one capped non-fungible class per certificate
type ClassFactory struct {
	submitter ledger.Submitter
	issuer    ledger.Identity
	maxFee    int64
	logger    *zap.Logger
}

// NewClassFactory creates a factory whose classes are owned and minted by issuer
func NewClassFactory(submitter ledger.Submitter, issuer ledger.Identity, maxFee int64, logger *zap.Logger) *ClassFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassFactory{
		submitter: submitter,
		issuer:    issuer,
		maxFee:    maxFee,
		logger:    logger,
	}
}

// CreateClass registers a class with supply cap 1 and no decimals.
// A retry after a transient failure registers a second, independent class.
func (f *ClassFactory) CreateClass(ctx context.Context, name, symbol string) (*certification.AssetClass, error) {
	const op = "create_class"

	if f.issuer.AccountID == "" || f.issuer.PublicKey == "" {
		return nil, certification.NewError(certification.KindConfig, op, "issuer identity is not configured", nil)
	}
	name = strings.TrimSpace(name)
	symbol = strings.TrimSpace(symbol)
	if name == "" || symbol == "" {
		return nil, certification.NewError(certification.KindValidation, op, "class name and symbol are required", nil)
	}
	if len(name) > maxClassFieldBytes || len(symbol) > maxClassFieldBytes {
		return nil, certification.NewError(certification.KindValidation, op, "class name or symbol exceeds 100 bytes", nil)
	}

	spec := ledger.ClassSpec{
		Name:      name,
		Symbol:    symbol,
		MaxSupply: 1,
		Decimals:  0,
		Treasury:  f.issuer.AccountID,
		SupplyKey: f.issuer.PublicKey,
	}

	receipt, err := f.submitter.Submit(ctx, &ledger.Transaction{
		Kind:   ledger.OpCreateClass,
		Signer: f.issuer,
		MaxFee: f.maxFee,
		Class:  &spec,
	})
	if err != nil {
		return nil, certification.ClassifySubmit(op, err)
	}
	if receipt.ClassID == "" {
		return nil, certification.NewError(certification.KindTransient, op, "receipt carries no class id", ledger.ErrOutcomeUnknown)
	}

	f.logger.Info("Asset class created",
		zap.String("class_id", receipt.ClassID),
		zap.String("name", name),
		zap.String("symbol", symbol),
		zap.String("transaction_id", receipt.TransactionID))

	return &certification.AssetClass{
		ID:        receipt.ClassID,
		Name:      spec.Name,
		Symbol:    spec.Symbol,
		MaxSupply: spec.MaxSupply,
		Treasury:  spec.Treasury,
		SupplyKey: spec.SupplyKey,
	}, nil
}
