// Package hashgraph submits transactions to a Hedera network through the official Go SDK
package hashgraph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashgraph/hedera-sdk-go/v2"
	"go.uber.org/zap"

	"agrocert/certification-backend/internal/ledger"
)

// Config contains the network selection and the operator credentials
type Config struct {
	Network        ledger.Network `json:"network"`
	AccountID      string         `json:"account_id"`
	PrivateKey     string         `json:"private_key"`
	RequestTimeout time.Duration  `json:"request_timeout"`
	// DefaultMaxFee applies when a transaction carries no ceiling, in tinybars
	DefaultMaxFee int64 `json:"default_max_fee"`
}

// Gateway implements ledger.Submitter on top of the Hedera SDK client.
// One Gateway is shared by all issuances; the SDK client pools its node connections.
type Gateway struct {
	client        *hedera.Client
	operator      ledger.Identity
	defaultMaxFee int64
	logger        *zap.Logger
}

// NewGateway connects to the selected network with the operator account
func NewGateway(cfg Config, logger *zap.Logger) (*Gateway, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	accountID, err := hedera.AccountIDFromString(cfg.AccountID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operator account id: %w", err)
	}
	key, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to parse operator private key: %w", err)
	}

	var client *hedera.Client
	switch cfg.Network {
	case ledger.Mainnet:
		client = hedera.ClientForMainnet()
	case ledger.Previewnet:
		client = hedera.ClientForPreviewnet()
	case ledger.Testnet, "":
		client = hedera.ClientForTestnet()
	default:
		return nil, fmt.Errorf("network %q is not served by the hashgraph gateway", cfg.Network)
	}

	client.SetOperator(accountID, key)
	if cfg.RequestTimeout > 0 {
		timeout := cfg.RequestTimeout
		client.SetRequestTimeout(&timeout)
	}

	operator := ledger.Identity{
		AccountID: accountID.String(),
		PublicKey: key.PublicKey().String(),
	}

	return &Gateway{
		client:        client,
		operator:      operator,
		defaultMaxFee: cfg.DefaultMaxFee,
		logger:        logger,
	}, nil
}

// Operator returns the identity the gateway signs and pays with
func (g *Gateway) Operator() ledger.Identity {
	return g.operator
}

// Submit builds, signs and executes tx, then waits for its receipt.
// Once the transaction was handed to the network, a ctx end or any receipt
// failure without a definitive status wraps ledger.ErrOutcomeUnknown.
func (g *Gateway) Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ledger.ErrInvalidTransaction)
	}
	// The client signs with the operator key only.
	if tx.Signer.AccountID != g.operator.AccountID {
		return nil, fmt.Errorf("%w: no key for account %q", ledger.ErrAuth, tx.Signer.AccountID)
	}

	execute, err := g.build(tx)
	if err != nil {
		return nil, err
	}

	// Nothing has been sent yet, so a cancelled context is a clean abort.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	type result struct {
		receipt *ledger.Receipt
		err     error
	}
	done := make(chan result, 1)
	submittedAt := time.Now()

	go func() {
		resp, err := execute()
		if err != nil {
			done <- result{err: classify(err)}
			return
		}
		receipt, err := resp.GetReceipt(g.client)
		if err != nil {
			done <- result{err: classifyReceipt(tx.Kind, err)}
			return
		}
		done <- result{receipt: convertReceipt(resp.TransactionID.String(), receipt)}
	}()

	select {
	case <-ctx.Done():
		g.logger.Warn("Stopped waiting for receipt",
			zap.String("kind", string(tx.Kind)),
			zap.Duration("waited", time.Since(submittedAt)),
			zap.Error(ctx.Err()))
		return nil, fmt.Errorf("%w: %s: %v", ledger.ErrOutcomeUnknown, tx.Kind, ctx.Err())
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		g.logger.Debug("Transaction confirmed",
			zap.String("kind", string(tx.Kind)),
			zap.String("transaction_id", res.receipt.TransactionID),
			zap.Duration("latency", time.Since(submittedAt)))
		return res.receipt, nil
	}
}

type executeFunc func() (hedera.TransactionResponse, error)

func (g *Gateway) build(tx *ledger.Transaction) (executeFunc, error) {
	fee := hedera.HbarFromTinybar(g.maxFee(tx))

	switch tx.Kind {
	case ledger.OpPublish:
		topicID, err := hedera.TopicIDFromString(tx.TopicID)
		if err != nil {
			return nil, fmt.Errorf("%w: topic id %q: %v", ledger.ErrInvalidTransaction, tx.TopicID, err)
		}
		frozen, err := hedera.NewTopicMessageSubmitTransaction().
			SetTopicID(topicID).
			SetMessage(tx.Message).
			SetMaxTransactionFee(fee).
			FreezeWith(g.client)
		if err != nil {
			return nil, fmt.Errorf("%w: freeze publish: %v", ledger.ErrInvalidTransaction, err)
		}
		return func() (hedera.TransactionResponse, error) { return frozen.Execute(g.client) }, nil

	case ledger.OpCreateClass:
		spec := tx.Class
		if spec == nil {
			return nil, fmt.Errorf("%w: missing class spec", ledger.ErrInvalidTransaction)
		}
		treasury, err := hedera.AccountIDFromString(spec.Treasury)
		if err != nil {
			return nil, fmt.Errorf("%w: treasury %q: %v", ledger.ErrInvalidTransaction, spec.Treasury, err)
		}
		supplyKey, err := hedera.PublicKeyFromString(spec.SupplyKey)
		if err != nil {
			return nil, fmt.Errorf("%w: supply key: %v", ledger.ErrAuth, err)
		}
		frozen, err := hedera.NewTokenCreateTransaction().
			SetTokenName(spec.Name).
			SetTokenSymbol(spec.Symbol).
			SetTokenType(hedera.TokenTypeNonFungibleUnique).
			SetDecimals(uint(spec.Decimals)).
			SetInitialSupply(0).
			SetSupplyType(hedera.TokenSupplyTypeFinite).
			SetMaxSupply(spec.MaxSupply).
			SetTreasuryAccountID(treasury).
			SetSupplyKey(supplyKey).
			SetMaxTransactionFee(fee).
			FreezeWith(g.client)
		if err != nil {
			return nil, fmt.Errorf("%w: freeze create class: %v", ledger.ErrInvalidTransaction, err)
		}
		return func() (hedera.TransactionResponse, error) { return frozen.Execute(g.client) }, nil

	case ledger.OpMint:
		tokenID, err := hedera.TokenIDFromString(tx.ClassID)
		if err != nil {
			return nil, fmt.Errorf("%w: class id %q: %v", ledger.ErrInvalidTransaction, tx.ClassID, err)
		}
		frozen, err := hedera.NewTokenMintTransaction().
			SetTokenID(tokenID).
			SetMetadatas(tx.Metadata).
			SetMaxTransactionFee(fee).
			FreezeWith(g.client)
		if err != nil {
			return nil, fmt.Errorf("%w: freeze mint: %v", ledger.ErrInvalidTransaction, err)
		}
		return func() (hedera.TransactionResponse, error) { return frozen.Execute(g.client) }, nil

	case ledger.OpCreateTopic:
		frozen, err := hedera.NewTopicCreateTransaction().
			SetTopicMemo(tx.Memo).
			SetMaxTransactionFee(fee).
			FreezeWith(g.client)
		if err != nil {
			return nil, fmt.Errorf("%w: freeze create topic: %v", ledger.ErrInvalidTransaction, err)
		}
		return func() (hedera.TransactionResponse, error) { return frozen.Execute(g.client) }, nil

	default:
		return nil, fmt.Errorf("%w: unsupported operation %q", ledger.ErrInvalidTransaction, tx.Kind)
	}
}

func (g *Gateway) maxFee(tx *ledger.Transaction) int64 {
	if tx.MaxFee > 0 {
		return tx.MaxFee
	}
	return g.defaultMaxFee
}

// Close releases the node connections
func (g *Gateway) Close() error {
	return g.client.Close()
}

func convertReceipt(transactionID string, r hedera.TransactionReceipt) *ledger.Receipt {
	receipt := &ledger.Receipt{
		TransactionID: transactionID,
		TopicSequence: r.TopicSequenceNumber,
		Serials:       r.SerialNumbers,
	}
	if r.TopicID != nil {
		receipt.TopicID = r.TopicID.String()
	}
	if r.TokenID != nil {
		receipt.ClassID = r.TokenID.String()
	}
	return receipt
}

// classify maps SDK failures onto the ledger sentinel errors
func classify(err error) error {
	var precheck hedera.ErrHederaPreCheckStatus
	if errors.As(err, &precheck) {
		return statusError(precheck.Status, err)
	}
	var receiptErr hedera.ErrHederaReceiptStatus
	if errors.As(err, &receiptErr) {
		return statusError(receiptErr.Status, err)
	}
	return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
}

// classifyReceipt maps failures seen after the transaction was sent. Only a
// definitive receipt status says whether it reached consensus; anything else
// wraps ledger.ErrOutcomeUnknown.
func classifyReceipt(kind ledger.OperationKind, err error) error {
	var receiptErr hedera.ErrHederaReceiptStatus
	if errors.As(err, &receiptErr) {
		switch receiptErr.Status {
		case hedera.StatusReceiptNotFound, hedera.StatusUnknown:
		default:
			return statusError(receiptErr.Status, err)
		}
	}
	return fmt.Errorf("%w: %s receipt: %v", ledger.ErrOutcomeUnknown, kind, err)
}

func statusError(status hedera.Status, err error) error {
	switch status {
	case hedera.StatusInvalidSignature, hedera.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ledger.ErrAuth, err)
	case hedera.StatusTokenMaxSupplyReached:
		return fmt.Errorf("%w: %v", ledger.ErrCapacityExceeded, err)
	case hedera.StatusMetadataTooLong:
		return fmt.Errorf("%w: %v", ledger.ErrMetadataTooLarge, err)
	case hedera.StatusBusy, hedera.StatusPlatformTransactionNotCreated, hedera.StatusInsufficientTxFee:
		return fmt.Errorf("%w: %v", ledger.ErrTransient, err)
	default:
		return fmt.Errorf("%w: %v", ledger.ErrInvalidTransaction, err)
	}
}

func parsePrivateKey(s string) (hedera.PrivateKey, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if key, err := hedera.PrivateKeyFromStringECDSA(s); err == nil {
		return key, nil
	}
	return hedera.PrivateKeyFromString(s)
}
