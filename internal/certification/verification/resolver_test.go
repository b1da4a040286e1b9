package verification

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"agrocert/certification-backend/internal/certification"
	"agrocert/certification-backend/internal/ledger"
	"agrocert/certification-backend/internal/ledger/memledger"
	"agrocert/certification-backend/pkg/cidutil"
)

var testCodec = certification.ReferenceCodec{ExplorerURL: ledger.DefaultExplorerURL, Network: "testnet"}

// recordsFunc adapts a function to ledger.PublicRecords
type recordsFunc func(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error)

func (f recordsFunc) Query(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error) {
	return f(ctx, key)
}

type fixture struct {
	ledger  *memledger.Ledger
	issuer  ledger.Identity
	topicID string
}

func newFixture() *fixture {
	l := memledger.New()
	return &fixture{ledger: l, issuer: l.NewIdentity(), topicID: l.CreateTopic()}
}

func (f *fixture) publish(t *testing.T, message string) certification.AttestationLocator {
	t.Helper()
	receipt, err := f.ledger.Submit(context.Background(), &ledger.Transaction{
		Kind: ledger.OpPublish, Signer: f.issuer, TopicID: f.topicID, Message: []byte(message),
	})
	require.NoError(t, err)
	return certification.AttestationLocator{
		TopicID:        receipt.TopicID,
		SequenceNumber: receipt.TopicSequence,
		TransactionID:  receipt.TransactionID,
	}
}

func (f *fixture) mint(t *testing.T, metadata []byte) string {
	t.Helper()
	ctx := context.Background()
	class, err := f.ledger.Submit(ctx, &ledger.Transaction{
		Kind:   ledger.OpCreateClass,
		Signer: f.issuer,
		Class: &ledger.ClassSpec{
			Name: "Certificate for Beans", Symbol: "CERT", MaxSupply: 1,
			Treasury: f.issuer.AccountID, SupplyKey: f.issuer.PublicKey,
		},
	})
	require.NoError(t, err)
	_, err = f.ledger.Submit(ctx, &ledger.Transaction{
		Kind: ledger.OpMint, Signer: f.issuer, ClassID: class.ClassID, Metadata: [][]byte{metadata},
	})
	require.NoError(t, err)
	return class.ClassID
}

func TestVerifyRoundTrip(t *testing.T) {
	f := newFixture()
	message := `{"productName":"Stone-Free Beans"}`
	locator := f.publish(t, message)
	reference, err := testCodec.Encode(locator)
	require.NoError(t, err)
	classID := f.mint(t, []byte(reference))

	resolver := NewResolver(f.ledger, testCodec, zap.NewNop())
	record, attestation, err := resolver.Resolve(context.Background(), classID, 1)
	require.NoError(t, err)

	assert.Equal(t, classID, record.AssetID)
	assert.Equal(t, int64(1), record.Serial)
	assert.Equal(t, reference, record.AttestationReference)
	assert.True(t, record.Locator.Equal(locator))
	assert.Equal(t, f.issuer.AccountID, record.Owner)
	assert.False(t, record.MintedAt.IsZero())

	want, err := cidutil.ContentID([]byte(message))
	require.NoError(t, err)
	assert.Equal(t, want, attestation.ContentID)
	assert.Equal(t, message, string(attestation.Bytes))
	assert.False(t, attestation.Locator.ConsensusTimestamp.IsZero())
}

func TestVerifyNotFound(t *testing.T) {
	f := newFixture()
	resolver := NewResolver(f.ledger, testCodec, zap.NewNop())
	ctx := context.Background()

	cases := []struct {
		name    string
		assetID string
		serial  int64
	}{
		{"unknown asset", "0.0.404", 1},
		{"empty asset", "  ", 1},
		{"serial zero", "0.0.404", 0},
		{"negative serial", "0.0.404", -3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.Verify(ctx, tc.assetID, tc.serial)
			assert.True(t, certification.IsKind(err, certification.KindNotFound), "got %v", err)
		})
	}

	classID := f.mint(t, []byte("https://hashscan.io/testnet/transaction/0.0.1001@1.1#0.0.1002:1"))
	_, err := resolver.Verify(ctx, classID, 2)
	assert.True(t, certification.IsKind(err, certification.KindNotFound), "serial beyond the minted supply")
}

func TestVerifyMalformedMetadata(t *testing.T) {
	f := newFixture()
	resolver := NewResolver(f.ledger, testCodec, zap.NewNop())

	cases := map[string][]byte{
		"plain text":        []byte("grown with love"),
		"ipfs uri":          []byte("ipfs://bafkreidummy"),
		"no log position":   []byte("https://hashscan.io/testnet/transaction/0.0.1001@1700000000.000000001"),
		"not a transaction": []byte("https://hashscan.io/testnet/token/0.0.5#0.0.1002:1"),
		"invalid utf-8":     {0xff, 0xfe, 0xfd},
	}
	for name, metadata := range cases {
		t.Run(name, func(t *testing.T) {
			classID := f.mint(t, metadata)
			_, err := resolver.Verify(context.Background(), classID, 1)
			assert.True(t, certification.IsKind(err, certification.KindMalformedMetadata), "got %v", err)
		})
	}
}

func TestVerifyEmptyMetadataIsMalformed(t *testing.T) {
	records := recordsFunc(func(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error) {
		return &ledger.Record{Key: key}, nil
	})
	resolver := NewResolver(records, testCodec, nil)

	_, err := resolver.Verify(context.Background(), "0.0.7", 1)
	assert.True(t, certification.IsKind(err, certification.KindMalformedMetadata))
}

func TestVerifyBurnedUnitIsNotFound(t *testing.T) {
	records := recordsFunc(func(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error) {
		return &ledger.Record{
			Key:     key,
			Data:    []byte("https://hashscan.io/testnet/transaction/0.0.1001@1700000000.000000001#0.0.1002:1"),
			Deleted: true,
		}, nil
	})
	resolver := NewResolver(records, testCodec, zap.NewNop())

	_, err := resolver.Verify(context.Background(), "0.0.7", 1)
	assert.True(t, certification.IsKind(err, certification.KindNotFound))
}

func TestVerifyUpstreamUnavailable(t *testing.T) {
	f := newFixture()
	locator := f.publish(t, `{"productName":"Beans"}`)
	reference, err := testCodec.Encode(locator)
	require.NoError(t, err)
	classID := f.mint(t, []byte(reference))

	f.ledger.SetUnavailable(true)
	resolver := NewResolver(f.ledger, testCodec, zap.NewNop())

	_, err = resolver.Verify(context.Background(), classID, 1)
	assert.True(t, certification.IsKind(err, certification.KindUpstreamUnavailable), "got %v", err)
	assert.False(t, certification.IsKind(err, certification.KindNotFound))
}

func TestVerifyPropagatesCancellation(t *testing.T) {
	f := newFixture()
	resolver := NewResolver(f.ledger, testCodec, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := resolver.Verify(ctx, "0.0.1", 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestVerifyServesFromCache(t *testing.T) {
	f := newFixture()
	locator := f.publish(t, `{"productName":"Beans"}`)
	reference, err := testCodec.Encode(locator)
	require.NoError(t, err)
	classID := f.mint(t, []byte(reference))

	cache := NewRecordCache(time.Minute)
	defer cache.Close()
	resolver := NewResolver(f.ledger, testCodec, zap.NewNop(), WithCache(cache))

	first, err := resolver.Verify(context.Background(), classID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Size())

	f.ledger.SetUnavailable(true)
	second, err := resolver.Verify(context.Background(), classID, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestVerifyDoesNotCacheFailures(t *testing.T) {
	f := newFixture()
	classID := f.mint(t, []byte("not a reference"))

	cache := NewRecordCache(time.Minute)
	defer cache.Close()
	resolver := NewResolver(f.ledger, testCodec, zap.NewNop(), WithCache(cache))

	_, err := resolver.Verify(context.Background(), classID, 1)
	require.Error(t, err)
	assert.Equal(t, 0, cache.Size())
}

func TestAttestation(t *testing.T) {
	f := newFixture()
	resolver := NewResolver(f.ledger, testCodec, zap.NewNop())
	ctx := context.Background()

	_, err := resolver.Attestation(ctx, certification.AttestationLocator{})
	assert.True(t, certification.IsKind(err, certification.KindValidation))

	missing := certification.AttestationLocator{TopicID: f.topicID, SequenceNumber: 9, TransactionID: "0.0.1001@1.1"}
	_, err = resolver.Attestation(ctx, missing)
	assert.True(t, certification.IsKind(err, certification.KindNotFound))

	f.ledger.SetUnavailable(true)
	_, err = resolver.Attestation(ctx, missing)
	assert.True(t, certification.IsKind(err, certification.KindUpstreamUnavailable))
}
