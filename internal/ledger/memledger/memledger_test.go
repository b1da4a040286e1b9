package memledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrocert/certification-backend/internal/ledger"
)

func fixedClock() func() time.Time {
	t := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func newClass(t *testing.T, l *Ledger, issuer ledger.Identity, maxSupply int64) string {
	t.Helper()
	receipt, err := l.Submit(context.Background(), &ledger.Transaction{
		Kind:   ledger.OpCreateClass,
		Signer: issuer,
		Class: &ledger.ClassSpec{
			Name: "Certificate for Beans", Symbol: "CERT", MaxSupply: maxSupply,
			Treasury: issuer.AccountID, SupplyKey: issuer.PublicKey,
		},
	})
	require.NoError(t, err)
	return receipt.ClassID
}

func TestPublishAssignsIncreasingSequences(t *testing.T) {
	l := New(WithClock(fixedClock()))
	issuer := l.NewIdentity()
	topicID := l.CreateTopic()
	ctx := context.Background()

	first, err := l.Submit(ctx, &ledger.Transaction{Kind: ledger.OpPublish, Signer: issuer, TopicID: topicID, Message: []byte(`{"a":1}`)})
	require.NoError(t, err)
	second, err := l.Submit(ctx, &ledger.Transaction{Kind: ledger.OpPublish, Signer: issuer, TopicID: topicID, Message: []byte(`{"a":1}`)})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), first.TopicSequence)
	assert.Equal(t, uint64(2), second.TopicSequence)
	assert.True(t, second.ConsensusTimestamp.After(first.ConsensusTimestamp))
	assert.NotEqual(t, first.TransactionID, second.TransactionID)

	rec, err := l.Query(ctx, ledger.MessageKey(topicID, 2))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(rec.Data))
}

func TestMintEnforcesCap(t *testing.T) {
	l := New()
	issuer := l.NewIdentity()
	classID := newClass(t, l, issuer, 1)
	ctx := context.Background()

	receipt, err := l.Submit(ctx, &ledger.Transaction{Kind: ledger.OpMint, Signer: issuer, ClassID: classID, Metadata: [][]byte{[]byte("ref")}})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, receipt.Serials)

	_, err = l.Submit(ctx, &ledger.Transaction{Kind: ledger.OpMint, Signer: issuer, ClassID: classID, Metadata: [][]byte{[]byte("ref")}})
	assert.ErrorIs(t, err, ledger.ErrCapacityExceeded)

	_, minted, ok := l.Class(classID)
	require.True(t, ok)
	assert.Equal(t, int64(1), minted)
}

func TestMintRequiresSupplyKey(t *testing.T) {
	l := New()
	issuer := l.NewIdentity()
	other := l.NewIdentity()
	classID := newClass(t, l, issuer, 1)

	_, err := l.Submit(context.Background(), &ledger.Transaction{Kind: ledger.OpMint, Signer: other, ClassID: classID, Metadata: [][]byte{[]byte("ref")}})
	assert.ErrorIs(t, err, ledger.ErrAuth)
}

func TestMintRejectsOversizeMetadata(t *testing.T) {
	l := New(WithMaxMetadata(8))
	issuer := l.NewIdentity()
	classID := newClass(t, l, issuer, 1)

	_, err := l.Submit(context.Background(), &ledger.Transaction{Kind: ledger.OpMint, Signer: issuer, ClassID: classID, Metadata: [][]byte{[]byte("123456789")}})
	assert.ErrorIs(t, err, ledger.ErrMetadataTooLarge)
}

func TestUnknownSignerIsRejected(t *testing.T) {
	l := New()
	topicID := l.CreateTopic()

	_, err := l.Submit(context.Background(), &ledger.Transaction{
		Kind:    ledger.OpPublish,
		Signer:  ledger.Identity{AccountID: "0.0.9"},
		TopicID: topicID,
		Message: []byte("x"),
	})
	assert.ErrorIs(t, err, ledger.ErrAuth)
}

func TestFaults(t *testing.T) {
	l := New()
	issuer := l.NewIdentity()
	topicID := l.CreateTopic()
	ctx := context.Background()
	tx := &ledger.Transaction{Kind: ledger.OpPublish, Signer: issuer, TopicID: topicID, Message: []byte("x")}

	l.InjectFault(ledger.OpPublish, Fault{Err: ledger.ErrTransient})
	_, err := l.Submit(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrTransient)
	assert.Equal(t, 0, l.Submissions(ledger.OpPublish))

	l.InjectFault(ledger.OpPublish, Fault{Err: ledger.ErrOutcomeUnknown, Commit: true})
	_, err = l.Submit(ctx, tx)
	assert.ErrorIs(t, err, ledger.ErrOutcomeUnknown)
	assert.Equal(t, 1, l.Submissions(ledger.OpPublish))

	_, err = l.Query(ctx, ledger.MessageKey(topicID, 1))
	assert.NoError(t, err, "a committed fault still applies the transaction")
}

func TestQuery(t *testing.T) {
	l := New()
	ctx := context.Background()

	_, err := l.Query(ctx, ledger.UnitKey("0.0.404", 1))
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	l.SetUnavailable(true)
	_, err = l.Query(ctx, ledger.UnitKey("0.0.404", 1))
	assert.ErrorIs(t, err, ledger.ErrUnavailable)
}

func TestCreateTopicTransaction(t *testing.T) {
	l := New()
	issuer := l.NewIdentity()

	receipt, err := l.Submit(context.Background(), &ledger.Transaction{Kind: ledger.OpCreateTopic, Signer: issuer})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.TopicID)

	_, err = l.Submit(context.Background(), &ledger.Transaction{Kind: ledger.OpPublish, Signer: issuer, TopicID: receipt.TopicID, Message: []byte("x")})
	assert.NoError(t, err)
}

func TestCancelledContextSubmitsNothing(t *testing.T) {
	l := New()
	issuer := l.NewIdentity()
	topicID := l.CreateTopic()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Submit(ctx, &ledger.Transaction{Kind: ledger.OpPublish, Signer: issuer, TopicID: topicID, Message: []byte("x")})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, l.Submissions(ledger.OpPublish))
}
