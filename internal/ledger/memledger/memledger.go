// Package memledger is an in-process ledger that enforces the same rules the
// public network does for the operations this service uses: ordered topic logs,
// capped non-fungible classes, metadata limits and supply-key authorization.
// It backs the "local" network and the test suites.
package memledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agrocert/certification-backend/internal/ledger"
)

// Fault is an injected failure for the next transaction of a kind.
// With Commit set the transaction is applied before the error is returned,
// which is how a receipt timeout looks from the caller's side.
type Fault struct {
	Err    error
	Commit bool
}

type topic struct {
	id       string
	messages []*ledger.Record
}

type class struct {
	id     string
	spec   ledger.ClassSpec
	units  []*ledger.Record
	minted int64
}

// Ledger is safe for concurrent use
type Ledger struct {
	mu          sync.Mutex
	shard       string
	nextEntity  int64
	lastTS      time.Time
	now         func() time.Time
	identities  map[string]ledger.Identity
	topics      map[string]*topic
	classes     map[string]*class
	faults      map[ledger.OperationKind][]Fault
	submissions map[ledger.OperationKind]int
	unavailable bool
	maxMetadata int
}

// Option configures a Ledger
type Option func(*Ledger)

// WithClock replaces the wall clock used for consensus timestamps
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithMaxMetadata overrides the per-unit metadata limit
func WithMaxMetadata(n int) Option {
	return func(l *Ledger) { l.maxMetadata = n }
}

// New creates an empty ledger. Entity ids start at 0.0.1001.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		shard:       "0.0",
		nextEntity:  1000,
		now:         time.Now,
		identities:  make(map[string]ledger.Identity),
		topics:      make(map[string]*topic),
		classes:     make(map[string]*class),
		faults:      make(map[ledger.OperationKind][]Fault),
		submissions: make(map[ledger.OperationKind]int),
		maxMetadata: ledger.MaxUnitMetadataBytes,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// RegisterIdentity allows id to sign transactions
func (l *Ledger) RegisterIdentity(id ledger.Identity) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.identities[id.AccountID] = id
}

// NewIdentity allocates an account and registers it
func (l *Ledger) NewIdentity() ledger.Identity {
	l.mu.Lock()
	defer l.mu.Unlock()
	accountID := l.allocateID()
	id := ledger.Identity{AccountID: accountID, PublicKey: "302a300506032b6570032100" + fmt.Sprintf("%040x", l.nextEntity)}
	l.identities[accountID] = id
	return id
}

// CreateTopic allocates an attestation log directly, without a transaction
func (l *Ledger) CreateTopic() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.allocateID()
	l.topics[id] = &topic{id: id}
	return id
}

// InjectFault queues a failure for the next transaction of kind
func (l *Ledger) InjectFault(kind ledger.OperationKind, f Fault) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.faults[kind] = append(l.faults[kind], f)
}

// SetUnavailable makes every Query fail as if the public replica were down
func (l *Ledger) SetUnavailable(down bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unavailable = down
}

// Submissions returns how many transactions of kind reached the ledger
func (l *Ledger) Submissions(kind ledger.OperationKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submissions[kind]
}

// ClassCount returns the number of classes ever created
func (l *Ledger) ClassCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.classes)
}

// Class returns the spec and minted count of a class
func (l *Ledger) Class(id string) (ledger.ClassSpec, int64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.classes[id]
	if !ok {
		return ledger.ClassSpec{}, 0, false
	}
	return c.spec, c.minted, true
}

// Submit applies tx and returns its receipt
func (l *Ledger) Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: nil transaction", ledger.ErrInvalidTransaction)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.identities[tx.Signer.AccountID]; !ok {
		return nil, fmt.Errorf("%w: no key for account %q", ledger.ErrAuth, tx.Signer.AccountID)
	}

	var fault *Fault
	if queued := l.faults[tx.Kind]; len(queued) > 0 {
		fault = &queued[0]
		l.faults[tx.Kind] = queued[1:]
		if !fault.Commit {
			return nil, fault.Err
		}
	}

	l.submissions[tx.Kind]++
	receipt, err := l.apply(tx)
	if err != nil {
		return nil, err
	}
	if fault != nil {
		return nil, fault.Err
	}
	return receipt, nil
}

func (l *Ledger) apply(tx *ledger.Transaction) (*ledger.Receipt, error) {
	ts := l.tick()
	receipt := &ledger.Receipt{
		TransactionID:      fmt.Sprintf("%s@%d.%09d", tx.Signer.AccountID, ts.Unix(), ts.Nanosecond()),
		ConsensusTimestamp: ts,
	}

	switch tx.Kind {
	case ledger.OpPublish:
		t, ok := l.topics[tx.TopicID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown topic %q", ledger.ErrInvalidTransaction, tx.TopicID)
		}
		if len(tx.Message) == 0 {
			return nil, fmt.Errorf("%w: empty message", ledger.ErrInvalidTransaction)
		}
		seq := uint64(len(t.messages) + 1)
		t.messages = append(t.messages, &ledger.Record{
			Key:                ledger.MessageKey(t.id, seq),
			Data:               append([]byte(nil), tx.Message...),
			ConsensusTimestamp: ts,
			Owner:              tx.Signer.AccountID,
		})
		receipt.TopicID = t.id
		receipt.TopicSequence = seq

	case ledger.OpCreateClass:
		spec := tx.Class
		if spec == nil || spec.Name == "" || spec.Symbol == "" || spec.MaxSupply < 1 {
			return nil, fmt.Errorf("%w: incomplete class spec", ledger.ErrInvalidTransaction)
		}
		if _, ok := l.identities[spec.Treasury]; !ok {
			return nil, fmt.Errorf("%w: unknown treasury %q", ledger.ErrInvalidTransaction, spec.Treasury)
		}
		id := l.allocateID()
		l.classes[id] = &class{id: id, spec: *spec}
		receipt.ClassID = id

	case ledger.OpMint:
		c, ok := l.classes[tx.ClassID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown class %q", ledger.ErrInvalidTransaction, tx.ClassID)
		}
		if c.spec.SupplyKey != tx.Signer.PublicKey {
			return nil, fmt.Errorf("%w: signer does not hold the supply key of %s", ledger.ErrAuth, c.id)
		}
		if len(tx.Metadata) == 0 {
			return nil, fmt.Errorf("%w: no metadata", ledger.ErrInvalidTransaction)
		}
		for _, m := range tx.Metadata {
			if len(m) > l.maxMetadata {
				return nil, fmt.Errorf("%w: %d bytes, limit %d", ledger.ErrMetadataTooLarge, len(m), l.maxMetadata)
			}
		}
		if c.minted+int64(len(tx.Metadata)) > c.spec.MaxSupply {
			return nil, fmt.Errorf("%w: %s has %d of %d", ledger.ErrCapacityExceeded, c.id, c.minted, c.spec.MaxSupply)
		}
		for _, m := range tx.Metadata {
			c.minted++
			c.units = append(c.units, &ledger.Record{
				Key:                ledger.UnitKey(c.id, c.minted),
				Data:               append([]byte(nil), m...),
				ConsensusTimestamp: ts,
				Owner:              c.spec.Treasury,
			})
			receipt.Serials = append(receipt.Serials, c.minted)
		}
		receipt.ClassID = c.id

	case ledger.OpCreateTopic:
		id := l.allocateID()
		l.topics[id] = &topic{id: id}
		receipt.TopicID = id

	default:
		return nil, fmt.Errorf("%w: unsupported operation %q", ledger.ErrInvalidTransaction, tx.Kind)
	}

	return receipt, nil
}

// Query reads a public record
func (l *Ledger) Query(ctx context.Context, key ledger.RecordKey) (*ledger.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.unavailable {
		return nil, fmt.Errorf("%w: replica offline", ledger.ErrUnavailable)
	}

	var records []*ledger.Record
	switch key.Kind {
	case ledger.RecordUnit:
		if c, ok := l.classes[key.EntityID]; ok {
			records = c.units
		}
	case ledger.RecordMessage:
		if t, ok := l.topics[key.EntityID]; ok {
			records = t.messages
		}
	default:
		return nil, fmt.Errorf("%w: unsupported record kind %q", ledger.ErrInvalidTransaction, key.Kind)
	}

	if key.Position < 1 || key.Position > int64(len(records)) {
		return nil, fmt.Errorf("%w: %s %s/%d", ledger.ErrNotFound, key.Kind, key.EntityID, key.Position)
	}
	rec := *records[key.Position-1]
	rec.Data = append([]byte(nil), rec.Data...)
	return &rec, nil
}

func (l *Ledger) allocateID() string {
	l.nextEntity++
	return fmt.Sprintf("%s.%d", l.shard, l.nextEntity)
}

// tick returns a strictly increasing consensus timestamp
func (l *Ledger) tick() time.Time {
	ts := l.now().UTC()
	if !ts.After(l.lastTS) {
		ts = l.lastTS.Add(time.Nanosecond)
	}
	l.lastTS = ts
	return ts
}
