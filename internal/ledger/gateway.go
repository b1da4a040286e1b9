package ledger

import (
	"context"
	"time"
)

// OperationKind identifies what a transaction does on the ledger
type OperationKind string

const (
	OpPublish     OperationKind = "publish"
	OpCreateClass OperationKind = "create_class"
	OpMint        OperationKind = "mint"
	OpCreateTopic OperationKind = "create_topic"
)

// Identity is the signing capability handed to every component that writes to the ledger.
// The gateway holds the private key for the account; components only name it.
type Identity struct {
	AccountID string `json:"account_id"`
	PublicKey string `json:"public_key"`
}

// ClassSpec describes a non-fungible token class
type ClassSpec struct {
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	MaxSupply int64  `json:"max_supply"`
	Decimals  uint32 `json:"decimals"`
	Treasury  string `json:"treasury"`
	SupplyKey string `json:"supply_key"`
}

// Transaction is the gateway's unit of submission. Only the fields relevant to Kind are read.
type Transaction struct {
	Kind   OperationKind `json:"kind"`
	Signer Identity      `json:"signer"`

	// MaxFee is the fee ceiling in tinybars; zero lets the gateway apply its default.
	MaxFee int64 `json:"max_fee"`

	// publish
	TopicID string `json:"topic_id,omitempty"`
	Message []byte `json:"message,omitempty"`

	// create_class
	Class *ClassSpec `json:"class,omitempty"`

	// mint
	ClassID  string   `json:"class_id,omitempty"`
	Metadata [][]byte `json:"metadata,omitempty"`

	// create_topic
	Memo string `json:"memo,omitempty"`
}

// Receipt is the final, consensus-confirmed outcome of a transaction
type Receipt struct {
	TransactionID      string    `json:"transaction_id"`
	ConsensusTimestamp time.Time `json:"consensus_timestamp"`
	TopicID            string    `json:"topic_id,omitempty"`
	TopicSequence      uint64    `json:"topic_sequence,omitempty"`
	ClassID            string    `json:"class_id,omitempty"`
	Serials            []int64   `json:"serials,omitempty"`
}

// RecordKind selects which public record a query addresses
type RecordKind string

const (
	RecordUnit    RecordKind = "unit"
	RecordMessage RecordKind = "message"
)

// RecordKey addresses one public record: a unit by (class id, serial) or a log
// message by (topic id, sequence number).
type RecordKey struct {
	Kind     RecordKind
	EntityID string
	Position int64
}

// Record is public ledger data as served by a read-only replica
type Record struct {
	Key                RecordKey `json:"key"`
	Data               []byte    `json:"data"`
	ConsensusTimestamp time.Time `json:"consensus_timestamp"`
	Owner              string    `json:"owner,omitempty"`
	Deleted            bool      `json:"deleted,omitempty"`
}

// Submitter is the write side of the gateway. Submit blocks until a receipt is
// obtained or the context ends; once a transaction has been sent it cannot be withdrawn.
type Submitter interface {
	Submit(ctx context.Context, tx *Transaction) (*Receipt, error)
}

// PublicRecords is the credential-free read side of the gateway
type PublicRecords interface {
	Query(ctx context.Context, key RecordKey) (*Record, error)
}

// Gateway combines both sides of the ledger boundary
type Gateway interface {
	Submitter
	PublicRecords
}

// UnitKey addresses a minted unit
func UnitKey(classID string, serial int64) RecordKey {
	return RecordKey{Kind: RecordUnit, EntityID: classID, Position: serial}
}

// MessageKey addresses a message on an attestation log
func MessageKey(topicID string, sequence uint64) RecordKey {
	return RecordKey{Kind: RecordMessage, EntityID: topicID, Position: int64(sequence)}
}
