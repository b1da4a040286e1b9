package certification

import (
	"strings"
	"time"
)

// Payload is the issuer-supplied attestation data. The core treats it as an
// opaque JSON object; only productName is read, to name the asset class.
type Payload map[string]interface{}

// ProductName returns the productName field, trimmed, or "" when absent
func (p Payload) ProductName() string {
	name, _ := p["productName"].(string)
	return strings.TrimSpace(name)
}

// Stage names a ledger step of the issuance pipeline
type Stage string

const (
	StagePublish     Stage = "publish"
	StageCreateClass Stage = "create_class"
	StageMint        Stage = "mint"
	StageAssemble    Stage = "assemble"
)

// State is a position in the issuance state machine
type State string

const (
	StateInit         State = "INIT"
	StatePublished    State = "PUBLISHED"
	StateClassCreated State = "CLASS_CREATED"
	StateMinted       State = "MINTED"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Attestation is a payload committed to the attestation log
type Attestation struct {
	Locator AttestationLocator `json:"locator"`
	// ContentID is the CIDv1 (raw, sha2-256) of Bytes
	ContentID string `json:"content_id"`
	Bytes     []byte `json:"-"`
}

// AssetClass is the single-certificate token type
type AssetClass struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Symbol    string `json:"symbol"`
	MaxSupply int64  `json:"max_supply"`
	Treasury  string `json:"treasury"`
	SupplyKey string `json:"supply_key"`
}

// Unit is the minted instance of an asset class. Serial is the one the ledger
// assigned in the mint receipt.
type Unit struct {
	ClassID   string             `json:"class_id"`
	Serial    int64              `json:"serial"`
	Reference string             `json:"reference"`
	Locator   AttestationLocator `json:"locator"`
	MintedAt  time.Time          `json:"minted_at"`
}

// Checkpoint is what an interrupted issuance already committed
type Checkpoint struct {
	Locator   AttestationLocator `json:"attestationLocator"`
	ContentID string             `json:"contentId,omitempty"`
	ClassID   string             `json:"assetClassId,omitempty"`
}

func (c Checkpoint) committed() string {
	switch {
	case c.ClassID != "":
		return "attestation " + c.Locator.String() + " and class " + c.ClassID
	case !c.Locator.IsZero():
		return "attestation " + c.Locator.String()
	default:
		return "nothing"
	}
}

// IssuanceResult is returned to the caller and not stored anywhere
type IssuanceResult struct {
	IssuanceID           string             `json:"issuanceId"`
	AttestationLocator   AttestationLocator `json:"attestationLocator"`
	AttestationReference string             `json:"attestationReference"`
	ContentID            string             `json:"contentId"`
	AssetClassID         string             `json:"assetClassId"`
	UnitSerial           int64              `json:"unitSerial"`
}

// VerificationRecord is built from public ledger data only
type VerificationRecord struct {
	AssetID              string             `json:"assetId"`
	Serial               int64              `json:"serial"`
	AttestationReference string             `json:"attestationReference"`
	Locator              AttestationLocator `json:"attestationLocator"`
	MintedAt             time.Time          `json:"mintedAt"`
	Owner                string             `json:"owner,omitempty"`
}

// Event is emitted on every pipeline state transition
type Event struct {
	IssuanceID string     `json:"issuance_id"`
	From       State      `json:"from"`
	To         State      `json:"to"`
	Stage      Stage      `json:"stage,omitempty"`
	Checkpoint Checkpoint `json:"checkpoint"`
	Serial     int64      `json:"serial,omitempty"`
	ErrorKind  Kind       `json:"error_kind,omitempty"`
	Error      string     `json:"error,omitempty"`
	Elapsed    float64    `json:"elapsed_seconds"`
	At         time.Time  `json:"at"`
}

// Observer receives pipeline events. Implementations must not block.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }
