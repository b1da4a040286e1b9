package certification

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	entityIDPattern      = regexp.MustCompile(`^\d+\.\d+\.\d+$`)
	transactionIDPattern = regexp.MustCompile(`^\d+\.\d+\.\d+@\d+\.\d+$`)
)

// AttestationLocator identifies one committed attestation: the log position
// (topic, sequence number) and the transaction that put it there.
// The consensus timestamp is informational and not part of the identity.
type AttestationLocator struct {
	TopicID            string
	SequenceNumber     uint64
	TransactionID      string
	ConsensusTimestamp time.Time
}

// String renders the canonical form "<topicId>:<sequence>:<transactionId>"
func (l AttestationLocator) String() string {
	if l.IsZero() {
		return ""
	}
	return fmt.Sprintf("%s:%d:%s", l.TopicID, l.SequenceNumber, l.TransactionID)
}

// IsZero reports whether the locator is unset
func (l AttestationLocator) IsZero() bool {
	return l.TopicID == "" && l.SequenceNumber == 0 && l.TransactionID == ""
}

// Equal compares identity fields only
func (l AttestationLocator) Equal(o AttestationLocator) bool {
	return l.TopicID == o.TopicID && l.SequenceNumber == o.SequenceNumber && l.TransactionID == o.TransactionID
}

// Validate checks that every identity field is well formed
func (l AttestationLocator) Validate() error {
	if !entityIDPattern.MatchString(l.TopicID) {
		return fmt.Errorf("invalid topic id %q", l.TopicID)
	}
	if l.SequenceNumber == 0 {
		return fmt.Errorf("sequence number must be positive")
	}
	if !transactionIDPattern.MatchString(l.TransactionID) {
		return fmt.Errorf("invalid transaction id %q", l.TransactionID)
	}
	return nil
}

func (l AttestationLocator) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

func (l *AttestationLocator) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*l = AttestationLocator{}
		return nil
	}
	parsed, err := ParseLocator(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLocator is the inverse of AttestationLocator.String
func ParseLocator(s string) (AttestationLocator, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return AttestationLocator{}, fmt.Errorf("locator %q: want <topicId>:<sequence>:<transactionId>", s)
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return AttestationLocator{}, fmt.Errorf("locator %q: sequence: %w", s, err)
	}
	l := AttestationLocator{TopicID: parts[0], SequenceNumber: seq, TransactionID: parts[2]}
	if err := l.Validate(); err != nil {
		return AttestationLocator{}, fmt.Errorf("locator %q: %w", s, err)
	}
	return l, nil
}

// ReferenceCodec converts locators to and from the reference stored in unit metadata:
//
//	<explorer>/<network>/transaction/<transactionId>#<topicId>:<sequence>
//
// The URL opens the attestation transaction in a block explorer; the fragment
// pins the log position so the exact message can be re-fetched from a mirror.
type ReferenceCodec struct {
	ExplorerURL string
	Network     string
}

// Encode renders the reference for l
func (c ReferenceCodec) Encode(l AttestationLocator) (string, error) {
	if err := l.Validate(); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/transaction/%s#%s:%d",
		strings.TrimRight(c.ExplorerURL, "/"), c.Network, l.TransactionID, l.TopicID, l.SequenceNumber), nil
}

// Decode parses a stored reference. Explorer host and network segment are not
// checked, so references written by any issuer deployment decode the same way.
func (c ReferenceCodec) Decode(ref string) (AttestationLocator, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return AttestationLocator{}, fmt.Errorf("reference is not a URL: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return AttestationLocator{}, fmt.Errorf("reference %q is not an absolute http(s) URL", ref)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) < 2 || segments[len(segments)-2] != "transaction" {
		return AttestationLocator{}, fmt.Errorf("reference %q does not point at a transaction", ref)
	}

	topicID, seqPart, ok := strings.Cut(u.Fragment, ":")
	if !ok {
		return AttestationLocator{}, fmt.Errorf("reference %q carries no log position", ref)
	}
	seq, err := strconv.ParseUint(seqPart, 10, 64)
	if err != nil {
		return AttestationLocator{}, fmt.Errorf("reference %q: sequence: %w", ref, err)
	}

	l := AttestationLocator{
		TopicID:        topicID,
		SequenceNumber: seq,
		TransactionID:  segments[len(segments)-1],
	}
	if err := l.Validate(); err != nil {
		return AttestationLocator{}, fmt.Errorf("reference %q: %w", ref, err)
	}
	return l, nil
}
