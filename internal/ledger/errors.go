package ledger

import (
	"errors"
	"fmt"
)

// Gateway implementations wrap one of these so callers can classify failures
// with errors.Is without knowing which ledger backend produced them.
var (
	ErrTransient          = errors.New("ledger: transient failure")
	ErrAuth               = errors.New("ledger: signing or authorization failed")
	ErrCapacityExceeded   = errors.New("ledger: class supply cap reached")
	ErrMetadataTooLarge   = errors.New("ledger: metadata exceeds limit")
	ErrInvalidTransaction = errors.New("ledger: invalid transaction")
	ErrNotFound           = errors.New("ledger: record not found")
	ErrUnavailable        = errors.New("ledger: public record service unavailable")

	// ErrOutcomeUnknown is reported when waiting for a receipt was abandoned after
	// the transaction had been sent. The transaction may still reach consensus.
	ErrOutcomeUnknown = fmt.Errorf("%w: outcome unknown", ErrTransient)
)

// IsTransient reports whether err is safe to retry once the step is known not to have committed
func IsTransient(err error) bool { return errors.Is(err, ErrTransient) }

// IsNotFound reports whether err means the queried record does not exist
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
