package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrInvalid  = errors.New("invalid")
	// ErrDataIntegrity marks lot/quantity mismatches and similar fatal input defects.
	ErrDataIntegrity = errors.New("data_integrity")
	// ErrInsufficientLots indicates a disposal exceeding the open lot quantity.
	ErrInsufficientLots = errors.New("insufficient_lots")
	// ErrUnorderedTransaction indicates disposals arriving out of timestamp order.
	ErrUnorderedTransaction = errors.New("unordered_transaction")
	// ErrRuleTableNotFound indicates no rule table is published for a (jurisdiction, year).
	ErrRuleTableNotFound = errors.New("rule_table_not_found")
	// ErrTreatyNotFound indicates a missing treaty row; the caller must verify manually.
	ErrTreatyNotFound = errors.New("treaty_not_found")
	// ErrValidation is used for invariant violations on a draft record (HTTP 422).
	ErrValidation = errors.New("validation_error")
	// ErrConcurrentRecalculation indicates an optimistic-lock conflict on finalize.
	ErrConcurrentRecalculation = errors.New("concurrent_recalculation")
	// ErrImmutable indicates an attempt to change a published table or finalized record.
	ErrImmutable = errors.New("immutable")
	// ErrNotFinalized indicates an export was requested for a non-finalized record.
	ErrNotFinalized = errors.New("not_finalized")
)
