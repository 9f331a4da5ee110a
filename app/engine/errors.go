package engine

import "fmt"

// ErrorKind is the wire-level classification carried back to the requester.
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation"
	KindStateConflict     ErrorKind = "state-conflict"
	KindInsufficientFunds ErrorKind = "insufficient-funds"
	KindInsufficientAsset ErrorKind = "insufficient-asset"
	KindRuleViolation     ErrorKind = "rule-violation"
	KindInternal          ErrorKind = "internal"
)

// ValidationError: malformed or out-of-range input. Recovered locally and
// surfaced to the requester.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// StateConflictError: the action was legal once but the world moved on
// (stale turn token, duplicate auction, wrong phase). Always a rejected no-op.
type StateConflictError struct {
	Reason string
}

func (e *StateConflictError) Error() string { return e.Reason }

// StaleTurnError rejects an action carrying an old or foreign turn token.
// Idempotent no-op, never fatal: a retransmitted end-turn simply bounces.
type StaleTurnError struct {
	Got  string
	Want string
}

func (e *StaleTurnError) Error() string { return "stale turn token" }

// DuplicateAuctionError rejects opening a second auction on a property that
// already has one open.
type DuplicateAuctionError struct {
	PropertyID string
}

func (e *DuplicateAuctionError) Error() string {
	return fmt.Sprintf("auction already open for property %s", e.PropertyID)
}

// InsufficientFundsError: the payer cannot cover the amount. May trigger a
// bankruptcy evaluation downstream but is not itself fatal.
type InsufficientFundsError struct {
	PlayerID  string
	Needed    int
	Available int
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("player %s has %d, needs %d", e.PlayerID, e.Available, e.Needed)
}

// InsufficientAssetError: a trade or liquidation leg references an asset the
// party no longer holds in a usable state.
type InsufficientAssetError struct {
	PlayerID string
	AssetID  string
	Reason   string
}

func (e *InsufficientAssetError) Error() string {
	return fmt.Sprintf("player %s asset %s: %s", e.PlayerID, e.AssetID, e.Reason)
}

// RuleViolationError: a game-rule precondition failed (zoning ceiling, group
// not complete, mortgaged collateral...). Surfaced with the specific rule,
// never silently coerced.
type RuleViolationError struct {
	Rule   string
	Reason string
}

func (e *RuleViolationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Rule, e.Reason)
}

// InternalInvariantError means the aggregate is inconsistent. The game
// instance freezes rather than keep playing on corrupt state.
type InternalInvariantError struct {
	Invariant string
	Detail    string
}

func (e *InternalInvariantError) Error() string {
	return fmt.Sprintf("invariant %s violated: %s", e.Invariant, e.Detail)
}

// KindOf maps an engine error to its wire classification.
func KindOf(err error) ErrorKind {
	switch err.(type) {
	case *ValidationError:
		return KindValidation
	case *StateConflictError, *StaleTurnError, *DuplicateAuctionError:
		return KindStateConflict
	case *InsufficientFundsError:
		return KindInsufficientFunds
	case *InsufficientAssetError:
		return KindInsufficientAsset
	case *RuleViolationError:
		return KindRuleViolation
	default:
		return KindInternal
	}
}

// IsStateConflict reports whether err is one of the rejected-no-op kinds.
func IsStateConflict(err error) bool {
	return KindOf(err) == KindStateConflict
}
