package raffleservice

import "errors"

// Domain errors for the raffle engine.
// Handlers treat these as normal outcomes (publish a rejection, ack the message)
// rather than retrying.
var (
	// ErrNotOpen indicates an entry was attempted while the round is CALCULATING.
	ErrNotOpen = errors.New("raffle is not open")

	// ErrInsufficientFee indicates the entry amount is below the entrance fee.
	ErrInsufficientFee = errors.New("insufficient entrance fee")

	// ErrUpkeepNotReady indicates performUpkeep was called before its conditions hold.
	ErrUpkeepNotReady = errors.New("upkeep not needed")

	// ErrUnknownRequest indicates a fulfillment that does not match the outstanding request.
	ErrUnknownRequest = errors.New("unknown randomness request")

	// ErrInvalidRandomness indicates a fulfillment without a usable random value.
	ErrInvalidRandomness = errors.New("invalid random value")

	// ErrPayoutFailed indicates the payout collaborator refused the transfer.
	// The round stays CALCULATING; it is never retried automatically.
	ErrPayoutFailed = errors.New("payout failed")

	// ErrPlayerIndexOutOfRange indicates Player was called with an index past the entries.
	ErrPlayerIndexOutOfRange = errors.New("player index out of range")

	// ErrInvalidConfig indicates the engine was constructed with unusable settings.
	ErrInvalidConfig = errors.New("invalid raffle config")
)

// IsDomainError reports whether err is a business-rule rejection rather than an
// infrastructure failure.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotOpen) ||
		errors.Is(err, ErrInsufficientFee) ||
		errors.Is(err, ErrUpkeepNotReady) ||
		errors.Is(err, ErrUnknownRequest) ||
		errors.Is(err, ErrInvalidRandomness) ||
		errors.Is(err, ErrPlayerIndexOutOfRange)
}

// rejectionReason maps a domain error to a stable metrics label.
func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrNotOpen):
		return "not_open"
	case errors.Is(err, ErrInsufficientFee):
		return "insufficient_fee"
	case errors.Is(err, ErrUpkeepNotReady):
		return "upkeep_not_ready"
	case errors.Is(err, ErrUnknownRequest):
		return "unknown_request"
	case errors.Is(err, ErrInvalidRandomness):
		return "invalid_randomness"
	case errors.Is(err, ErrPlayerIndexOutOfRange):
		return "index_out_of_range"
	default:
		return "other"
	}
}
