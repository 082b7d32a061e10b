package amortization

import "errors"

// Rejections. Every one of them aborts the call with no state change.
var (
	ErrUnauthorized          = errors.New("caller is not the issuing institution")
	ErrBondNotFound          = errors.New("bond not found")
	ErrInvalidInvestor       = errors.New("invalid investor address")
	ErrAlreadyFullyAmortized = errors.New("all amortizations already paid")
	ErrNoPeriodElapsed       = errors.New("no amortization period has elapsed yet")
	ErrInvalidRedemptionTime = errors.New("invalid redemption time")
	ErrInvalidTerms          = errors.New("invalid bond terms")
	ErrNotInvestorOfRecord   = errors.New("seller is not the investor of record")
)

// IsPermanent reports whether err can never succeed on retry for the same
// (investor, bond) key.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrAlreadyFullyAmortized)
}

// Reason returns a stable machine-readable code for a rejection, or
// "internal" for infrastructure failures.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrBondNotFound):
		return "bond_not_found"
	case errors.Is(err, ErrInvalidInvestor):
		return "invalid_investor"
	case errors.Is(err, ErrAlreadyFullyAmortized):
		return "already_fully_amortized"
	case errors.Is(err, ErrNoPeriodElapsed):
		return "no_period_elapsed"
	case errors.Is(err, ErrInvalidRedemptionTime):
		return "invalid_redemption_time"
	case errors.Is(err, ErrInvalidTerms):
		return "invalid_terms"
	case errors.Is(err, ErrNotInvestorOfRecord):
		return "not_investor_of_record"
	default:
		return "internal"
	}
}
