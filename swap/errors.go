package swap

import "fmt"

var (
	// ErrInvalidPubKey is returned when the customer refund pubkey is
	// too short or fails to decode as a compressed pubkey.
	ErrInvalidPubKey = fmt.Errorf("pubkey invalid")

	// ErrBelowDust rejects amounts at or below the dust limit.
	ErrBelowDust = fmt.Errorf("amount must be greater than the dust limit")

	// ErrBelowMinimum rejects amounts under the configured floor.
	ErrBelowMinimum = fmt.Errorf("amount is less than the minimum")

	// ErrAboveMaximum rejects amounts over the configured ceiling.
	ErrAboveMaximum = fmt.Errorf("amount is greater than the maximum")

	// ErrInvalidPaymentHash rejects payment hashes that are not exactly
	// 64 hex characters.
	ErrInvalidPaymentHash = fmt.Errorf("payment hash invalid")

	// ErrFeeEstimation is returned when the node cannot produce a fee
	// rate for the funding transaction.
	ErrFeeEstimation = fmt.Errorf("unable to estimate fee")

	// ErrInsufficientLiquidity is returned when the on-chain wallet
	// cannot cover the payout plus the network fee.
	ErrInsufficientLiquidity = fmt.Errorf("not enough liquidity at the moment")

	// ErrInvoiceCreation is returned when the Lightning node fails to
	// produce a hold invoice.
	ErrInvoiceCreation = fmt.Errorf("unable to create a new invoice")

	// ErrInvalidPreimage is returned by the manual settle path when the
	// preimage does not hash to the swap's payment hash, or when the
	// node rejects the settlement.
	ErrInvalidPreimage = fmt.Errorf("invalid preimage")

	// ErrSwapNotFound is returned when neither store tier holds a swap
	// with the requested id. It is terminal for a lookup: a pending
	// record whose TTL lapsed is gone.
	ErrSwapNotFound = fmt.Errorf("swap not found")
)

// IsValidationError reports whether err is one of the synchronous input
// validation failures that the HTTP surface maps to a 400 response. All
// other errors surface as 500 without leaking internals.
func IsValidationError(err error) bool {
	switch err {
	case ErrInvalidPubKey, ErrBelowDust, ErrBelowMinimum,
		ErrAboveMaximum, ErrInvalidPaymentHash:

		return true
	}

	return false
}
