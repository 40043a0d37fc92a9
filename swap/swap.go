// Package swap houses the submarine swap coordinator: the state machine
// exchanging an off-chain Lightning payment for an on-chain payment locked
// behind a hash time-locked contract.
package swap

import (
	"crypto/rand"
	"encoding/hex"
)

// Status describes where a swap sits in its lifecycle. The transitions form
// a DAG: pending -> accepted -> settled, or pending -> canceled. There are
// no backward transitions.
type Status string

const (
	// StatusPending is a freshly created swap waiting for the customer to
	// pay the hold invoice. Pending swaps live only in the TTL cache.
	StatusPending Status = "pending"

	// StatusAccepted means the customer's Lightning HTLC locked, the
	// funding transaction was broadcast and the swap was promoted to the
	// durable store.
	StatusAccepted Status = "accepted"

	// StatusSettled means the preimage was revealed (on-chain or through
	// the manual settle path) and the hold invoice was settled.
	StatusSettled Status = "settled"

	// StatusCanceled marks a swap whose funding broadcast failed. The
	// record lingers in the cache on a short TTL so the customer can
	// observe the outcome.
	StatusCanceled Status = "canceled"
)

// Swap is the central record of the broker. The JSON encoding is what both
// store tiers persist and what the HTTP surface returns, verbatim.
type Swap struct {
	// ID is a random 128-bit identifier rendered as lowercase hex.
	ID string `json:"id"`

	Status Status `json:"status"`

	// Value is the on-chain payout amount in satoshi.
	Value int64 `json:"value"`

	// Invoice is the bech32 hold invoice the customer must pay. It is
	// locked to PaymentHash, so the broker can only collect it once the
	// customer reveals the preimage.
	Invoice string `json:"invoice"`

	// PaymentHash is the shared SHA-256 image, 64 hex characters.
	PaymentHash string `json:"payment_hash"`

	// Preimage is set exactly once the swap settles, and then
	// sha256(Preimage) == PaymentHash.
	Preimage string `json:"preimage,omitempty"`

	// Address is the P2WSH address committing to RedeemScript.
	Address string `json:"address"`

	// RedeemScript is the full witness script, hex encoded.
	RedeemScript string `json:"redeem_script"`

	// Locktime is the absolute height at which the refund branch of the
	// contract becomes spendable.
	Locktime int64 `json:"locktime"`

	FeeNetwork int64 `json:"fee_network"`
	FeeService int64 `json:"fee_service"`

	// Expiry is the pending record's cache lifetime in seconds.
	Expiry int64 `json:"expiry"`

	// FundingTxid and FundingVout identify the HTLC output once the
	// broker has broadcast the funding transaction. FundingTxid is never
	// overwritten once set.
	FundingTxid string  `json:"funding_txid,omitempty"`
	FundingVout *uint32 `json:"funding_vout,omitempty"`

	CreatedAt int64 `json:"created_at"`
	UpdatedAt int64 `json:"updated_at"`
}

// NewID generates a random swap identifier from 16 bytes of cryptographic
// randomness.
func NewID() (string, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return "", err
	}

	return hex.EncodeToString(id[:]), nil
}
