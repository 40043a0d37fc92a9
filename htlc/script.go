// Package htlc constructs and parses the hash time-locked contract used to
// lock the on-chain leg of a submarine swap. The builder is pure: it has no
// dependency on any node handle and can be exercised entirely offline.
package htlc

import (
	"crypto/sha256"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

const (
	// imageLen is the required length of the hash image operand. The
	// image is the SHA-256 payment hash shared with the Lightning
	// invoice, so it is always exactly 32 bytes.
	imageLen = 32

	// pubKeyLen is the required length of both pubkey operands. Only
	// compressed secp256k1 public keys are accepted.
	pubKeyLen = 33
)

// ErrInvalidOperand is returned when any operand passed to WitnessScript has
// the wrong length.
var ErrInvalidOperand = fmt.Errorf("htlc: operand has invalid length")

// WitnessScript generates the witness script for the swap contract. The
// broker funds an output paying to this script. Revealing the preimage of
// the image hash selects the success branch, which requires a signature of
// the broker key. After the locktime matures the refund branch makes the
// output spendable by the customer key.
//
// Possible Input Scripts:
//
//	SWEEP:  <sig> <pubkey> <preimage>
//	REFUND: <sig> <pubkey> <>
//
// OP_HASH160 <ripemd160(sha256(image))> OP_EQUAL
// OP_IF
//	<broker key>
// OP_ELSE
//	<locktime> OP_CHECKLOCKTIMEVERIFY OP_DROP
//	<customer key>
// OP_ENDIF
// OP_CHECKSIG
func WitnessScript(image, broker, customer []byte,
	locktime uint32) ([]byte, error) {

	if len(image) != imageLen {
		return nil, ErrInvalidOperand
	}
	if len(broker) != pubKeyLen || len(customer) != pubKeyLen {
		return nil, ErrInvalidOperand
	}

	builder := txscript.NewScriptBuilder()

	// The top of the witness stack either carries the preimage of the
	// image hash, or an empty vector selecting the refund branch.
	builder.AddOp(txscript.OP_HASH160)
	builder.AddData(btcutil.Hash160(image))
	builder.AddOp(txscript.OP_EQUAL)

	// Preimage matched, so the broker key may claim immediately.
	builder.AddOp(txscript.OP_IF)
	builder.AddData(broker)

	// Otherwise the output is refundable to the customer key, but only
	// once the absolute locktime has been reached. AddInt64 serialises
	// the height as a minimal CScriptNum.
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(int64(locktime))
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(customer)
	builder.AddOp(txscript.OP_ENDIF)

	// In either branch, a valid signature for the selected key is
	// required.
	builder.AddOp(txscript.OP_CHECKSIG)

	return builder.Script()
}

// P2WSHAddress derives the pay-to-witness-script-hash address committing to
// the passed witness script, under the given network: the bech32 encoding of
// the SHA-256 of the script as a version 0 witness program.
func P2WSHAddress(witnessScript []byte,
	net *chaincfg.Params) (*btcutil.AddressWitnessScriptHash, error) {

	scriptHash := sha256.Sum256(witnessScript)
	return btcutil.NewAddressWitnessScriptHash(scriptHash[:], net)
}
