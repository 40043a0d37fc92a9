package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/txscript"
)

// ScriptDetails holds the operands recovered from a swap witness script. The
// image itself cannot be recovered as the script only commits to its
// ripemd160(sha256) digest.
type ScriptDetails struct {
	// ImageHash is the 20-byte hash160 digest of the payment image.
	ImageHash []byte

	// Broker is the compressed pubkey spendable on the success branch.
	Broker []byte

	// Customer is the compressed pubkey spendable on the refund branch.
	Customer []byte

	// Locktime is the absolute block height gating the refund branch.
	Locktime uint32
}

// ErrMalformedScript is returned by ParseWitnessScript when the passed
// script does not have the exact swap contract layout.
var ErrMalformedScript = fmt.Errorf("htlc: script is not a swap contract")

// ParseWitnessScript inverts WitnessScript, recovering the operands from a
// serialised swap contract. Any deviation from the expected opcode sequence
// fails with ErrMalformedScript.
func ParseWitnessScript(script []byte) (*ScriptDetails, error) {
	tokenizer := txscript.MakeScriptTokenizer(0, script)

	details := &ScriptDetails{}

	// Each step pulls the next token and checks it against the expected
	// shape, capturing operand data along the way.
	steps := []func() bool{
		func() bool { return tokenizer.Opcode() == txscript.OP_HASH160 },
		func() bool {
			details.ImageHash = tokenizer.Data()
			return len(details.ImageHash) == 20
		},
		func() bool { return tokenizer.Opcode() == txscript.OP_EQUAL },
		func() bool { return tokenizer.Opcode() == txscript.OP_IF },
		func() bool {
			details.Broker = tokenizer.Data()
			return len(details.Broker) == pubKeyLen
		},
		func() bool { return tokenizer.Opcode() == txscript.OP_ELSE },
		func() bool {
			locktime, ok := parseScriptNum(&tokenizer)
			details.Locktime = locktime
			return ok
		},
		func() bool {
			return tokenizer.Opcode() ==
				txscript.OP_CHECKLOCKTIMEVERIFY
		},
		func() bool { return tokenizer.Opcode() == txscript.OP_DROP },
		func() bool {
			details.Customer = tokenizer.Data()
			return len(details.Customer) == pubKeyLen
		},
		func() bool { return tokenizer.Opcode() == txscript.OP_ENDIF },
		func() bool { return tokenizer.Opcode() == txscript.OP_CHECKSIG },
	}

	for _, step := range steps {
		if !tokenizer.Next() || !step() {
			return nil, ErrMalformedScript
		}
	}
	if !tokenizer.Done() || tokenizer.Err() != nil {
		return nil, ErrMalformedScript
	}

	return details, nil
}

// parseScriptNum decodes the current token as a minimally encoded
// CScriptNum, accepting both the small-integer opcodes and regular data
// pushes of up to 5 bytes, mirroring what the script builder emits.
func parseScriptNum(tokenizer *txscript.ScriptTokenizer) (uint32, bool) {
	op := tokenizer.Opcode()
	switch {
	case op == txscript.OP_0:
		return 0, true

	case op >= txscript.OP_1 && op <= txscript.OP_16:
		return uint32(op-txscript.OP_1) + 1, true
	}

	data := tokenizer.Data()
	if data == nil {
		return 0, false
	}
	num, err := txscript.MakeScriptNum(data, true, 5)
	if err != nil || num < 0 {
		return 0, false
	}

	return uint32(num), true
}
