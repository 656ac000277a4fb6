package dispatch

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// UUIDv4ShapePattern is the shape invariant from: deterministic
// ids derived from a label must still look like a real UUIDv4.
var UUIDv4ShapePattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

// DeterministicSessionID derives a UUIDv4-shaped session id from label,
//: sha256(label)[0:32] with the version nibble forced to 4
// and the variant nibble forced into {8,9,a,b}. Same label always
// produces the same id ( invariant 9).
func DeterministicSessionID(label string) string {
	sum := sha256.Sum256([]byte(label))
	hexDigits := hex.EncodeToString(sum[:])[:32]
	b := []byte(hexDigits)

	// Index 12 is the version nibble (the first hex digit of the third
	// group): force to "4".
	b[12] = '4'
	// Index 16 is the variant nibble (the first hex digit of the fourth
	// group): force into {8,9,a,b} by clearing the top two bits and
	// setting the high bit, i.e. nibble & 0x3 | 0x8.
	b[16] = variantNibble(b[16])

	return string(b[0:8]) + "-" + string(b[8:12]) + "-" + string(b[12:16]) + "-" +
		string(b[16:20]) + "-" + string(b[20:32])
}

func variantNibble(c byte) byte {
	v := hexVal(c)
	v = (v & 0x3) | 0x8
	return hexDigit(v)
}

func hexVal(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return 0
	}
}

func hexDigit(v byte) byte {
	if v < 10 {
		return '0' + v
	}
	return 'a' + (v - 10)
}
