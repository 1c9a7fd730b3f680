// package utils contains helpers to convert the hex encoded values found in
// proof artifacts and configuration into the byte types verifiers expect
package utils

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseHexBytes decodes a hex string, with or without the 0x prefix.
// An odd number of digits is left-padded with a zero, so "0x0" is one byte.
func ParseHexBytes(s string) ([]byte, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(digits)%2 != 0 {
		digits = "0" + digits
	}
	b, err := hexutil.Decode("0x" + digits)
	if err != nil {
		return nil, fmt.Errorf("invalid hex string %q: %v", s, err)
	}
	return b, nil
}

// ParseFixedHex decodes a hex string into dst, which must be exactly as long
// as the decoded value
func ParseFixedHex(s string, dst []byte) error {
	b, err := ParseHexBytes(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("hex string %q is %d bytes long, expected %d", s,
			len(b), len(dst))
	}
	copy(dst, b)
	return nil
}
