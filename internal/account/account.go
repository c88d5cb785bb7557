// Package account handles account address validation for the stake
// ledger. Addresses are 20-byte hex identifiers in the usual 0x form.
package account

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// addressRegex matches: 0x followed by exactly 40 hex characters.
var addressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ZeroAddress is the all-zero address, rejected everywhere.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

var (
	ErrInvalidAddress = errors.New("account: invalid address format")
	ErrZeroAddress    = errors.New("account: zero address")
)

// Normalize validates an address and returns its canonical lowercase
// form. The zero address is rejected — no position can be owned by it.
func Normalize(addr string) (string, error) {
	if !addressRegex.MatchString(addr) {
		return "", fmt.Errorf("%w: %q (expected 0x + 40 hex chars)", ErrInvalidAddress, addr)
	}
	normalized := strings.ToLower(addr)
	if normalized == ZeroAddress {
		return "", ErrZeroAddress
	}
	return normalized, nil
}

// Valid reports whether addr is a well-formed, non-zero address.
func Valid(addr string) bool {
	_, err := Normalize(addr)
	return err == nil
}
