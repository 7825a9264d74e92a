// Package wallet normalizes and validates Polygon wallet addresses.
package wallet

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ErrInvalidAddress is returned for anything that is not 0x followed by 40 hex characters.
var ErrInvalidAddress = errors.New("invalid address")

// Normalize validates raw and returns its lowercase form.
func Normalize(raw string) (string, error) {
	addr := strings.TrimSpace(raw)
	if len(addr) < 2 || (addr[:2] != "0x" && addr[:2] != "0X") {
		return "", ErrInvalidAddress
	}
	// IsHexAddress also accepts unprefixed input, so the prefix check above is required.
	if !common.IsHexAddress(addr) {
		return "", ErrInvalidAddress
	}
	return "0x" + strings.ToLower(addr[2:]), nil
}

// Short truncates an address (or any long ID) for logs and reports.
func Short(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:6] + "…" + addr[len(addr)-6:]
}
