// Package core provides the normalized cost domain shared by every adapter.
//
// This file contains functions for parsing monetary amounts as they appear in
// cost exports and ledger files.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts an exported amount cell into a decimal.
//
// It tolerates the encodings seen in cost and ledger exports: surrounding
// spaces, a leading currency symbol, comma thousands separators and
// accounting-style parentheses for negatives. Empty cells and anything that is
// not a number return ErrInvalidAmount; callers decide whether that means
// "absent" or "malformed".
//
// Examples:
//
//	ParseAmount("1,200.50")  -> 1200.50, nil
//	ParseAmount(" $12.3 ")   -> 12.3, nil
//	ParseAmount("(20.00)")   -> -20, nil
//	ParseAmount("-")         -> 0, ErrInvalidAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	s = strings.TrimPrefix(s, "$")
	if strings.HasPrefix(s, "-$") {
		s = "-" + s[2:]
	}
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" || s == "-" || s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
		case (r == '-' || r == '+') && i == 0:
		default:
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// ParseOptionalAmount is ParseAmount for ledger debit/credit cells, where a
// blank cell means zero rather than a malformed value.
func ParseOptionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return ParseAmount(s)
}
