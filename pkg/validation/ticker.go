// Copyright (C) 2025 Kubera Analytics (engineering@kuberahq.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation validates user-provided inputs before they reach
// queries, file paths, or external APIs. Tool arguments in particular
// arrive from an LLM and deserve no trust.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// tickerPattern matches exchange ticker symbols: uppercase letters and
// digits, with dots (BRK.A) and hyphens (BF-B) for share classes, up
// to 10 characters.
var tickerPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9.\-]{0,9}$`)

// ValidateTicker rejects anything that is not a plausible ticker
// symbol, which also blocks query-injection payloads smuggled through
// a symbol argument.
func ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("ticker cannot be empty")
	}
	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("invalid ticker format: %q", ticker)
	}
	return nil
}

// SanitizeTicker trims and uppercases a ticker, then validates it.
// Returns the normalized symbol or an error.
func SanitizeTicker(ticker string) (string, error) {
	normalized := strings.ToUpper(strings.TrimSpace(ticker))
	if err := ValidateTicker(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
