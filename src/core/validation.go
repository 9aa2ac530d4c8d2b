package main

import (
	"regexp"
	"strings"
	"unicode"
)

// addressRegex matches a canonical 20-byte address: 0x followed by 40
// lowercase hex characters.
var addressRegex = regexp.MustCompile(`^0x[0-9a-f]{40}$`)

// Input size limits for the API boundary
const (
	// MaxRouteLength bounds the number of hops accepted in a single route
	// proposal, whether from the PFS or from a peer.
	MaxRouteLength = 16
	// MaxRoutesPerRequest bounds how many route proposals one resolve
	// request may carry.
	MaxRoutesPerRequest = 64
	// MaxURLLength bounds configured service endpoints.
	MaxURLLength = 2048
)

// IsValidAddress checks that an address is in canonical form.
func IsValidAddress(addr Address) bool {
	return addressRegex.MatchString(string(addr))
}

// NormalizeAddress lowercases an address into canonical form. It does not
// validate; callers check IsValidAddress on untrusted input first.
func NormalizeAddress(addr Address) Address {
	return Address(strings.ToLower(string(addr)))
}

// CanonicalAddress validates and normalizes an untrusted address string.
func CanonicalAddress(raw string) (Address, bool) {
	addr := NormalizeAddress(Address(strings.TrimSpace(raw)))
	if !IsValidAddress(addr) {
		return "", false
	}
	return addr, true
}

// ValidateRouteMetadata checks the shape of a peer-supplied route proposal:
// bounded length and canonical addresses throughout. Semantic validation
// (channel existence, status) happens later in ResolveRoutes.
func ValidateRouteMetadata(metadata RouteMetadata) bool {
	if len(metadata.Route) == 0 || len(metadata.Route) > MaxRouteLength {
		return false
	}
	for _, addr := range metadata.Route {
		if !IsValidAddress(addr) {
			return false
		}
	}
	return true
}

// ValidateAmount checks a transfer amount received over the API.
func ValidateAmount(amount uint64) bool {
	return amount > 0
}

// ValidateStringField checks for max length and control characters.
func ValidateStringField(s string, maxLength int) bool {
	if len(s) > maxLength {
		return false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}
