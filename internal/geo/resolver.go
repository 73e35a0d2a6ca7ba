// Package geo resolves free-text locations into normalized region tokens.
package geo

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/kite/internal/domain"
)

// Resolution messages. The resolver message is always surfaced to the user
// as the last reason on an assessment, so the strings must stay stable.
const (
	MsgAlberta       = "Valid Alberta location"
	MsgSubdivision   = "Valid world subdivision/state"
	MsgCountry       = "Valid world country"
	MsgUnknown       = "Unknown location (not in global database)"
	MsgInvalidFormat = "Invalid format. Use: City, Region."
)

// Result is the outcome of one location resolution.
type Result struct {
	// RegionCode is the normalized lowercase region token, or "" when the
	// location is unknown. The home-region comparison and all downstream
	// history state use this token.
	RegionCode string

	// Known reports whether the region matched a reference table.
	Known bool

	// Message is the human-readable resolution outcome.
	Message string
}

// Resolver resolves "City, Region" text against the fixed reference tables.
type Resolver struct {
	cities       map[string]struct{}
	subdivisions map[string]string
	countries    map[string]string
}

// NewResolver builds a resolver from the embedded tables, validating them
// once up front.
func NewResolver() (*Resolver, error) {
	cities := make(map[string]struct{}, len(albertaCities))
	for _, c := range albertaCities {
		if c == "" || c != strings.ToLower(c) {
			return nil, fmt.Errorf("invalid city table entry: %q", c)
		}
		cities[c] = struct{}{}
	}

	for name, code := range subdivisions {
		if name == "" || code == "" {
			return nil, fmt.Errorf("invalid subdivision table entry: %q=%q", name, code)
		}
	}
	for name, code := range countries {
		if name == "" || len(code) != 2 {
			return nil, fmt.Errorf("invalid country table entry: %q=%q", name, code)
		}
	}

	return &Resolver{
		cities:       cities,
		subdivisions: subdivisions,
		countries:    countries,
	}, nil
}

// Resolve parses and matches a location string. The input must be exactly
// two comma-separated parts; anything else is a format error, reported as
// an unknown location rather than a failure.
//
// Matching order: Alberta city + "ab" fast path, then subdivision name,
// then country name, all case-insensitive. The returned region token is the
// trimmed lowercase region text as entered ("ab" on the fast path), since
// that is what the home comparison keys on.
func (r *Resolver) Resolve(location string) Result {
	location = strings.ToLower(strings.TrimSpace(location))
	parts := strings.Split(location, ",")

	if len(parts) != 2 {
		return Result{Known: false, Message: MsgInvalidFormat}
	}

	city := strings.TrimSpace(parts[0])
	region := strings.TrimSpace(parts[1])

	// Alberta priority
	if _, ok := r.cities[city]; ok && region == domain.HomeRegion {
		return Result{RegionCode: domain.HomeRegion, Known: true, Message: MsgAlberta}
	}

	if _, ok := r.subdivisions[region]; ok {
		return Result{RegionCode: region, Known: true, Message: MsgSubdivision}
	}

	if _, ok := r.countries[region]; ok {
		return Result{RegionCode: region, Known: true, Message: MsgCountry}
	}

	return Result{Known: false, Message: MsgUnknown}
}
