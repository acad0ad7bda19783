// Package types provides type-safe constants shared by the update client.
//
// Feed entries and configuration values arrive as free-form strings; the
// typed constants here give them a single spelling and a Validate method.
package types

import (
	"fmt"
	"strings"
)

// AssetType is the kind of package an update feed entry points at.
type AssetType string

const (
	// AssetTypeFull is a complete application package.
	AssetTypeFull AssetType = "Full"
	// AssetTypeDelta is a binary diff against the previous release.
	AssetTypeDelta AssetType = "Delta"
)

// Validate checks if the AssetType is a valid value.
func (a AssetType) Validate() error {
	switch a {
	case AssetTypeFull, AssetTypeDelta:
		return nil
	case "":
		return fmt.Errorf("asset type is required")
	default:
		return fmt.Errorf("invalid asset type '%s' (must be Full or Delta)", a)
	}
}

// String returns the string representation of the AssetType.
func (a AssetType) String() string {
	return string(a)
}

// IsFull returns true if the asset is a full package.
func (a AssetType) IsFull() bool {
	return a == AssetTypeFull
}

// IsDelta returns true if the asset is a delta package.
func (a AssetType) IsDelta() bool {
	return a == AssetTypeDelta
}

// ParseAssetType parses a feed value into an AssetType. Feeds are not
// consistent about case, so "full", "FULL" and "Full" are all accepted.
func ParseAssetType(s string) (AssetType, error) {
	var at AssetType
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full":
		at = AssetTypeFull
	case "delta":
		at = AssetTypeDelta
	default:
		at = AssetType(s)
	}
	if err := at.Validate(); err != nil {
		return "", err
	}
	return at, nil
}

// SourceKind is the transport used to reach an update feed.
type SourceKind string

const (
	// SourceKindHTTP is a static web host serving releases.<channel>.json.
	SourceKindHTTP SourceKind = "http"
	// SourceKindFile is a local or network-mounted directory.
	SourceKindFile SourceKind = "file"
)

// Validate checks if the SourceKind is a valid value.
func (k SourceKind) Validate() error {
	switch k {
	case SourceKindHTTP, SourceKindFile:
		return nil
	case "":
		return fmt.Errorf("source kind is required")
	default:
		return fmt.Errorf("invalid source kind '%s' (must be http or file)", k)
	}
}

// String returns the string representation of the SourceKind.
func (k SourceKind) String() string {
	return string(k)
}

// IsFile returns true if the source is a directory.
func (k SourceKind) IsFile() bool {
	return k == SourceKindFile
}

// ParseSourceKind parses a URL scheme or config value into a SourceKind.
// "https" maps to SourceKindHTTP.
func ParseSourceKind(s string) (SourceKind, error) {
	s = strings.ToLower(s)
	if s == "https" {
		s = "http"
	}
	sk := SourceKind(s)
	if err := sk.Validate(); err != nil {
		return "", err
	}
	return sk, nil
}
