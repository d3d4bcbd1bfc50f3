package device

import (
	"fmt"
	"strings"
)

// Category is the functional classification of a device record.
type Category string

const (
	CategoryNone      Category = ""
	CategoryLighting  Category = "lighting"
	CategoryPower     Category = "power"
	CategoryMotion    Category = "motion"
	CategoryClimate   Category = "climate"
	CategorySafety    Category = "safety"
	CategoryCoverings Category = "coverings"
	CategorySecurity  Category = "security"
	CategoryOther     Category = "other"
)

// Categories lists every assignable category in rule precedence order, with
// the fallback last.
var Categories = []Category{
	CategoryLighting,
	CategoryPower,
	CategoryMotion,
	CategoryClimate,
	CategorySafety,
	CategoryCoverings,
	CategorySecurity,
	CategoryOther,
}

// Valid reports whether c is empty or a known category.
func (c Category) Valid() bool {
	if c == CategoryNone {
		return true
	}
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory converts user input to a Category.
func ParseCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if !c.Valid() {
		return CategoryNone, fmt.Errorf("unknown category %q", value)
	}
	return c, nil
}

// Source identifies which collector produced a finding.
type Source string

const (
	SourceHistory      Source = "history"
	SourceIssueTracker Source = "issue_tracker"
	SourceWeb          Source = "web"
)

// Priority orders sources for candidate acceptance; lower wins.
func (s Source) Priority() int {
	switch s {
	case SourceHistory:
		return 0
	case SourceIssueTracker:
		return 1
	case SourceWeb:
		return 2
	default:
		return 3
	}
}

// IdentifierPair is one way a physical device identifies itself.
type IdentifierPair struct {
	ManufacturerToken string `json:"manufacturer_token"`
	ProductToken      string `json:"product_token"`
}

// NewIdentifierPair trims both tokens. It does not validate their shape.
func NewIdentifierPair(manufacturer, product string) IdentifierPair {
	return IdentifierPair{
		ManufacturerToken: strings.TrimSpace(manufacturer),
		ProductToken:      strings.TrimSpace(product),
	}
}

func (p IdentifierPair) String() string {
	return p.ManufacturerToken + "/" + p.ProductToken
}

// SourceFinding is an ephemeral observation produced by a collector and
// consumed by the extractor and merge engine. It is never persisted.
type SourceFinding struct {
	Source          Source          `json:"source"`
	OriginID        string          `json:"origin_id"`
	RecordID        string          `json:"record_id,omitempty"`
	RawText         string          `json:"raw_text"`
	ExtractedPair   *IdentifierPair `json:"extracted_pair,omitempty"`
	ConfidenceScore int             `json:"confidence_score"`
}

// Accepted reports whether the extractor emitted a candidate for this finding.
func (f SourceFinding) Accepted() bool {
	return f.ExtractedPair != nil
}
