// Package extract turns raw collector text into identifier pair candidates.
package extract

import (
	"regexp"

	"fpsync/internal/device"
)

const (
	scoreManufacturer = 30
	scoreProduct      = 25
	scoreMetadata     = 20
)

var (
	clusterPattern    = regexp.MustCompile(`(?i)\b0x[0-9a-f]{4}\b|\bcluster\s*[:#]?\s*[0-9]+\b`)
	dataPointPattern  = regexp.MustCompile(`(?i)\bdp\s*[:#=]?\s*[0-9]{1,3}\b|\bdatapoint\s*[:#=]?\s*[0-9]{1,3}\b`)
	capabilityPattern = regexp.MustCompile(`(?i)\b(?:onoff|dim|measure_[a-z0-9]+|meter_[a-z0-9]+|alarm_[a-z0-9]+|target_temperature|thermostat_mode|windowcoverings_[a-z0-9]+|light_(?:hue|saturation|temperature|mode))\b`)
)

// Extract fills the finding's pair and confidence when its text names both a
// manufacturer token and a product token. The first manufacturer token is
// paired with the nearest product token. Anything else comes back with a nil
// pair and zero confidence.
func Extract(finding device.SourceFinding) device.SourceFinding {
	finding.ExtractedPair = nil
	finding.ConfidenceScore = 0

	manufacturers := device.FindManufacturerTokens(finding.RawText)
	products := device.FindProductTokens(finding.RawText)
	if len(manufacturers) == 0 {
		return finding
	}
	product, ok := nearest(manufacturers[0], products)
	if !ok {
		return finding
	}
	return accept(finding, manufacturers[0].Value, product.Value)
}

// ExtractAll returns one accepted finding per distinct manufacturer token in
// the text, each paired with the product token nearest to it. Texts without
// a product token yield nothing.
func ExtractAll(finding device.SourceFinding) []device.SourceFinding {
	manufacturers := device.FindManufacturerTokens(finding.RawText)
	products := device.FindProductTokens(finding.RawText)
	if len(manufacturers) == 0 || len(products) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(manufacturers))
	out := make([]device.SourceFinding, 0, len(manufacturers))
	for _, m := range manufacturers {
		if _, dup := seen[m.Value]; dup {
			continue
		}
		seen[m.Value] = struct{}{}
		product, _ := nearest(m, products)
		out = append(out, accept(finding, m.Value, product.Value))
	}
	return out
}

// Confidence scores text on its own, whether or not it would be accepted.
func Confidence(text string) int {
	score := 0
	if len(device.FindManufacturerTokens(text)) > 0 {
		score += scoreManufacturer
	}
	if len(device.FindProductTokens(text)) > 0 {
		score += scoreProduct
	}
	if HasMetadata(text) {
		score += scoreMetadata
	}
	return score
}

// HasMetadata reports whether text carries cluster numbers, capability
// keywords or data-point numbers.
func HasMetadata(text string) bool {
	return clusterPattern.MatchString(text) ||
		dataPointPattern.MatchString(text) ||
		capabilityPattern.MatchString(text)
}

func accept(finding device.SourceFinding, manufacturer, product string) device.SourceFinding {
	if manufacturer == "" && device.IsGenericProductToken(product) {
		return finding
	}
	pair := device.NewIdentifierPair(manufacturer, product)
	finding.ExtractedPair = &pair
	finding.ConfidenceScore = scoreManufacturer + scoreProduct
	if HasMetadata(finding.RawText) {
		finding.ConfidenceScore += scoreMetadata
	}
	return finding
}

// nearest picks the product token with the smallest byte gap to m. Ties go
// to the earlier token.
func nearest(m device.TokenMatch, products []device.TokenMatch) (device.TokenMatch, bool) {
	best := -1
	var pick device.TokenMatch
	for _, p := range products {
		d := gap(m, p)
		if best < 0 || d < best {
			best = d
			pick = p
		}
	}
	return pick, best >= 0
}

func gap(a, b device.TokenMatch) int {
	aEnd := a.Offset + len(a.Value)
	bEnd := b.Offset + len(b.Value)
	switch {
	case bEnd <= a.Offset:
		return a.Offset - bEnd
	case aEnd <= b.Offset:
		return b.Offset - aEnd
	default:
		return 0
	}
}
