package device

import (
	"encoding/json"
	"sort"
)

// DeviceRecord is one per-device configuration record in the corpus.
//
// Extra carries JSON fields this package does not model so a rewrite never
// drops data owned by other tooling.
type DeviceRecord struct {
	ID                 string
	Category           Category
	Class              string
	ManufacturerTokens TokenSet
	ProductTokens      TokenSet
	Capabilities       TokenSet
	Clusters           []int

	Extra map[string]json.RawMessage
}

// Clone returns a deep copy of the record.
func (r *DeviceRecord) Clone() *DeviceRecord {
	if r == nil {
		return nil
	}
	out := &DeviceRecord{
		ID:                 r.ID,
		Category:           r.Category,
		Class:              r.Class,
		ManufacturerTokens: r.ManufacturerTokens.Clone(),
		ProductTokens:      r.ProductTokens.Clone(),
		Capabilities:       r.Capabilities.Clone(),
	}
	if len(r.Clusters) > 0 {
		out.Clusters = append([]int(nil), r.Clusters...)
	}
	if len(r.Extra) > 0 {
		out.Extra = make(map[string]json.RawMessage, len(r.Extra))
		for k, v := range r.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// HasToken reports whether token appears in either identifier set.
func (r *DeviceRecord) HasToken(token string) bool {
	return r.ManufacturerTokens.Has(token) || r.ProductTokens.Has(token)
}

// Covers reports whether both halves of pair are already known.
func (r *DeviceRecord) Covers(pair IdentifierPair) bool {
	return r.ManufacturerTokens.Has(pair.ManufacturerToken) && r.ProductTokens.Has(pair.ProductToken)
}

// Apply appends the pair's tokens and returns how many tokens were new.
func (r *DeviceRecord) Apply(pair IdentifierPair) int {
	added := 0
	if r.ManufacturerTokens.Add(pair.ManufacturerToken) {
		added++
	}
	if r.ProductTokens.Add(pair.ProductToken) {
		added++
	}
	return added
}

const (
	fieldID                 = "id"
	fieldCategory           = "category"
	fieldClass              = "class"
	fieldManufacturerTokens = "manufacturerTokens"
	fieldProductTokens      = "productTokens"
	fieldCapabilities       = "capabilities"
	fieldClusters           = "clusters"
)

var modeledFields = map[string]struct{}{
	fieldID: {}, fieldCategory: {}, fieldClass: {}, fieldManufacturerTokens: {},
	fieldProductTokens: {}, fieldCapabilities: {}, fieldClusters: {},
}

type wireRecord struct {
	ID                 string   `json:"id"`
	Category           *string  `json:"category"`
	Class              string   `json:"class,omitempty"`
	ManufacturerTokens []string `json:"manufacturerTokens"`
	ProductTokens      []string `json:"productTokens"`
	Capabilities       []string `json:"capabilities"`
	Clusters           []int    `json:"clusters"`
}

// UnmarshalJSON decodes the external record format.
func (r *DeviceRecord) UnmarshalJSON(data []byte) error {
	var wire wireRecord
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = DeviceRecord{
		ID:                 wire.ID,
		Class:              wire.Class,
		ManufacturerTokens: NewTokenSet(wire.ManufacturerTokens...),
		ProductTokens:      NewTokenSet(wire.ProductTokens...),
		Capabilities:       NewTokenSet(wire.Capabilities...),
		Clusters:           wire.Clusters,
	}
	if wire.Category != nil {
		r.Category = Category(*wire.Category)
	}
	for key, value := range raw {
		if _, ok := modeledFields[key]; ok {
			continue
		}
		if r.Extra == nil {
			r.Extra = make(map[string]json.RawMessage)
		}
		r.Extra[key] = value
	}
	return nil
}

// MarshalJSON encodes the record with modeled fields first (in schema order)
// followed by preserved extra fields sorted by key.
func (r DeviceRecord) MarshalJSON() ([]byte, error) {
	var category *string
	if r.Category != CategoryNone {
		value := string(r.Category)
		category = &value
	}
	wire := wireRecord{
		ID:                 r.ID,
		Category:           category,
		Class:              r.Class,
		ManufacturerTokens: nonNil(r.ManufacturerTokens.Values()),
		ProductTokens:      nonNil(r.ProductTokens.Values()),
		Capabilities:       nonNil(r.Capabilities.Values()),
		Clusters:           r.Clusters,
	}
	if wire.Clusters == nil {
		wire.Clusters = []int{}
	}
	base, err := json.Marshal(wire)
	if err != nil {
		return nil, err
	}
	if len(r.Extra) == 0 {
		return base, nil
	}

	keys := make([]string, 0, len(r.Extra))
	for k := range r.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := base[:len(base)-1]
	for _, k := range keys {
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, ',')
		out = append(out, name...)
		out = append(out, ':')
		out = append(out, r.Extra[k]...)
	}
	out = append(out, '}')
	return out, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
