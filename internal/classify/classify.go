// Package classify assigns a functional category to device records.
package classify

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"fpsync/internal/device"
	"fpsync/internal/textutil"
)

const shortKeywordLen = 3

var capabilityWord = regexp.MustCompile(`[a-z0-9]+(?:_[a-z0-9]+)*`)

// Input is the set of signals a rule can look at.
type Input struct {
	Text          string
	Class         string
	Capabilities  []string
	ProductTokens []string
}

// Classify returns the category of record from its id, class, capabilities
// and product tokens. It ignores any category already on the record.
func Classify(record *device.DeviceRecord) device.Category {
	if record == nil {
		return device.CategoryOther
	}
	return Evaluate(DefaultRules, Input{
		Text:          record.ID,
		Class:         record.Class,
		Capabilities:  record.Capabilities.Values(),
		ProductTokens: record.ProductTokens.Values(),
	})
}

// ClassifyText classifies free text such as an issue title. Manufacturer
// tokens are removed first so their opaque suffixes cannot trip keywords;
// product tokens and capability-like words in the text count as signals.
func ClassifyText(text string) device.Category {
	var products []string
	for _, m := range device.FindProductTokens(text) {
		products = append(products, m.Value)
	}
	for _, m := range device.FindManufacturerTokens(text) {
		text = strings.ReplaceAll(text, m.Value, " ")
	}
	folded := fold(text)
	return Evaluate(DefaultRules, Input{
		Text:          folded,
		Capabilities:  capabilityWord.FindAllString(folded, -1),
		ProductTokens: products,
	})
}

// Evaluate walks rules in order and returns the first matching category.
func Evaluate(rules []Rule, in Input) device.Category {
	sig := newSignals(in)
	for i := range rules {
		if sig.matches(&rules[i]) {
			return rules[i].Category
		}
	}
	return device.CategoryOther
}

type signals struct {
	text         string
	words        map[string]struct{}
	class        string
	capabilities []string
	products     []string
}

func newSignals(in Input) signals {
	text := fold(in.Text)
	words := make(map[string]struct{})
	for _, w := range textutil.Words(text) {
		words[w] = struct{}{}
	}
	caps := make([]string, 0, len(in.Capabilities))
	for _, c := range in.Capabilities {
		caps = append(caps, fold(strings.TrimSpace(c)))
	}
	return signals{
		text:         text,
		words:        words,
		class:        fold(strings.TrimSpace(in.Class)),
		capabilities: caps,
		products:     in.ProductTokens,
	}
}

func (s signals) matches(rule *Rule) bool {
	for _, kw := range rule.Keywords {
		if len(kw) <= shortKeywordLen {
			if _, ok := s.words[kw]; ok {
				return true
			}
			continue
		}
		if strings.Contains(s.text, kw) {
			return true
		}
	}
	if s.class != "" {
		for _, class := range rule.Classes {
			if s.class == class {
				return true
			}
		}
	}
	for _, want := range rule.Capabilities {
		for _, have := range s.capabilities {
			if have == want || (strings.HasSuffix(want, "_") && strings.HasPrefix(have, want)) {
				return true
			}
		}
	}
	for _, product := range s.products {
		for _, want := range rule.Products {
			if product == want {
				return true
			}
		}
		for _, prefix := range rule.ProductPrefixes {
			if strings.HasPrefix(product, prefix) {
				return true
			}
		}
	}
	return false
}

// fold case-folds s. Casers carry state, so each call gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
