package device

import "regexp"

var (
	manufacturerTokenPattern = regexp.MustCompile(`_(?:TZ[0-9]{4}|TZE[0-9]{3}|TYZB[0-9]{2}|TYST[0-9]{2})_[a-z0-9]{8}`)
	productTokenPattern      = regexp.MustCompile(`TS[0-9]{3}[0-9A-Z]`)
)

// genericProductTokens are product codes shared by so many unrelated devices
// that they never identify a device on their own.
var genericProductTokens = map[string]struct{}{
	"TS0601": {},
}

// TokenMatch is a token located in free text.
type TokenMatch struct {
	Value  string
	Offset int
}

// FindManufacturerTokens returns every manufacturer token in text in order of
// appearance.
func FindManufacturerTokens(text string) []TokenMatch {
	return findTokens(manufacturerTokenPattern, text, false)
}

// FindProductTokens returns every product token in text in order of appearance.
func FindProductTokens(text string) []TokenMatch {
	return findTokens(productTokenPattern, text, true)
}

// IsManufacturerToken reports whether value is exactly one manufacturer token.
func IsManufacturerToken(value string) bool {
	return isExactly(manufacturerTokenPattern, value)
}

// IsProductToken reports whether value is exactly one product token.
func IsProductToken(value string) bool {
	return isExactly(productTokenPattern, value)
}

// IsGenericProductToken reports whether value is a product code too broad to
// identify a device without a manufacturer token.
func IsGenericProductToken(value string) bool {
	_, ok := genericProductTokens[value]
	return ok
}

func isExactly(pattern *regexp.Regexp, value string) bool {
	loc := pattern.FindStringIndex(value)
	return loc != nil && loc[0] == 0 && loc[1] == len(value)
}

// findTokens applies pattern and drops hits glued to surrounding alphanumerics.
// Underscores count as separators so "TS0601_thermostat" still yields TS0601.
func findTokens(pattern *regexp.Regexp, text string, checkLeading bool) []TokenMatch {
	locs := pattern.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}
	matches := make([]TokenMatch, 0, len(locs))
	for _, loc := range locs {
		if checkLeading && loc[0] > 0 && isAlnum(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isAlnum(text[loc[1]]) {
			continue
		}
		matches = append(matches, TokenMatch{Value: text[loc[0]:loc[1]], Offset: loc[0]})
	}
	return matches
}

func isAlnum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
