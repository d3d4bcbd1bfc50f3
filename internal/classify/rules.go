package classify

import "fpsync/internal/device"

// Rule maps record signals to one category. A rule matches when any of its
// signals is present.
type Rule struct {
	Category device.Category

	// Keywords are looked up in the record id (or free text). Keywords of
	// three letters or fewer must match a whole word; longer ones match
	// anywhere, so they must not occur inside a later rule's vocabulary.
	Keywords []string

	// Classes match the record's declared device class exactly.
	Classes []string

	// Capabilities match exactly, or by prefix when the entry ends in "_".
	Capabilities []string

	// Products match product tokens exactly; ProductPrefixes by prefix.
	Products        []string
	ProductPrefixes []string
}

// DefaultRules is evaluated top to bottom; the first match wins and records
// matching nothing fall back to CategoryOther.
var DefaultRules = []Rule{
	{
		Category:        device.CategoryLighting,
		Keywords:        []string{"switch", "dimmer", "bulb", "led", "lamp", "strip"},
		Classes:         []string{"light"},
		Capabilities:    []string{"dim", "light_hue", "light_temperature", "light_saturation", "light_mode"},
		Products:        []string{"TS0001", "TS0002", "TS0003", "TS0004", "TS0011", "TS0012", "TS0013", "TS0014"},
		ProductPrefixes: []string{"TS110", "TS050"},
	},
	{
		Category:     device.CategoryPower,
		Keywords:     []string{"plug", "socket", "energy", "outlet"},
		Classes:      []string{"socket"},
		Capabilities: []string{"measure_power", "meter_power", "measure_current", "measure_voltage"},
		Products:     []string{"TS011F"},
	},
	{
		Category:     device.CategoryMotion,
		Keywords:     []string{"motion", "presence", "radar", "pir", "occupancy"},
		Capabilities: []string{"alarm_motion"},
		Products:     []string{"TS0202"},
	},
	{
		Category:     device.CategoryClimate,
		Keywords:     []string{"temperature", "humidity", "thermostat", "thermometer", "trv", "climate"},
		Classes:      []string{"thermostat", "heater"},
		Capabilities: []string{"measure_temperature", "measure_humidity", "target_temperature"},
		Products:     []string{"TS0201"},
	},
	{
		Category:     device.CategorySafety,
		Keywords:     []string{"smoke", "gas", "leak", "water", "co", "fire"},
		Capabilities: []string{"alarm_smoke", "alarm_water", "alarm_co", "alarm_gas", "alarm_fire"},
		Products:     []string{"TS0205", "TS0207"},
	},
	{
		Category:     device.CategoryCoverings,
		Keywords:     []string{"curtain", "blind", "shutter", "roller", "shade"},
		Classes:      []string{"windowcoverings", "curtain", "blinds"},
		Capabilities: []string{"windowcoverings_"},
		Products:     []string{"TS130F"},
	},
	{
		Category:     device.CategorySecurity,
		Keywords:     []string{"contact", "door", "window", "lock", "siren", "vibration"},
		Classes:      []string{"lock", "doorbell", "homealarm"},
		Capabilities: []string{"alarm_contact", "alarm_tamper", "alarm_vibration", "locked"},
		Products:     []string{"TS0203"},
	},
}
