package mapper

import "strings"

type conversion func(float64) float64

// mmol/L to mg/dL factors by metric (molar mass / 10).
var molarFactors = map[string]float64{
	"BloodGlucose":     18.016,
	"TotalCholesterol": 38.67,
	"HDLCholesterol":   38.67,
	"LDLCholesterol":   38.67,
	"Triglycerides":    88.57,
}

var unitConversions = map[[2]string]conversion{
	{"lb", "kg"}: func(v float64) float64 { return v * 0.45359237 },
	{"g", "kg"}:  func(v float64) float64 { return v / 1000 },
	{"in", "cm"}: func(v float64) float64 { return v * 2.54 },
	{"m", "cm"}:  func(v float64) float64 { return v * 100 },
	{"°f", "°c"}: func(v float64) float64 { return (v - 32) * 5 / 9 },
	{"k", "°c"}:  func(v float64) float64 { return v - 273.15 },
}

// converter returns the function turning a value in unit from into unit to
// for metric. Unit names compare case-insensitively.
func converter(metric, from, to string) (conversion, bool) {
	f, t := normalizeUnit(from), normalizeUnit(to)
	if f == t {
		return func(v float64) float64 { return v }, true
	}
	if f == "mmol/l" && t == "mg/dl" {
		factor, ok := molarFactors[metric]
		if !ok {
			return nil, false
		}
		return func(v float64) float64 { return v * factor }, true
	}
	c, ok := unitConversions[[2]string{f, t}]
	return c, ok
}

func normalizeUnit(u string) string {
	u = strings.ToLower(strings.TrimSpace(u))
	switch u {
	case "f", "degf", "fahrenheit":
		return "°f"
	case "c", "degc", "celsius":
		return "°c"
	case "lbs", "pound", "pounds":
		return "lb"
	case "inch", "inches":
		return "in"
	}
	return u
}
