package units

import "strings"

type variation struct {
	canonical string
	variants  []string
}

// Variants are stored already normalized (see key).
var variations = []variation{
	{"ft", []string{"ft", "feet", "foot", "fts"}},
	{"m", []string{"m", "meter", "meters", "metre", "metres", "mtr"}},
	{"API", []string{"api"}},
	{"gAPI", []string{"gapi", "apigr"}},
	{"ohm.m", []string{"ohmm", "ohmmeter", "ohm/m"}},
	{"fraction", []string{"fraction", "frac", "v/v", "dec", "decimal"}},
	{"g/cm3", []string{"g/cm3", "g/cc", "gm/cc", "gr/cc", "gcm3"}},
	{"datetime", []string{"datetime", "date", "timestamp"}},
	{"1000 kgf", []string{"tonne", "ton", "t", "metrictonne", "tmetric", "tf", "1000kgf", "kkgf"}},
	{"1000 N.m", []string{"1000nm", "knm", "kilonewtonmeter"}},
	{"degC", []string{"c", "degc", "degreec", "degreesc", "celsius", "centigrade"}},
	{"degF", []string{"f", "degf", "degreef", "degreesf", "fahrenheit"}},
	{"lbm/gal", []string{"lbm/gal", "lb/gal", "ppg", "lbs/gal", "lbm/ft3", "lb/ft3", "pcf"}},
	{"m/h", []string{"m/h", "m/hr", "mhr", "meter/hour"}},
	{"ft/h", []string{"ft/h", "ft/hr", "fph", "fthr"}},
	{"bbl", []string{"bbl", "bbls", "barrel", "barrels"}},
	{"h", []string{"sec", "s", "h", "hr", "hrs", "hour", "hours"}},
	{"ppm", []string{"ppm", "partspermillion"}},
	{"gpm", []string{"gpm", "gal/min", "galmin", "usgpm", "galusmin"}},
	{"spm", []string{"spm", "stk/min", "strokes/min", "stkmin"}},
	{"rpm", []string{"rpm", "rev/min", "r/min", "revmin", "c/min"}},
	{"lbf·ft", []string{"lbf·ft", "lbfft", "ftlbf", "ftlb", "lbft"}},
	{"%", []string{"%", "percent", "pct", "perc"}},
	{"psi", []string{"psi", "psig", "psia", "lbf/in2", "lb/in2"}},
}

var (
	byVariant = make(map[string]string)
	canonical = make(map[string]bool)
)

func init() {
	for _, v := range variations {
		canonical[v.canonical] = true
		for _, variant := range v.variants {
			if _, dup := byVariant[variant]; dup {
				panic("units: duplicate variant " + variant)
			}
			byVariant[variant] = v.canonical
		}
	}
}

// Normalize maps a free-text unit to its canonical token. Unknown units are
// returned unchanged.
func Normalize(raw string) string {
	if canonical[raw] {
		return raw
	}
	if c, ok := byVariant[key(raw)]; ok {
		return c
	}
	return raw
}

// ForChannel normalizes the unit for a mapped channel. The TIME channel
// never carries a unit.
func ForChannel(standardName, raw string) string {
	if standardName == "TIME" {
		return ""
	}
	return Normalize(raw)
}

// Canonical lists every canonical token in table order.
func Canonical() []string {
	out := make([]string, len(variations))
	for i, v := range variations {
		out[i] = v.canonical
	}
	return out
}

// IsCanonical reports whether s is a canonical token.
func IsCanonical(s string) bool {
	return canonical[s]
}

var stripper = strings.NewReplacer(
	" ", "", "\t", "", "_", "", ".", "", "-", "",
	"³", "3", "°", "",
)

func key(s string) string {
	return stripper.Replace(strings.ToLower(strings.TrimSpace(s)))
}
