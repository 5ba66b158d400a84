package units

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"°F", "degF"},
		{"deg F", "degF"},
		{"°C", "degC"},
		{"lbm/ft³", "lbm/gal"},
		{"PPG", "lbm/gal"},
		{"furlongs", "furlongs"},
		{"", ""},
		{"Metric-Tonne", "1000 kgf"},
		{"T", "1000 kgf"},
		{"s", "h"},
		{"kN.m", "1000 N.m"},
		{"ohm-m", "ohm.m"},
		{"G/CC", "g/cm3"},
		{"rev/min", "rpm"},
		{"ft.lbf", "lbf·ft"},
		{"M/HR", "m/h"},
		{"percent", "%"},
		{"  Feet ", "ft"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.raw))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	for _, c := range Canonical() {
		assert.Equal(t, c, Normalize(c), "canonical %q", c)
		assert.Equal(t, Normalize(c), Normalize(Normalize(c)))
	}

	for _, raw := range []string{"°F", "lbm/ft³", "bogus", "Sec", "psig"} {
		once := Normalize(raw)
		assert.Equal(t, once, Normalize(once), "raw %q", raw)
	}
}

func TestForChannel(t *testing.T) {
	assert.Equal(t, "", ForChannel("TIME", "s"))
	assert.Equal(t, "", ForChannel("TIME", "datetime"))
	assert.Equal(t, "degF", ForChannel("ML_MTIA", "°F"))
}
