package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForCountry(t *testing.T) {
	assert.Equal(t, RegionIndia, ForCountry("IN"))
	assert.Equal(t, RegionIndia, ForCountry("in"))
	assert.Equal(t, RegionIndia, ForCountry(" In "))
	assert.Equal(t, RegionGlobal, ForCountry("US"))
	assert.Equal(t, RegionGlobal, ForCountry(""))
}

func TestCurrencyFor(t *testing.T) {
	assert.Equal(t, CurrencyINR, CurrencyFor(RegionIndia))
	assert.Equal(t, CurrencyUSD, CurrencyFor(RegionGlobal))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int32(2), MinorUnits(CurrencyUSD))
	assert.Equal(t, int32(0), MinorUnits(CurrencyINR))
}
