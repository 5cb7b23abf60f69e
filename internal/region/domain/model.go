// Package domain defines the pricing geography: regions, currencies, and how
// a user's effective region is resolved.
package domain

import "strings"

// Region is a pricing region. The catalog carries one pricing row per region.
type Region string

const (
	RegionGlobal Region = "GLOBAL"
	RegionIndia  Region = "INDIA"
)

// Currency is an ISO 4217 code the catalog prices in.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyINR Currency = "INR"
)

// ResolutionSource records which input decided the region, for observability.
type ResolutionSource string

const (
	SourceBillingAddress ResolutionSource = "billing_address"
	SourceGeoIP          ResolutionSource = "geoip"
	SourceDefault        ResolutionSource = "default"
)

// Resolution is the effective region and currency for a request.
type Resolution struct {
	Region   Region           `json:"region"`
	Currency Currency         `json:"currency"`
	Source   ResolutionSource `json:"source"`
}

// DefaultResolution is what every lookup failure degrades to.
func DefaultResolution() Resolution {
	return Resolution{
		Region:   RegionGlobal,
		Currency: CurrencyUSD,
		Source:   SourceDefault,
	}
}

// ForCountry maps an ISO 3166-1 alpha-2 country code to a pricing region.
func ForCountry(country string) Region {
	if strings.EqualFold(strings.TrimSpace(country), "IN") {
		return RegionIndia
	}
	return RegionGlobal
}

// CurrencyFor returns the currency a region is priced in.
func CurrencyFor(region Region) Currency {
	if region == RegionIndia {
		return CurrencyINR
	}
	return CurrencyUSD
}

// MinorUnits returns the number of decimal places amounts carry in the
// currency. INR plans are priced in whole rupees.
func MinorUnits(currency Currency) int32 {
	if currency == CurrencyINR {
		return 0
	}
	return 2
}

// ParseRegion normalizes a stored region value, defaulting to GLOBAL.
func ParseRegion(value string) Region {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RegionIndia):
		return RegionIndia
	default:
		return RegionGlobal
	}
}
