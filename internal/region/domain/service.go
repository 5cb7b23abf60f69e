package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

// Resolver determines a user's effective pricing region. It never fails the
// caller: lookup errors degrade to DefaultResolution.
type Resolver interface {
	Resolve(ctx context.Context, userID snowflake.ID, clientIP string) Resolution
}

// BillingAddressLookup is owned by the account profile service.
type BillingAddressLookup interface {
	// CountryForUser returns the ISO country code from the user's stored
	// billing address, or ErrNoBillingAddress when none is on file.
	CountryForUser(ctx context.Context, userID snowflake.ID) (string, error)
}

// GeoIPLookup is owned by an external geolocation provider.
type GeoIPLookup interface {
	CountryForIP(ctx context.Context, ip string) (string, error)
}

var (
	ErrNoBillingAddress = errors.New("no_billing_address")
	ErrGeoIPUnavailable = errors.New("geoip_unavailable")
)
