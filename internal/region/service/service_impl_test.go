package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/resumeforge/resumeforge/internal/config"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
)

type billingStub struct {
	country string
	err     error
}

func (b *billingStub) CountryForUser(ctx context.Context, userID snowflake.ID) (string, error) {
	return b.country, b.err
}

type geoipStub struct {
	country string
	err     error
	calls   int
}

func (g *geoipStub) CountryForIP(ctx context.Context, ip string) (string, error) {
	g.calls++
	return g.country, g.err
}

func newTestResolver(t *testing.T, billing regiondomain.BillingAddressLookup, geoip regiondomain.GeoIPLookup, cfg config.Config) regiondomain.Resolver {
	t.Helper()
	return NewResolver(ResolverParam{
		Log:     zap.NewNop(),
		Cfg:     cfg,
		Billing: billing,
		GeoIP:   geoip,
	})
}

func TestResolve_BillingAddressWins(t *testing.T) {
	// Billing address says India even though geolocation says US.
	r := newTestResolver(t,
		&billingStub{country: "IN"},
		&geoipStub{country: "US"},
		config.Config{},
	)

	res := r.Resolve(context.Background(), 42, "203.0.113.7")
	assert.Equal(t, regiondomain.RegionIndia, res.Region)
	assert.Equal(t, regiondomain.CurrencyINR, res.Currency)
	assert.Equal(t, regiondomain.SourceBillingAddress, res.Source)
}

func TestResolve_FallsBackToGeoIP(t *testing.T) {
	r := newTestResolver(t,
		&billingStub{err: regiondomain.ErrNoBillingAddress},
		&geoipStub{country: "IN"},
		config.Config{},
	)

	res := r.Resolve(context.Background(), 42, "203.0.113.7")
	assert.Equal(t, regiondomain.RegionIndia, res.Region)
	assert.Equal(t, regiondomain.SourceGeoIP, res.Source)
}

func TestResolve_NonIndiaCountryIsGlobal(t *testing.T) {
	r := newTestResolver(t,
		&billingStub{country: "DE"},
		nil,
		config.Config{},
	)

	res := r.Resolve(context.Background(), 42, "")
	assert.Equal(t, regiondomain.RegionGlobal, res.Region)
	assert.Equal(t, regiondomain.CurrencyUSD, res.Currency)
	assert.Equal(t, regiondomain.SourceBillingAddress, res.Source)
}

func TestResolve_DefaultWhenEverythingFails(t *testing.T) {
	r := newTestResolver(t,
		&billingStub{err: errors.New("profile service down")},
		&geoipStub{err: regiondomain.ErrGeoIPUnavailable},
		config.Config{},
	)

	res := r.Resolve(context.Background(), 42, "203.0.113.7")
	assert.Equal(t, regiondomain.RegionGlobal, res.Region)
	assert.Equal(t, regiondomain.CurrencyUSD, res.Currency)
	assert.Equal(t, regiondomain.SourceDefault, res.Source)
}

func TestResolve_AnonymousUserSkipsBillingLookup(t *testing.T) {
	geo := &geoipStub{country: "IN"}
	r := newTestResolver(t, &billingStub{country: "US"}, geo, config.Config{})

	res := r.Resolve(context.Background(), 0, "203.0.113.7")
	assert.Equal(t, regiondomain.RegionIndia, res.Region)
	assert.Equal(t, regiondomain.SourceGeoIP, res.Source)
	assert.Equal(t, 1, geo.calls)
}

func TestResolve_ConfiguredDefaultOverride(t *testing.T) {
	r := newTestResolver(t, nil, nil, config.Config{DefaultRegionOverride: "INDIA"})

	res := r.Resolve(context.Background(), 0, "")
	assert.Equal(t, regiondomain.RegionIndia, res.Region)
	assert.Equal(t, regiondomain.CurrencyINR, res.Currency)
	assert.Equal(t, regiondomain.SourceDefault, res.Source)
}

func TestResolve_InvalidOverrideIgnored(t *testing.T) {
	r := newTestResolver(t, nil, nil, config.Config{DefaultRegionOverride: "EUROPE"})

	res := r.Resolve(context.Background(), 0, "")
	assert.Equal(t, regiondomain.RegionGlobal, res.Region)
}
