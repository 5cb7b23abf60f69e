package region

import (
	"go.uber.org/fx"

	"github.com/resumeforge/resumeforge/internal/config"
	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
	"github.com/resumeforge/resumeforge/internal/region/geoip"
	"github.com/resumeforge/resumeforge/internal/region/service"
)

var Module = fx.Module("region.resolver",
	fx.Provide(provideGeoIP),
	fx.Provide(service.NewResolver),
)

// provideGeoIP returns a nil lookup when no endpoint is configured; the
// resolver then skips the geolocation step.
func provideGeoIP(cfg config.Config) regiondomain.GeoIPLookup {
	if cfg.GeoIPEndpoint == "" {
		return nil
	}
	return geoip.New(cfg.GeoIPEndpoint)
}
