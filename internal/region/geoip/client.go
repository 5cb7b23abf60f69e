// Package geoip looks up the country for an IP against an external
// geolocation endpoint.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	regiondomain "github.com/resumeforge/resumeforge/internal/region/domain"
)

const requestTimeout = 2 * time.Second

type Client struct {
	endpoint string
	http     *http.Client
}

func New(endpoint string) *Client {
	return &Client{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		http:     &http.Client{Timeout: requestTimeout},
	}
}

type lookupResponse struct {
	CountryCode string `json:"country_code"`
	// Some providers use camelCase.
	CountryCodeAlt string `json:"countryCode"`
}

func (c *Client) CountryForIP(ctx context.Context, ip string) (string, error) {
	ip = strings.TrimSpace(ip)
	if c.endpoint == "" || ip == "" {
		return "", regiondomain.ErrGeoIPUnavailable
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+url.PathEscape(ip), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", regiondomain.ErrGeoIPUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", regiondomain.ErrGeoIPUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", regiondomain.ErrGeoIPUnavailable, resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: %v", regiondomain.ErrGeoIPUnavailable, err)
	}

	country := strings.TrimSpace(payload.CountryCode)
	if country == "" {
		country = strings.TrimSpace(payload.CountryCodeAlt)
	}
	if country == "" {
		return "", regiondomain.ErrGeoIPUnavailable
	}
	return country, nil
}
