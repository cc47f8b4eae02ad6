package geoip

import (
	"context"
	"fmt"
	"net"

	"github.com/pariz/gountries"
)

var countries = gountries.New()

// LocalProvider answers from the on-disk GeoLite2 City database.
type LocalProvider struct{}

// NewLocalProvider returns a provider backed by GetGeoDB.
func NewLocalProvider() *LocalProvider {
	return &LocalProvider{}
}

func (p *LocalProvider) Name() string {
	return "geolite2"
}

func (p *LocalProvider) IsAvailable() bool {
	return GetGeoDB() != nil
}

func (p *LocalProvider) Lookup(ctx context.Context, ip net.IP) (*Location, error) {
	// Hold the read lock so ReloadGeoDB cannot close the reader mid-lookup.
	mu.RLock()
	defer mu.RUnlock()

	if geoDB == nil {
		return nil, fmt.Errorf("%w: geolite2 database not loaded", ErrUpstream)
	}

	record, err := geoDB.City(ip)
	if err != nil {
		return nil, fmt.Errorf("%w: geolite2 lookup: %v", ErrUpstream, err)
	}
	if record.Country.IsoCode == "" {
		return nil, ErrNoData
	}

	loc := &Location{
		CountryCode: record.Country.IsoCode,
		Country:     countryName(record.Country.IsoCode, record.Country.Names["en"]),
		City:        record.City.Names["en"],
		Timezone:    record.Location.TimeZone,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
	}
	if record.Location.Latitude != 0 || record.Location.Longitude != 0 {
		lat, lon := record.Location.Latitude, record.Location.Longitude
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	return loc, nil
}

// countryName prefers the database's English name and falls back to the
// ISO 3166 common name.
func countryName(isoCode, name string) string {
	if name != "" {
		return name
	}
	if country, err := countries.FindCountryByAlpha(isoCode); err == nil {
		return country.Name.Common
	}
	return isoCode
}
