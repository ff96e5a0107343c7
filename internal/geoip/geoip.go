// Package geoip annotates client addresses with MaxMind location data.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/maxminddb-golang"
)

// Location is the subset of a GeoLite2/GeoIP2 City record the server reports.
type Location struct {
	Country string `json:"country,omitempty"`
	City    string `json:"city,omitempty"`
	ASN     uint   `json:"asn,omitempty"`
	Org     string `json:"org,omitempty"`
}

type cityRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
	AutonomousSystemNumber       uint   `maxminddb:"autonomous_system_number"`
	AutonomousSystemOrganization string `maxminddb:"autonomous_system_organization"`
}

// Resolver looks up addresses in a MaxMind database. A nil *Resolver is
// valid and resolves nothing.
type Resolver struct {
	mu     sync.RWMutex
	reader *maxminddb.Reader
}

// Open loads the database at path.
func Open(path string) (*Resolver, error) {
	reader, err := maxminddb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geoip database: %w", err)
	}
	return &Resolver{reader: reader}, nil
}

// Lookup resolves ip. Unknown addresses yield a zero Location and no error.
func (r *Resolver) Lookup(ip net.IP) (Location, error) {
	if r == nil {
		return Location{}, nil
	}
	if ip == nil {
		return Location{}, errors.New("invalid ip")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.reader == nil {
		return Location{}, nil
	}
	var rec cityRecord
	if err := r.reader.Lookup(ip, &rec); err != nil {
		return Location{}, err
	}
	return Location{
		Country: rec.Country.ISOCode,
		City:    rec.City.Names["en"],
		ASN:     rec.AutonomousSystemNumber,
		Org:     rec.AutonomousSystemOrganization,
	}, nil
}

func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}
