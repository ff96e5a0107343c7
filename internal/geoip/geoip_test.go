package geoip

import (
	"net"
	"path/filepath"
	"testing"
)

func TestNilResolver(t *testing.T) {
	var r *Resolver
	loc, err := r.Lookup(net.ParseIP("192.0.2.1"))
	if err != nil || loc != (Location{}) {
		t.Fatalf("Lookup = %+v, %v; want zero", loc, err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close error = %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing.mmdb")); err == nil {
		t.Fatalf("Open succeeded for missing database")
	}
}
