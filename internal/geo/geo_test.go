package geo

import "testing"

func TestHaversineZero(t *testing.T) {
    d := Haversine(12.34, 56.78, 12.34, 56.78)
    if d != 0 {
        t.Fatalf("expected 0, got %f", d)
    }
}

func TestHaversineOneDegreeLat(t *testing.T) {
    // one degree of latitude is ~111.2 km on a 6371 km sphere
    d := Haversine(0, 0, 1, 0)
    if d < 111000 || d > 111400 {
        t.Fatalf("expected ~111.2km, got %f", d)
    }
}
