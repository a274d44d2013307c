package cluster

import (
	"time"

	"github.com/example/ride-hail-core/internal/geo"
	"github.com/example/ride-hail-core/internal/models"
)

// JoinRadiusMeters is the seed-to-member distance bound. Fixed, not a knob:
// callers and tests rely on every implementation agreeing on it.
const JoinRadiusMeters = 300.0

// Cluster groups signals into hotspots using greedy single-link grouping
// anchored to input order: the first unused signal becomes a seed, and every
// later unused signal within JoinRadiusMeters of that seed joins it. Output
// is deterministic for a fixed input order but not invariant under
// reordering. Pure function; expired signals are dropped first.
func Cluster(signals []models.GeoSignal) []models.SignalCluster {
	return At(signals, time.Now())
}

// At is Cluster with an explicit clock, for callers that already hold a
// snapshot timestamp.
func At(signals []models.GeoSignal, now time.Time) []models.SignalCluster {
	live := make([]models.GeoSignal, 0, len(signals))
	for _, s := range signals {
		if s.Expired(now) {
			continue
		}
		live = append(live, s)
	}

	var out []models.SignalCluster
	used := make([]bool, len(live))
	for i, seed := range live {
		if used[i] {
			continue
		}
		used[i] = true
		members := []models.GeoSignal{seed}
		for j := i + 1; j < len(live); j++ {
			if used[j] {
				continue
			}
			d := geo.Haversine(seed.Origin.Lat, seed.Origin.Lon, live[j].Origin.Lat, live[j].Origin.Lon)
			if d <= JoinRadiusMeters {
				used[j] = true
				members = append(members, live[j])
			}
		}
		out = append(out, summarize(seed, members))
	}
	return out
}

func summarize(seed models.GeoSignal, members []models.GeoSignal) models.SignalCluster {
	var sumLat, sumLon float64
	people := 0
	for _, m := range members {
		sumLat += m.Origin.Lat
		sumLon += m.Origin.Lon
		people += m.PeopleCount
	}
	n := float64(len(members))
	return models.SignalCluster{
		RepresentativeID: seed.ID,
		Centroid:         models.Coord{Lat: sumLat / n, Lon: sumLon / n},
		TotalPeople:      people,
		MemberCount:      len(members),
		Members:          members,
	}
}

// TotalPeople sums waiting passengers across all clusters.
func TotalPeople(clusters []models.SignalCluster) int {
	total := 0
	for _, c := range clusters {
		total += c.TotalPeople
	}
	return total
}
