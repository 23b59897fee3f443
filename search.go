package transit

import (
	"math"
	"sort"
	"strings"

	"buswidget.dev/transit/model"
)

// NearbyRadiusMeters bounds nearby search results.
const NearbyRadiusMeters = 5000.0

type rankedStop struct {
	entry          model.SearchableStop
	startsWithName bool
	startsWithCode bool
}

// SearchStops matches the query as a substring of each stop's
// normalized name, id or code, then ranks matches by how likely they
// are what the user meant.
func SearchStops(snap *model.Snapshot, query string, limit int) []*model.StopInfo {
	q := model.NormalizeForSearch(strings.TrimSpace(query))

	ranked := []rankedStop{}
	for _, entry := range snap.Searchable {
		match := strings.Contains(entry.NormName, q) ||
			strings.Contains(entry.NormID, q) ||
			strings.Contains(entry.NormCode, q)
		if !match {
			continue
		}

		ranked = append(ranked, rankedStop{
			entry:          entry,
			startsWithName: strings.HasPrefix(entry.NormName, q),
			startsWithCode: q != "" && strings.HasPrefix(entry.NormCode, q),
		})
	}

	coll := model.NewCollator()
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.startsWithName != b.startsWithName {
			return a.startsWithName
		}
		if a.entry.HasKnownService != b.entry.HasKnownService {
			return a.entry.HasKnownService
		}
		if a.entry.IsBoardingStop != b.entry.IsBoardingStop {
			return a.entry.IsBoardingStop
		}
		if a.entry.ProviderPriority != b.entry.ProviderPriority {
			return a.entry.ProviderPriority < b.entry.ProviderPriority
		}
		if a.entry.LineHintCount != b.entry.LineHintCount {
			return a.entry.LineHintCount > b.entry.LineHintCount
		}
		if a.startsWithCode != b.startsWithCode {
			return a.startsWithCode
		}
		if cmp := coll.CompareString(a.entry.Stop.Name, b.entry.Stop.Name); cmp != 0 {
			return cmp < 0
		}
		return coll.CompareString(a.entry.Stop.ID, b.entry.Stop.ID) < 0
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	results := make([]*model.StopInfo, len(ranked))
	for i, r := range ranked {
		results[i] = r.entry.Stop
	}
	return results
}

// A stop with its distance from the search origin.
type NearbyStop struct {
	Stop           *model.StopInfo `json:"stop"`
	DistanceMeters float64         `json:"distanceMeters"`
}

// SearchNearby lists the stops within the fixed radius of a point,
// closest first. Stops without coordinates never match.
func SearchNearby(snap *model.Snapshot, lat, lon float64, limit int) []NearbyStop {
	nearby := []NearbyStop{}
	for _, stop := range snap.Stops {
		stopLat, stopLon, ok := stop.Coordinates()
		if !ok {
			continue
		}

		distance := haversineMeters(lat, lon, stopLat, stopLon)
		if distance > NearbyRadiusMeters {
			continue
		}
		nearby = append(nearby, NearbyStop{Stop: stop, DistanceMeters: distance})
	}

	sort.Slice(nearby, func(i, j int) bool {
		if nearby[i].DistanceMeters != nearby[j].DistanceMeters {
			return nearby[i].DistanceMeters < nearby[j].DistanceMeters
		}
		return nearby[i].Stop.ID < nearby[j].Stop.ID
	})

	if limit > 0 && len(nearby) > limit {
		nearby = nearby[:limit]
	}
	return nearby
}

const earthRadiusMeters = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
