package export

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/umahmood/haversine"

	"github.com/sells-group/farmmap/internal/model"
)

// ParseCenter parses "lat,lng".
func ParseCenter(s string) (model.Position, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return model.Position{}, eris.Errorf("export: center %q must be lat,lng", s)
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return model.Position{}, eris.Wrapf(err, "export: parse latitude %q", parts[0])
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return model.Position{}, eris.Wrapf(err, "export: parse longitude %q", parts[1])
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return model.Position{}, eris.Errorf("export: center %q out of range", s)
	}
	return model.Position{Lat: lat, Lng: lng}, nil
}

// DistanceKm is the great-circle distance between two positions.
func DistanceKm(a, b model.Position) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: a.Lat, Lon: a.Lng},
		haversine.Coord{Lat: b.Lat, Lon: b.Lng},
	)
	return km
}

// Within returns the records no further than radiusKm from center, nearest
// first. Ties keep input order.
func Within(recs []model.EnrichedRecord, center model.Position, radiusKm float64) []model.EnrichedRecord {
	type hit struct {
		rec  model.EnrichedRecord
		dist float64
	}

	var hits []hit
	for _, rec := range recs {
		if d := DistanceKm(center, rec.Position); d <= radiusKm {
			hits = append(hits, hit{rec: rec, dist: d})
		}
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		default:
			return 0
		}
	})

	out := make([]model.EnrichedRecord, len(hits))
	for i, h := range hits {
		out[i] = h.rec
	}
	return out
}
