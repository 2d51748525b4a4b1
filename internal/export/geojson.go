// Package export renders persisted stable records for the marker map.
package export

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/farmmap/internal/model"
)

// Feature converts one record into a GeoJSON point feature. Coordinates
// follow GeoJSON order: longitude, latitude.
func Feature(rec model.EnrichedRecord) *geojson.Feature {
	return &geojson.Feature{
		ID:       rec.ID,
		Geometry: geom.NewPointFlat(geom.XY, []float64{rec.Position.Lng, rec.Position.Lat}),
		Properties: map[string]any{
			"title":   rec.Title,
			"address": rec.Address,
			"phone":   rec.Phone,
		},
	}
}

// FeatureCollection converts records in order.
func FeatureCollection(recs []model.EnrichedRecord) *geojson.FeatureCollection {
	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(recs))}
	for _, rec := range recs {
		fc.Features = append(fc.Features, Feature(rec))
	}
	return fc
}

// Write encodes recs as an indented FeatureCollection.
func Write(w io.Writer, recs []model.EnrichedRecord) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(FeatureCollection(recs)); err != nil {
		return eris.Wrap(err, "export: encode geojson")
	}
	return nil
}

// WriteFile writes the FeatureCollection to path, replacing it atomically.
func WriteFile(path string, recs []model.EnrichedRecord) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "export: create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return eris.Wrap(err, "export: create temp file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	if err := Write(tmp, recs); err != nil {
		tmp.Close() //nolint:errcheck
		return err
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "export: close temp file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return eris.Wrapf(err, "export: rename to %s", path)
	}
	return nil
}
