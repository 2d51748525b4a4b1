package model

// Stable is a validated licensed-stable row ready for geocoding.
type Stable struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	County  string   `json:"county"`
	Address []string `json:"address"` // address line 1, address line 2, city, state/zip
	Phone   string   `json:"phone"`
}

// Position is a WGS84 coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// EnrichedRecord is the persisted, geocoded form of a Stable. One record
// exists per stable ID and it is never updated in place by the pipeline.
type EnrichedRecord struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Position Position `json:"position"`
	Address  string   `json:"address"`
	Phone    string   `json:"phone"`
}

// RecordState is the per-record state of a pipeline run.
type RecordState string

const (
	RecordPending   RecordState = "pending"
	RecordSkipped   RecordState = "skipped"
	RecordGeocoding RecordState = "geocoding"
	RecordGeocoded  RecordState = "geocoded"
	RecordWritten   RecordState = "written"
	RecordEmpty     RecordState = "skipped_empty"
	RecordFailed    RecordState = "failed"
	RecordInvalid   RecordState = "invalid"
)

// Terminal reports whether no further transitions follow s.
func (s RecordState) Terminal() bool {
	switch s {
	case RecordSkipped, RecordWritten, RecordEmpty, RecordFailed, RecordInvalid:
		return true
	default:
		return false
	}
}
