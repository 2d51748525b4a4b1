package store

import "github.com/sells-group/farmmap/internal/model"

func happyAcres() *model.EnrichedRecord {
	return &model.EnrichedRecord{
		ID:       "S001",
		Title:    "Happy Acres",
		Position: model.Position{Lat: 39.444818, Lng: -76.979773},
		Address:  "4785 Bartholow Rd, Eldersburg, MD 21784, USA",
		Phone:    "555-1234",
	}
}

func windyHill() *model.EnrichedRecord {
	return &model.EnrichedRecord{
		ID:       "S002",
		Title:    "Windy Hill",
		Position: model.Position{Lat: 39.2673, Lng: -76.7983},
		Address:  "9 Old Frederick Rd, Ellicott City, MD 21042, USA",
		Phone:    "410-555-0000",
	}
}
