// Package stable parses licensed-stable rows into validated model.Stable values.
package stable

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/farmmap/internal/model"
)

// NumColumns is the fixed column count of the licensed-stables file.
const NumColumns = 8

// Column positions in a raw row.
const (
	colID = iota
	colName
	colCounty
	colAddress1
	colAddress2
	colCity
	colStateZip
	colPhone
)

// ErrInvalidRow matches every *InvalidRowError via errors.Is.
var ErrInvalidRow = errors.New("stable: invalid row")

// InvalidRowError reports a row that cannot be normalized. The source file
// must be fixed by hand before the batch can continue.
type InvalidRowError struct {
	Line   int
	Row    []string
	Reason string
}

func (e *InvalidRowError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("stable: invalid row at line %d: %s: %q", e.Line, e.Reason, e.Row)
	}
	return fmt.Sprintf("stable: invalid row: %s: %q", e.Reason, e.Row)
}

// Is lets errors.Is(err, ErrInvalidRow) succeed.
func (e *InvalidRowError) Is(target error) bool {
	return target == ErrInvalidRow
}

// Normalize validates a raw row and resolves its county code.
func Normalize(row []string) (*model.Stable, error) {
	if err := validate(row); err != nil {
		zap.L().Error("invalid row",
			zap.Strings("row", row),
			zap.String("reason", err.Reason),
		)
		return nil, err
	}

	county, _ := CountyName(row[colCounty])
	address := make([]string, 0, colStateZip-colAddress1+1)
	for _, f := range row[colAddress1 : colStateZip+1] {
		address = append(address, strings.TrimSpace(f))
	}

	return &model.Stable{
		ID:      strings.TrimSpace(row[colID]),
		Name:    strings.TrimSpace(row[colName]),
		County:  county,
		Address: address,
		Phone:   strings.TrimSpace(row[colPhone]),
	}, nil
}

func validate(row []string) *InvalidRowError {
	if len(row) != NumColumns {
		return &InvalidRowError{
			Row:    row,
			Reason: fmt.Sprintf("expected %d columns, got %d", NumColumns, len(row)),
		}
	}
	if strings.TrimSpace(row[colID]) == "" {
		return &InvalidRowError{Row: row, Reason: "empty id"}
	}
	if _, ok := CountyName(row[colCounty]); !ok {
		return &InvalidRowError{
			Row:    row,
			Reason: fmt.Sprintf("unknown county code %q", row[colCounty]),
		}
	}
	return nil
}
