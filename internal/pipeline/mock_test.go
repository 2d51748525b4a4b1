package pipeline

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/farmmap/pkg/geocode"
)

type mockGeocoder struct {
	mock.Mock
}

func (m *mockGeocoder) Geocode(ctx context.Context, address []string) (*geocode.Result, error) {
	args := m.Called(ctx, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geocode.Result), args.Error(1)
}

// sliceSource is an in-memory RowSource. Line numbers start at 2 to
// account for the header row.
type sliceSource struct {
	rows [][]string
	pos  int
}

func (s *sliceSource) Next() ([]string, int, error) {
	if s.pos >= len(s.rows) {
		return nil, 0, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, s.pos + 1, nil
}

func rows(r ...[]string) *sliceSource { return &sliceSource{rows: r} }
