package store

import (
	"regexp"

	"github.com/rotisserie/eris"
)

// DefaultTable is the table written by the SQLite and Postgres stores.
const DefaultTable = "stables"

// tableColumns is the column order shared by the table stores.
var tableColumns = []string{"id", "title", "lat", "lng", "address", "phone", "updated_at"}

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func checkTable(name string) (string, error) {
	if name == "" {
		return DefaultTable, nil
	}
	if !tableNameRe.MatchString(name) {
		return "", eris.Errorf("store: invalid table name %q", name)
	}
	return name, nil
}
