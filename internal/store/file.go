package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/farmmap/internal/model"
)

// FileStore writes each record to <dir>/<id>.json.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, eris.New("file store: directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrapf(err, "file store: create %s", dir)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the artifact path for id.
func (s *FileStore) Path(id string) (string, error) {
	if id == "" || id == "." || id == ".." || strings.ContainsAny(id, `/\`) {
		return "", eris.Errorf("file store: unusable id %q", id)
	}
	return filepath.Join(s.dir, id+".json"), nil
}

func (s *FileStore) Exists(_ context.Context, id string) (bool, error) {
	path, err := s.Path(id)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "file store: stat %s", path)
	}
	return !info.IsDir(), nil
}

// Put writes rec to a temp file and renames it into place so an
// interrupted run never leaves a partial artifact behind.
func (s *FileStore) Put(_ context.Context, rec *model.EnrichedRecord) error {
	path, err := s.Path(rec.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrapf(err, "file store: marshal %s", rec.ID)
	}

	tmp, err := os.CreateTemp(s.dir, "."+rec.ID+".*.tmp")
	if err != nil {
		return eris.Wrapf(err, "file store: create temp for %s", rec.ID)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrapf(err, "file store: write %s", rec.ID)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "file store: close %s", rec.ID)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "file store: rename %s", rec.ID)
	}
	return nil
}

func (s *FileStore) Get(_ context.Context, id string) (*model.EnrichedRecord, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	return readRecord(path)
}

// List returns every record in the directory ordered by ID.
func (s *FileStore) List(ctx context.Context) ([]model.EnrichedRecord, error) {
	ids, err := s.IDs()
	if err != nil {
		return nil, err
	}
	recs := make([]model.EnrichedRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, nil
}

// IDs returns the IDs of all artifacts in the directory, sorted. In-flight
// temp files end in .tmp and are never listed.
func (s *FileStore) IDs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "file store: read %s", s.dir)
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *FileStore) Close() error { return nil }

func readRecord(path string) (*model.EnrichedRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "file store: read %s", path)
	}
	var rec model.EnrichedRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrapf(err, "file store: decode %s", path)
	}
	return &rec, nil
}
