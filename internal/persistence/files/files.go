// Package files stores resolved records on disk, one file per record,
// grouped by subject.
package files

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/records"
	"github.com/agentstation/corroborate/pkg/save"
)

// Sink writes records to <dir>/<subject-key>/<record-id>.<ext>.
type Sink struct {
	dir    string
	format save.Format
}

// New returns a sink rooted at dir. The directory is created on first save.
func New(dir string, format save.Format) (*Sink, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.NewConfigError("files", "directory is required", nil)
	}
	if !format.IsValid() {
		return nil, errors.NewValidationError("format", format.String(), "unsupported format")
	}
	return &Sink{dir: dir, format: format}, nil
}

// Dir returns the root directory.
func (s *Sink) Dir() string { return s.dir }

// Path returns where a record would be written.
func (s *Sink) Path(record *records.ResolvedRecord) string {
	return filepath.Join(s.dir, safeName(record.Subject.Key()), safeName(record.ID)+"."+s.format.Ext())
}

// Save writes the record, replacing any earlier file with the same ID.
func (s *Sink) Save(ctx context.Context, record *records.ResolvedRecord) error {
	if record == nil {
		return errors.NewValidationError("record", nil, "record is nil")
	}
	if record.ID == "" {
		return errors.NewValidationError("record.id", "", "record ID is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(record)
	if err := save.Write(record, save.WithPath(path), save.WithFormat(s.format)); err != nil {
		return err
	}
	logging.FromContext(ctx).Debug().
		Str("path", path).
		Str("record_id", record.ID).
		Msg("Saved resolved record")
	return nil
}

// Load reads one record file.
func Load(path string) (*records.ResolvedRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("record", path)
		}
		return nil, errors.WrapIO("read", path, err)
	}
	format := save.FormatJSON
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext == "yaml" || ext == "yml" {
		format = save.FormatYAML
	}
	var rec records.ResolvedRecord
	if err := save.Unmarshal(data, format, &rec); err != nil {
		return nil, errors.WrapIO("parse", path, err)
	}
	return &rec, nil
}

// List returns the record files stored for a subject, sorted by name.
// Snowflake IDs sort by creation time, so the last entry is the newest.
func (s *Sink) List(subject records.Subject) ([]string, error) {
	dir := filepath.Join(s.dir, safeName(subject.Key()))
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.WrapIO("list", dir, err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), "."+s.format.Ext()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Slice(paths, func(i, j int) bool {
		a, b := filepath.Base(paths[i]), filepath.Base(paths[j])
		if len(a) != len(b) {
			return len(a) < len(b)
		}
		return a < b
	})
	return paths, nil
}

// Latest loads the newest record for a subject.
func (s *Sink) Latest(subject records.Subject) (*records.ResolvedRecord, error) {
	paths, err := s.List(subject)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, errors.NewNotFoundError("record", subject.Key())
	}
	return Load(paths[len(paths)-1])
}

func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			return '_'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "_"
	}
	return s
}
