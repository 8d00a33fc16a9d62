package schema

import (
	"context"
	"sort"

	"github.com/juju/collections/set"
	"github.com/juju/errors"

	"github.com/viant/searchsync/index"
)

// Snapshot is an immutable view of the backend's declared fields.
type Snapshot struct {
	exact    set.Strings
	patterns []string
}

// Empty returns a snapshot that lets every field through.
func Empty() *Snapshot {
	return &Snapshot{exact: set.NewStrings()}
}

// NewSnapshot builds a snapshot from exact field names and dynamic patterns.
// Duplicates are ignored; patterns keep their first-seen order.
func NewSnapshot(fields, patterns []string) (*Snapshot, error) {
	s := &Snapshot{exact: set.NewStrings(fields...)}
	seen := set.NewStrings()
	for _, p := range patterns {
		if seen.Contains(p) {
			continue
		}
		if err := ValidatePattern(p); err != nil {
			return nil, errors.Trace(err)
		}
		seen.Add(p)
		s.patterns = append(s.patterns, p)
	}
	return s, nil
}

// Build reads the schema once from src and returns its snapshot. Any failure,
// including a malformed pattern, is reported as index.SchemaUnavailable.
func Build(ctx context.Context, src index.SchemaSource) (*Snapshot, error) {
	if src == nil {
		return nil, errors.WithType(errors.New("no schema source"), index.SchemaUnavailable)
	}
	desc, err := src.Read(ctx)
	if err != nil {
		return nil, errors.WithType(errors.Annotate(err, "reading schema"), index.SchemaUnavailable)
	}
	if desc == nil {
		return nil, errors.WithType(errors.New("empty schema description"), index.SchemaUnavailable)
	}
	snap, err := NewSnapshot(sortedNames(desc.Fields), sortedNames(desc.DynamicFields))
	if err != nil {
		return nil, errors.WithType(errors.Annotate(err, "parsing schema"), index.SchemaUnavailable)
	}
	return snap, nil
}

func sortedNames(fields map[string]index.FieldInfo) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEmpty reports whether the snapshot knows no exact fields, in which case
// Filter passes documents through unchanged.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || s.exact.IsEmpty()
}

// Fields returns the exact field names, sorted.
func (s *Snapshot) Fields() []string {
	if s == nil {
		return nil
	}
	return s.exact.SortedValues()
}

// Patterns returns the dynamic field patterns.
func (s *Snapshot) Patterns() []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s.patterns...)
}

// Allows reports whether key may be sent to the backend.
func (s *Snapshot) Allows(key string) bool {
	if s.IsEmpty() || s.exact.Contains(key) {
		return true
	}
	for _, p := range s.patterns {
		if Match(p, key) {
			return true
		}
	}
	return false
}

// Filter returns a copy of doc without the fields the backend does not
// declare. Dropped fields are not an error.
func (s *Snapshot) Filter(doc index.Document) index.Document {
	if s.IsEmpty() {
		return doc
	}
	out := make(index.Document, len(doc))
	for k, v := range doc {
		if s.Allows(k) {
			out[k] = v
		}
	}
	return out
}
