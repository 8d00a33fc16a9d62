package transform

import (
	"strings"

	"github.com/juju/errors"

	"github.com/viant/searchsync/index"
	"github.com/viant/searchsync/internal/docpath"
)

const (
	// DefaultIDPath is the upstream identifier field.
	DefaultIDPath = "_id"

	// CanonicalIDField is the backend's canonical id field, kept next to the
	// upstream identifier.
	CanonicalIDField = "id"
)

// Transformer converts one upstream document into an indexable document.
// Implementations are pure and never modify doc.
type Transformer interface {
	Name() string
	Transform(doc interface{}) (index.Document, error)
}

// Rule copies the value at an upstream dotted Path into Field.
type Rule struct {
	Path  string
	Field string
}

// Mapping is a versioned table of rules. IDFields receive the identifier
// read from IDPath; an absent or empty identifier makes the document malformed.
type Mapping struct {
	Name     string
	IDPath   string
	IDFields []string
	Rules    []Rule
}

// Validate ensures that the mapping values are valid.
func (m Mapping) Validate() error {
	if m.Name == "" {
		return errors.NotValidf("mapping without name")
	}
	if m.IDPath == "" {
		return errors.NotValidf("mapping %q without id path", m.Name)
	}
	if len(m.IDFields) == 0 {
		return errors.NotValidf("mapping %q without id fields", m.Name)
	}
	for _, r := range m.Rules {
		if r.Path == "" || r.Field == "" {
			return errors.NotValidf("mapping %q rule %+v", m.Name, r)
		}
	}
	return nil
}

type mappingTransformer struct {
	mapping Mapping
	idPath  []string
	paths   [][]string
}

// NewMappingTransformer returns a Transformer applying m.
func NewMappingTransformer(m Mapping) (Transformer, error) {
	if err := m.Validate(); err != nil {
		return nil, errors.Trace(err)
	}
	t := &mappingTransformer{mapping: m, idPath: docpath.Split(m.IDPath)}
	for _, r := range m.Rules {
		t.paths = append(t.paths, docpath.Split(r.Path))
	}
	return t, nil
}

func (t *mappingTransformer) Name() string { return t.mapping.Name }

// WithIDPath returns a copy of t that reads the identifier from path. The
// output id fields are unchanged.
func WithIDPath(t Transformer, path string) (Transformer, error) {
	switch tt := t.(type) {
	case *mappingTransformer:
		m := tt.mapping
		m.IDPath = path
		return NewMappingTransformer(m)
	case Passthrough:
		tt.IDField = path
		return tt, nil
	}
	return nil, errors.NotSupportedf("changing the id path of %q", t.Name())
}

// Transform applies the rules in order. Absent source values, including
// values under a missing intermediate record, are left out of the result.
func (t *mappingTransformer) Transform(doc interface{}) (index.Document, error) {
	id, err := identifier(doc, t.idPath)
	if err != nil {
		return nil, errors.Trace(err)
	}
	out := make(index.Document, len(t.mapping.IDFields)+len(t.mapping.Rules))
	for _, f := range t.mapping.IDFields {
		out[f] = id
	}
	for i, r := range t.mapping.Rules {
		if v, ok := docpath.Lookup(doc, t.paths[i]...); ok {
			out[r.Field] = v
		}
	}
	return out, nil
}

func identifier(doc interface{}, path []string) (string, error) {
	v, ok := docpath.Lookup(doc, path...)
	if !ok || v == nil {
		return "", errors.WithType(errors.Errorf("document has no %q", strings.Join(path, ".")), index.MalformedDocument)
	}
	id := docpath.ID(v)
	if id == "" {
		return "", errors.WithType(errors.Errorf("document has empty %q", strings.Join(path, ".")), index.MalformedDocument)
	}
	return id, nil
}
