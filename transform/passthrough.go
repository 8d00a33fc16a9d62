package transform

import (
	"github.com/juju/errors"

	"github.com/viant/searchsync/index"
	"github.com/viant/searchsync/internal/docpath"
)

// PassthroughName names the Passthrough strategy.
const PassthroughName = "passthrough"

// Passthrough copies every top-level field of an upstream document and adds
// the canonical id. Nested records are copied as is and left to the schema
// filter or the backend to reject.
type Passthrough struct {
	IDField string
}

func (p Passthrough) Name() string { return PassthroughName }

func (p Passthrough) Transform(doc interface{}) (index.Document, error) {
	idField := p.IDField
	if idField == "" {
		idField = DefaultIDPath
	}
	id, err := identifier(doc, []string{idField})
	if err != nil {
		return nil, errors.Trace(err)
	}
	out := index.Document{}
	docpath.Each(doc, func(name string, value interface{}) {
		out[name] = value
	})
	out[idField] = id
	out[CanonicalIDField] = id
	return out, nil
}
