// Package docpath reads values out of nested upstream records. A record is a
// map[string]interface{}, a bson.M or a bson.D; anything else is a leaf.
package docpath

import (
	"fmt"
	"strings"

	"github.com/juju/mgo/v3/bson"

	"github.com/viant/searchsync/index"
)

// Split breaks a dotted path such as "value.data.name" into segments.
func Split(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Lookup walks the segments through doc. It reports false when any segment,
// including an intermediate record, is absent.
func Lookup(doc interface{}, segments ...string) (interface{}, bool) {
	cur := doc
	for _, seg := range segments {
		next, ok := field(cur, seg)
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, len(segments) > 0
}

// Each calls fn for every top-level field of doc, in document order where the
// record keeps one. It reports false when doc is not a record.
func Each(doc interface{}, fn func(name string, value interface{})) bool {
	switch d := doc.(type) {
	case map[string]interface{}:
		for k, v := range d {
			fn(k, v)
		}
	case bson.M:
		for k, v := range d {
			fn(k, v)
		}
	case index.Document:
		for k, v := range d {
			fn(k, v)
		}
	case bson.D:
		for _, e := range d {
			fn(e.Name, e.Value)
		}
	case *bson.D:
		if d == nil {
			return false
		}
		return Each(*d, fn)
	default:
		return false
	}
	return true
}

// IsRecord reports whether v is a nested record.
func IsRecord(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, bson.M, index.Document, bson.D, *bson.D:
		return true
	}
	return false
}

// ID renders an identifier value as the string used by the backend.
func ID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case bson.ObjectId:
		return id.Hex()
	case []byte:
		return string(id)
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func field(doc interface{}, name string) (interface{}, bool) {
	switch d := doc.(type) {
	case map[string]interface{}:
		v, ok := d[name]
		return v, ok
	case bson.M:
		v, ok := d[name]
		return v, ok
	case index.Document:
		v, ok := d[name]
		return v, ok
	case bson.D:
		for _, e := range d {
			if e.Name == name {
				return e.Value, true
			}
		}
	case *bson.D:
		if d != nil {
			return field(*d, name)
		}
	}
	return nil, false
}
