package search

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/juju/errors"
	"github.com/juju/mgo/v3/bson"

	"github.com/viant/searchsync/index"
)

// EncodeDocument serializes doc as a JSON object. Values must be scalars or
// arrays of scalars; anything else is rejected.
func EncodeDocument(doc index.Document) ([]byte, error) {
	flat := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		nv, err := normalize(v, true)
		if err != nil {
			return nil, errors.Annotatef(err, "field %q", k)
		}
		flat[k] = nv
	}
	return json.Marshal(flat)
}

// DecodeDocument parses a JSON object produced by EncodeDocument. Integral
// numbers come back as int64, others as float64.
func DecodeDocument(data []byte) (index.Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.WithType(errors.Annotate(err, "decoding document"), index.ValueFormat)
	}
	doc := make(index.Document, len(raw))
	for k, v := range raw {
		doc[k] = denormalize(v)
	}
	return doc, nil
}

func normalize(v interface{}, allowArray bool) (interface{}, error) {
	switch t := v.(type) {
	case nil, string, bool:
		return t, nil
	case bson.ObjectId:
		return t.Hex(), nil
	case bson.MongoTimestamp:
		return int64(t), nil
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano), nil
	case []byte:
		return string(t), nil
	case json.Number:
		return t, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Slice, reflect.Array:
		if !allowArray {
			return nil, errors.NotSupportedf("nested array")
		}
		out := make([]interface{}, rv.Len())
		for i := range out {
			e, err := normalize(rv.Index(i).Interface(), false)
			if err != nil {
				return nil, errors.Trace(err)
			}
			out[i] = e
		}
		return out, nil
	}
	return nil, errors.NotSupportedf("value of type %T", v)
}

func denormalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case []interface{}:
		for i := range t {
			t[i] = denormalize(t[i])
		}
		return t
	}
	return v
}

func jsonPath(field string) string {
	return fmt.Sprintf(`$."%s"`, field)
}
