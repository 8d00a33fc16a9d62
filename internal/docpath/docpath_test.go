package docpath

import (
	"testing"

	"github.com/juju/mgo/v3/bson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	doc := map[string]interface{}{
		"_id": "x1",
		"value": bson.M{
			"data": bson.D{
				{Name: "name", Value: "Acme"},
				{Name: "address", Value: map[string]interface{}{"city": "Lyon"}},
			},
		},
	}

	v, ok := Lookup(doc, Split("value.data.name")...)
	require.True(t, ok)
	assert.Equal(t, "Acme", v)

	v, ok = Lookup(doc, Split("value.data.address.city")...)
	require.True(t, ok)
	assert.Equal(t, "Lyon", v)

	_, ok = Lookup(doc, Split("value.data.address.street")...)
	assert.False(t, ok)

	_, ok = Lookup(doc, Split("value.meta.name")...)
	assert.False(t, ok, "missing intermediate record")

	_, ok = Lookup(doc, Split("_id.nested")...)
	assert.False(t, ok, "leaf has no children")

	_, ok = Lookup(doc)
	assert.False(t, ok, "empty path")
}

func TestLookupNilValuePresent(t *testing.T) {
	v, ok := Lookup(map[string]interface{}{"fax": nil}, "fax")
	assert.True(t, ok)
	assert.Nil(t, v)
}

func TestEach(t *testing.T) {
	var names []string
	ok := Each(bson.D{{Name: "b", Value: 1}, {Name: "a", Value: 2}}, func(name string, _ interface{}) {
		names = append(names, name)
	})
	require.True(t, ok)
	assert.Equal(t, []string{"b", "a"}, names)

	assert.False(t, Each("leaf", func(string, interface{}) {}))
}

func TestID(t *testing.T) {
	oid := bson.ObjectIdHex("5f1e0c7a9d3b2a0011223344")
	assert.Equal(t, "5f1e0c7a9d3b2a0011223344", ID(oid))
	assert.Equal(t, "x1", ID("x1"))
	assert.Equal(t, "42", ID(42))
	assert.Equal(t, "", ID(nil))
}
