package docsync

import (
	"bytes"
	"io"
	"testing"

	"github.com/juju/mgo/v3/bson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ts(sec int64) bson.MongoTimestamp {
	return bson.MongoTimestamp(sec<<32 | 1)
}

func dump(t *testing.T, entries ...Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range entries {
		data, err := bson.Marshal(e)
		require.NoError(t, err)
		buf.Write(data)
	}
	return buf.Bytes()
}

func TestReader(t *testing.T) {
	id := bson.NewObjectId()
	data := dump(t,
		Entry{Ts: ts(1), Op: OpInsert, Namespace: "crm.contacts", Object: bson.M{"_id": id, "value": bson.M{"data": bson.M{"name": "Acme"}}}},
		Entry{Ts: ts(2), Op: OpUpdate, Namespace: "crm.contacts", Object: bson.M{"$set": bson.M{"x": 1}}, Object2: bson.M{"_id": id}},
		Entry{Ts: ts(3), Op: OpDelete, Namespace: "crm.contacts", Object: bson.M{"_id": id}},
	)

	r := NewReader(bytes.NewReader(data))
	e, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, ts(1), e.Ts)
	assert.Equal(t, OpInsert, e.Op)
	assert.Equal(t, "crm.contacts", e.Namespace)
	assert.Equal(t, id, e.Object["_id"])
	assert.Equal(t, bson.M{"data": bson.M{"name": "Acme"}}, e.Object["value"])
	assert.Nil(t, e.Object2)

	e, err = r.Next()
	require.NoError(t, err)
	assert.True(t, e.isOperatorUpdate())
	assert.Equal(t, id, e.Object2["_id"])

	e, err = r.Next()
	require.NoError(t, err)
	assert.Equal(t, OpDelete, e.Op)
	assert.Equal(t, int64(3<<32|1), e.Timestamp())

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReaderErrors(t *testing.T) {
	data := dump(t, Entry{Ts: ts(1), Op: OpInsert, Object: bson.M{"_id": "a"}})

	var testCases = []struct {
		description string
		data        []byte
	}{
		{description: "truncated length", data: data[:2]},
		{description: "truncated document", data: data[:len(data)-3]},
		{description: "length too small", data: []byte{4, 0, 0, 0}},
		{description: "negative length", data: []byte{0xff, 0xff, 0xff, 0xff}},
	}
	for _, tc := range testCases {
		_, err := NewReader(bytes.NewReader(tc.data)).Next()
		assert.Error(t, err, tc.description)
		assert.NotEqual(t, io.EOF, err, tc.description)
	}
}
