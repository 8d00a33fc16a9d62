package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQuery(t *testing.T) {
	var testCases = []struct {
		q      string
		expect []clause
	}{
		{q: "*:*", expect: []clause{{kind: clauseAll}}},
		{q: "ns:db.coll", expect: []clause{{kind: clauseEquals, field: "ns", value: "db.coll"}}},
		{q: `name:"a b"`, expect: []clause{{kind: clauseEquals, field: "name", value: "a b"}}},
		{q: "name:ac*", expect: []clause{{kind: clausePrefix, field: "name", value: "ac"}}},
		{q: "name:*", expect: []clause{{kind: clauseExists, field: "name"}}},
		{q: "_ts:[1 TO *]", expect: []clause{{kind: clauseRange, field: "_ts", lo: "1", hi: "*"}}},
		{q: "a:1  AND\tb:2", expect: []clause{
			{kind: clauseEquals, field: "a", value: "1"},
			{kind: clauseEquals, field: "b", value: "2"},
		}},
	}
	for _, tc := range testCases {
		actual, err := parseQuery(tc.q)
		require.NoError(t, err, tc.q)
		assert.Equal(t, tc.expect, actual, tc.q)
	}
}

func TestParseQueryErrors(t *testing.T) {
	for _, q := range []string{
		"",
		"   ",
		"name",
		":x",
		"name:",
		`name:"open`,
		"_ts:[1 TO 2",
		"_ts:[1 2]",
		"a:1 AND",
		"a:1 b:2",
		"a:1 OR b:2",
		`we"ird:1`,
	} {
		_, err := parseQuery(q)
		assert.Error(t, err, "%q", q)
	}
}

func TestCompileMatchAll(t *testing.T) {
	cond := compile([]clause{{kind: clauseAll}})
	assert.Equal(t, "1 = 1", cond.sql)
	assert.Empty(t, cond.args)
}
