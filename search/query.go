package search

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/juju/errors"

	"github.com/viant/searchsync/index"
)

// Query syntax, a subset of the Lucene standard syntax:
//
//	*:*                  every document
//	field:value          equality, "quoted values" may contain spaces
//	field:pre*           prefix match
//	field:*              field present
//	field:[lo TO hi]     inclusive range, either bound may be *
//	a:1 AND b:2          conjunction, && is accepted too
//
// Multi-valued fields match when any element matches.

type clauseKind int

const (
	clauseAll clauseKind = iota
	clauseExists
	clauseEquals
	clausePrefix
	clauseRange
)

type clause struct {
	kind  clauseKind
	field string
	value string
	lo    string
	hi    string
}

// condition is a compiled WHERE fragment with its arguments.
type condition struct {
	sql  string
	args []interface{}
}

func parseQuery(q string) ([]clause, error) {
	tokens, err := tokenize(q)
	if err != nil {
		return nil, errors.Trace(err)
	}
	if len(tokens) == 0 {
		return nil, errors.NotValidf("empty query")
	}
	var clauses []clause
	expectClause := true
	for _, tok := range tokens {
		if !expectClause {
			if tok != "AND" && tok != "&&" {
				return nil, errors.NotValidf("query %q: expected AND, got %q", q, tok)
			}
			expectClause = true
			continue
		}
		c, err := parseClause(tok)
		if err != nil {
			return nil, errors.Annotatef(err, "query %q", q)
		}
		clauses = append(clauses, c)
		expectClause = false
	}
	if expectClause {
		return nil, errors.NotValidf("query %q: dangling AND", q)
	}
	return clauses, nil
}

// tokenize splits on whitespace outside of quotes and brackets.
func tokenize(q string) ([]string, error) {
	var tokens []string
	var cur strings.Builder
	inQuote, inRange := false, false
	for _, r := range q {
		switch {
		case r == '"' && !inRange:
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == '[' && !inQuote:
			inRange = true
			cur.WriteRune(r)
		case r == ']' && !inQuote:
			inRange = false
			cur.WriteRune(r)
		case (r == ' ' || r == '\t' || r == '\n') && !inQuote && !inRange:
			if cur.Len() > 0 {
				tokens = append(tokens, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if inQuote || inRange {
		return nil, errors.NotValidf("query %q: unterminated quote or range", q)
	}
	if cur.Len() > 0 {
		tokens = append(tokens, cur.String())
	}
	return tokens, nil
}

func parseClause(tok string) (clause, error) {
	if tok == index.MatchAll {
		return clause{kind: clauseAll}, nil
	}
	i := strings.IndexByte(tok, ':')
	if i <= 0 {
		return clause{}, errors.NotValidf("clause %q", tok)
	}
	field, term := tok[:i], strings.TrimSpace(tok[i+1:])
	if err := validateField(field); err != nil {
		return clause{}, errors.Trace(err)
	}
	switch {
	case term == "":
		return clause{}, errors.NotValidf("clause %q without value", tok)
	case term == "*":
		return clause{kind: clauseExists, field: field}, nil
	case strings.HasPrefix(term, "["):
		if !strings.HasSuffix(term, "]") {
			return clause{}, errors.NotValidf("range %q", term)
		}
		parts := strings.Fields(term[1 : len(term)-1])
		if len(parts) != 3 || parts[1] != "TO" {
			return clause{}, errors.NotValidf("range %q", term)
		}
		return clause{kind: clauseRange, field: field, lo: parts[0], hi: parts[2]}, nil
	case strings.HasPrefix(term, `"`):
		if len(term) < 2 || !strings.HasSuffix(term, `"`) {
			return clause{}, errors.NotValidf("quoted value %q", term)
		}
		return clause{kind: clauseEquals, field: field, value: term[1 : len(term)-1]}, nil
	case strings.HasSuffix(term, "*"):
		return clause{kind: clausePrefix, field: field, value: strings.TrimSuffix(term, "*")}, nil
	default:
		return clause{kind: clauseEquals, field: field, value: term}, nil
	}
}

func validateField(field string) error {
	if field == "" || strings.ContainsAny(field, "\"\\:*[] ") {
		return errors.NotValidf("field name %q", field)
	}
	return nil
}

// compile turns clauses into a WHERE condition over search_docs.body.
func compile(clauses []clause) condition {
	var parts []string
	var args []interface{}
	for _, c := range clauses {
		each := "EXISTS (SELECT 1 FROM json_each(" + docsTable + ".body, ?) AS je"
		switch c.kind {
		case clauseAll:
			continue
		case clauseExists:
			parts = append(parts, each+")")
			args = append(args, jsonPath(c.field))
		case clauseEquals:
			if c.value == "true" || c.value == "false" {
				parts = append(parts, each+" WHERE je.value = ? OR je.type = ?)")
				args = append(args, jsonPath(c.field), c.value, c.value)
			} else if n, ok := number(c.value); ok {
				parts = append(parts, each+" WHERE je.value = ? OR je.value = ?)")
				args = append(args, jsonPath(c.field), c.value, n)
			} else {
				parts = append(parts, each+" WHERE je.value = ?)")
				args = append(args, jsonPath(c.field), c.value)
			}
		case clausePrefix:
			parts = append(parts, each+" WHERE je.type = 'text' AND substr(je.value, 1, ?) = ?)")
			args = append(args, jsonPath(c.field), utf8.RuneCountInString(c.value), c.value)
		case clauseRange:
			cond := each + " WHERE 1 = 1"
			args = append(args, jsonPath(c.field))
			if c.lo != "*" {
				cond += " AND je.value >= ?"
				args = append(args, bound(c.lo))
			}
			if c.hi != "*" {
				cond += " AND je.value <= ?"
				args = append(args, bound(c.hi))
			}
			parts = append(parts, cond+")")
		}
	}
	if len(parts) == 0 {
		return condition{sql: "1 = 1"}
	}
	return condition{sql: strings.Join(parts, " AND "), args: args}
}

func number(s string) (interface{}, bool) {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, true
	}
	return nil, false
}

func bound(s string) interface{} {
	if n, ok := number(s); ok {
		return n
	}
	return strings.Trim(s, `"`)
}
