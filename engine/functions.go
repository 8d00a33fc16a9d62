package engine

import (
	"database/sql/driver"
	"fmt"
	"sync"

	sqlite "modernc.org/sqlite"

	"github.com/viant/searchsync/schema"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterSearchFunctions registers search_field_match with the driver. Only
// connections opened after the first call see it; later calls are no-ops.
//
//	search_field_match(pattern TEXT, key TEXT) -> INTEGER
//
// returns 1 when key belongs to the dynamic field pattern (or equals an
// exact field name), 0 otherwise.
func RegisterSearchFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction("search_field_match", 2, fieldMatchImpl)
	})
	return registerErr
}

func fieldMatchImpl(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("search_field_match: expected 2 arguments, got %d", len(args))
	}
	pattern, err := asText(args[0])
	if err != nil {
		return nil, err
	}
	key, err := asText(args[1])
	if err != nil {
		return nil, err
	}
	if pattern == "" || key == "" {
		return int64(0), nil
	}
	if schema.Match(pattern, key) {
		return int64(1), nil
	}
	return int64(0), nil
}

func asText(arg driver.Value) (string, error) {
	switch v := arg.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", fmt.Errorf("search_field_match: unsupported argument type %T; want TEXT", arg)
	}
}
