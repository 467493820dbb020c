package sqlite

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"

	"modernc.org/sqlite"
)

// foldFunc is the SQL name of a Unicode-aware lower(). SQLite's built-in
// LOWER only folds ASCII, so "Übersicht" would stay unchanged.
const foldFunc = "unicode_lower"

var registerFuncs = sync.OnceValue(func() error {
	err := sqlite.RegisterDeterministicScalarFunction(foldFunc, 1,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case nil:
				return nil, nil
			case string:
				return strings.ToLower(v), nil
			case []byte:
				return strings.ToLower(string(v)), nil
			default:
				return v, nil
			}
		})
	if err != nil {
		return fmt.Errorf("sqlite: registering %s: %w", foldFunc, err)
	}
	return nil
})
