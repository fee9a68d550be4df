package pg

import (
	"strconv"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

func getString(node *pg_query.Node) string {
	return node.GetString_().GetSval()
}

// constValue returns the value of a constant expression like `1`, `'a'`,
// `true` or `'a'::text`. Other expressions return false.
func constValue(node *pg_query.Node) (any, bool) {
	if cast := node.GetTypeCast(); cast != nil {
		return constValue(cast.GetArg())
	}

	c := node.GetAConst()
	if c == nil || c.GetIsnull() {
		return nil, false
	}

	switch {
	case c.GetIval() != nil:
		return float64(c.GetIval().GetIval()), true
	case c.GetFval() != nil:
		f, err := strconv.ParseFloat(c.GetFval().GetFval(), 64)
		return f, err == nil
	case c.GetBoolval() != nil:
		return c.GetBoolval().GetBoolval(), true
	case c.GetSval() != nil:
		return c.GetSval().GetSval(), true
	}

	return nil, false
}
