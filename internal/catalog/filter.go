package catalog

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"gorm.io/gorm"
)

// Filtering of the public course list is driven by client query parameters
// like ?category=go or ?price[lte]=500. Only fields and operators named in
// the schema below ever reach the storage layer; everything else is rejected
// up front.

var sqlOps = map[string]string{
	"eq":  "=",
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
}

var schema = map[string]map[string]bool{
	"category": {"eq": true},
	"language": {"eq": true},
	"author":   {"eq": true},
	"price":    {"eq": true, "gt": true, "gte": true, "lt": true, "lte": true},
}

var skipped = map[string]bool{
	"page":   true,
	"size":   true,
	"sort":   true,
	"fields": true,
}

// Apply validates the query parameters against the filter schema and chains
// the resulting WHERE clauses onto db.
func Apply(db *gorm.DB, params url.Values) (*gorm.DB, error) {
	for key, values := range params {
		if skipped[key] || len(values) == 0 {
			continue
		}

		field, op, err := splitKey(key)
		if err != nil {
			return nil, err
		}

		ops, ok := schema[field]
		if !ok {
			return nil, fmt.Errorf("unknown filter field %q", field)
		}
		if !ops[op] {
			return nil, fmt.Errorf("operator %q is not allowed for field %q", op, field)
		}

		value, err := coerce(field, values[0])
		if err != nil {
			return nil, err
		}

		db = db.Where(fmt.Sprintf("%s %s ?", field, sqlOps[op]), value)
	}
	return db, nil
}

// splitKey parses "price[gte]" into ("price", "gte"); a bare key means
// equality.
func splitKey(key string) (field, op string, err error) {
	open := strings.IndexByte(key, '[')
	if open < 0 {
		return key, "eq", nil
	}
	if !strings.HasSuffix(key, "]") || open == 0 {
		return "", "", fmt.Errorf("malformed filter key %q", key)
	}
	return key[:open], key[open+1 : len(key)-1], nil
}

func coerce(field, raw string) (any, error) {
	if field != "price" {
		return raw, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("filter value for %q must be a number", field)
	}
	return v, nil
}
