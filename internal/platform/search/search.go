// Package search builds SQL WHERE clauses from request filter parameters.
// It encapsulates the list/filter pattern shared by the domain repositories.
package search

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

// ParamType defines how a filter parameter is matched against its column.
type ParamType int

const (
	ParamExact  ParamType = iota // exact equality (statuses, codes, UUIDs)
	ParamDate                    // date with optional gt/ge/lt/le prefix
	ParamString                  // case-insensitive substring match
	ParamNumber                  // numeric with optional gt/ge/lt/le prefix
	ParamBool                    // boolean true/false
)

// ParamConfig maps a filter parameter to its database column.
type ParamConfig struct {
	Type   ParamType
	Column string
}

// Query accumulates WHERE clause fragments with positional arguments.
type Query struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// New creates a Query for the given table and column list.
func New(table, cols string) *Query {
	return &Query{
		table: table,
		cols:  cols,
		idx:   1,
	}
}

// Idx returns the next available placeholder index.
func (q *Query) Idx() int { return q.idx }

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *Query) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// prefixOp splits an optional gt/ge/lt/le prefix off a date or number value.
func prefixOp(value string) (string, string) {
	switch {
	case strings.HasPrefix(value, "gt"):
		return ">", value[2:]
	case strings.HasPrefix(value, "ge"):
		return ">=", value[2:]
	case strings.HasPrefix(value, "lt"):
		return "<", value[2:]
	case strings.HasPrefix(value, "le"):
		return "<=", value[2:]
	default:
		return "=", value
	}
}

// ApplyParam adds a single filter using the config.
func (q *Query) ApplyParam(config ParamConfig, value string) {
	switch config.Type {
	case ParamDate, ParamNumber:
		op, v := prefixOp(value)
		q.where += fmt.Sprintf(" AND %s %s $%d", config.Column, op, q.idx)
		q.args = append(q.args, v)
		q.idx++
	case ParamString:
		q.where += fmt.Sprintf(" AND %s ILIKE $%d", config.Column, q.idx)
		q.args = append(q.args, "%"+value+"%")
		q.idx++
	case ParamBool:
		q.where += fmt.Sprintf(" AND %s = $%d", config.Column, q.idx)
		q.args = append(q.args, value == "true")
		q.idx++
	default:
		q.where += fmt.Sprintf(" AND %s = $%d", config.Column, q.idx)
		q.args = append(q.args, value)
		q.idx++
	}
}

// ApplyParams applies all matching filters from the given map.
func (q *Query) ApplyParams(params map[string]string, configs map[string]ParamConfig) {
	for name, value := range params {
		if config, ok := configs[name]; ok {
			q.ApplyParam(config, value)
		}
	}
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *Query) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

// CountSQL returns the count query SQL.
func (q *Query) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *Query) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *Query) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query (filter args + limit + offset).
func (q *Query) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// ApplySort processes a sort parameter ("field,-other") and sets ORDER BY
// using the config column mappings. Falls back to defaultOrder when the
// parameter is empty or names no known field.
func (q *Query) ApplySort(sortParam, defaultOrder string, configs map[string]ParamConfig) {
	if sortParam == "" {
		q.orderBy = defaultOrder
		return
	}
	var parts []string
	for _, field := range strings.Split(sortParam, ",") {
		field = strings.TrimSpace(field)
		desc := false
		if strings.HasPrefix(field, "-") {
			desc = true
			field = field[1:]
		}
		if config, ok := configs[field]; ok {
			col := config.Column
			if desc {
				parts = append(parts, col+" DESC")
			} else {
				parts = append(parts, col+" ASC")
			}
		}
	}
	if len(parts) > 0 {
		q.orderBy = strings.Join(parts, ", ")
	} else {
		q.orderBy = defaultOrder
	}
}

// ExtractParams extracts filter parameters from the query string, excluding
// control parameters (limit, offset, sort). Unknown params are included; a
// repo's ApplyParams ignores ones not in its config.
func ExtractParams(c echo.Context) map[string]string {
	params := map[string]string{}
	for k, v := range c.QueryParams() {
		if len(v) == 0 || k == "limit" || k == "offset" || k == "sort" {
			continue
		}
		params[k] = v[0]
	}
	return params
}
