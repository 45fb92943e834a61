/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package dynamic

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/tomoncle/tombstone/types"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

// ErrMalformedFilter is wrapped by every compilation failure.
var ErrMalformedFilter = errors.New("tombstone: malformed dynamic filter")

// FilterError describes which part of a dynamic query could not be compiled.
type FilterError struct {
	Field    string
	Operator string
	Reason   string
}

func (e *FilterError) Error() string {
	var b strings.Builder
	b.WriteString(ErrMalformedFilter.Error())
	if e.Field != "" {
		fmt.Fprintf(&b, ": field %q", e.Field)
	}
	if e.Operator != "" {
		fmt.Fprintf(&b, ": operator %q", e.Operator)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

func (e *FilterError) Unwrap() error { return ErrMalformedFilter }

// Modifier applies a compiled clause to a select query.
type Modifier func(q *bun.SelectQuery) *bun.SelectQuery

// Compiled is the result of compiling a DynamicQuery. Either member may be nil.
type Compiled struct {
	Where Modifier
	Order Modifier
}

// Apply runs the predicate and then the ordering against q.
func (c *Compiled) Apply(q *bun.SelectQuery) *bun.SelectQuery {
	if c.Where != nil {
		q = c.Where(q)
	}
	if c.Order != nil {
		q = c.Order(q)
	}
	return q
}

// CompileFor compiles dq against the table of model T.
func CompileFor[T any](db *bun.DB, dq types.DynamicQuery) (*Compiled, error) {
	return Compile(db.Table(reflect.TypeOf((*T)(nil)).Elem()), dq)
}

// Compile validates dq completely before returning, so a malformed description
// never produces a partially applied query.
func Compile(table *schema.Table, dq types.DynamicQuery) (*Compiled, error) {
	c := &compiler{table: table}
	out := &Compiled{}
	if dq.Filter != nil {
		where, err := c.filter(*dq.Filter)
		if err != nil {
			return nil, err
		}
		out.Where = func(q *bun.SelectQuery) *bun.SelectQuery { return where(q, false) }
	}
	if len(dq.Sort) > 0 {
		order, err := c.sort(dq.Sort)
		if err != nil {
			return nil, err
		}
		out.Order = order
	}
	return out, nil
}

// clause appends itself to q, joined with OR when or is set.
type clause func(q *bun.SelectQuery, or bool) *bun.SelectQuery

type compiler struct {
	table *schema.Table
}

func (c *compiler) field(name string) (*schema.Field, error) {
	if name == "" {
		return nil, &FilterError{Reason: "field is required"}
	}
	if f, ok := c.table.FieldMap[name]; ok {
		return f, nil
	}
	for _, f := range c.table.Fields {
		if strings.EqualFold(f.GoName, name) || strings.EqualFold(f.Name, name) {
			return f, nil
		}
	}
	return nil, &FilterError{Field: name, Reason: fmt.Sprintf("unknown field on %s", c.table.Name)}
}

func (c *compiler) filter(f types.Filter) (clause, error) {
	if len(f.Filters) == 0 {
		return c.leaf(f)
	}

	logic := strings.ToLower(f.Logic)
	switch logic {
	case "", types.LogicAnd:
		logic = types.LogicAnd
	case types.LogicOr:
	default:
		return nil, &FilterError{Field: f.Field, Reason: fmt.Sprintf("unknown logic %q", f.Logic)}
	}

	var members []clause
	if f.Field != "" || f.Operator != "" {
		leaf, err := c.leaf(f)
		if err != nil {
			return nil, err
		}
		members = append(members, leaf)
	}
	for _, child := range f.Filters {
		member, err := c.filter(child)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	useOr := logic == types.LogicOr
	return func(q *bun.SelectQuery, or bool) *bun.SelectQuery {
		sep := " AND "
		if or {
			sep = " OR "
		}
		return q.WhereGroup(sep, func(q *bun.SelectQuery) *bun.SelectQuery {
			for i, m := range members {
				q = m(q, i > 0 && useOr)
			}
			return q
		})
	}, nil
}

func (c *compiler) leaf(f types.Filter) (clause, error) {
	field, err := c.field(f.Field)
	if err != nil {
		return nil, err
	}
	op := strings.ToLower(f.Operator)
	fail := func(reason string) error {
		return &FilterError{Field: f.Field, Operator: f.Operator, Reason: reason}
	}

	var (
		expr string
		args []interface{}
	)
	col := bun.Ident(field.Name)
	switch op {
	case types.OpIsNull:
		expr, args = "?TableAlias.? IS NULL", []interface{}{col}
	case types.OpIsNotNull:
		expr, args = "?TableAlias.? IS NOT NULL", []interface{}{col}
	case types.OpEq, types.OpNeq, types.OpLt, types.OpLte, types.OpGt, types.OpGte:
		v, err := convert(field.IndirectType, f.Value)
		if err != nil {
			return nil, fail(err.Error())
		}
		expr, args = "?TableAlias.? "+comparators[op]+" ?", []interface{}{col, v}
	case types.OpStartsWith, types.OpEndsWith, types.OpContains, types.OpDoesNotContain:
		s, ok := f.Value.(string)
		if !ok {
			return nil, fail("value must be a string")
		}
		pattern, like := likePattern(op, s)
		expr, args = "?TableAlias.? "+like+" ? ESCAPE '!'", []interface{}{col, pattern}
	case types.OpIn:
		values, err := convertSlice(field.IndirectType, f.Value)
		if err != nil {
			return nil, fail(err.Error())
		}
		expr, args = "?TableAlias.? IN (?)", []interface{}{col, bun.In(values)}
	case "":
		return nil, fail("operator is required")
	default:
		return nil, fail("unknown operator")
	}

	return func(q *bun.SelectQuery, or bool) *bun.SelectQuery {
		if or {
			return q.WhereOr(expr, args...)
		}
		return q.Where(expr, args...)
	}, nil
}

func (c *compiler) sort(sorts []types.Sort) (Modifier, error) {
	exprs := make([]string, 0, len(sorts))
	cols := make([]interface{}, 0, len(sorts))
	for _, s := range sorts {
		field, err := c.field(s.Field)
		if err != nil {
			return nil, err
		}
		switch strings.ToLower(s.Dir) {
		case "", types.SortAsc:
			exprs = append(exprs, "?TableAlias.? ASC")
		case types.SortDesc:
			exprs = append(exprs, "?TableAlias.? DESC")
		default:
			return nil, &FilterError{Field: s.Field, Reason: fmt.Sprintf("unknown sort direction %q", s.Dir)}
		}
		cols = append(cols, bun.Ident(field.Name))
	}
	expr := strings.Join(exprs, ", ")
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.OrderExpr(expr, cols...)
	}, nil
}

var comparators = map[string]string{
	types.OpEq:  "=",
	types.OpNeq: "<>",
	types.OpLt:  "<",
	types.OpLte: "<=",
	types.OpGt:  ">",
	types.OpGte: ">=",
}

// likeEscaper escapes LIKE wildcards with '!', which no dialect treats
// specially inside a string literal.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func likePattern(op, s string) (string, string) {
	s = likeEscaper.Replace(s)
	switch op {
	case types.OpStartsWith:
		return s + "%", "LIKE"
	case types.OpEndsWith:
		return "%" + s, "LIKE"
	case types.OpDoesNotContain:
		return "%" + s + "%", "NOT LIKE"
	default:
		return "%" + s + "%", "LIKE"
	}
}

var timeType = reflect.TypeOf(time.Time{})

// convert coerces a decoded JSON/YAML value to the Go type of the column.
func convert(t reflect.Type, v any) (any, error) {
	if v == nil {
		return nil, errors.New("value is required, use isnull for NULL checks")
	}
	if n, ok := v.(json.Number); ok {
		v = n.String()
	}
	if t == timeType {
		switch x := v.(type) {
		case time.Time:
			return x, nil
		case string:
			ts, err := time.Parse(time.RFC3339, x)
			if err != nil {
				return nil, fmt.Errorf("value %q is not an RFC3339 time", x)
			}
			return ts, nil
		}
		return nil, fmt.Errorf("value %v is not a time", v)
	}

	rv := reflect.ValueOf(v)
	switch t.Kind() {
	case reflect.String:
		if rv.Kind() == reflect.String {
			return rv.String(), nil
		}
		return fmt.Sprint(v), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		switch {
		case rv.CanInt():
			return rv.Int(), nil
		case rv.CanUint():
			return int64(rv.Uint()), nil
		case rv.CanFloat():
			f := rv.Float()
			if f != float64(int64(f)) {
				return nil, fmt.Errorf("value %v is not an integer", v)
			}
			return int64(f), nil
		case rv.Kind() == reflect.String:
			i, err := strconv.ParseInt(rv.String(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not an integer", rv.String())
			}
			return i, nil
		}
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		switch {
		case rv.CanUint():
			return rv.Uint(), nil
		case rv.CanInt() && rv.Int() >= 0:
			return uint64(rv.Int()), nil
		case rv.CanFloat() && rv.Float() >= 0 && rv.Float() == float64(uint64(rv.Float())):
			return uint64(rv.Float()), nil
		case rv.Kind() == reflect.String:
			u, err := strconv.ParseUint(rv.String(), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not an unsigned integer", rv.String())
			}
			return u, nil
		}
	case reflect.Float32, reflect.Float64:
		switch {
		case rv.CanFloat():
			return rv.Float(), nil
		case rv.CanInt():
			return float64(rv.Int()), nil
		case rv.CanUint():
			return float64(rv.Uint()), nil
		case rv.Kind() == reflect.String:
			f, err := strconv.ParseFloat(rv.String(), 64)
			if err != nil {
				return nil, fmt.Errorf("value %q is not a number", rv.String())
			}
			return f, nil
		}
	case reflect.Bool:
		switch {
		case rv.Kind() == reflect.Bool:
			return rv.Bool(), nil
		case rv.Kind() == reflect.String:
			b, err := strconv.ParseBool(rv.String())
			if err != nil {
				return nil, fmt.Errorf("value %q is not a boolean", rv.String())
			}
			return b, nil
		}
	default:
		return v, nil
	}
	return nil, fmt.Errorf("value %v cannot be used for a %s column", v, t.Kind())
}

func convertSlice(t reflect.Type, v any) ([]any, error) {
	rv := reflect.ValueOf(v)
	if v == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
		return nil, errors.New("value must be a list")
	}
	if rv.Len() == 0 {
		return nil, errors.New("value list is empty")
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, err := convert(t, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
