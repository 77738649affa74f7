package sqlstore

import (
	"fmt"
	"reflect"
	"strings"

	"eagerload/pkg/dbmanager"
)

type WhereCond struct {
	Column string
	Op     string
	Value  interface{}

	// Raw is a free predicate with ? placeholders bound to Args.
	Raw  string
	Args []interface{}
}

type JoinDef struct {
	Type  string // "INNER", "LEFT", "RIGHT"
	Table string
	On    []string // ["t1.col", "=", "t2.col"]
}

// QueryState accumulates one SELECT. Every condition in Where is ANDed.
type QueryState struct {
	Table   string
	Columns []string
	Joins   []JoinDef
	Where   []WhereCond
	Limit   int
	Offset  int
	OrderBy string
	Dialect dbmanager.Dialect
}

func (qs *QueryState) Quote(name string) string {
	if name == "*" || dbmanager.IsQuoted(name) {
		return name
	}
	if strings.Contains(name, " ") || strings.Contains(name, "(") {
		return name
	}
	if strings.Contains(name, ".") {
		parts := strings.Split(name, ".")
		for i, p := range parts {
			if p == "*" || dbmanager.IsQuoted(p) {
				continue
			}
			parts[i] = qs.Dialect.QuoteIdentifier(p)
		}
		return strings.Join(parts, ".")
	}
	return qs.Dialect.QuoteIdentifier(name)
}

// QuoteTable always quotes, part by part for schema-qualified names. A
// table name is never an expression.
func (qs *QueryState) QuoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if dbmanager.IsQuoted(p) && !strings.ContainsAny(p[1:len(p)-1], "\"`[]") {
			continue
		}
		parts[i] = qs.Dialect.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (qs *QueryState) BuildSQL() (string, []interface{}) {
	var sb strings.Builder
	var args []interface{}

	// 1. SELECT
	sb.WriteString("SELECT ")
	if len(qs.Columns) > 0 {
		quotedCols := make([]string, len(qs.Columns))
		for i, c := range qs.Columns {
			quotedCols[i] = qs.Quote(c)
		}
		sb.WriteString(strings.Join(quotedCols, ", "))
	} else {
		sb.WriteString("*")
	}

	// 2. FROM
	sb.WriteString(" FROM ")
	sb.WriteString(qs.QuoteTable(qs.Table))

	// 3. JOINS
	for _, join := range qs.Joins {
		if len(join.On) != 3 {
			continue
		}
		sb.WriteString(fmt.Sprintf(" %s JOIN %s ON %s %s %s",
			join.Type,
			qs.QuoteTable(join.Table),
			qs.Quote(join.On[0]),
			join.On[1],
			qs.Quote(join.On[2]),
		))
	}

	// 4. WHERE
	if len(qs.Where) > 0 {
		sb.WriteString(" WHERE ")
		for i, cond := range qs.Where {
			if i > 0 {
				sb.WriteString(" AND ")
			}
			if cond.Raw != "" {
				sb.WriteString("(" + qs.bind(cond.Raw, cond.Args, &args) + ")")
				continue
			}

			op := strings.ToUpper(strings.TrimSpace(cond.Op))
			switch op {
			case "IN", "NOT IN":
				slice := toSlice(cond.Value)
				if len(slice) == 0 {
					// empty IN matches nothing, empty NOT IN matches everything
					if op == "IN" {
						sb.WriteString("1 = 0")
					} else {
						sb.WriteString("1 = 1")
					}
					continue
				}
				placeholders := make([]string, len(slice))
				for j := range slice {
					placeholders[j] = qs.Dialect.Placeholder(len(args) + 1)
					args = append(args, slice[j])
				}
				sb.WriteString(fmt.Sprintf("%s %s (%s)",
					qs.Quote(cond.Column),
					op,
					strings.Join(placeholders, ", "),
				))
			case "NULL":
				sb.WriteString(fmt.Sprintf("%s IS NULL", qs.Quote(cond.Column)))
			case "NOT NULL":
				sb.WriteString(fmt.Sprintf("%s IS NOT NULL", qs.Quote(cond.Column)))
			default:
				if op == "" {
					op = "="
				}
				sb.WriteString(fmt.Sprintf("%s %s %s",
					qs.Quote(cond.Column),
					op,
					qs.Dialect.Placeholder(len(args)+1)))
				args = append(args, cond.Value)
			}
		}
	}

	// 5. ORDER BY
	if qs.OrderBy != "" {
		sb.WriteString(" ORDER BY " + qs.OrderBy)
	} else if qs.Dialect.Name() == "sqlserver" && (qs.Limit > 0 || qs.Offset > 0) {
		// OFFSET-FETCH is a syntax error without ORDER BY
		sb.WriteString(" ORDER BY (SELECT NULL)")
	}

	// 6. LIMIT / OFFSET
	sb.WriteString(qs.Dialect.Limit(qs.Limit, qs.Offset))

	return sb.String(), args
}

// bind rewrites the ? placeholders of a raw predicate into the dialect's
// own, appending the matching values to args. Question marks inside
// single-quoted literals are left alone.
func (qs *QueryState) bind(raw string, values []interface{}, args *[]interface{}) string {
	var sb strings.Builder
	inQuote := false
	next := 0
	for _, r := range raw {
		switch {
		case r == '\'':
			inQuote = !inQuote
			sb.WriteRune(r)
		case r == '?' && !inQuote && next < len(values):
			sb.WriteString(qs.Dialect.Placeholder(len(*args) + 1))
			*args = append(*args, values[next])
			next++
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func toSlice(v interface{}) []interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.([]interface{}); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
