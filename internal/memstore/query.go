package memstore

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"eagerload/internal/eager"
	"eagerload/pkg/utils/coerce"
)

var ErrUnsupported = errors.New("memstore: unsupported query feature")

type predicate func(row eager.Record) (bool, error)

type orderKey struct {
	column string
	desc   bool
}

type query struct {
	store   *Store
	table   string
	preds   []predicate
	columns []string
	order   []orderKey
	limit   int
	err     error
}

func (q *query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

func (q *query) WhereIn(column string, values []interface{}) {
	col := Unquote(column)
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		if k, ok := coerce.Key(v); ok {
			set[k] = struct{}{}
		}
	}
	q.preds = append(q.preds, func(row eager.Record) (bool, error) {
		k, ok := coerce.Key(row[col])
		if !ok {
			return false, nil
		}
		_, hit := set[k]
		return hit, nil
	})
}

func (q *query) WhereCond(column, op string, value interface{}) {
	col := Unquote(column)
	op = strings.ToUpper(strings.TrimSpace(op))

	switch op {
	case "IN", "NOT IN":
		q.WhereIn(col, toSlice(value))
		if op == "NOT IN" {
			in := q.preds[len(q.preds)-1]
			q.preds[len(q.preds)-1] = func(row eager.Record) (bool, error) {
				ok, err := in(row)
				return !ok, err
			}
		}
		return
	case "NULL", "NOT NULL":
		want := op == "NULL"
		q.preds = append(q.preds, func(row eager.Record) (bool, error) {
			_, ok := coerce.Key(row[col])
			return ok != want, nil
		})
		return
	case "", "=", "==", "!=", "<>", "<", "<=", ">", ">=":
	default:
		q.fail(fmt.Errorf("%w: operator %q", ErrUnsupported, op))
		return
	}

	q.preds = append(q.preds, func(row eager.Record) (bool, error) {
		v, present := row[col]
		if !present || v == nil {
			return false, nil
		}
		c := compare(v, value)
		switch op {
		case "", "=", "==":
			return c == 0, nil
		case "!=", "<>":
			return c != 0, nil
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		}
		return c >= 0, nil
	})
}

// Where compiles a SQL-like predicate into an expr program. Placeholders
// become args[i]; AND, OR, NOT, "=", "<>" and IS [NOT] NULL are
// translated, everything else is expr syntax.
func (q *query) Where(pred string, args ...interface{}) {
	if strings.TrimSpace(pred) == "" {
		return
	}
	code := translate(pred)
	program, err := expr.Compile(code, expr.AllowUndefinedVariables())
	if err != nil {
		q.fail(fmt.Errorf("memstore: predicate %q: %w", pred, err))
		return
	}
	q.preds = append(q.preds, func(row eager.Record) (bool, error) {
		return run(program, row, args)
	})
}

func run(program *vm.Program, row eager.Record, args []interface{}) (bool, error) {
	env := make(map[string]interface{}, len(row)+1)
	for k, v := range row {
		env[k] = v
	}
	env["args"] = args
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("memstore: predicate: %w", err)
	}
	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("memstore: predicate returned %T, not bool", out)
	}
	return b, nil
}

func (q *query) Join(kind, table, left, op, right string) {
	q.fail(fmt.Errorf("%w: join %s", ErrUnsupported, table))
}

func (q *query) Columns(cols ...string) {
	for _, c := range cols {
		c = strings.TrimSpace(c)
		if c == "*" || strings.HasSuffix(c, ".*") {
			q.columns = append(q.columns, "*")
			continue
		}
		if strings.ContainsAny(c, " ()") {
			q.fail(fmt.Errorf("%w: column expression %q", ErrUnsupported, c))
			continue
		}
		q.columns = append(q.columns, Unquote(c))
	}
}

func (q *query) OrderBy(spec string) {
	for _, part := range strings.Split(spec, ",") {
		fields := strings.Fields(part)
		if len(fields) == 0 {
			continue
		}
		k := orderKey{column: Unquote(fields[0])}
		if len(fields) > 1 {
			switch strings.ToUpper(fields[1]) {
			case "DESC":
				k.desc = true
			case "ASC":
			default:
				q.fail(fmt.Errorf("%w: order by %q", ErrUnsupported, part))
			}
		}
		q.order = append(q.order, k)
	}
}

func (q *query) Limit(n int) {
	q.limit = n
}

func (q *query) Fetch(ctx context.Context) ([]eager.Entity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if q.err != nil {
		return nil, q.err
	}

	var matched []eager.Record
	for _, row := range q.store.rows(q.table) {
		keep := true
		for _, p := range q.preds {
			ok, err := p(row)
			if err != nil {
				return nil, err
			}
			if !ok {
				keep = false
				break
			}
		}
		if keep {
			matched = append(matched, row)
		}
	}

	if len(q.order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			for _, k := range q.order {
				c := compare(matched[i][k.column], matched[j][k.column])
				if c == 0 {
					continue
				}
				if k.desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.limit > 0 && len(matched) > q.limit {
		matched = matched[:q.limit]
	}

	out := make([]eager.Entity, len(matched))
	for i, row := range matched {
		out[i] = q.project(row)
	}
	q.store.record(Statement{Table: q.table, Conditions: len(q.preds), Rows: len(out)})
	return out, nil
}

func (q *query) project(row eager.Record) eager.Record {
	if len(q.columns) == 0 {
		return copyRecord(row)
	}
	out := make(eager.Record, len(q.columns))
	for _, c := range q.columns {
		if c == "*" {
			for k, v := range row {
				out[k] = v
			}
			continue
		}
		if v, ok := row[c]; ok {
			out[c] = v
		}
	}
	return out
}

var (
	isNotNull = regexp.MustCompile(`(?i)\bIS\s+NOT\s+NULL\b`)
	isNull    = regexp.MustCompile(`(?i)\bIS\s+NULL\b`)
)

func translate(pred string) string {
	pred = isNotNull.ReplaceAllString(pred, "!= nil")
	pred = isNull.ReplaceAllString(pred, "== nil")

	var sb strings.Builder
	rs := []rune(pred)
	arg := 0
	for i := 0; i < len(rs); i++ {
		r := rs[i]
		switch {
		case r == '\'':
			j := i + 1
			for j < len(rs) && rs[j] != '\'' {
				j++
			}
			sb.WriteString(string(rs[i:min(j+1, len(rs))]))
			i = j
		case r == '"' || r == '`':
			j := i + 1
			for j < len(rs) && rs[j] != r {
				j++
			}
			sb.WriteString(string(rs[i+1 : min(j, len(rs))]))
			i = j
		case r == '?':
			fmt.Fprintf(&sb, "args[%d]", arg)
			arg++
		case r == '<' && i+1 < len(rs) && rs[i+1] == '>':
			sb.WriteString("!=")
			i++
		case r == '=':
			prev := rune(0)
			if i > 0 {
				prev = rs[i-1]
			}
			next := rune(0)
			if i+1 < len(rs) {
				next = rs[i+1]
			}
			if strings.ContainsRune("!<>=", prev) || next == '=' {
				sb.WriteRune(r)
			} else {
				sb.WriteString("==")
			}
		case r == '_' || isLetter(r):
			j := i
			for j < len(rs) && (rs[j] == '_' || rs[j] == '.' || isLetter(rs[j]) || (rs[j] >= '0' && rs[j] <= '9')) {
				j++
			}
			sb.WriteString(word(string(rs[i:j])))
			i = j - 1
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func word(w string) string {
	switch strings.ToUpper(w) {
	case "AND":
		return "and"
	case "OR":
		return "or"
	case "NOT":
		return "not"
	case "NULL":
		return "nil"
	case "TRUE", "FALSE":
		return strings.ToLower(w)
	}
	if i := strings.LastIndexByte(w, '.'); i >= 0 {
		return w[i+1:]
	}
	return w
}

func isLetter(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}

func toSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() {
		return nil
	}
	if rv.Kind() != reflect.Slice {
		return []interface{}{v}
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
