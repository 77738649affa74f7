// Package memstore is an in-memory eager.Executor. Tables are slices of
// records; every Fetch is recorded so callers can see how many batch
// queries a load issued. Raw predicates are evaluated with expr.
package memstore

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"eagerload/internal/eager"
	"eagerload/pkg/fastjson"
	"eagerload/pkg/utils/coerce"
)

// Statement is one executed query.
type Statement struct {
	Table      string
	Conditions int
	Rows       int
}

type Store struct {
	mu         sync.Mutex
	tables     map[string][]eager.Record
	statements []Statement
}

func New() *Store {
	return &Store{tables: make(map[string][]eager.Record)}
}

// Insert appends rows to table, creating it when needed.
func (s *Store) Insert(table string, rows ...eager.Record) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], copyRecord(r))
	}
	return s
}

// LoadJSON reads fixtures shaped as {"table": [{...}, ...], ...}.
func (s *Store) LoadJSON(r io.Reader) error {
	var raw map[string][]map[string]interface{}
	if err := fastjson.NewDecoder(r).Decode(&raw); err != nil {
		return fmt.Errorf("memstore: decode fixtures: %w", err)
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rows := make([]eager.Record, len(raw[name]))
		for i, row := range raw[name] {
			rows[i] = eager.Record(row)
		}
		s.Insert(name, rows...)
	}
	return nil
}

func (s *Store) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return s.LoadJSON(f)
}

// Tables lists the table names, sorted.
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.tables))
	for name := range s.tables {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (s *Store) Statements() []Statement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Statement(nil), s.statements...)
}

func (s *Store) QueryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.statements)
}

// Count returns how many queries hit table.
func (s *Store) Count(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, st := range s.statements {
		if st.Table == table {
			n++
		}
	}
	return n
}

// ResetStats forgets the recorded statements.
func (s *Store) ResetStats() {
	s.mu.Lock()
	s.statements = nil
	s.mu.Unlock()
}

func (s *Store) QuoteIdentifier(name string) string {
	return "\"" + strings.ReplaceAll(name, "\"", "\"\"") + "\""
}

func (s *Store) Query(table string) eager.QueryBuilder {
	return &query{store: s, table: table}
}

func (s *Store) rows(table string) []eager.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tables[table]
}

func (s *Store) record(st Statement) {
	s.mu.Lock()
	s.statements = append(s.statements, st)
	s.mu.Unlock()
}

func copyRecord(r eager.Record) eager.Record {
	out := make(eager.Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Unquote strips identifier quotes and a table qualifier from name.
func Unquote(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	if len(name) >= 2 {
		switch {
		case name[0] == '"' && name[len(name)-1] == '"',
			name[0] == '`' && name[len(name)-1] == '`',
			name[0] == '[' && name[len(name)-1] == ']':
			name = name[1 : len(name)-1]
		}
	}
	return name
}

func compare(a, b interface{}) int {
	fa, errA := coerce.ToFloat64(a)
	fb, errB := coerce.ToFloat64(b)
	if errA == nil && errB == nil && a != nil && b != nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(coerce.ToString(a), coerce.ToString(b))
}
