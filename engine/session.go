package engine

import (
	"sort"
	"strconv"
	"strings"

	"queryrpc/queryservice"
)

// Error codes carried in QueryError alongside the SQL state. Compile-time
// errors cover parsing and name resolution; runtime errors cover cursor
// misuse and bad fetch arguments.
const (
	errCodeCompile = 1
	errCodeRuntime = 2
)

func compileError(sqlState, message string) *queryservice.QueryError {
	return &queryservice.QueryError{Message: message, ErrorCode: errCodeCompile, SQLState: sqlState}
}

func runtimeError(sqlState, message string) *queryservice.QueryError {
	return &queryservice.QueryError{Message: message, ErrorCode: errCodeRuntime, SQLState: sqlState}
}

// Session is one connection's query state: the current result set and a
// cursor into it. A session serves one request at a time and needs no
// internal locking.
type Session struct {
	engine  *Engine
	columns []string
	rows    [][]string
	cursor  int
	active  bool
}

// NewSession creates a session with no active result set. Fetching before
// the first successful Execute is a state error.
func (e *Engine) NewSession() *Session {
	return &Session{engine: e}
}

// Execute compiles and runs a query, replacing any previous result set and
// resetting the cursor. On error the previous result set is kept.
func (s *Session) Execute(query string) error {
	columns, rows, err := s.engine.run(query)
	if err != nil {
		return err
	}
	s.columns = columns
	s.rows = rows
	s.cursor = 0
	s.active = true
	return nil
}

// FetchOne returns the next row. Past the last row it reports SQL state
// 02000 (no data) rather than an empty string, so callers can tell an empty
// row from exhaustion.
func (s *Session) FetchOne() (string, error) {
	if !s.active {
		return "", runtimeError("HY010", "no query has been executed")
	}
	if s.cursor >= len(s.rows) {
		return "", runtimeError("02000", "no more rows")
	}
	row := s.rows[s.cursor]
	s.cursor++
	return strings.Join(row, "\t"), nil
}

// FetchN returns up to numRows rows, fewer near the end of the result set
// and an empty slice at exhaustion.
func (s *Session) FetchN(numRows int32) ([]string, error) {
	if !s.active {
		return nil, runtimeError("HY010", "no query has been executed")
	}
	if numRows < 0 {
		return nil, runtimeError("22003", "row count must not be negative")
	}
	// Size the batch from the data, never from the request: numRows is a
	// remote-controlled i32.
	n := len(s.rows) - s.cursor
	if int(numRows) < n {
		n = int(numRows)
	}
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, strings.Join(s.rows[s.cursor], "\t"))
		s.cursor++
	}
	return out, nil
}

// FetchAll returns every remaining row and leaves the cursor at the end.
func (s *Session) FetchAll() ([]string, error) {
	if !s.active {
		return nil, runtimeError("HY010", "no query has been executed")
	}
	out := make([]string, 0, len(s.rows)-s.cursor)
	for s.cursor < len(s.rows) {
		out = append(out, strings.Join(s.rows[s.cursor], "\t"))
		s.cursor++
	}
	return out, nil
}

// GetSchema returns the current result set's column names, tab-separated.
func (s *Session) GetSchema() (string, error) {
	if !s.active {
		return "", runtimeError("HY010", "no query has been executed")
	}
	return strings.Join(s.columns, "\t"), nil
}

// Close releases the session's result set.
func (s *Session) Close() error {
	s.columns = nil
	s.rows = nil
	s.active = false
	return nil
}

// run parses and evaluates one statement, returning the result set.
func (e *Engine) run(query string) ([]string, [][]string, error) {
	tokens := strings.Fields(query)
	if len(tokens) == 0 {
		return nil, nil, compileError("42000", "empty query")
	}

	switch strings.ToUpper(tokens[0]) {
	case "SHOW":
		if len(tokens) != 2 || !strings.EqualFold(tokens[1], "TABLES") {
			return nil, nil, compileError("42000", "syntax error: expected SHOW TABLES")
		}
		names := e.Tables()
		sort.Strings(names)
		rows := make([][]string, len(names))
		for i, name := range names {
			rows[i] = []string{name}
		}
		return []string{"tab_name"}, rows, nil

	case "SELECT":
		return e.runSelect(tokens)

	default:
		return nil, nil, compileError("42000", "syntax error: unsupported statement "+tokens[0])
	}
}

func (e *Engine) runSelect(tokens []string) ([]string, [][]string, error) {
	// SELECT * FROM <table> [LIMIT <n>]
	if len(tokens) < 4 || tokens[1] != "*" || !strings.EqualFold(tokens[2], "FROM") {
		return nil, nil, compileError("42000", "syntax error: expected SELECT * FROM <table>")
	}
	table, ok := e.lookup(tokens[3])
	if !ok {
		return nil, nil, compileError("42S02", "table not found: "+tokens[3])
	}

	rows := table.Rows
	switch {
	case len(tokens) == 4:
	case len(tokens) == 6 && strings.EqualFold(tokens[4], "LIMIT"):
		n, err := strconv.Atoi(tokens[5])
		if err != nil || n < 0 {
			return nil, nil, compileError("42000", "syntax error: bad LIMIT value "+tokens[5])
		}
		if n < len(rows) {
			rows = rows[:n]
		}
	default:
		return nil, nil, compileError("42000", "syntax error after table name")
	}

	// Copy so later fetches are immune to catalog swaps.
	out := make([][]string, len(rows))
	copy(out, rows)
	return table.Columns, out, nil
}
