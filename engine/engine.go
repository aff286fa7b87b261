// Package engine is a small in-memory query backend. It holds named tables
// of string rows and hands out per-connection sessions that run a minimal
// query language over them:
//
//	SELECT * FROM <table> [LIMIT <n>]
//	SHOW TABLES
//
// Rows travel as tab-separated strings, matching how the service serializes
// result rows on the wire.
package engine

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Table is a named collection of rows with a fixed column list.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Engine owns the table catalog. It is safe for concurrent sessions; the
// catalog is read-mostly and guarded by a RWMutex.
type Engine struct {
	mu     sync.RWMutex
	tables map[string]*Table
	logger *zap.Logger
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New creates an empty engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		tables: make(map[string]*Table),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AddTable installs or replaces a table. Table names are case-insensitive.
func (e *Engine) AddTable(t *Table) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tables[strings.ToLower(t.Name)] = t
}

// Tables returns the catalog's table names, unordered.
func (e *Engine) Tables() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.tables))
	for _, t := range e.tables {
		names = append(names, t.Name)
	}
	return names
}

func (e *Engine) lookup(name string) (*Table, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.tables[strings.ToLower(name)]
	return t, ok
}

// LoadFile reads a tab-separated file into a table named after the file's
// base name. The first line is the header.
func (e *Engine) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "open table file")
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	t := &Table{Name: name}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if t.Columns == nil {
			t.Columns = fields
			continue
		}
		if len(fields) != len(t.Columns) {
			return errors.Errorf("table %s: row has %d fields, header has %d",
				name, len(fields), len(t.Columns))
		}
		t.Rows = append(t.Rows, fields)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "read table file")
	}
	if t.Columns == nil {
		return errors.Errorf("table file %s is empty", path)
	}

	e.AddTable(t)
	e.logger.Info("table loaded",
		zap.String("table", name), zap.Int("rows", len(t.Rows)))
	return nil
}
