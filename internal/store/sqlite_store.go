// Package store provides the document store behind cellan using SQLite.
//
// Each collection is a table holding its key columns and the document as a
// zstd-compressed JSON blob. The INTEGER primary key of every table is a
// surrogate key and never leaves this package.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/cellcomm/cellan/internal/model"
)

// Tables holds the table name of each collection.
type Tables struct {
	Encodings  string
	Iterations string
	Cells      string
	Genes      string
}

// DefaultTables returns the collection names used by the original data set.
func DefaultTables() Tables {
	return Tables{
		Encodings:  "encs",
		Iterations: "encits",
		Cells:      "cells",
		Genes:      "genes",
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (t Tables) validate() error {
	for _, name := range []string{t.Encodings, t.Iterations, t.Cells, t.Genes} {
		if !identRe.MatchString(name) {
			return fmt.Errorf("invalid table name %q", name)
		}
	}
	return nil
}

// Store provides document lookups and bulk writes.
type Store struct {
	db     *sql.DB
	tables Tables
	codec  *codec
	mu     sync.Mutex
}

// Open opens the store at url and creates missing tables and indexes.
// url is either a plain file path or has the form sqlite://<path>.
func Open(url string, tables Tables) (*Store, error) {
	if err := tables.validate(); err != nil {
		return nil, err
	}

	dbPath := strings.TrimPrefix(url, "sqlite://")
	if dbPath == "" {
		return nil, fmt.Errorf("empty store url")
	}

	// Ensure directory exists
	memory := dbPath == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	if memory {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	c, err := newCodec()
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, tables: tables, codec: c}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.codec.close()
	return s.db.Close()
}

func (s *Store) migrate() error {
	t := s.tables
	schema := fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %[1]s (
		id TEXT PRIMARY KEY,
		date TEXT,
		doc BLOB NOT NULL
	);

	CREATE TABLE IF NOT EXISTS %[2]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		encoding_id TEXT NOT NULL,
		iteration_index INTEGER NOT NULL,
		doc BLOB NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_%[2]s_encoding_iteration ON %[2]s(encoding_id, iteration_index);

	CREATE TABLE IF NOT EXISTS %[3]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		cell_id INTEGER NOT NULL,
		doc BLOB NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_%[3]s_source_cell ON %[3]s(source_id, cell_id);

	CREATE TABLE IF NOT EXISTS %[4]s (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id TEXT NOT NULL,
		ensembl_id TEXT NOT NULL,
		mgi_symbol TEXT NOT NULL DEFAULT '',
		doc BLOB NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_%[4]s_source_ensembl ON %[4]s(source_id, ensembl_id);
	CREATE INDEX IF NOT EXISTS idx_%[4]s_source_symbol ON %[4]s(source_id, mgi_symbol);
	`, t.Encodings, t.Iterations, t.Cells, t.Genes)
	_, err := s.db.Exec(schema)
	return err
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetEncoding retrieves an encoding by id. It returns nil, nil when absent.
func (s *Store) GetEncoding(ctx context.Context, encodingID string) (*model.Encoding, error) {
	var enc model.Encoding
	found, err := s.getDoc(ctx, &enc,
		fmt.Sprintf(`SELECT doc FROM %s WHERE id = ?`, s.tables.Encodings), encodingID)
	if !found || err != nil {
		return nil, err
	}
	return &enc, nil
}

// ListEncodings returns all encodings ordered by id.
func (s *Store) ListEncodings(ctx context.Context) ([]*model.Encoding, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT doc FROM %s ORDER BY id`, s.tables.Encodings))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var encodings []*model.Encoding
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		var enc model.Encoding
		if err := s.codec.decode(blob, &enc); err != nil {
			return nil, err
		}
		encodings = append(encodings, &enc)
	}
	return encodings, rows.Err()
}

// GetIteration retrieves the iteration of an encoding. It returns nil, nil when absent.
func (s *Store) GetIteration(ctx context.Context, encodingID string, iteration int) (*model.Iteration, error) {
	var it model.Iteration
	found, err := s.getDoc(ctx, &it,
		fmt.Sprintf(`SELECT doc FROM %s WHERE encoding_id = ? AND iteration_index = ?`, s.tables.Iterations),
		encodingID, iteration)
	if !found || err != nil {
		return nil, err
	}
	return &it, nil
}

// ListIterationIndexes returns the stored iteration indexes of an encoding in ascending order.
func (s *Store) ListIterationIndexes(ctx context.Context, encodingID string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT iteration_index FROM %s WHERE encoding_id = ? ORDER BY iteration_index`, s.tables.Iterations),
		encodingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var indexes []int
	for rows.Next() {
		var it int
		if err := rows.Scan(&it); err != nil {
			return nil, err
		}
		indexes = append(indexes, it)
	}
	return indexes, rows.Err()
}

// GetCell retrieves a cell of a source. It returns nil, nil when absent.
func (s *Store) GetCell(ctx context.Context, sourceID string, cellID int64) (*model.Cell, error) {
	var cell model.Cell
	found, err := s.getDoc(ctx, &cell,
		fmt.Sprintf(`SELECT doc FROM %s WHERE source_id = ? AND cell_id = ?`, s.tables.Cells),
		sourceID, cellID)
	if !found || err != nil {
		return nil, err
	}
	return &cell, nil
}

// GetGene retrieves a gene of a source by ensembl id. It returns nil, nil when absent.
func (s *Store) GetGene(ctx context.Context, sourceID, ensemblID string) (*model.Gene, error) {
	var gene model.Gene
	found, err := s.getDoc(ctx, &gene,
		fmt.Sprintf(`SELECT doc FROM %s WHERE source_id = ? AND ensembl_id = ?`, s.tables.Genes),
		sourceID, ensemblID)
	if !found || err != nil {
		return nil, err
	}
	return &gene, nil
}

// GetGeneBySymbol retrieves a gene of a source by MGI symbol. Symbols are not
// unique; the gene with the lowest ensembl id wins. It returns nil, nil when absent.
func (s *Store) GetGeneBySymbol(ctx context.Context, sourceID, symbol string) (*model.Gene, error) {
	var gene model.Gene
	found, err := s.getDoc(ctx, &gene,
		fmt.Sprintf(`SELECT doc FROM %s WHERE source_id = ? AND mgi_symbol = ? ORDER BY ensembl_id LIMIT 1`, s.tables.Genes),
		sourceID, symbol)
	if !found || err != nil {
		return nil, err
	}
	return &gene, nil
}

func (s *Store) getDoc(ctx context.Context, doc model.Document, query string, args ...interface{}) (bool, error) {
	var blob []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&blob)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.codec.decode(blob, doc); err != nil {
		return false, err
	}
	return true, nil
}

// PutEncoding inserts or replaces an encoding.
func (s *Store) PutEncoding(ctx context.Context, enc *model.Encoding) error {
	if err := enc.Validate(); err != nil {
		return err
	}
	blob, err := s.codec.encode(enc)
	if err != nil {
		return err
	}

	var date *string
	if enc.Date != nil {
		d := enc.Date.UTC().Format(time.RFC3339)
		date = &d
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (id, date, doc) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET date = excluded.date, doc = excluded.doc
	`, s.tables.Encodings), enc.ID, date, blob)
	return err
}

// PutIteration inserts or replaces an iteration.
func (s *Store) PutIteration(ctx context.Context, it *model.Iteration) error {
	if err := it.Validate(); err != nil {
		return err
	}
	blob, err := s.codec.encode(it)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (encoding_id, iteration_index, doc) VALUES (?, ?, ?)
		ON CONFLICT(encoding_id, iteration_index) DO UPDATE SET doc = excluded.doc
	`, s.tables.Iterations), it.EncodingID, it.IterationIndex, blob)
	return err
}

// PutCells inserts or replaces cells in a batch transaction.
func (s *Store) PutCells(ctx context.Context, cells []*model.Cell) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (source_id, cell_id, doc) VALUES (?, ?, ?)
		ON CONFLICT(source_id, cell_id) DO UPDATE SET doc = excluded.doc
	`, s.tables.Cells)

	return s.batch(ctx, query, len(cells), func(i int) ([]interface{}, error) {
		c := cells[i]
		if err := c.Validate(); err != nil {
			return nil, err
		}
		blob, err := s.codec.encode(c)
		if err != nil {
			return nil, err
		}
		return []interface{}{c.SourceID, c.CellID, blob}, nil
	})
}

// PutGenes inserts or replaces genes in a batch transaction.
func (s *Store) PutGenes(ctx context.Context, genes []*model.Gene) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (source_id, ensembl_id, mgi_symbol, doc) VALUES (?, ?, ?, ?)
		ON CONFLICT(source_id, ensembl_id) DO UPDATE SET mgi_symbol = excluded.mgi_symbol, doc = excluded.doc
	`, s.tables.Genes)

	return s.batch(ctx, query, len(genes), func(i int) ([]interface{}, error) {
		g := genes[i]
		if err := g.Validate(); err != nil {
			return nil, err
		}
		blob, err := s.codec.encode(g)
		if err != nil {
			return nil, err
		}
		return []interface{}{g.SourceID, g.EnsemblID, g.MGISymbol, blob}, nil
	})
}

func (s *Store) batch(ctx context.Context, query string, n int, args func(i int) ([]interface{}, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := 0; i < n; i++ {
		a, err := args(i)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// IndexColumns returns the column lists of every index on table, keyed by index name.
func (s *Store) IndexColumns(ctx context.Context, table string) (map[string][]string, error) {
	if !identRe.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT name FROM pragma_index_list('%s')`, table))
	if err != nil {
		return nil, err
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, err
		}
		names = append(names, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	indexes := make(map[string][]string, len(names))
	for _, name := range names {
		cols, err := s.indexInfo(ctx, name)
		if err != nil {
			return nil, err
		}
		indexes[name] = cols
	}
	return indexes, nil
}

func (s *Store) indexInfo(ctx context.Context, index string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, index)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// Tables returns the configured table names.
func (s *Store) Tables() Tables {
	return s.tables
}
