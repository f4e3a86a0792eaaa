// Package recorddb persists host records whose fields hold attachment
// columns and their magic companions.
package recorddb

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicateRecord = errors.New("record already exists")
)

// Record is a row of the records table. It satisfies upload.Host.
type Record struct {
	ID        string
	Kind      string
	Revision  int
	CreatedAt string
	UpdatedAt string

	mu      sync.RWMutex
	columns []string
	fields  map[string]string
}

func NewRecord(kind string, columns []string) *Record {
	return &Record{
		ID:      uuid.NewString(),
		Kind:    kind,
		columns: slices.Clone(columns),
		fields:  map[string]string{},
	}
}

// Get returns id and revision from the row itself; everything else comes
// from the stored fields.
func (r *Record) Get(field string) (string, bool) {
	switch field {
	case "id":
		return r.ID, r.ID != ""
	case "revision":
		return fmt.Sprint(r.Revision), true
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.fields[field]
	return v, ok
}

func (r *Record) Set(field, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fields[field] = value
}

func (r *Record) ColumnNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.columns)
}

// Fields returns a copy of the stored fields.
func (r *Record) Fields() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetMaxIdleConns(5)
	db.SetMaxOpenConns(10)
	return db, nil
}

// Init creates the records table when migrations have not been run.
func Init(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, createTable)
	return err
}

const createTable = `
CREATE TABLE IF NOT EXISTS records (
	id CHAR(36) PRIMARY KEY,
	kind VARCHAR(64) NOT NULL,
	revision INT NOT NULL DEFAULT 0,
	column_names JSON NOT NULL,
	fields JSON NOT NULL,
	created_at VARCHAR(32) NOT NULL,
	updated_at VARCHAR(32) NOT NULL,
	INDEX records_kind (kind)
)`

func NowISO() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func Insert(ctx context.Context, db *sql.DB, r *Record) error {
	columns, fields, err := r.encode()
	if err != nil {
		return err
	}
	now := NowISO()
	_, err = db.ExecContext(ctx,
		`INSERT INTO records (id, kind, revision, column_names, fields, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Revision, columns, fields, now, now,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateRecord
		}
		return err
	}
	r.CreatedAt, r.UpdatedAt = now, now
	return nil
}

func Get(ctx context.Context, db *sql.DB, id string) (*Record, error) {
	var columns, fields string
	r := &Record{}
	row := db.QueryRowContext(ctx,
		`SELECT id, kind, revision, column_names, fields, created_at, updated_at
		 FROM records WHERE id = ?`, id,
	)
	if err := row.Scan(&r.ID, &r.Kind, &r.Revision, &columns, &fields, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.decode(columns, fields); err != nil {
		return nil, fmt.Errorf("decode record %s: %w", id, err)
	}
	return r, nil
}

// Update writes the fields and bumps the revision.
func Update(ctx context.Context, db *sql.DB, r *Record) error {
	_, fields, err := r.encode()
	if err != nil {
		return err
	}
	now := NowISO()
	res, err := db.ExecContext(ctx,
		`UPDATE records SET fields = ?, revision = revision + 1, updated_at = ? WHERE id = ?`,
		fields, now, r.ID,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	r.Revision++
	r.UpdatedAt = now
	return nil
}

func Delete(ctx context.Context, db *sql.DB, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Record) encode() (string, string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	columns, err := json.Marshal(r.columns)
	if err != nil {
		return "", "", err
	}
	fields, err := json.Marshal(r.fields)
	if err != nil {
		return "", "", err
	}
	return string(columns), string(fields), nil
}

func (r *Record) decode(columns, fields string) error {
	r.columns = nil
	r.fields = map[string]string{}
	if err := json.Unmarshal([]byte(columns), &r.columns); err != nil {
		return err
	}
	if strings.TrimSpace(fields) == "" || fields == "null" {
		return nil
	}
	return json.Unmarshal([]byte(fields), &r.fields)
}

func isDuplicateKeyError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// Store binds the record functions to one connection pool.
type Store struct {
	DB *sql.DB
}

func (s Store) Insert(ctx context.Context, r *Record) error { return Insert(ctx, s.DB, r) }

func (s Store) Get(ctx context.Context, id string) (*Record, error) { return Get(ctx, s.DB, id) }

func (s Store) Update(ctx context.Context, r *Record) error { return Update(ctx, s.DB, r) }

func (s Store) Delete(ctx context.Context, id string) error { return Delete(ctx, s.DB, id) }

func (s Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }
