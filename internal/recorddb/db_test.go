package recorddb

import (
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
)

func TestIsDuplicateKeyError(t *testing.T) {
	if isDuplicateKeyError(nil) {
		t.Fatalf("expected false for nil error")
	}
	if isDuplicateKeyError(errors.New("boom")) {
		t.Fatalf("expected false for non-mysql error")
	}
	if !isDuplicateKeyError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}) {
		t.Fatalf("expected true for duplicate key error")
	}
	if isDuplicateKeyError(&mysql.MySQLError{Number: 1234, Message: "Other"}) {
		t.Fatalf("expected false for non-duplicate mysql error")
	}
}

func TestRecordHost(t *testing.T) {
	r := NewRecord("user", []string{"avatar", "avatar_size"})
	if id, ok := r.Get("id"); !ok || len(id) != 36 {
		t.Fatalf("expected uuid id, got %q", id)
	}
	if _, ok := r.Get("avatar"); ok {
		t.Fatalf("expected unset field")
	}
	r.Set("avatar", "kerb.jpg")
	if v, _ := r.Get("avatar"); v != "kerb.jpg" {
		t.Fatalf("unexpected field value %q", v)
	}
	if rev, _ := r.Get("revision"); rev != "0" {
		t.Fatalf("unexpected revision %q", rev)
	}

	names := r.ColumnNames()
	names[0] = "mutated"
	if r.ColumnNames()[0] != "avatar" {
		t.Fatalf("ColumnNames must return a copy")
	}
}

func TestRecordCodec(t *testing.T) {
	r := NewRecord("user", []string{"avatar"})
	r.Set("avatar", "kerb.jpg")

	columns, fields, err := r.encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	loaded := &Record{ID: r.ID}
	if err := loaded.decode(columns, fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v, _ := loaded.Get("avatar"); v != "kerb.jpg" {
		t.Fatalf("unexpected decoded field %q", v)
	}
	if got := loaded.ColumnNames(); len(got) != 1 || got[0] != "avatar" {
		t.Fatalf("unexpected decoded columns %v", got)
	}

	if err := loaded.decode(`[]`, `null`); err != nil {
		t.Fatalf("decode null fields: %v", err)
	}
	if len(loaded.Fields()) != 0 {
		t.Fatalf("expected no fields")
	}
}
