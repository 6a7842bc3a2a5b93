package data

import (
	"path/filepath"
	"testing"

	"github.com/go-test/deep"
)

func TestSaveAndLoadPlayer(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer func() { _ = Shutdown(db) }()

	if record, err := LoadPlayer(db, "alice", 0); err != nil || record != nil {
		t.Fatalf("missing slot should load as nil, got %v / %v", record, err)
	}

	blob := []byte(`{"Name":"Sano"}`)
	if err := SavePlayer(db, "alice", 0, "Sano", blob); err != nil {
		t.Fatalf("SavePlayer() error: %v", err)
	}

	record, err := LoadPlayer(db, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if record == nil || record.Name != "Sano" {
		t.Fatalf("loaded record mismatch: %+v", record)
	}
	if diff := deep.Equal(record.Contents, blob); len(diff) > 0 {
		t.Fatal(diff)
	}

	// Saving again overwrites in place.
	if err := SavePlayer(db, "alice", 0, "Sano", []byte(`{"Name":"Sano","Level":3}`)); err != nil {
		t.Fatal(err)
	}
	updated, err := LoadPlayer(db, "alice", 0)
	if err != nil {
		t.Fatal(err)
	}
	if updated.ID != record.ID {
		t.Fatal("update should not create a second row")
	}

	if err := DeletePlayer(db, "alice", 0); err != nil {
		t.Fatal(err)
	}
	if record, _ := LoadPlayer(db, "alice", 0); record != nil {
		t.Fatal("deleted slot should load as nil")
	}
}

func TestOpenRejectsUnknownEngine(t *testing.T) {
	if _, err := Open("oracle", "dsn", false); err == nil {
		t.Fatal("unknown engine should fail")
	}
}
