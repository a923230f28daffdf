package persist

import (
	"os"
	"path/filepath"
	"testing"

	bolt "go.etcd.io/bbolt"

	"github.com/MobiusL/ecoinpool/build"
)

// testDBFilename returns a clean database path for one test.
func testDBFilename(t *testing.T) string {
	t.Helper()
	dir := build.TempDir("persist", t.Name())
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		t.Fatal(err)
	}
	return filepath.Join(dir, "test.db")
}

// TestOpenDatabase opens, writes, reopens, and checks metadata handling of a
// bolt database.
func TestOpenDatabase(t *testing.T) {
	md := Metadata{Header: "Test DB", Version: "0.4.0"}
	filename := testDBFilename(t)

	db, err := OpenDatabase(md, filename)
	if err != nil {
		t.Fatal(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte("Things"))
		if err != nil {
			return err
		}
		return b.Put([]byte("key"), []byte("value"))
	})
	if err != nil {
		t.Fatal(err)
	}
	err = db.Close()
	if err != nil {
		t.Fatal(err)
	}

	// Reopening with the same metadata succeeds and the data is intact.
	db, err = OpenDatabase(md, filename)
	if err != nil {
		t.Fatal(err)
	}
	err = db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte("Things")).Get([]byte("key"))
		if string(v) != "value" {
			t.Error("stored value did not survive a reopen:", string(v))
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	err = db.Close()
	if err != nil {
		t.Fatal(err)
	}

	// Reopening with mismatched metadata fails.
	_, err = OpenDatabase(Metadata{Header: "Wrong Header", Version: "0.4.0"}, filename)
	if err != ErrBadHeader {
		t.Fatal("expected ErrBadHeader, got", err)
	}
	_, err = OpenDatabase(Metadata{Header: "Test DB", Version: "9999"}, filename)
	if err != ErrBadVersion {
		t.Fatal("expected ErrBadVersion, got", err)
	}
}
