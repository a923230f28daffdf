package persist

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/MobiusL/ecoinpool/build"
)

var testMeta = Metadata{
	Header:  "Test Struct",
	Version: "0.4.0",
}

type testStruct struct {
	One   string
	Two   uint64
	Three []byte
}

// TestSaveLoad round-trips an object through a buffer.
func TestSaveLoad(t *testing.T) {
	obj := testStruct{"hello", 1234, []byte("ecoin")}
	var buf bytes.Buffer
	err := Save(testMeta, obj, &buf)
	if err != nil {
		t.Fatal(err)
	}

	var loaded testStruct
	err = Load(testMeta, &loaded, bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatal(err)
	}
	if loaded.One != obj.One || loaded.Two != obj.Two || !bytes.Equal(loaded.Three, obj.Three) {
		t.Fatal("loaded object does not match saved object:", loaded)
	}
}

// TestLoadBadMetadata checks that mismatched metadata is rejected.
func TestLoadBadMetadata(t *testing.T) {
	obj := testStruct{"hello", 1234, nil}
	var buf bytes.Buffer
	err := Save(testMeta, obj, &buf)
	if err != nil {
		t.Fatal(err)
	}

	var loaded testStruct
	badHeader := Metadata{Header: "Wrong Header", Version: testMeta.Version}
	err = Load(badHeader, &loaded, bytes.NewReader(buf.Bytes()))
	if err != ErrBadHeader {
		t.Fatal("expected ErrBadHeader, got", err)
	}
	badVersion := Metadata{Header: testMeta.Header, Version: "9999"}
	err = Load(badVersion, &loaded, bytes.NewReader(buf.Bytes()))
	if err != ErrBadVersion {
		t.Fatal("expected ErrBadVersion, got", err)
	}
}

// TestSaveLoadJSON checks the file-backed round trip, including that the temp
// file does not linger.
func TestSaveLoadJSON(t *testing.T) {
	dir := build.TempDir("persist", t.Name())
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		t.Fatal(err)
	}
	filename := filepath.Join(dir, "test.json")

	obj := testStruct{"hello", 1234, []byte("ecoin")}
	err = SaveJSON(testMeta, obj, filename)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filename + tempSuffix); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after save")
	}

	var loaded testStruct
	err = LoadJSON(testMeta, &loaded, filename)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.One != obj.One || loaded.Two != obj.Two {
		t.Fatal("loaded object does not match saved object:", loaded)
	}

	// Overwriting is fine.
	obj.Two = 5678
	err = SaveJSON(testMeta, obj, filename)
	if err != nil {
		t.Fatal(err)
	}
	err = LoadJSON(testMeta, &loaded, filename)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Two != 5678 {
		t.Fatal("overwrite was not persisted:", loaded)
	}
}
