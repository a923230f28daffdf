package persist

import (
	"encoding/json"
	"io"
	"os"

	"github.com/MobiusL/ecoinpool/build"
)

// tempSuffix is appended to a filename while a new version of the file is
// being written. The temp file is renamed over the real file only after a
// successful sync, so a crash mid-write never corrupts the previous version.
const tempSuffix = "_temp"

// Save saves json data to a writer, prefixed by the metadata.
func Save(meta Metadata, data interface{}, w io.Writer) error {
	b, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return build.ExtendErr("unable to marshal persisted object", err)
	}

	enc := json.NewEncoder(w)
	if err := enc.Encode(meta.Header); err != nil {
		return build.ExtendErr("unable to write header", err)
	}
	if err := enc.Encode(meta.Version); err != nil {
		return build.ExtendErr("unable to write version", err)
	}
	if _, err = w.Write(b); err != nil {
		return build.ExtendErr("unable to write persisted object", err)
	}
	return nil
}

// Load loads json data from a reader, verifying the metadata.
func Load(meta Metadata, data interface{}, r io.Reader) error {
	var header, version string
	dec := json.NewDecoder(r)
	if err := dec.Decode(&header); err != nil {
		return err
	}
	if header != meta.Header {
		return ErrBadHeader
	}
	if err := dec.Decode(&version); err != nil {
		return err
	}
	if version != meta.Version {
		return ErrBadVersion
	}
	if err := dec.Decode(data); err != nil {
		return err
	}
	return nil
}

// SaveJSON atomically saves a json object to a file. The object is first
// written to a temp file, synced, and then renamed over the target.
func SaveJSON(meta Metadata, data interface{}, filename string) error {
	tmpName := filename + tempSuffix
	file, err := os.Create(tmpName)
	if err != nil {
		return build.ExtendErr("unable to create temp persist file", err)
	}
	err = Save(meta, data, file)
	if err != nil {
		file.Close()
		return err
	}
	err = file.Sync()
	if err != nil {
		file.Close()
		return build.ExtendErr("unable to sync temp persist file", err)
	}
	err = file.Close()
	if err != nil {
		return build.ExtendErr("unable to close temp persist file", err)
	}
	return os.Rename(tmpName, filename)
}

// LoadJSON loads a json object from a file.
func LoadJSON(meta Metadata, data interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()
	return Load(meta, data, file)
}
