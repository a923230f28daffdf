package persist

import (
	"errors"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/MobiusL/ecoinpool/build"
)

var (
	ErrBadVersion = errors.New("incompatible version")
	ErrBadHeader  = errors.New("wrong header")
)

// Metadata identifies the type and version of a persisted object. Every
// persisted file and database carries its metadata so that stale or foreign
// files are rejected on load.
type Metadata struct {
	Header, Version string
}

// HomeFolder is the default location for ecoinpool persistence.
var HomeFolder = func() string {
	// use a special folder during testing
	if build.Release == "testing" {
		return filepath.Join(build.EcoinTestingDir, "home")
	}

	home, err := homedir.Dir()
	if err != nil {
		println("could not find homedir: " + err.Error())
		return ""
	}
	return filepath.Join(home, ".config", "ecoinpool")
}()
