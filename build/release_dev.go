//go:build dev
// +build dev

package build

const (
	// Release is the release tag the binary was compiled with.
	Release = "dev"

	// DEBUG enables extra sanity checks and panics on critical errors.
	DEBUG = true
)
