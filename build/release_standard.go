//go:build !testing && !dev
// +build !testing,!dev

package build

const (
	// Release is the release tag the binary was compiled with.
	Release = "standard"

	// DEBUG enables extra sanity checks and panics on critical errors.
	DEBUG = false
)
