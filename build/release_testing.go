//go:build testing
// +build testing

package build

const (
	// Release is the release tag the binary was compiled with.
	Release = "testing"

	// DEBUG enables extra sanity checks and panics on critical errors.
	DEBUG = true
)
