// Package test holds helpers shared by the integration tests.
package test

import (
	"path/filepath"
	"runtime"
)

// ProjectPath resolves elem against the repository root, independent of the working directory
// the test binary runs in.
func ProjectPath(elem ...string) string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot resolve the project root")
	}

	root := filepath.Join(filepath.Dir(filename), "..")

	return filepath.Join(append([]string{root}, elem...)...)
}
