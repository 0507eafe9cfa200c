//go:build darwin || linux

// Shared utilities for the purego-based native library bindings.

package avtk

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"
)

// goStringFromPtr converts a C string pointer to a Go string.
func goStringFromPtr(ptr uintptr) string {
	if ptr == 0 {
		return ""
	}
	// Find string length
	p := unsafe.Pointer(ptr)
	var length int
	for {
		if *(*byte)(unsafe.Pointer(uintptr(p) + uintptr(length))) == 0 {
			break
		}
		length++
		if length > 1024 { // Safety limit
			break
		}
	}
	if length == 0 {
		return ""
	}
	return string(unsafe.Slice((*byte)(p), length))
}

// libSearchDirs lists directories probed for native libraries after
// the dynamic linker's own search fails. Covers Homebrew on macOS and
// the common prefixes on Linux, including Debian/Ubuntu multiarch.
var libSearchDirs = []string{
	"/usr/local/lib",
	"/usr/lib",
	"/usr/lib/x86_64-linux-gnu",
	"/usr/lib/aarch64-linux-gnu",
	"/opt/homebrew/lib",
	"/opt/local/lib",
}

// openLibrary loads the first loadable candidate for a native
// library. envVar optionally names an environment variable holding an
// explicit path that is tried first. The remaining names are sonames
// tried bare (letting the dynamic linker search) and then joined with
// each directory in libSearchDirs.
func openLibrary(envVar string, names ...string) (uintptr, error) {
	var candidates []string
	if envVar != "" {
		if p := os.Getenv(envVar); p != "" {
			candidates = append(candidates, p)
		}
	}
	candidates = append(candidates, names...)
	for _, dir := range libSearchDirs {
		for _, name := range names {
			candidates = append(candidates, filepath.Join(dir, name))
		}
	}

	var errs []string
	for _, c := range candidates {
		handle, err := purego.Dlopen(c, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err == nil {
			return handle, nil
		}
		errs = append(errs, fmt.Sprintf("%s: %v", c, err))
	}
	return 0, fmt.Errorf("no loadable library among %d candidates:\n  %s",
		len(candidates), strings.Join(errs, "\n  "))
}
