// Package paths normalizes the file identities reported by analysis
// providers. Providers hand back a mix of file URIs and bare paths, with
// platform-specific casing and drive-letter variants; every raw string that
// denotes the same file must map to the same canonical key.
package paths

import (
	"net/url"
	"path"
	"path/filepath"
	"runtime"
	"strings"
)

// FromURI converts a file URI to a filesystem path. Non-URI input is
// returned unchanged, so callers can feed raw locations through without
// sniffing the transport representation first.
func FromURI(raw string) string {
	if !strings.HasPrefix(raw, "file://") {
		return raw
	}

	trimmed := strings.TrimPrefix(raw, "file://")
	if decoded, err := url.PathUnescape(trimmed); err == nil {
		trimmed = decoded
	}

	// file:///C:/dir/file -> C:/dir/file
	if len(trimmed) >= 3 && trimmed[0] == '/' && isDriveLetter(trimmed[1]) && trimmed[2] == ':' {
		trimmed = trimmed[1:]
	}

	return trimmed
}

// Canonical returns the platform-aware canonical comparison form of a raw
// location: URI prefix stripped, forward slashes, and case folded with the
// drive letter normalized on case-insensitive platforms.
func Canonical(raw string) string {
	return canonicalize(raw, caseInsensitiveFS())
}

// Equivalent reports whether two raw location strings denote the same file
// under platform path rules.
func Equivalent(a, b string) bool {
	return Canonical(a) == Canonical(b)
}

// Rel returns the slash-form of target relative to root, or the canonical
// target when it does not live under root.
func Rel(root, target string) string {
	canonRoot := Canonical(root)
	canonTarget := Canonical(target)

	rel, err := filepath.Rel(filepath.FromSlash(canonRoot), filepath.FromSlash(canonTarget))
	if err != nil || strings.HasPrefix(rel, "..") {
		return canonTarget
	}
	return filepath.ToSlash(rel)
}

// Dir returns the slash-form parent directory of a canonical path.
func Dir(canonical string) string {
	return path.Dir(canonical)
}

// Base returns the file name component of a canonical path.
func Base(canonical string) string {
	return path.Base(canonical)
}

func canonicalize(raw string, caseInsensitive bool) string {
	p := FromURI(raw)
	p = filepath.ToSlash(p)
	p = path.Clean(p)

	if caseInsensitive {
		p = strings.ToLower(p)
	} else if len(p) >= 2 && isDriveLetter(p[0]) && p[1] == ':' {
		// Drive letters compare case-insensitively even when the rest of
		// the path does not.
		p = strings.ToLower(p[:1]) + p[1:]
	}

	return p
}

func caseInsensitiveFS() bool {
	switch runtime.GOOS {
	case "windows", "darwin":
		return true
	default:
		return false
	}
}

func isDriveLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
