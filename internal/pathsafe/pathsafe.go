// Package pathsafe normalizes user-supplied logical paths and maps them
// onto the remote root. Every handler goes through this package; no
// endpoint re-implements its own traversal check.
package pathsafe

import (
	"errors"
	"strings"
)

// ErrInvalidPath is returned for malformed paths and traversal attempts.
var ErrInvalidPath = errors.New("invalid path")

// Normalize converts raw user input into a canonical logical path:
// POSIX-style, leading "/", no "." or ".." segments, no empty segments,
// no trailing slash except for the root itself.
//
// Resolution is purely syntactic. A ".." that would climb above the root
// fails with ErrInvalidPath; the check runs on the resolved segments, not
// on the raw string, so redundant slashes and "./" noise cannot mask an
// escape.
func Normalize(raw string) (string, error) {
	if strings.ContainsRune(raw, '\x00') {
		return "", ErrInvalidPath
	}

	p := strings.ReplaceAll(raw, "\\", "/")
	if p == "" {
		return "/", nil
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}

	var stack []string
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
			// collapse
		case "..":
			if len(stack) == 0 {
				return "", ErrInvalidPath
			}
			stack = stack[:len(stack)-1]
		default:
			stack = append(stack, seg)
		}
	}

	if len(stack) == 0 {
		return "/", nil
	}
	return "/" + strings.Join(stack, "/"), nil
}

// ToRemote joins a normalized logical path onto the remote root. The
// result must be the root itself or a strict descendant of it. This is
// a path boundary check, not a string-prefix check, so "/base" never
// accepts "/base-evil".
func ToRemote(logical, root string) (string, error) {
	lp, err := Normalize(logical)
	if err != nil {
		return "", err
	}

	root = strings.TrimSuffix(root, "/")
	if root == "" {
		root = "/"
	}

	var remote string
	if lp == "/" {
		remote = root
	} else if root == "/" {
		remote = lp
	} else {
		remote = root + lp
	}

	if remote != root && !strings.HasPrefix(remote, root+"/") {
		return "", ErrInvalidPath
	}
	return remote, nil
}

// Dir returns the parent directory of a logical path ("/" for top-level
// entries and for the root itself).
func Dir(logical string) string {
	if logical == "/" || logical == "" {
		return "/"
	}
	idx := strings.LastIndex(logical, "/")
	if idx <= 0 {
		return "/"
	}
	return logical[:idx]
}

// Base returns the final element of a logical path.
func Base(logical string) string {
	if logical == "/" || logical == "" {
		return "/"
	}
	idx := strings.LastIndex(logical, "/")
	return logical[idx+1:]
}

// Join appends a relative reference to a base directory and normalizes
// the result. Used by the serve endpoint to resolve relative asset URLs.
func Join(baseDir, rel string) (string, error) {
	if strings.HasPrefix(rel, "/") {
		return Normalize(rel)
	}
	if baseDir == "/" {
		return Normalize("/" + rel)
	}
	return Normalize(baseDir + "/" + rel)
}
