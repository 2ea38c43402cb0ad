package containerapi

import (
	"fmt"
	"path"
	"strings"

	"github.com/cgmgr/cgmgr/errdefs"
)

// validComponent reports whether a single `/`-separated path component
// satisfies spec.md §4.I's name-resolution rule: "no `/`-separated
// component may begin with a non-alphanumeric character". Components
// containing ".." internally (e.g. "test..test") are ordinary components,
// not navigation (spec.md §4.I).
func validComponent(c string) bool {
	if c == "" {
		return false
	}
	first := c[0]
	isAlnum := (first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z') || (first >= '0' && first <= '9')
	return isAlnum
}

// canonicalize implements spec.md §4.I's name resolution rules in full: a
// relative name is prefixed with currentContainer, the result is cleaned
// (duplicate slashes collapsed, "." removed, ".." resolved logically,
// never by following symlinks), and every component re-validated after
// cleaning. The root name "/" is always valid; ".." at the root collapses
// to "/".
func canonicalize(name, currentContainer string) (string, error) {
	if name == "" {
		return "", errdefs.InvalidParameter(fmt.Errorf("container name must not be empty"))
	}
	for _, r := range name {
		if !strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789_-./", r) {
			return "", errdefs.InvalidParameter(fmt.Errorf("container name %q contains disallowed character %q", name, r))
		}
	}

	abs := name
	if !strings.HasPrefix(abs, "/") {
		abs = currentContainer + "/" + abs
	}
	clean := path.Clean(abs)
	if clean == "." {
		clean = "/"
	}

	if clean == "/" {
		return "/", nil
	}
	for _, comp := range strings.Split(strings.TrimPrefix(clean, "/"), "/") {
		if !validComponent(comp) {
			return "", errdefs.InvalidParameter(fmt.Errorf("container name %q has a component starting with a non-alphanumeric character", name))
		}
	}
	return clean, nil
}
