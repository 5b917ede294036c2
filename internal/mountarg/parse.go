// Package mountarg parses the samfsmount source argument: "d.d.d.d:/path"
// or bare "d.d.d.d", per spec §4.6.
package mountarg

import (
	"fmt"
	"strings"
)

// Source is a parsed mount source.
type Source struct {
	IP  string
	URL string // always starts with '/'; defaults to "/"
}

// Parse validates and splits src character by character, enforcing exactly
// three dots in the address portion and digit-or-dot composition, matching
// the original's hand-rolled parser byte for byte in behavior (it is kept
// as an explicit scan rather than a regexp so the error messages stay
// anchored to the same decision points the original made).
func Parse(src string) (Source, error) {
	addr, rest, hasColon := strings.Cut(src, ":")

	if err := validateIP(addr); err != nil {
		return Source{}, err
	}

	url := "/"
	if hasColon {
		if strings.HasPrefix(rest, "/") {
			url = rest
		} else {
			url = "/" + rest
		}
	}

	return Source{IP: addr, URL: url}, nil
}

func validateIP(addr string) error {
	dots := 0
	lastWasDot := false
	if addr == "" {
		return fmt.Errorf("mountarg: empty address")
	}
	for i, c := range addr {
		switch {
		case c >= '0' && c <= '9':
			lastWasDot = false
		case c == '.':
			if lastWasDot {
				return fmt.Errorf("mountarg: %q: empty octet before position %d", addr, i)
			}
			lastWasDot = true
			dots++
			if dots > 3 {
				return fmt.Errorf("mountarg: %q: too many dots in address", addr)
			}
		default:
			return fmt.Errorf("mountarg: %q: invalid character %q in address", addr, c)
		}
	}
	if dots < 3 {
		return fmt.Errorf("mountarg: %q: incomplete address, want three dots", addr)
	}
	if lastWasDot {
		return fmt.Errorf("mountarg: %q: address ends with a dot", addr)
	}
	return nil
}

// ValidateMountPoint enforces that the mount point argument is absolute,
// per spec §4.6.
func ValidateMountPoint(path string) error {
	if !strings.HasPrefix(path, "/") {
		return fmt.Errorf("mountarg: mount point %q must be absolute", path)
	}
	return nil
}
