// Package version decides whether a newer plugin release is worth recommending.
package version

import (
	"regexp"
	"strconv"
)

var versionPattern = regexp.MustCompile(`^\s*([0-9]+)\.([0-9]+)\.([0-9]+)\.([0-9]+)(\w*)\s*$`)

// Components splits a dotted four-part version. ok is false when v does not match.
func Components(v string) (parts [4]int, ok bool) {
	m := versionPattern.FindStringSubmatch(v)
	if m == nil {
		return parts, false
	}
	for i := 0; i < 4; i++ {
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n < 0 {
			n = -1
		}
		parts[i] = n
	}
	return parts, true
}

// Ordinal packs the four components into A<<24|B<<16|C<<8|D.
// Components outside 0..255 contribute 0; unparseable versions map to 0.
func Ordinal(v string) uint32 {
	parts, ok := Components(v)
	if !ok {
		return 0
	}
	var n uint32
	for _, p := range parts {
		b := uint32(0)
		if p >= 0 && p <= 255 {
			b = uint32(p)
		}
		n = n<<8 | b
	}
	return n
}

// SortKey packs the components with 16 bits each; it orders versions the packed Ordinal cannot.
func SortKey(v string) uint64 {
	parts, ok := Components(v)
	if !ok {
		return 0
	}
	var n uint64
	for _, p := range parts {
		switch {
		case p < 0:
			p = 0
		case p > 0xFFFF:
			p = 0xFFFF
		}
		n = n<<16 | uint64(p)
	}
	return n
}

// Lossy reports whether Ordinal loses information for v (some component above 255).
func Lossy(v string) bool {
	parts, ok := Components(v)
	if !ok {
		return false
	}
	for _, p := range parts {
		if p < 0 || p > 255 {
			return true
		}
	}
	return false
}
