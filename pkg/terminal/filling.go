package terminal

import "strings"

// FillingMode is the order fill policy. Wire values match the terminal's
// order-filling enumeration.
type FillingMode int

const (
	FillingFOK    FillingMode = 0 // fill entirely or cancel
	FillingIOC    FillingMode = 1 // fill what is possible, cancel the rest
	FillingReturn FillingMode = 2 // market execution, remainder stays working
)

func (m FillingMode) String() string {
	switch m {
	case FillingFOK:
		return "FOK"
	case FillingIOC:
		return "IOC"
	case FillingReturn:
		return "RETURN"
	}
	return "UNKNOWN"
}

// ParseFillingMode resolves a caller-supplied mode name.
func ParseFillingMode(s string) (FillingMode, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FOK":
		return FillingFOK, true
	case "IOC":
		return FillingIOC, true
	case "RETURN":
		return FillingReturn, true
	}
	return 0, false
}

// Symbol filling-mask bits.
const (
	maskFOK = 1 << 0
	maskIOC = 1 << 1
)

// FillingSet is the capability set of filling modes a symbol supports,
// computed once from the symbol's filling bitmask. Return-mode execution
// is the universal fallback and is never part of the set.
type FillingSet uint8

// FillingSupport derives the capability set from a symbol's filling mask.
func FillingSupport(mask int) FillingSet {
	var s FillingSet
	if mask&maskFOK != 0 {
		s |= maskFOK
	}
	if mask&maskIOC != 0 {
		s |= maskIOC
	}
	return s
}

// Supports reports whether the symbol advertises the given mode.
func (s FillingSet) Supports(m FillingMode) bool {
	switch m {
	case FillingFOK:
		return s&maskFOK != 0
	case FillingIOC:
		return s&maskIOC != 0
	}
	return false
}

// PlacementCandidates builds the ordered filling-mode attempt list for a
// new order: the caller's preferred mode first when the symbol supports
// it (or when it is the universal fallback), then every supported mode,
// then the fallback. Duplicates are removed, first occurrence wins.
func PlacementCandidates(s FillingSet, preferred FillingMode, hasPreferred bool) []FillingMode {
	out := make([]FillingMode, 0, 3)
	seen := [3]bool{}
	add := func(m FillingMode) {
		if m < 0 || int(m) > 2 || seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
	}

	if hasPreferred && (preferred == FillingReturn || s.Supports(preferred)) {
		add(preferred)
	}
	for _, m := range []FillingMode{FillingFOK, FillingIOC} {
		if s.Supports(m) {
			add(m)
		}
	}
	add(FillingReturn)
	return out
}

// CloseCandidates builds the attempt list for closing a position:
// supported modes in fixed FOK, IOC preference order, then the fallback.
func CloseCandidates(s FillingSet) []FillingMode {
	out := make([]FillingMode, 0, 3)
	for _, m := range []FillingMode{FillingFOK, FillingIOC} {
		if s.Supports(m) {
			out = append(out, m)
		}
	}
	return append(out, FillingReturn)
}
