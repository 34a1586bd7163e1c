package pv

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec is one parsed PV positional argument: [alias=][provider/]pvName[.field][,firstDim].
type Spec struct {
	Alias    string
	Provider string
	PVName   string
	Field    string
	FirstDim uint32
}

// ParseSpec parses one PV positional argument against the grammar
// [alias=][provider/]pvName[.field][,firstDim]. defaultAlias is used
// when no "alias=" prefix is present
// (the detector name); defaultFirstDim is used when no ",firstDim"
// suffix is present (the CLI and control plane pass 0, meaning no
// override).
//
// Each separator is split off the remainder left by the previous step,
// but not in left-to-right textual order: alias and provider trim off
// the front first, then firstDim trims off the back (","), and only
// then does field trim off what's left ("."). The comma must be peeled
// before the dot because "pvName.field,firstDim" has firstDim nested
// after field, and a naive left-to-right dot-then-comma split would
// swallow ",firstDim" into Field. A given separator character that never
// appears leaves that field at its default.
func ParseSpec(raw string, defaultAlias string, defaultFirstDim uint32) (Spec, error) {
	if raw == "" {
		return Spec{}, fmt.Errorf("pv: empty pv spec")
	}

	s := Spec{
		Alias:    defaultAlias,
		Provider: "pva",
		Field:    "value",
		FirstDim: defaultFirstDim,
	}

	rest := raw
	if i := strings.IndexByte(rest, '='); i >= 0 {
		s.Alias = rest[:i]
		rest = rest[i+1:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		s.Provider = rest[:i]
		rest = rest[i+1:]
	}
	if i := strings.IndexByte(rest, ','); i >= 0 {
		n, err := strconv.ParseUint(rest[i+1:], 10, 32)
		if err != nil {
			return Spec{}, fmt.Errorf("pv: invalid firstDim in %q: %w", raw, err)
		}
		s.FirstDim = uint32(n)
		rest = rest[:i]
	}
	if i := strings.IndexByte(rest, '.'); i >= 0 {
		s.Field = rest[i+1:]
		rest = rest[:i]
	}
	if rest == "" {
		return Spec{}, fmt.Errorf("pv: empty pv name in %q", raw)
	}
	s.PVName = rest

	if s.Provider != "pva" && s.Provider != "ca" {
		return Spec{}, fmt.Errorf("pv: unknown provider %q in %q (want pva or ca)", s.Provider, raw)
	}
	return s, nil
}
