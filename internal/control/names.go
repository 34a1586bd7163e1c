package control

import (
	"strings"

	"github.com/gadorlhiac/pvdrp/internal/pv"
	"github.com/gadorlhiac/pvdrp/internal/xtc"
)

// buildNamesLookup declares one Names entry per connected PV (nodeId 0,
// index == PV id) plus the pvdetinfo entry at the next free index, in
// connect-time id order, so a consumer can allocate via the names lookup
// using the given NamesId.
func buildNamesLookup(detType, serNo string, monitors []*pv.Monitor, fields []pvFieldInfo) xtc.NamesLookup {
	lookup := make(xtc.NamesLookup)

	for i, mon := range monitors {
		lookup[xtc.NamesId{NodeId: 0, Index: uint8(i)}] = xtc.NameIndex{
			Names: xtc.Names{
				Alias:   mon.Alias(),
				DetType: detType,
				SerNo:   serNo,
				Entries: []xtc.Name{{Field: fields[i].field, Type: fields[i].dataType, Rank: fields[i].rank}},
			},
		}
	}

	lookup[xtc.NamesId{NodeId: 0, Index: uint8(len(monitors))}] = xtc.NameIndex{
		Names: xtc.Names{
			Alias:   "pvdetinfo",
			DetType: detType,
			SerNo:   serNo,
			Entries: []xtc.Name{{Field: "keys", Type: xtc.CharStr}, {Field: "names", Type: xtc.CharStr}},
		},
	}
	return lookup
}

// pvFieldInfo is the per-PV shape information GetParams reports at
// configure time, needed to declare that PV's Names entry.
type pvFieldInfo struct {
	field    string
	dataType xtc.DataType
	rank     int
}

// buildInfoRecord returns the comma-delimited alias list ("keys") and the
// newline-delimited PV name list, in connect-time declared order, so a
// consumer can round-trip an alias to its full PV name.
func buildInfoRecord(monitors []*pv.Monitor) (keys, names string) {
	aliasParts := make([]string, len(monitors))
	nameParts := make([]string, len(monitors))
	for i, mon := range monitors {
		aliasParts[i] = mon.Alias()
		nameParts[i] = mon.PVName()
	}
	return strings.Join(aliasParts, ","), strings.Join(nameParts, "\n")
}
