package xtc

// MaxRank bounds the number of dimensions a shaped array can declare.
const MaxRank = 5

// DataType is the element type of a named array, mirroring the subset of
// EPICS scalar/array types the PV transport can report.
type DataType uint8

const (
	Uint8 DataType = iota
	Int8
	Int16
	Int32
	Int64
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	CharStr
)

// ElementSize returns the size in bytes of one element of the given type.
func ElementSize(dt DataType) int {
	switch dt {
	case Uint8, Int8, CharStr:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Float32:
		return 4
	case Int64, Uint64, Float64:
		return 8
	default:
		return 1
	}
}

// NamesId identifies one declared record layout within a run, scoped to a
// node and a small per-node index (one per PV monitor, plus one for the
// informational record).
type NamesId struct {
	NodeId uint8
	Index  uint8
}

// Name describes one field of a declared record.
type Name struct {
	Field string
	Type  DataType
	Rank  int
}

// Names is a declared record layout: a detector/alias name plus the list
// of fields it contains, in declaration order.
type Names struct {
	Alias   string
	DetType string
	SerNo   string
	Alg     string
	Entries []Name
}

// NameIndex is the looked-up form of a Names declaration.
type NameIndex struct {
	Names Names
}

// NamesLookup maps a NamesId to its declared layout. It is built once at
// configure time by the control plane and is read-only for the remainder
// of the run, so a plain map (rather than a concurrent one) is correct:
// nothing ever mutates it concurrently with the Matcher's reads.
type NamesLookup map[NamesId]NameIndex
