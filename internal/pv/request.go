package pv

import (
	"fmt"
	"strings"
)

// BuildRequest constructs the channel-access/pvAccess request string for a
// monitor's field, provider, and (for pva) reported rank. The pvRequest
// keyword prefix is always the literal "field"; a non-default field name
// is instead spliced in as an extra element before the closing paren
// (e.g. "field(value,timeStamp,rbv)"), matching how the original
// implementation builds this string. A pva request also asks for the
// dimension array alongside value/timeStamp so a multi-dimensional PV's
// shape can be recovered on every update; ca has no such concept and
// only ever requests value/timeStamp.
func BuildRequest(provider, field string, rank int) string {
	elems := []string{"value", "timeStamp"}
	if provider != "ca" && rank > 0 {
		elems = append(elems, "dimension")
	}
	if field != "" && field != "value" {
		elems = append(elems, field)
	}
	return fmt.Sprintf("field(%s)", strings.Join(elems, ","))
}
