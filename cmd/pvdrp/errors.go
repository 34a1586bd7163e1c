package main

import "errors"

// Command-level errors.
var (
	// ErrTooManyPVs is returned when more than match.MaxPVs positional
	// PV specs are given: remaining is a 32-bit mask, one bit per PV.
	ErrTooManyPVs = errors.New("too many pv specs")

	// ErrBadAlias is returned when -u does not end with "_<digits>".
	ErrBadAlias = errors.New("alias must end with _<digit+>")
)

// FormatUserError renders err for a terminal: just its message, since
// cobra usage output is silenced and this is the last line a user sees.
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
