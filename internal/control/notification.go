package control

import "github.com/gadorlhiac/pvdrp/internal/pv"

// AsyncNotification is a non-fatal, out-of-band report surfaced to a CLI
// subcommand or log sink: a PV disconnect, a parameter-probe failure, or
// a connect-time warning, carried on the async_error/async_warn side
// channel rather than a Dispatch response.
type AsyncNotification struct {
	Alias   string
	Message string
	Level   pv.Level
}

func fromPVNotification(n pv.Notification) AsyncNotification {
	return AsyncNotification{Alias: n.Alias, Message: n.Message, Level: n.Level}
}
