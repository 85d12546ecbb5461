/*
Package log provides structured logging for the fieldbus runtime using zerolog.

Initialize once at process start with Init, then derive component loggers with
WithComponent, WithPeer, WithEventName, or WithMotor rather than logging through
the bare global Logger, so every line carries the field that explains where it
came from.

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	busLog := log.WithComponent("bus")
	busLog.Warn().Str("peer", name).Msg("dropping stale announcement")
*/
package log
