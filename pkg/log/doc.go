/*
Package log provides structured logging on top of zerolog for the
Session Controller and Gateway.

A process calls Init once at startup with a Config (level, JSON vs.
console output, destination writer) to set the package-level Logger.
Call sites either use the Logger directly, one of the package-level
helpers (Info, Debug, Warn, Error, Errorf, Fatal) for a plain message,
or derive a child logger carrying a fixed field for the lifetime of a
request or session:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})

	sessionLog := log.WithSessionID(sessionID)
	sessionLog.Info().Str("worker", workerName).Msg("session resolved")

	log.WithComponent("controller").Error().Err(err).Msg("submit failed")

WithComponent, WithSessionID, WithRequestID, and WithTokenID each
return a zerolog.Logger with one additional field set, so they compose
with zerolog's own With() chain when more than one field is needed.

Console output is the default (a zero Config, and log_json=false in
pkg/config); setting JSONOutput selects machine-parseable JSON lines
instead of the human-readable timestamped console format.
*/
package log
