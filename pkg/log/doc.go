/*
Package log provides structured logging for hpos-api using zerolog.

A single package level Logger is configured once at startup by Init. Packages
derive component loggers from it and add the fields that identify what they
are working on.

# Output

	{"level":"info","component":"slcheck","app_id":"uhCkk...::servicelogger","bucket":"sl-14-40","time":"2024-06-01T12:00:00Z","message":"Cloned service logger"}

Console output is used unless JSONOutput is set; the HoloPort journal reads
either.

# Context Loggers

  - WithComponent: tag every entry with the emitting package
  - WithAppID: tag entries about one installed app
  - WithRequestID: tag entries of one HTTP request

The API middleware stores a request logger in the request context;
FromContext returns it, or the global Logger outside a request.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	logger := log.WithComponent("hosted")
	logger.Info().Str("happ_id", id).Msg("Enabled happ")

	log.FromContext(r.Context()).Debug().Msg("Bad request")

# Levels

debug, info, warn and error map to their zerolog levels. Unknown values fall
back to info. Init sets the zerolog global level, so it also filters loggers
created before Init ran.
*/
package log
