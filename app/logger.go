package app

import (
	"strings"

	log "github.com/sirupsen/logrus"
)

// InitLogger applies the configured format and level to the process-wide
// logger. Unknown levels fall back to info.
func InitLogger() {
	format := strings.ToLower(Config.Logger.Format)
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp: true,
		})
	}

	logLevel := strings.ToLower(Config.Logger.Level)
	switch logLevel {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}

	log.Info("[LOGGER] Logger initialized with level: ", logLevel)
}
