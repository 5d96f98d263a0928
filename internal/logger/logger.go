package logger

import (
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/quantflow/tradeengine/pkg/types"
)

// New builds the process logger. Level and format come from configuration;
// everything downstream receives a *logrus.Logger (or an Entry derived from
// it) and never configures output itself.
func New(level, format string) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)

	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)

	if strings.EqualFold(format, "json") {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// ForLineage returns an entry tagged with the (symbol, timeframe) lineage
// and correlation id so every pipeline log line is attributable.
func ForLineage(log *logrus.Logger, symbol types.Symbol, tf types.Timeframe, correlationID string) *logrus.Entry {
	return log.WithFields(logrus.Fields{
		"symbol":         symbol,
		"timeframe":      tf,
		"correlation_id": correlationID,
	})
}
