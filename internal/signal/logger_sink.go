package signal

import (
	log "github.com/sirupsen/logrus"
)

// LoggerSink writes every access event to the application log. It is
// registered by default so decisions are observable without any consumer
// wiring.
type LoggerSink struct{}

// NewLoggerSink constructs a logger sink.
func NewLoggerSink() *LoggerSink { return &LoggerSink{} }

// AccessGranted implements Sink.
func (s *LoggerSink) AccessGranted(event GrantedEvent) {
	log.WithFields(log.Fields{
		"token_id": event.TokenID,
		"path":     event.ProtectedPath,
	}).Debug("access granted")
}

// AccessDenied implements Sink.
func (s *LoggerSink) AccessDenied(event DeniedEvent) {
	log.WithFields(log.Fields{
		"path":   event.Path,
		"reason": event.Reason,
	}).Info("access denied")
}
