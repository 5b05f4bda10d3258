// Package logging centralizes the one formatter/output decision the rest of
// burngate needs, so the Session Engine and its collaborators only ever call
// *logrus.Entry methods and never configure a formatter themselves.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Tag values used across the Session Engine, per spec.md §7's propagation
// policy: detailed causes are emitted through logging with one of these tags.
const (
	TagRCPTAccepted = "RCPT-ACCEPTED"
	TagMailRejected = "MAIL-REJECTED"
	TagMailRelayed  = "MAIL-RELAYED"
	TagRelayError   = "RELAY-ERROR"
)

// New builds the process-wide logger. Full timestamps match the plain daemon
// log style the rest of the retrieval pack's standalone servers use.
func New() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	return logger
}

// ForConn returns a logger entry scoped to one connection, carrying the peer
// address on every subsequent line.
func ForConn(logger *logrus.Logger, peer string) *logrus.Entry {
	return logger.WithField("peer", peer)
}
