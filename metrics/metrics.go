// Package metrics holds the four process-wide counters the Session Engine
// increments and the periodic sink that logs them.
//
// The counters are plain atomic integers rather than a prometheus/client_golang
// registry: spec.md treats the metrics sink as an external collaborator, and
// the only requirement the core itself carries (spec.md §9) is "integer-atomic,
// no lock required" — sync/atomic is the direct, complete expression of that,
// and pulling in a registry here would conflate the out-of-scope sink with the
// core's counter representation. See DESIGN.md.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Counters are the four monotonically non-decreasing integers shared
// process-wide by every session.
type Counters struct {
	accepted     atomic.Int64
	rejected     atomic.Int64
	connections  atomic.Int64
	relayErrors  atomic.Int64
}

// New returns a fresh, zeroed set of counters.
func New() *Counters {
	return &Counters{}
}

func (c *Counters) IncAccepted()    { c.accepted.Add(1) }
func (c *Counters) IncRejected()    { c.rejected.Add(1) }
func (c *Counters) IncConnections() { c.connections.Add(1) }
func (c *Counters) IncRelayErrors() { c.relayErrors.Add(1) }

// Snapshot is a point-in-time, non-atomic read of all four counters for
// logging or inspection purposes.
type Snapshot struct {
	Accepted    int64
	Rejected    int64
	Connections int64
	RelayErrors int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		Accepted:    c.accepted.Load(),
		Rejected:    c.rejected.Load(),
		Connections: c.connections.Load(),
		RelayErrors: c.relayErrors.Load(),
	}
}

// RunSink logs a Snapshot every interval until stop is closed. An interval
// of zero disables the sink entirely, matching METRICS_INTERVAL=0 in
// spec.md §6.
func RunSink(c *Counters, interval time.Duration, logger *logrus.Logger, stop <-chan struct{}) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			snap := c.Snapshot()
			logger.WithFields(logrus.Fields{
				"accepted":     snap.Accepted,
				"rejected":     snap.Rejected,
				"connections":  snap.Connections,
				"relay_errors": snap.RelayErrors,
			}).Info("metrics")
		}
	}
}
