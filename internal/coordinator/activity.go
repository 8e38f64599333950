package coordinator

import "github.com/webitel/objectdb-coordinator/internal/connection"

// ActivityMonitor is the observability hook the Coordinator notifies of
// connection lifecycle events (§3, §4.3.3 step 2). It is an external
// collaborator — the core only ever calls it, never implements it.
type ActivityMonitor interface {
	ClosedConnection(c *connection.Connection)
}

// ActivityMonitorFunc adapts a plain function to ActivityMonitor.
type ActivityMonitorFunc func(c *connection.Connection)

func (f ActivityMonitorFunc) ClosedConnection(c *connection.Connection) { f(c) }
