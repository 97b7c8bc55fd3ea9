// Package daemon hosts the long-running vigil process. A Daemon owns the
// pipeline and review stores, the stage orchestrator, and the lease
// housekeeping loops, and exposes the operations the control socket serves:
// submitting videos, inspecting executions and reports, and the full
// verification task lifecycle.
//
// Only one daemon may run per data directory. Start acquires a file lock,
// runs the preflight checks, requeues executions interrupted by a previous
// shutdown, and then launches the orchestrator alongside the lease reaper,
// the SLA monitor, and the retention sweeper. Stop unwinds in reverse order
// and releases the lock.
package daemon
