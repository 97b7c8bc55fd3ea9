// Package lease manages human verification tasks for flagged videos.
//
// Each video gets at most one task. Workers claim tasks under time-bounded
// leases, keep them alive with heartbeats, and record trigger decisions
// while holding a live lease. Every transition is a single guarded UPDATE
// against the review database, so concurrent workers, the reaper, and admin
// overrides serialize through the row itself rather than through locks in
// process memory. The action log records every transition for audit.
package lease
