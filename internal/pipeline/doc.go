// Package pipeline persists moderation state in SQLite: submitted videos,
// their pipeline executions with resume checkpoints and metering, and the
// triggers produced by detector stages. Report compilation reads
// adjudication state back out of the trigger table rather than trusting
// detector memory.
package pipeline
