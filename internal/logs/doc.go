// Package logs reads the daemon log file with bounded memory.
//
// The daemon serves tail requests over its control socket and the CLI renders
// them for `vigil logs`. A negative offset means "the last N lines"; follow
// mode polls from the returned offset until new lines arrive, the wait
// expires, or the caller's context is canceled. Offsets survive across calls,
// so repeated requests stream the file without re-reading it.
package logs
