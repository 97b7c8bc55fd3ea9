// Package preflight provides readiness checks for the binaries, directories,
// and services the pipeline depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at boot. Required failures abort startup;
//     optional ones (the inference gateway) only log a warning.
//   - The CLI "vigil daemon status" command surfaces the same results so an
//     operator can see what is broken without reading daemon logs.
package preflight
