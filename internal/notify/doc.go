// Package notify delivers operator notifications over ntfy. Delivery is
// best effort: the daemon logs failures and continues, so a downed ntfy
// topic never blocks the pipeline.
package notify
